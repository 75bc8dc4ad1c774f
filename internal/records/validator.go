package records

import (
	"errors"
	"fmt"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/cardsync/internal/cardid"
	"github.com/starford/cardsync/internal/fieldpath"
)

// ValidationResult is what a Validator reports for one record.
type ValidationResult struct {
	Pass       bool
	Errors     []string
	Normalized fieldpath.Document
}

// Validator checks a record document before it is written. A failing
// record is skipped whole; it is never partially written.
type Validator interface {
	Validate(doc fieldpath.Document) ValidationResult
}

// ShapeValidator enforces the card shape: a valid card id, valid and unique
// option ids, and no reserved literal in any value.
type ShapeValidator struct{}

var _ Validator = ShapeValidator{}

var isCardID = validation.NewStringRule(cardid.IsValidCardID, "must be a spreadsheet-style card id")
var isOptionID = validation.NewStringRule(cardid.IsValidOptionID, "must be a numeric option id")

var notReserved = validation.By(func(value interface{}) error {
	if v, ok := value.(Value); ok && v.IsReserved() {
		return errors.New("must not be the literal \"null\"")
	}
	return nil
})

// Validate implements Validator. Normalized holds the document with the
// canonical skeleton keys filled in and unknown keys preserved.
func (ShapeValidator) Validate(doc fieldpath.Document) ValidationResult {
	card, err := CardFromDocument(doc)
	if err != nil {
		return ValidationResult{Errors: []string{err.Error()}}
	}

	var errs []string
	if err := validation.ValidateStruct(card,
		validation.Field(&card.ID, validation.Required, isCardID),
		validation.Field(&card.Title, notReserved),
	); err != nil {
		errs = append(errs, flatten("", err)...)
	}

	seen := make(map[string]struct{}, len(card.Options))
	for i := range card.Options {
		o := &card.Options[i]
		prefix := fmt.Sprintf("options.%d.", i)
		if err := validation.ValidateStruct(o,
			validation.Field(&o.ID, validation.Required, isOptionID),
			validation.Field(&o.Name, notReserved),
			validation.Field(&o.Value, notReserved),
			validation.Field(&o.Unit, notReserved),
		); err != nil {
			errs = append(errs, flatten(prefix, err)...)
		}
		if _, dup := seen[o.ID]; dup {
			errs = append(errs, prefix+"id: duplicate option id "+o.ID)
		}
		seen[o.ID] = struct{}{}
	}

	if len(errs) > 0 {
		return ValidationResult{Errors: errs}
	}

	normalized := make(fieldpath.Document, len(doc)+4)
	for k, v := range doc {
		normalized[k] = v
	}
	for k, v := range Skeleton(card.ID) {
		if _, ok := normalized[k]; !ok {
			normalized[k] = v
		}
	}
	return ValidationResult{Pass: true, Normalized: normalized}
}

func flatten(prefix string, err error) []string {
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return []string{prefix + err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for field, e := range verrs {
		out = append(out, prefix+field+": "+e.Error())
	}
	sort.Strings(out)
	return out
}
