// Package linkage persists named replication rules. All rules live as one
// list under a single meta key and are only ever replaced whole.
package linkage

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/cardid"
	"github.com/starford/cardsync/internal/fieldpath"
)

// Directions a rule may declare.
const (
	DirectionForward       = "forward"
	DirectionBidirectional = "bidirectional"
)

// ReversePrefix is prepended to a rule id in the history of a reverse run.
const ReversePrefix = "reverse:"

var modeIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// FieldMapping copies one field path of the source card to a field path of
// the target card, optionally through a named transform.
type FieldMapping struct {
	SourceField string `json:"sourceField"`
	TargetField string `json:"targetField"`
	Transform   string `json:"transform,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// CardMapping pairs a source card with a target card.
type CardMapping struct {
	SourceCardID  string         `json:"sourceCardId"`
	TargetCardID  string         `json:"targetCardId"`
	FieldMappings []FieldMapping `json:"fieldMappings"`
	Enabled       bool           `json:"enabled"`
}

// Rule describes which cards and fields replicate from one mode to another.
type Rule struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	SourceModeID string        `json:"sourceModeId"`
	TargetModeID string        `json:"targetModeId"`
	CardMappings []CardMapping `json:"cardMappings"`
	Enabled      bool          `json:"enabled"`
	Direction    string        `json:"direction"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// Reversed returns the rule with modes and card ids swapped, and every
// field mapping pointing the other way. Transforms are kept.
func (r Rule) Reversed() Rule {
	out := r
	out.ID = ReversePrefix + r.ID
	out.SourceModeID, out.TargetModeID = r.TargetModeID, r.SourceModeID
	out.CardMappings = make([]CardMapping, len(r.CardMappings))
	for i, cm := range r.CardMappings {
		rc := CardMapping{
			SourceCardID:  cm.TargetCardID,
			TargetCardID:  cm.SourceCardID,
			Enabled:       cm.Enabled,
			FieldMappings: make([]FieldMapping, len(cm.FieldMappings)),
		}
		for j, fm := range cm.FieldMappings {
			rc.FieldMappings[j] = FieldMapping{
				SourceField: fm.TargetField,
				TargetField: fm.SourceField,
				Transform:   fm.Transform,
				Enabled:     fm.Enabled,
			}
		}
		out.CardMappings[i] = rc
	}
	return out
}

var isCardID = validation.NewStringRule(cardid.IsValidCardID, "must be a spreadsheet-style card id")

var isFieldPath = validation.By(func(value interface{}) error {
	s, _ := value.(string)
	_, err := fieldpath.Parse(s)
	return err
})

// Validate implements validation.Validatable.
func (r Rule) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.SourceModeID, validation.Required, validation.Match(modeIDRe)),
		validation.Field(&r.TargetModeID, validation.Required, validation.Match(modeIDRe),
			validation.By(func(interface{}) error {
				if r.TargetModeID == r.SourceModeID {
					return errors.New("must differ from the source mode")
				}
				return nil
			})),
		validation.Field(&r.Direction, validation.In(DirectionForward, DirectionBidirectional)),
		validation.Field(&r.CardMappings),
	)
}

// Validate implements validation.Validatable.
func (m CardMapping) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.SourceCardID, validation.Required, isCardID),
		validation.Field(&m.TargetCardID, validation.Required, isCardID),
		validation.Field(&m.FieldMappings),
	)
}

// Validate implements validation.Validatable.
func (m FieldMapping) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.SourceField, validation.Required, isFieldPath),
		validation.Field(&m.TargetField, validation.Required, isFieldPath),
	)
}

// CheckTransforms fails with apperr.ErrValidation on the first transform
// name known does not recognize. Empty names mean no transform.
func (r Rule) CheckTransforms(known func(name string) bool) error {
	for _, cm := range r.CardMappings {
		for _, fm := range cm.FieldMappings {
			if fm.Transform != "" && !known(fm.Transform) {
				return fmt.Errorf("linkage: rule %s: unknown transform %q: %w", r.ID, fm.Transform, apperr.ErrValidation)
			}
		}
	}
	return nil
}

func (r Rule) String() string {
	return fmt.Sprintf("%s (%s -> %s)", r.ID, r.SourceModeID, r.TargetModeID)
}
