// Package records defines the card shape, its persistence through the key
// codec, the mode (partition) registry and the operator editing surface.
package records

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/fieldpath"
)

// ReservedNull is the literal string that may not be stored as a value: it
// would be indistinguishable from the explicit empty marker.
const ReservedNull = "null"

// Value is a configurable field value. The zero Value is the explicit empty
// marker and serializes as JSON null; the field key is always kept.
type Value struct {
	s   string
	set bool
}

// Text returns a set Value.
func Text(s string) Value { return Value{s: s, set: true} }

// Empty returns the explicit empty marker.
func Empty() Value { return Value{} }

// NormalizeValue turns "" into the empty marker and rejects the reserved literal.
func NormalizeValue(s string) (Value, error) {
	if s == ReservedNull {
		return Value{}, fmt.Errorf("records: %q: %w", s, apperr.ErrReservedValue)
	}
	if s == "" {
		return Empty(), nil
	}
	return Text(s), nil
}

// IsEmpty reports whether v is the empty marker.
func (v Value) IsEmpty() bool { return !v.set }

// String returns the text, or "" for the empty marker.
func (v Value) String() string { return v.s }

// Normalized maps a set empty string to the empty marker.
func (v Value) Normalized() Value {
	if v.set && v.s == "" {
		return Empty()
	}
	return v
}

// IsReserved reports whether v holds the reserved literal.
func (v Value) IsReserved() bool { return v.set && v.s == ReservedNull }

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.set {
		return []byte("null"), nil
	}
	return json.Marshal(v.s)
}

// UnmarshalJSON accepts strings, numbers, booleans and null. Numbers are
// kept in their textual form so transforms that wrote numbers survive.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = Empty()
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Text(s)
		return nil
	}
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	switch typed := raw.(type) {
	case json.Number:
		*v = Text(typed.String())
	case bool:
		*v = Text(strconv.FormatBool(typed))
	default:
		return fmt.Errorf("records: unsupported value %s", data)
	}
	return nil
}

// Option is a numbered sub-record of a card.
type Option struct {
	ID    string `json:"id"`
	Name  Value  `json:"name"`
	Value Value  `json:"value"`
	Unit  Value  `json:"unit"`
}

// FieldStatus is the per-field replication flag pair.
type FieldStatus struct {
	HasSync      bool `json:"hasSync"`
	IsAuthorized bool `json:"isAuthorized"`
}

// Field names used in sync status, push requests and the authorization ledger.
const (
	FieldTitle       = "title"
	FieldOptionName  = "optionName"
	FieldOptionValue = "optionValue"
	FieldOptionUnit  = "optionUnit"

	FieldOptions       = "options"
	FieldSelectOptions = "selectOptions"
	FieldCardCount     = "cardCount"
	FieldCardOrder     = "cardOrder"
)

// ConfigurableFields replicate only when requested.
var ConfigurableFields = []string{FieldTitle, FieldOptionName, FieldOptionValue, FieldOptionUnit}

// FixedFields always replicate on a full push.
var FixedFields = []string{FieldOptions, FieldSelectOptions, FieldCardCount, FieldCardOrder}

// IsConfigurableField reports whether name is one of ConfigurableFields.
func IsConfigurableField(name string) bool {
	for _, f := range ConfigurableFields {
		if f == name {
			return true
		}
	}
	return false
}

// Card is the typed view of a record.
type Card struct {
	ID            string                 `json:"id"`
	Title         Value                  `json:"title"`
	Options       []Option               `json:"options"`
	SelectOptions []string               `json:"selectOptions"`
	SyncStatus    map[string]FieldStatus `json:"syncStatus"`
}

// OptionByID returns the option with the given id.
func (c *Card) OptionByID(id string) (Option, bool) {
	for _, o := range c.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// OptionIDs returns the ids of all options in order.
func (c *Card) OptionIDs() []string {
	out := make([]string, len(c.Options))
	for i, o := range c.Options {
		out[i] = o.ID
	}
	return out
}

// Editable reports whether field may be edited locally: it was never
// replicated, or the replication carried authorization.
func (c *Card) Editable(field string) bool {
	st, ok := c.SyncStatus[field]
	return !ok || !st.HasSync || st.IsAuthorized
}

// NewCard returns the canonical empty card: no title, no options, and every
// known field unsynced.
func NewCard(id string) *Card {
	status := make(map[string]FieldStatus, len(ConfigurableFields)+len(FixedFields))
	for _, f := range ConfigurableFields {
		status[f] = FieldStatus{}
	}
	for _, f := range FixedFields {
		status[f] = FieldStatus{}
	}
	return &Card{
		ID:            id,
		Options:       []Option{},
		SelectOptions: []string{},
		SyncStatus:    status,
	}
}

// Skeleton returns NewCard(id) in document form.
func Skeleton(id string) fieldpath.Document {
	doc, _ := NewCard(id).Document()
	return doc
}

// Document converts the card to its generic map form.
func (c *Card) Document() (fieldpath.Document, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("records: encode card %s: %w", c.ID, err)
	}
	return DecodeDocument(data)
}

// CardFromDocument reads the typed view out of a document. Keys the typed
// view does not know about are ignored.
func CardFromDocument(doc fieldpath.Document) (*Card, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("records: encode document: %w", err)
	}
	c := &Card{}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("records: decode card: %w: %v", apperr.ErrValidation, err)
	}
	if c.Options == nil {
		c.Options = []Option{}
	}
	if c.SelectOptions == nil {
		c.SelectOptions = []string{}
	}
	if c.SyncStatus == nil {
		c.SyncStatus = map[string]FieldStatus{}
	}
	return c, nil
}

// DecodeDocument parses stored bytes into a document. Numbers stay
// json.Number so values round-trip without float drift.
func DecodeDocument(data []byte) (fieldpath.Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc fieldpath.Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("records: decode document: %w", err)
	}
	if doc == nil {
		doc = fieldpath.Document{}
	}
	return doc, nil
}

// CloneDocument returns a deep copy of doc.
func CloneDocument(doc fieldpath.Document) (fieldpath.Document, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("records: clone document: %w", err)
	}
	return DecodeDocument(data)
}

// SetFieldStatus marks one field of a document's sync status.
func SetFieldStatus(doc fieldpath.Document, field string, st FieldStatus) {
	status, ok := doc["syncStatus"].(map[string]any)
	if !ok {
		status = map[string]any{}
		doc["syncStatus"] = status
	}
	status[field] = map[string]any{"hasSync": st.HasSync, "isAuthorized": st.IsAuthorized}
}
