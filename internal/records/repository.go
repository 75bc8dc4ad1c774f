package records

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/starford/cardsync/internal/cardid"
	"github.com/starford/cardsync/internal/fieldpath"
	"github.com/starford/cardsync/internal/kv"
	"github.com/starford/cardsync/internal/storekey"
)

const orderMetaName = "cardOrder"

// Repository persists card documents through the key codec. Every write
// replaces the whole record so readers never see a half-applied update.
type Repository struct {
	store kv.Store
	codec *storekey.Codec
}

// NewRepository creates a repository over store.
func NewRepository(store kv.Store, codec *storekey.Codec) *Repository {
	return &Repository{store: store, codec: codec}
}

// Get returns the card document of mode at id; ok is false when absent.
func (r *Repository) Get(mode, id string) (fieldpath.Document, bool, error) {
	key, err := r.codec.CardKey(mode, id)
	if err != nil {
		return nil, false, err
	}
	data, ok, err := r.store.Get(key)
	if err != nil || !ok {
		return nil, false, err
	}
	doc, err := DecodeDocument(data)
	if err != nil {
		return nil, false, fmt.Errorf("records: %s/%s: %w", mode, id, err)
	}
	return doc, true, nil
}

// GetCard returns the typed view of a stored card.
func (r *Repository) GetCard(mode, id string) (*Card, bool, error) {
	doc, ok, err := r.Get(mode, id)
	if err != nil || !ok {
		return nil, ok, err
	}
	c, err := CardFromDocument(doc)
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

// Put writes doc as the record id of mode, replacing any previous record.
func (r *Repository) Put(mode, id string, doc fieldpath.Document) error {
	key, err := r.codec.CardKey(mode, id)
	if err != nil {
		return err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("records: encode %s/%s: %w", mode, id, err)
	}
	return r.store.Set(key, data)
}

// PutCard writes the typed view.
func (r *Repository) PutCard(mode string, c *Card) error {
	doc, err := c.Document()
	if err != nil {
		return err
	}
	return r.Put(mode, c.ID, doc)
}

// Delete removes a record.
func (r *Repository) Delete(mode, id string) error {
	key, err := r.codec.CardKey(mode, id)
	if err != nil {
		return err
	}
	return r.store.Remove(key)
}

// ListIDs returns the ids of every stored card in mode, ordered by
// cardid.CompareCardIDs. Keys that no longer parse are skipped.
func (r *Repository) ListIDs(mode string) ([]string, error) {
	keys, err := r.store.ListKeys(r.codec.CardKeyPrefix(mode))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		id, ok := storekey.IdentifierOf(k)
		if !ok || !cardid.IsValidCardID(id) {
			continue
		}
		ids = append(ids, id)
	}
	slices.SortFunc(ids, cardid.CompareCardIDs)
	return ids, nil
}

// Order returns the display order of a mode's cards. Cards missing from
// the stored order follow it in id order; ids without a card are dropped.
func (r *Repository) Order(mode string) ([]string, error) {
	ids, err := r.ListIDs(mode)
	if err != nil {
		return nil, err
	}
	stored, err := r.storedOrder(mode)
	if err != nil {
		return nil, err
	}
	return MergeOrder(stored, ids), nil
}

// SetOrder persists the display order of a mode.
func (r *Repository) SetOrder(mode string, order []string) error {
	key, err := r.codec.ModeMetaKey(mode, orderMetaName)
	if err != nil {
		return err
	}
	data, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return r.store.Set(key, data)
}

func (r *Repository) storedOrder(mode string) ([]string, error) {
	key, err := r.codec.ModeMetaKey(mode, orderMetaName)
	if err != nil {
		return nil, err
	}
	data, ok, err := r.store.Get(key)
	if err != nil || !ok {
		return nil, err
	}
	var order []string
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, fmt.Errorf("records: decode order of %s: %w", mode, err)
	}
	return order, nil
}

// MergeOrder keeps the entries of preferred that exist in present, then
// appends the rest of present.
func MergeOrder(preferred, present []string) []string {
	exists := make(map[string]bool, len(present))
	for _, id := range present {
		exists[id] = true
	}
	out := make([]string, 0, len(present))
	placed := make(map[string]bool, len(present))
	for _, id := range preferred {
		if exists[id] && !placed[id] {
			out = append(out, id)
			placed[id] = true
		}
	}
	for _, id := range present {
		if !placed[id] {
			out = append(out, id)
		}
	}
	return out
}
