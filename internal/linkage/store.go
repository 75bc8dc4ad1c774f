package linkage

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/kv"
	"github.com/starford/cardsync/internal/metastore"
	"github.com/starford/cardsync/internal/storekey"
)

const rulesMetaName = "linkageRules"

// Store reads and writes the rule list.
type Store struct {
	mu    sync.Mutex
	kv    kv.Store
	codec *storekey.Codec
	now   func() time.Time
}

// NewStore creates a rule store.
func NewStore(store kv.Store, codec *storekey.Codec) *Store {
	return &Store{kv: store, codec: codec, now: time.Now}
}

// Load returns every stored rule in save order.
func (s *Store) Load() ([]Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Get returns one rule by id.
func (s *Store) Get(id string) (Rule, error) {
	rules, err := s.Load()
	if err != nil {
		return Rule{}, err
	}
	for _, r := range rules {
		if r.ID == id {
			return r, nil
		}
	}
	return Rule{}, fmt.Errorf("linkage: rule %s: %w", id, apperr.ErrNotFound)
}

// Save validates rule and upserts it by id. An empty id gets a fresh one.
// The whole list is rewritten.
func (s *Store) Save(rule Rule) (Rule, error) {
	if rule.Direction == "" {
		rule.Direction = DirectionForward
	}
	if err := rule.Validate(); err != nil {
		return Rule{}, fmt.Errorf("linkage: %w: %v", apperr.ErrValidation, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rules, err := s.load()
	if err != nil {
		return Rule{}, err
	}
	now := s.now().UTC()
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	rule.UpdatedAt = now

	replaced := false
	for i := range rules {
		if rules[i].ID == rule.ID {
			rule.CreatedAt = rules[i].CreatedAt
			rules[i] = rule
			replaced = true
			break
		}
	}
	if !replaced {
		rule.CreatedAt = now
		rules = append(rules, rule)
	}
	if err := metastore.Save(s.kv, s.codec, rulesMetaName, rules); err != nil {
		return Rule{}, err
	}
	return rule, nil
}

// SaveAll replaces the whole list. Every rule must validate and carry an id.
func (s *Store) SaveAll(rules []Rule) error {
	seen := make(map[string]struct{}, len(rules))
	for i := range rules {
		if rules[i].Direction == "" {
			rules[i].Direction = DirectionForward
		}
		if rules[i].ID == "" {
			return fmt.Errorf("linkage: rule %d has no id: %w", i, apperr.ErrValidation)
		}
		if _, dup := seen[rules[i].ID]; dup {
			return fmt.Errorf("linkage: rule %s: %w", rules[i].ID, apperr.ErrAlreadyExists)
		}
		seen[rules[i].ID] = struct{}{}
		if err := rules[i].Validate(); err != nil {
			return fmt.Errorf("linkage: rule %s: %w: %v", rules[i].ID, apperr.ErrValidation, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rules == nil {
		rules = []Rule{}
	}
	return metastore.Save(s.kv, s.codec, rulesMetaName, rules)
}

// Delete removes a rule by id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rules, err := s.load()
	if err != nil {
		return err
	}
	kept := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(rules) {
		return fmt.Errorf("linkage: rule %s: %w", id, apperr.ErrNotFound)
	}
	return metastore.Save(s.kv, s.codec, rulesMetaName, kept)
}

func (s *Store) load() ([]Rule, error) {
	var rules []Rule
	if _, err := metastore.Load(s.kv, s.codec, rulesMetaName, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}
