package records

import (
	"fmt"
	"regexp"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/kv"
	"github.com/starford/cardsync/internal/metastore"
	"github.com/starford/cardsync/internal/storekey"
)

// DefaultSourceModeID is the well-known id of the replication source.
const DefaultSourceModeID = "source"

const modesMetaName = "modes"

var modeIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Mode is an isolated partition of cards.
type Mode struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Validate implements validation.Validatable.
func (m Mode) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.ID, validation.Required, validation.Match(modeIDRe)),
		validation.Field(&m.Name, validation.Length(0, 200)),
	)
}

// Modes is the registry of partitions. The source mode always exists and
// cannot be registered or removed.
type Modes struct {
	mu       sync.Mutex
	store    kv.Store
	codec    *storekey.Codec
	sourceID string
}

// NewModes creates the registry. An empty sourceID uses DefaultSourceModeID.
func NewModes(store kv.Store, codec *storekey.Codec, sourceID string) *Modes {
	if sourceID == "" {
		sourceID = DefaultSourceModeID
	}
	return &Modes{store: store, codec: codec, sourceID: sourceID}
}

// SourceID returns the id of the source mode.
func (m *Modes) SourceID() string { return m.sourceID }

// IsSource reports whether id is the source mode.
func (m *Modes) IsSource(id string) bool { return id == m.sourceID }

// List returns the source mode followed by every registered target.
func (m *Modes) List() ([]Mode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	targets, err := m.load()
	if err != nil {
		return nil, err
	}
	return append([]Mode{{ID: m.sourceID, Name: "Source"}}, targets...), nil
}

// Exists reports whether id is the source or a registered target.
func (m *Modes) Exists(id string) (bool, error) {
	if m.IsSource(id) {
		return true, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	targets, err := m.load()
	if err != nil {
		return false, err
	}
	for _, t := range targets {
		if t.ID == id {
			return true, nil
		}
	}
	return false, nil
}

// Register adds a target mode.
func (m *Modes) Register(mode Mode) error {
	if err := mode.Validate(); err != nil {
		return fmt.Errorf("records: mode: %w: %v", apperr.ErrValidation, err)
	}
	if m.IsSource(mode.ID) {
		return fmt.Errorf("records: mode %s: %w", mode.ID, apperr.ErrAlreadyExists)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	targets, err := m.load()
	if err != nil {
		return err
	}
	for _, t := range targets {
		if t.ID == mode.ID {
			return fmt.Errorf("records: mode %s: %w", mode.ID, apperr.ErrAlreadyExists)
		}
	}
	return metastore.Save(m.store, m.codec, modesMetaName, append(targets, mode))
}

// Remove unregisters a target mode. Its cards stay in the store.
func (m *Modes) Remove(id string) error {
	if m.IsSource(id) {
		return fmt.Errorf("records: source mode cannot be removed: %w", apperr.ErrForbidden)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	targets, err := m.load()
	if err != nil {
		return err
	}
	kept := targets[:0]
	found := false
	for _, t := range targets {
		if t.ID == id {
			found = true
			continue
		}
		kept = append(kept, t)
	}
	if !found {
		return fmt.Errorf("records: mode %s: %w", id, apperr.ErrNotFound)
	}
	return metastore.Save(m.store, m.codec, modesMetaName, kept)
}

func (m *Modes) load() ([]Mode, error) {
	var targets []Mode
	if _, err := metastore.Load(m.store, m.codec, modesMetaName, &targets); err != nil {
		return nil, err
	}
	return targets, nil
}
