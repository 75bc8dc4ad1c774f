// Package ledger keeps the append-only sync history and the map of fields
// a target mode may edit locally.
package ledger

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/kv"
	"github.com/starford/cardsync/internal/metastore"
	"github.com/starford/cardsync/internal/storekey"
)

const historyMetaName = "syncHistory"

// DefaultHistoryLimit caps history written by full pushes.
const DefaultHistoryLimit = 50

// Status of a finished sync.
const (
	StatusCompleted              = "completed"
	StatusCompletedWithConflicts = "completed_with_conflicts"
)

// Entry records one finished sync.
type Entry struct {
	ID               string    `json:"id"`
	Kind             string    `json:"kind"`
	SourceModeID     string    `json:"sourceModeId"`
	TargetModeID     string    `json:"targetModeId"`
	RecordIDs        []string  `json:"recordIds"`
	RuleID           string    `json:"ruleId,omitempty"`
	Fields           []string  `json:"fields"`
	AuthorizedFields []string  `json:"authorizedFields,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
	Status           string    `json:"status"`
	ConflictDetected bool      `json:"conflictDetected"`
}

// StatusFor returns the status matching a conflict flag.
func StatusFor(conflict bool) string {
	if conflict {
		return StatusCompletedWithConflicts
	}
	return StatusCompleted
}

// History is the append-only sync log, stored oldest first.
type History struct {
	mu    sync.Mutex
	kv    kv.Store
	codec *storekey.Codec
	now   func() time.Time
}

// NewHistory creates the log.
func NewHistory(store kv.Store, codec *storekey.Codec) *History {
	return &History{kv: store, codec: codec, now: time.Now}
}

// Append stores e, filling ID, Timestamp and Status when unset. A positive
// limit evicts the oldest entries beyond it; zero keeps everything.
func (h *History) Append(e Entry, limit int) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = h.now().UTC()
	}
	if e.Status == "" {
		e.Status = StatusFor(e.ConflictDetected)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	entries, err := h.load()
	if err != nil {
		return Entry{}, err
	}
	entries = append(entries, e)
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	if err := metastore.Save(h.kv, h.codec, historyMetaName, entries); err != nil {
		return Entry{}, fmt.Errorf("ledger: append history: %w", err)
	}
	return e, nil
}

// List returns entries newest first. A positive n truncates the result.
func (h *History) List(n int) ([]Entry, error) {
	h.mu.Lock()
	entries, err := h.load()
	h.mu.Unlock()
	if err != nil {
		return nil, err
	}
	slices.Reverse(entries)
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

// Get returns one entry by id.
func (h *History) Get(id string) (Entry, error) {
	entries, err := h.List(0)
	if err != nil {
		return Entry{}, err
	}
	for _, e := range entries {
		if e.ID == id {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("ledger: history %s: %w", id, apperr.ErrNotFound)
}

func (h *History) load() ([]Entry, error) {
	entries := []Entry{}
	if _, err := metastore.Load(h.kv, h.codec, historyMetaName, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
