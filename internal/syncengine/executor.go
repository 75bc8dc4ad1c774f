// Package syncengine replicates cards from the source mode to target modes,
// either by walking a stored linkage rule or by pushing whole records.
package syncengine

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/starford/cardsync/internal/fieldpath"
	"github.com/starford/cardsync/internal/ledger"
	"github.com/starford/cardsync/internal/linkage"
	"github.com/starford/cardsync/internal/records"
	"github.com/starford/cardsync/internal/transform"
)

// Execution kinds, used in history entries, events and metrics.
const (
	KindLinkage = "linkage"
	KindReverse = "reverse"
	KindPush    = "push"
)

// ConflictDetector decides whether a card mapping ran into a conflict. The
// result only flags the history entry; nothing is resolved.
type ConflictDetector func(source, target fieldpath.Document, mapping linkage.CardMapping) bool

// NoConflicts never flags.
func NoConflicts(fieldpath.Document, fieldpath.Document, linkage.CardMapping) bool { return false }

// Observer is told about every finished execution.
type Observer func(kind string, entry ledger.Entry)

// Recorder receives execution counters.
type Recorder interface {
	SyncFinished(kind, status string, records, warnings int)
	SyncRejected(kind, reason string)
}

type nopRecorder struct{}

func (nopRecorder) SyncFinished(string, string, int, int) {}
func (nopRecorder) SyncRejected(string, string)           {}

// Deps are the collaborators every executor needs.
type Deps struct {
	Repo           *records.Repository
	Modes          *records.Modes
	Rules          *linkage.Store
	History        *ledger.History
	Authorizations *ledger.Authorizations
	Transforms     *transform.Registry
}

// Executor runs one execution at a time: read source, transform, write
// targets, append history. The store has no transactions, so executions
// must not interleave.
type Executor struct {
	mu sync.Locker

	repo       *records.Repository
	modes      *records.Modes
	rules      *linkage.Store
	history    *ledger.History
	auths      *ledger.Authorizations
	transforms *transform.Registry

	validator    records.Validator
	conflicts    ConflictDetector
	observer     Observer
	recorder     Recorder
	historyLimit int
	log          *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithValidator replaces the record validator.
func WithValidator(v records.Validator) Option {
	return func(e *Executor) { e.validator = v }
}

// WithConflictDetector installs a conflict policy for rule-driven runs.
func WithConflictDetector(d ConflictDetector) Option {
	return func(e *Executor) { e.conflicts = d }
}

// WithObserver installs a callback for finished executions.
func WithObserver(o Observer) Option {
	return func(e *Executor) { e.observer = o }
}

// WithRecorder installs a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Executor) { e.recorder = r }
}

// WithHistoryLimit sets the cap applied to history written by pushes.
func WithHistoryLimit(n int) Option {
	return func(e *Executor) { e.historyLimit = n }
}

// WithWriteLock serializes executions on l instead of a private mutex.
// Pass the same lock to records.WithWriteLock so local edits and syncs
// never interleave.
func WithWriteLock(l sync.Locker) Option {
	return func(e *Executor) { e.mu = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.log = l }
}

// New creates an Executor.
func New(d Deps, opts ...Option) *Executor {
	e := &Executor{
		mu:           &sync.Mutex{},
		repo:         d.Repo,
		modes:        d.Modes,
		rules:        d.Rules,
		history:      d.History,
		auths:        d.Authorizations,
		transforms:   d.Transforms,
		validator:    records.ShapeValidator{},
		conflicts:    NoConflicts,
		recorder:     nopRecorder{},
		historyLimit: ledger.DefaultHistoryLimit,
		log:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(e)
	}
	if e.transforms == nil {
		e.transforms = transform.NewRegistry()
	}
	e.log = e.log.With("component", "syncengine")
	return e
}

func (e *Executor) finished(ctx context.Context, kind string, entry ledger.Entry, warnings int) {
	e.recorder.SyncFinished(kind, entry.Status, len(entry.RecordIDs), warnings)
	e.log.InfoContext(ctx, "sync finished",
		"kind", kind,
		"history_id", entry.ID,
		"source", entry.SourceModeID,
		"target", entry.TargetModeID,
		"records", len(entry.RecordIDs),
		"status", entry.Status,
	)
	if e.observer != nil {
		e.observer(kind, entry)
	}
}

func (e *Executor) rejected(ctx context.Context, kind, reason string, err error) error {
	e.recorder.SyncRejected(kind, reason)
	e.log.WarnContext(ctx, "sync rejected", "kind", kind, "reason", reason, "err", err)
	return err
}
