package internal

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/starford/cardsync/internal/kv"
	"github.com/starford/cardsync/internal/ledger"
	"github.com/starford/cardsync/internal/linkage"
	"github.com/starford/cardsync/internal/metrics"
	"github.com/starford/cardsync/internal/records"
	"github.com/starford/cardsync/internal/ruleimport"
	"github.com/starford/cardsync/internal/storekey"
	"github.com/starford/cardsync/internal/syncengine"
	"github.com/starford/cardsync/internal/syncservice"
	"github.com/starford/cardsync/internal/transform"
)

var errConfigRequired = errors.New("config is required")

// components is everything both the HTTP and the MCP surfaces run on.
type components struct {
	store    kv.Store
	svc      *syncservice.Service
	importer *ruleimport.Importer
	metrics  *metrics.Metrics
}

func (c *components) Close() error {
	return c.store.Close()
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// build wires the store, the record layer, the ledgers and the engine.
// observer may be nil.
func build(cfg *Config, logger *slog.Logger, observer syncengine.Observer) (*components, error) {
	store, err := kv.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	codec := storekey.NewCodec(cfg.Store.Prefix, cfg.Store.Version)

	repo := records.NewRepository(store, codec)
	modes := records.NewModes(store, codec, cfg.Sync.SourceMode)
	rules := linkage.NewStore(store, codec)
	history := ledger.NewHistory(store, codec)
	auths := ledger.NewAuthorizations(store, codec)
	transforms := transform.NewRegistry()
	m := metrics.New()
	writeLock := &sync.Mutex{}

	opts := []syncengine.Option{
		syncengine.WithWriteLock(writeLock),
		syncengine.WithLogger(logger),
		syncengine.WithRecorder(m),
		syncengine.WithHistoryLimit(cfg.Sync.HistoryLimit),
	}
	if observer != nil {
		opts = append(opts, syncengine.WithObserver(observer))
	}
	engine := syncengine.New(syncengine.Deps{
		Repo:           repo,
		Modes:          modes,
		Rules:          rules,
		History:        history,
		Authorizations: auths,
		Transforms:     transforms,
	}, opts...)

	var importer *ruleimport.Importer
	if cfg.Rules.Dir != "" {
		dir, err := ruleimport.NewDir(cfg.Rules.Dir)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("init rule dir: %w", err)
		}
		importer = ruleimport.NewImporter(dir, rules, store, codec, transforms, logger)
	}

	svc := syncservice.New(syncservice.Deps{
		Records:        records.NewService(repo, modes, nil, records.WithWriteLock(writeLock)),
		Rules:          rules,
		Engine:         engine,
		History:        history,
		Authorizations: auths,
		Transforms:     transforms,
		Importer:       importer,
	})

	return &components{store: store, svc: svc, importer: importer, metrics: m}, nil
}

// syncRules runs one import pass. Failures are logged; the service still
// starts with whatever rules are stored.
func (c *components) syncRules(logger *slog.Logger) {
	if c.importer == nil {
		return
	}
	rep, err := c.importer.Sync()
	if err != nil {
		logger.Warn("initial rule sync failed", slog.String("error", err.Error()))
		return
	}
	logger.Info("Rules imported",
		slog.Int("imported", len(rep.Imported)),
		slog.Int("removed", len(rep.Removed)),
		slog.Int("failed", len(rep.Failed)))
}
