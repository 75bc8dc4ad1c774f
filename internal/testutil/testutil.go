// Package testutil provides shared test helpers for setting up stores and a
// ready sync engine.
package testutil

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/starford/cardsync/internal/kv"
	"github.com/starford/cardsync/internal/ledger"
	"github.com/starford/cardsync/internal/linkage"
	"github.com/starford/cardsync/internal/records"
	"github.com/starford/cardsync/internal/storekey"
	"github.com/starford/cardsync/internal/syncengine"
	"github.com/starford/cardsync/internal/syncservice"
	"github.com/starford/cardsync/internal/transform"
)

// TestStore creates a temporary SQLite-backed store that is automatically closed.
func TestStore(t *testing.T) kv.Store {
	t.Helper()
	store, err := kv.Open(kv.DriverSQLite, filepath.Join(t.TempDir(), "cardsync-test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// Env is a fully wired engine over one store.
type Env struct {
	Store   kv.Store
	Codec   *storekey.Codec
	Repo    *records.Repository
	Modes   *records.Modes
	Rules   *linkage.Store
	History *ledger.History
	Auths   *ledger.Authorizations
	Engine  *syncengine.Executor
	Service *syncservice.Service
}

// NewEnv wires every component over a temporary store and registers the
// given target modes next to the default source mode.
func NewEnv(t *testing.T, targets ...string) *Env {
	t.Helper()
	store := TestStore(t)
	codec := storekey.NewCodec("", "v1")
	env := &Env{
		Store:   store,
		Codec:   codec,
		Repo:    records.NewRepository(store, codec),
		Modes:   records.NewModes(store, codec, ""),
		Rules:   linkage.NewStore(store, codec),
		History: ledger.NewHistory(store, codec),
		Auths:   ledger.NewAuthorizations(store, codec),
	}
	for _, id := range targets {
		if err := env.Modes.Register(records.Mode{ID: id, Name: id}); err != nil {
			t.Fatal(err)
		}
	}
	transforms := transform.NewRegistry()
	writeLock := &sync.Mutex{}
	env.Engine = syncengine.New(syncengine.Deps{
		Repo:           env.Repo,
		Modes:          env.Modes,
		Rules:          env.Rules,
		History:        env.History,
		Authorizations: env.Auths,
		Transforms:     transforms,
	}, syncengine.WithWriteLock(writeLock))
	env.Service = syncservice.New(syncservice.Deps{
		Records:        records.NewService(env.Repo, env.Modes, nil, records.WithWriteLock(writeLock)),
		Rules:          env.Rules,
		Engine:         env.Engine,
		History:        env.History,
		Authorizations: env.Auths,
		Transforms:     transforms,
	})
	return env
}

// PutCard stores a card with a title and options directly, bypassing the
// record service.
func (e *Env) PutCard(t *testing.T, mode, id, title string, opts ...records.Option) {
	t.Helper()
	c := records.NewCard(id)
	c.Title = records.Text(title)
	if opts != nil {
		c.Options = opts
	}
	if err := e.Repo.PutCard(mode, c); err != nil {
		t.Fatal(err)
	}
}
