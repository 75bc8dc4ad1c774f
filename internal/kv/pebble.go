package kv

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// Pebble is a Store backed by a Pebble LSM directory.
type Pebble struct {
	db *pebble.DB
}

var _ Store = (*Pebble)(nil)

// OpenPebble opens (or creates) a Pebble database at dir.
func OpenPebble(dir string) (*Pebble, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("kv: open pebble: %w", err)
	}
	return &Pebble{db: db}, nil
}

// Get implements Store. The returned slice is a copy; Pebble's buffer is
// only valid until the closer runs.
func (p *Pebble) Get(key string) ([]byte, bool, error) {
	v, closer, err := p.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv: get %s: %w", key, err)
	}
	defer closer.Close()
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Set implements Store.
func (p *Pebble) Set(key string, value []byte) error {
	if err := p.db.Set([]byte(key), value, pebble.Sync); err != nil {
		return fmt.Errorf("kv: set %s: %w", key, err)
	}
	return nil
}

// Remove implements Store.
func (p *Pebble) Remove(key string) error {
	if err := p.db.Delete([]byte(key), pebble.Sync); err != nil {
		return fmt.Errorf("kv: remove %s: %w", key, err)
	}
	return nil
}

// ListKeys implements Store using a bounded iterator.
func (p *Pebble) ListKeys(prefix string) ([]string, error) {
	opts := &pebble.IterOptions{LowerBound: []byte(prefix)}
	if upper, ok := prefixUpperBound(prefix); ok {
		opts.UpperBound = []byte(upper)
	}
	it, err := p.db.NewIter(opts)
	if err != nil {
		return nil, fmt.Errorf("kv: new iter: %w", err)
	}
	defer it.Close()

	var out []string
	for ok := it.First(); ok; ok = it.Next() {
		out = append(out, string(it.Key()))
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("kv: iterate: %w", err)
	}
	return out, nil
}

// Close flushes and closes the database.
func (p *Pebble) Close() error {
	return p.db.Close()
}
