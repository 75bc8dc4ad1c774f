// Package metastore reads and writes JSON values under meta keys.
package metastore

import (
	"encoding/json"
	"fmt"

	"github.com/starford/cardsync/internal/kv"
	"github.com/starford/cardsync/internal/storekey"
)

// Load decodes the value stored at the meta key name into target. It
// reports false, leaving target untouched, when nothing is stored.
func Load[T any](store kv.Store, codec *storekey.Codec, name string, target *T) (bool, error) {
	key, err := codec.MetaKey(name)
	if err != nil {
		return false, err
	}
	data, ok, err := store.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, target); err != nil {
		return false, fmt.Errorf("metastore: decode %s: %w", name, err)
	}
	return true, nil
}

// Save encodes value and writes it at the meta key name.
func Save[T any](store kv.Store, codec *storekey.Codec, name string, value T) error {
	key, err := codec.MetaKey(name)
	if err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("metastore: encode %s: %w", name, err)
	}
	return store.Set(key, data)
}
