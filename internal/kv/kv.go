// Package kv defines the host key-value store the engine persists through:
// a plain string-keyed get/set/remove/enumerate store without transactions.
package kv

import (
	"fmt"
	"os"
	"path/filepath"
)

// Store is the interface every backend implements.
type Store interface {
	// Get returns the value at key; ok is false when the key is absent.
	Get(key string) (value []byte, ok bool, err error)
	// Set writes value at key, replacing any previous value.
	Set(key string, value []byte) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(key string) error
	// ListKeys returns every key starting with prefix, in byte order.
	ListKeys(prefix string) ([]string, error)
	// Close releases the backend.
	Close() error
}

// Drivers accepted by Open.
const (
	DriverSQLite = "sqlite"
	DriverPebble = "pebble"
	DriverMemory = "memory"
)

// Open creates the backend named by driver. path is ignored for memory.
func Open(driver, path string) (Store, error) {
	switch driver {
	case DriverSQLite:
		if err := ensureParent(path); err != nil {
			return nil, err
		}
		return OpenSQLite(path)
	case DriverPebble:
		if err := ensureParent(path); err != nil {
			return nil, err
		}
		return OpenPebble(path)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("kv: unknown driver %q", driver)
	}
}

func ensureParent(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("kv: mkdir %s: %w", dir, err)
	}
	return nil
}
