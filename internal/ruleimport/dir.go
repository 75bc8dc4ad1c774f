// Package ruleimport keeps linkage rules in sync with a directory of YAML
// rule files. A file owns the rules it declares: editing it re-imports
// them, deleting it removes them.
package ruleimport

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileMeta describes one rule file on disk.
type FileMeta struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Dir is a rule directory on the local file system.
type Dir struct {
	root string // absolute
}

// NewDir opens root, creating it when missing.
func NewDir(root string) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("ruleimport: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("ruleimport: mkdir root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("ruleimport: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("ruleimport: root is not a directory: %s", abs)
	}
	return &Dir{root: abs}, nil
}

// Root returns the absolute directory path.
func (d *Dir) Root() string { return d.root }

// IsRuleFile reports whether name has a YAML extension.
func IsRuleFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// safePath resolves rel against root and rejects anything that escapes it.
func (d *Dir) safePath(rel string) (string, error) {
	cleaned := filepath.Clean(rel)
	if rel == "" || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("ruleimport: invalid path %q", rel)
	}
	abs, err := filepath.Abs(filepath.Join(d.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("ruleimport: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, d.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("ruleimport: path escapes rule dir: %s", rel)
	}
	return abs, nil
}

// List walks the directory and returns every rule file.
func (d *Dir) List() ([]FileMeta, error) {
	var out []FileMeta
	err := filepath.WalkDir(d.root, func(p string, e fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if e.IsDir() || !IsRuleFile(e.Name()) || strings.HasPrefix(e.Name(), ".") {
			return nil
		}
		info, err := e.Info()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(d.root, p)
		out = append(out, FileMeta{
			Path:      filepath.ToSlash(rel),
			Checksum:  checksum(data),
			UpdatedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ruleimport: list: %w", err)
	}
	return out, nil
}

// Read returns the bytes of a rule file.
func (d *Dir) Read(rel string) ([]byte, error) {
	abs, err := d.safePath(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("ruleimport: read %s: %w", rel, err)
	}
	return data, nil
}

// Write atomically replaces a rule file: temp file, fsync, rename.
func (d *Dir) Write(rel string, content []byte) error {
	abs, err := d.safePath(rel)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ruleimport: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".cardsync-tmp-*")
	if err != nil {
		return fmt.Errorf("ruleimport: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("ruleimport: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("ruleimport: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("ruleimport: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("ruleimport: rename: %w", err)
	}
	success = true
	return nil
}

func checksum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
