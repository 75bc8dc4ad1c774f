package ruleimport

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/kv"
	"github.com/starford/cardsync/internal/linkage"
	"github.com/starford/cardsync/internal/metastore"
	"github.com/starford/cardsync/internal/storekey"
	"github.com/starford/cardsync/internal/transform"
)

const importsMetaName = "ruleImports"

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

type fileState struct {
	Checksum string   `json:"checksum"`
	RuleIDs  []string `json:"ruleIds"`
}

// Report lists what one Sync changed.
type Report struct {
	Imported []string `json:"imported,omitempty"`
	Removed  []string `json:"removed,omitempty"`
	Failed   []string `json:"failed,omitempty"`
}

// Changed reports whether any rule was touched.
func (r Report) Changed() bool { return len(r.Imported)+len(r.Removed) > 0 }

// Importer reconciles the rule store with a rule directory.
type Importer struct {
	mu         sync.Mutex
	dir        *Dir
	rules      *linkage.Store
	kv         kv.Store
	codec      *storekey.Codec
	transforms *transform.Registry
	logger     *slog.Logger
}

// NewImporter creates an importer. Rules naming a transform missing from
// transforms are rejected like any other invalid rule.
func NewImporter(dir *Dir, rules *linkage.Store, store kv.Store, codec *storekey.Codec, transforms *transform.Registry, logger *slog.Logger) *Importer {
	return &Importer{dir: dir, rules: rules, kv: store, codec: codec, transforms: transforms, logger: logger}
}

// Dir returns the watched directory.
func (im *Importer) Dir() *Dir { return im.dir }

// Sync walks the directory and brings the rule store up to date:
//   - new/changed files are parsed and their rules upserted
//   - rules a file no longer declares are deleted
//   - rules of files removed from disk are deleted
//
// A file that fails to parse keeps its previously imported rules.
func (im *Importer) Sync() (Report, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	var rep Report
	metas, err := im.dir.List()
	if err != nil {
		return rep, err
	}
	state := map[string]fileState{}
	if _, err := metastore.Load(im.kv, im.codec, importsMetaName, &state); err != nil {
		return rep, err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}
		prev := state[m.Path]
		if prev.Checksum == m.Checksum {
			continue
		}
		ids, err := im.importFile(m.Path, prev.RuleIDs)
		if err != nil {
			im.logger.Warn("ruleimport: import failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			rep.Failed = append(rep.Failed, m.Path)
			continue
		}
		state[m.Path] = fileState{Checksum: m.Checksum, RuleIDs: ids}
		rep.Imported = append(rep.Imported, m.Path)
		im.logger.Debug("ruleimport: imported", slog.String("path", m.Path), slog.Int("rules", len(ids)))
	}

	for p, st := range state {
		if _, ok := disk[p]; ok {
			continue
		}
		im.deleteRules(p, st.RuleIDs)
		delete(state, p)
		rep.Removed = append(rep.Removed, p)
		im.logger.Debug("ruleimport: removed stale", slog.String("path", p))
	}

	sort.Strings(rep.Imported)
	sort.Strings(rep.Removed)
	if err := metastore.Save(im.kv, im.codec, importsMetaName, state); err != nil {
		return rep, err
	}
	return rep, nil
}

// importFile upserts the rules of one file and deletes the ones it dropped.
func (im *Importer) importFile(path string, previous []string) ([]string, error) {
	data, err := im.dir.Read(path)
	if err != nil {
		return nil, err
	}
	parsed, err := Parse(path, data)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(parsed))
	for _, r := range parsed {
		saved, err := im.save(r)
		if err != nil {
			im.logger.Warn("ruleimport: rule rejected",
				slog.String("path", path),
				slog.String("rule", r.ID),
				slog.String("error", err.Error()))
			continue
		}
		ids = append(ids, saved.ID)
	}

	keep := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}
	var dropped []string
	for _, id := range previous {
		if _, ok := keep[id]; !ok {
			dropped = append(dropped, id)
		}
	}
	im.deleteRules(path, dropped)
	return ids, nil
}

func (im *Importer) save(r linkage.Rule) (linkage.Rule, error) {
	if im.transforms != nil {
		if err := r.CheckTransforms(im.transforms.Has); err != nil {
			return linkage.Rule{}, err
		}
	}
	return im.rules.Save(r)
}

func (im *Importer) deleteRules(path string, ids []string) {
	for _, id := range ids {
		if err := im.rules.Delete(id); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			im.logger.Warn("ruleimport: delete failed",
				slog.String("path", path),
				slog.String("rule", id),
				slog.String("error", err.Error()))
		}
	}
}

// Export writes a stored rule to <id>.yaml in the directory. The file then
// owns the rule like any other imported file.
func (im *Importer) Export(ruleID string) (string, error) {
	r, err := im.rules.Get(ruleID)
	if err != nil {
		return "", err
	}
	data, err := Marshal(r)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s.yaml", unsafeChars.ReplaceAllString(r.ID, "_"))
	if err := im.dir.Write(name, data); err != nil {
		return "", err
	}
	return name, nil
}
