package ledger

import (
	"sort"
	"sync"

	"github.com/starford/cardsync/internal/kv"
	"github.com/starford/cardsync/internal/metastore"
	"github.com/starford/cardsync/internal/storekey"
)

const authMetaName = "fieldAuthorizations"

// Authorization says whether a target may edit a replicated field locally.
type Authorization struct {
	SourceModeID string `json:"sourceModeId"`
	TargetModeID string `json:"targetModeId"`
	Field        string `json:"field"`
	Authorized   bool   `json:"authorized"`
}

type authKey struct{ source, target, field string }

// Authorizations is the (source, target, field) -> bool map.
type Authorizations struct {
	mu    sync.Mutex
	kv    kv.Store
	codec *storekey.Codec
}

// NewAuthorizations creates the map.
func NewAuthorizations(store kv.Store, codec *storekey.Codec) *Authorizations {
	return &Authorizations{kv: store, codec: codec}
}

// Set records a single flag.
func (a *Authorizations) Set(source, target, field string, authorized bool) error {
	return a.SetMany(source, target, map[string]bool{field: authorized})
}

// SetMany records several flags of one source/target pair in one write.
func (a *Authorizations) SetMany(source, target string, fields map[string]bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	m, err := a.load()
	if err != nil {
		return err
	}
	for f, ok := range fields {
		m[authKey{source, target, f}] = ok
	}
	return metastore.Save(a.kv, a.codec, authMetaName, flattenAuth(m))
}

// IsAuthorized reports the flag of one triple; unknown triples are false.
func (a *Authorizations) IsAuthorized(source, target, field string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, err := a.load()
	if err != nil {
		return false, err
	}
	return m[authKey{source, target, field}], nil
}

// ForPair returns every flag recorded for a source/target pair.
func (a *Authorizations) ForPair(source, target string) (map[string]bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, err := a.load()
	if err != nil {
		return nil, err
	}
	out := map[string]bool{}
	for k, v := range m {
		if k.source == source && k.target == target {
			out[k.field] = v
		}
	}
	return out, nil
}

// All returns every recorded flag in a stable order.
func (a *Authorizations) All() ([]Authorization, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, err := a.load()
	if err != nil {
		return nil, err
	}
	return flattenAuth(m), nil
}

func (a *Authorizations) load() (map[authKey]bool, error) {
	var list []Authorization
	if _, err := metastore.Load(a.kv, a.codec, authMetaName, &list); err != nil {
		return nil, err
	}
	m := make(map[authKey]bool, len(list))
	for _, e := range list {
		m[authKey{e.SourceModeID, e.TargetModeID, e.Field}] = e.Authorized
	}
	return m, nil
}

func flattenAuth(m map[authKey]bool) []Authorization {
	out := make([]Authorization, 0, len(m))
	for k, v := range m {
		out = append(out, Authorization{SourceModeID: k.source, TargetModeID: k.target, Field: k.field, Authorized: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceModeID != out[j].SourceModeID {
			return out[i].SourceModeID < out[j].SourceModeID
		}
		if out[i].TargetModeID != out[j].TargetModeID {
			return out[i].TargetModeID < out[j].TargetModeID
		}
		return out[i].Field < out[j].Field
	})
	return out
}
