// Package syncservice is the single entry point the HTTP API and the MCP
// server drive: card editing, rule management, sync runs and addressing.
package syncservice

import (
	"context"
	"fmt"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/cardid"
	"github.com/starford/cardsync/internal/ledger"
	"github.com/starford/cardsync/internal/linkage"
	"github.com/starford/cardsync/internal/records"
	"github.com/starford/cardsync/internal/ruleimport"
	"github.com/starford/cardsync/internal/storekey"
	"github.com/starford/cardsync/internal/syncengine"
	"github.com/starford/cardsync/internal/transform"
)

// Deps are the components a Service coordinates. Importer may be nil when
// no rule directory is configured.
type Deps struct {
	Records        *records.Service
	Rules          *linkage.Store
	Engine         *syncengine.Executor
	History        *ledger.History
	Authorizations *ledger.Authorizations
	Transforms     *transform.Registry
	Importer       *ruleimport.Importer
}

// Service coordinates records, rules and the sync engine.
type Service struct {
	records    *records.Service
	rules      *linkage.Store
	engine     *syncengine.Executor
	history    *ledger.History
	auths      *ledger.Authorizations
	transforms *transform.Registry
	importer   *ruleimport.Importer
}

// New creates a new service.
func New(d Deps) *Service {
	return &Service{
		records:    d.Records,
		rules:      d.Rules,
		engine:     d.Engine,
		history:    d.History,
		auths:      d.Authorizations,
		transforms: d.Transforms,
		importer:   d.Importer,
	}
}

// Records exposes the card editing surface.
func (s *Service) Records() *records.Service { return s.records }

// SourceModeID returns the id of the replication source.
func (s *Service) SourceModeID() string { return s.records.Modes().SourceID() }

// Modes lists the source and every registered target.
func (s *Service) Modes() ([]records.Mode, error) {
	return s.records.Modes().List()
}

// RegisterMode adds a target mode.
func (s *Service) RegisterMode(m records.Mode) error {
	return s.records.Modes().Register(m)
}

// RemoveMode unregisters a target mode.
func (s *Service) RemoveMode(id string) error {
	return s.records.Modes().Remove(id)
}

// NextCardID returns the identifier the next card created in mode would get.
func (s *Service) NextCardID(ctx context.Context, mode string) (string, error) {
	cards, err := s.records.ListCards(ctx, mode)
	if err != nil {
		return "", err
	}
	used := make([]string, 0, len(cards))
	for _, c := range cards {
		used = append(used, c.ID)
	}
	return cardid.NextCardID(used)
}

// ListRules returns every stored rule.
func (s *Service) ListRules() ([]linkage.Rule, error) {
	rules, err := s.rules.Load()
	if err != nil {
		return nil, err
	}
	if rules == nil {
		rules = []linkage.Rule{}
	}
	return rules, nil
}

// GetRule returns one rule.
func (s *Service) GetRule(id string) (linkage.Rule, error) {
	return s.rules.Get(id)
}

// CreateRule stores a new rule. A caller-chosen id must not be taken.
func (s *Service) CreateRule(rule linkage.Rule) (linkage.Rule, error) {
	if rule.ID != "" {
		if _, err := s.rules.Get(rule.ID); err == nil {
			return linkage.Rule{}, fmt.Errorf("syncservice: rule %s: %w", rule.ID, apperr.ErrAlreadyExists)
		}
	}
	return s.SaveRule(rule)
}

// SaveRule upserts a rule after checking its transforms are registered.
func (s *Service) SaveRule(rule linkage.Rule) (linkage.Rule, error) {
	if err := s.checkTransforms(rule); err != nil {
		return linkage.Rule{}, err
	}
	return s.rules.Save(rule)
}

// ReplaceRules swaps the whole rule list.
func (s *Service) ReplaceRules(rules []linkage.Rule) error {
	for _, r := range rules {
		if err := s.checkTransforms(r); err != nil {
			return err
		}
	}
	return s.rules.SaveAll(rules)
}

// DeleteRule removes a rule.
func (s *Service) DeleteRule(id string) error {
	return s.rules.Delete(id)
}

// ExportRule writes a rule to the rule directory and returns the file name.
func (s *Service) ExportRule(id string) (string, error) {
	if s.importer == nil {
		return "", fmt.Errorf("syncservice: no rule directory configured: %w", apperr.ErrNotFound)
	}
	return s.importer.Export(id)
}

func (s *Service) checkTransforms(rule linkage.Rule) error {
	return rule.CheckTransforms(s.transforms.Has)
}

// Transforms lists the registered transform names.
func (s *Service) Transforms() []string {
	return s.transforms.Names()
}

// ExecuteLinkage runs a rule forward.
func (s *Service) ExecuteLinkage(ctx context.Context, ruleID string) (*syncengine.LinkageResult, error) {
	return s.engine.ExecuteLinkage(ctx, ruleID)
}

// ReverseLinkage runs a rule backwards.
func (s *Service) ReverseLinkage(ctx context.Context, ruleID string) (*syncengine.LinkageResult, error) {
	return s.engine.ExecuteReverseLinkage(ctx, ruleID)
}

// Push copies whole cards from the source mode into a target.
func (s *Service) Push(ctx context.Context, req syncengine.PushRequest) (*syncengine.PushResult, error) {
	return s.engine.PushFullRecords(ctx, req)
}

// History returns up to n entries, newest first. n <= 0 returns all.
func (s *Service) History(n int) ([]ledger.Entry, error) {
	entries, err := s.history.List(n)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	return entries, nil
}

// HistoryEntry returns one entry.
func (s *Service) HistoryEntry(id string) (ledger.Entry, error) {
	return s.history.Get(id)
}

// Authorizations lists ledger flags, optionally narrowed to one mode pair.
func (s *Service) Authorizations(source, target string) ([]ledger.Authorization, error) {
	all, err := s.auths.All()
	if err != nil {
		return nil, err
	}
	out := make([]ledger.Authorization, 0, len(all))
	for _, a := range all {
		if source != "" && a.SourceModeID != source {
			continue
		}
		if target != "" && a.TargetModeID != target {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// BuildKey encodes a record key.
func (s *Service) BuildKey(spec storekey.Spec) (string, error) {
	return storekey.BuildKey(spec)
}

// ParseKey decodes a record key. Malformed keys come back with Valid unset.
func (s *Service) ParseKey(key string) storekey.Parsed {
	return storekey.ParseKey(key)
}
