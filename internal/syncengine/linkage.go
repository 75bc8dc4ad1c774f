package syncengine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/cardid"
	"github.com/starford/cardsync/internal/fieldpath"
	"github.com/starford/cardsync/internal/ledger"
	"github.com/starford/cardsync/internal/linkage"
	"github.com/starford/cardsync/internal/records"
	"github.com/starford/cardsync/internal/transform"
)

// LinkageResult reports a rule-driven execution. Warnings are mappings that
// were skipped; Errors are target records that failed validation and were
// not written.
type LinkageResult struct {
	Success           bool     `json:"success"`
	RuleID            string   `json:"ruleId"`
	SyncedRecordCount int      `json:"syncedRecordCount"`
	RecordIDs         []string `json:"recordIds"`
	ConflictDetected  bool     `json:"conflictDetected"`
	HistoryID         string   `json:"historyId"`
	Warnings          []string `json:"warnings,omitempty"`
	Errors            []string `json:"errors,omitempty"`
}

// ExecuteLinkage runs the stored rule ruleID from its source to its target.
func (e *Executor) ExecuteLinkage(ctx context.Context, ruleID string) (*LinkageResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rule, err := e.enabledRule(ctx, KindLinkage, ruleID)
	if err != nil {
		return nil, err
	}
	if !e.modes.IsSource(rule.SourceModeID) {
		return nil, e.rejected(ctx, KindLinkage, "forbidden",
			fmt.Errorf("syncengine: rule %s: %s is not the source mode: %w", ruleID, rule.SourceModeID, apperr.ErrForbidden))
	}
	return e.runRule(ctx, KindLinkage, rule)
}

// ExecuteReverseLinkage runs rule ruleID backwards: modes, card ids and field
// paths are swapped and history records the rule as "reverse:<id>".
func (e *Executor) ExecuteReverseLinkage(ctx context.Context, ruleID string) (*LinkageResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rule, err := e.enabledRule(ctx, KindReverse, ruleID)
	if err != nil {
		return nil, err
	}
	return e.runRule(ctx, KindReverse, rule.Reversed())
}

func (e *Executor) enabledRule(ctx context.Context, kind, ruleID string) (linkage.Rule, error) {
	if err := ctx.Err(); err != nil {
		return linkage.Rule{}, err
	}
	rule, err := e.rules.Get(ruleID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return linkage.Rule{}, e.rejected(ctx, kind, "not_found", err)
		}
		return linkage.Rule{}, err
	}
	if !rule.Enabled {
		return linkage.Rule{}, e.rejected(ctx, kind, "disabled",
			fmt.Errorf("syncengine: rule %s is disabled: %w", ruleID, apperr.ErrConflict))
	}
	return rule, nil
}

func (e *Executor) checkModes(ctx context.Context, kind, source, target string) error {
	if source == target {
		return e.rejected(ctx, kind, "self_sync",
			fmt.Errorf("syncengine: %s cannot sync into itself: %w", source, apperr.ErrForbidden))
	}
	for _, m := range []string{source, target} {
		ok, err := e.modes.Exists(m)
		if err != nil {
			return err
		}
		if !ok {
			return e.rejected(ctx, kind, "unknown_mode",
				fmt.Errorf("syncengine: mode %s: %w", m, apperr.ErrUnknownMode))
		}
	}
	return nil
}

func (e *Executor) runRule(ctx context.Context, kind string, rule linkage.Rule) (*LinkageResult, error) {
	if err := e.checkModes(ctx, kind, rule.SourceModeID, rule.TargetModeID); err != nil {
		return nil, err
	}
	log := e.log.With("kind", kind, "rule_id", rule.ID)
	res := &LinkageResult{RuleID: rule.ID, RecordIDs: []string{}}
	fieldSet := map[string]struct{}{}
	var fields []string

	for _, cm := range rule.CardMappings {
		if !cm.Enabled {
			continue
		}
		srcDoc, ok, err := e.repo.Get(rule.SourceModeID, cm.SourceCardID)
		if err != nil {
			return nil, err
		}
		if !ok {
			res.Warnings = append(res.Warnings, fmt.Sprintf("source card %s not found in %s", cm.SourceCardID, rule.SourceModeID))
			log.WarnContext(ctx, "source card missing", "card_id", cm.SourceCardID)
			continue
		}
		tgtDoc, ok, err := e.repo.Get(rule.TargetModeID, cm.TargetCardID)
		if err != nil {
			return nil, err
		}
		if !ok {
			tgtDoc = records.Skeleton(cm.TargetCardID)
		}
		before, err := records.CloneDocument(tgtDoc)
		if err != nil {
			return nil, err
		}
		tc := transform.Context{Source: srcDoc, Target: before}

		applied := 0
		for _, fm := range cm.FieldMappings {
			if !fm.Enabled {
				continue
			}
			if w := e.applyField(srcDoc, tgtDoc, fm, tc); w != "" {
				res.Warnings = append(res.Warnings, fmt.Sprintf("card %s: %s", cm.TargetCardID, w))
				log.WarnContext(ctx, "field mapping skipped", "card_id", cm.TargetCardID, "reason", w)
				continue
			}
			applied++
			if _, seen := fieldSet[fm.TargetField]; !seen {
				fieldSet[fm.TargetField] = struct{}{}
				fields = append(fields, fm.TargetField)
			}
		}
		if applied == 0 {
			continue
		}

		if e.conflicts(srcDoc, tgtDoc, cm) {
			res.ConflictDetected = true
		}
		vr := e.validator.Validate(tgtDoc)
		if !vr.Pass {
			res.Errors = append(res.Errors, fmt.Sprintf("card %s: %s", cm.TargetCardID, strings.Join(vr.Errors, "; ")))
			log.WarnContext(ctx, "target card failed validation", "card_id", cm.TargetCardID, "errors", vr.Errors)
			continue
		}
		if err := e.repo.Put(rule.TargetModeID, cm.TargetCardID, vr.Normalized); err != nil {
			return nil, err
		}
		res.RecordIDs = append(res.RecordIDs, cm.TargetCardID)
	}

	if fields == nil {
		fields = []string{}
	}
	entry, err := e.history.Append(ledger.Entry{
		Kind:             kind,
		SourceModeID:     rule.SourceModeID,
		TargetModeID:     rule.TargetModeID,
		RecordIDs:        res.RecordIDs,
		RuleID:           rule.ID,
		Fields:           fields,
		ConflictDetected: res.ConflictDetected,
	}, 0)
	if err != nil {
		return nil, err
	}
	res.HistoryID = entry.ID
	res.SyncedRecordCount = len(res.RecordIDs)
	res.Success = len(res.Errors) == 0
	e.finished(ctx, kind, entry, len(res.Warnings))
	return res, nil
}

// applyField copies one mapped field into tgt. It returns a warning when the
// mapping had to be skipped.
func (e *Executor) applyField(src, tgt fieldpath.Document, fm linkage.FieldMapping, tc transform.Context) string {
	sp, err := fieldpath.Parse(fm.SourceField)
	if err != nil {
		return err.Error()
	}
	tp, err := fieldpath.Parse(fm.TargetField)
	if err != nil {
		return err.Error()
	}
	v, ok := fieldpath.Get(src, sp)
	if !ok {
		return "source field " + fm.SourceField + " is absent"
	}
	out, err := e.transforms.Apply(v, fm.Transform, tc)
	if err != nil {
		return err.Error()
	}
	if err := fieldpath.Set(tgt, tp, out); err != nil {
		return err.Error()
	}
	seedOptionID(src, tgt, tp)
	records.SetFieldStatus(tgt, StatusField(tp), records.FieldStatus{HasSync: true, IsAuthorized: true})
	return ""
}

// seedOptionID gives an option the mapping just created an id: the id of
// the source option at the same index when it is free, else the next one.
// Options skipped over by the index stay nil and fail validation.
func seedOptionID(src, tgt fieldpath.Document, p fieldpath.Path) {
	if len(p) < 3 || p[0] != records.FieldOptions {
		return
	}
	raw, ok := fieldpath.Get(tgt, p[:2])
	if !ok {
		return
	}
	opt, isMap := raw.(map[string]any)
	if !isMap {
		return
	}
	if id, _ := opt["id"].(string); id != "" {
		return
	}

	var taken []string
	if list, ok := tgt[records.FieldOptions].([]any); ok {
		for _, o := range list {
			if m, ok := o.(map[string]any); ok {
				if id, _ := m["id"].(string); cardid.IsValidOptionID(id) {
					taken = append(taken, id)
				}
			}
		}
	}
	if v, ok := fieldpath.Get(src, fieldpath.Path{p[0], p[1], "id"}); ok {
		if id, _ := v.(string); cardid.IsValidOptionID(id) && !slices.Contains(taken, id) {
			opt["id"] = id
			return
		}
	}
	if next, err := cardid.NextOptionID(taken); err == nil {
		opt["id"] = next
	}
}

// StatusField names the sync-status entry a target path belongs to:
// option parts map to their field class, anything else to its first segment.
func StatusField(p fieldpath.Path) string {
	if len(p) == 0 {
		return ""
	}
	if p[0] == records.FieldOptions && len(p) >= 3 {
		switch p[2] {
		case "name":
			return records.FieldOptionName
		case "value":
			return records.FieldOptionValue
		case "unit":
			return records.FieldOptionUnit
		}
	}
	return p[0]
}
