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
	"github.com/starford/cardsync/internal/records"
)

// PushRequest asks for whole cards to be copied from the source mode.
// An empty CardIDs pushes every source card.
type PushRequest struct {
	Initiator    string   `json:"initiator"`
	TargetModeID string   `json:"targetModeId"`
	CardIDs      []string `json:"cardIds"`
	SyncFields   []string `json:"syncFields"`
	AuthFields   []string `json:"authFields"`
}

// PushResult reports a full push.
type PushResult struct {
	TargetModeID string   `json:"targetModeId"`
	SyncedCount  int      `json:"syncedCount"`
	RecordIDs    []string `json:"recordIds"`
	SyncFields   []string `json:"syncFields"`
	AuthFields   []string `json:"authFields"`
	HistoryID    string   `json:"historyId"`
	Errors       []string `json:"errors,omitempty"`
}

type pushFields struct {
	sync map[string]bool
	auth map[string]bool
}

func (f pushFields) status(field string) records.FieldStatus {
	if !f.sync[field] {
		return records.FieldStatus{}
	}
	return records.FieldStatus{HasSync: true, IsAuthorized: f.auth[field]}
}

type pushedCard struct {
	id  string
	doc fieldpath.Document
}

// PushFullRecords replaces target cards with their source versions. Fixed
// fields always follow the source; configurable fields follow it only when
// listed in SyncFields and otherwise keep the target's value. Every check
// runs before the first write: a rejected push returns nil and changes
// nothing.
func (e *Executor) PushFullRecords(ctx context.Context, req PushRequest) (*PushResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	source := e.modes.SourceID()
	if req.Initiator != source {
		return nil, e.rejected(ctx, KindPush, "forbidden",
			fmt.Errorf("syncengine: push initiated from %q, only %s may push: %w", req.Initiator, source, apperr.ErrForbidden))
	}
	if err := e.checkModes(ctx, KindPush, source, req.TargetModeID); err != nil {
		return nil, err
	}
	fields, err := e.pushFields(ctx, req)
	if err != nil {
		return nil, err
	}
	ids, err := e.pushIDs(ctx, source, req.CardIDs)
	if err != nil {
		return nil, err
	}

	res := &PushResult{
		TargetModeID: req.TargetModeID,
		RecordIDs:    []string{},
		SyncFields:   orderedFields(fields.sync),
		AuthFields:   orderedFields(fields.auth),
	}

	var batch []pushedCard
	for _, id := range ids {
		doc, err := e.buildPushed(source, req.TargetModeID, id, fields)
		switch {
		case errors.Is(err, apperr.ErrReservedValue):
			return nil, e.rejected(ctx, KindPush, "reserved_value", err)
		case errors.Is(err, apperr.ErrNotFound), errors.Is(err, apperr.ErrValidation):
			res.Errors = append(res.Errors, err.Error())
			e.log.WarnContext(ctx, "card skipped", "card_id", id, "err", err)
			continue
		case err != nil:
			return nil, err
		}
		batch = append(batch, pushedCard{id: id, doc: doc})
	}

	for _, pc := range batch {
		if err := e.repo.Put(req.TargetModeID, pc.id, pc.doc); err != nil {
			return nil, err
		}
		res.RecordIDs = append(res.RecordIDs, pc.id)
	}
	if err := e.replicateOrder(source, req.TargetModeID); err != nil {
		return nil, err
	}

	grants := make(map[string]bool, len(fields.sync))
	for f := range fields.sync {
		grants[f] = fields.auth[f]
	}
	if len(grants) > 0 {
		if err := e.auths.SetMany(source, req.TargetModeID, grants); err != nil {
			return nil, err
		}
	}

	entry, err := e.history.Append(ledger.Entry{
		Kind:             KindPush,
		SourceModeID:     source,
		TargetModeID:     req.TargetModeID,
		RecordIDs:        res.RecordIDs,
		Fields:           append(slices.Clone(records.FixedFields), res.SyncFields...),
		AuthorizedFields: authorizedOnly(res.SyncFields, fields.auth),
	}, e.historyLimit)
	if err != nil {
		return nil, err
	}
	res.HistoryID = entry.ID
	res.SyncedCount = len(res.RecordIDs)
	e.finished(ctx, KindPush, entry, len(res.Errors))
	return res, nil
}

func (e *Executor) pushFields(ctx context.Context, req PushRequest) (pushFields, error) {
	f := pushFields{sync: map[string]bool{}, auth: map[string]bool{}}
	for _, list := range []struct {
		names []string
		into  map[string]bool
	}{{req.SyncFields, f.sync}, {req.AuthFields, f.auth}} {
		for _, name := range list.names {
			if !records.IsConfigurableField(name) {
				return f, e.rejected(ctx, KindPush, "unknown_field",
					fmt.Errorf("syncengine: %q is not a configurable field (%s): %w",
						name, strings.Join(records.ConfigurableFields, ", "), apperr.ErrValidation))
			}
			list.into[name] = true
		}
	}
	return f, nil
}

func (e *Executor) pushIDs(ctx context.Context, source string, requested []string) ([]string, error) {
	if len(requested) == 0 {
		return e.repo.Order(source)
	}
	ids := make([]string, 0, len(requested))
	seen := make(map[string]bool, len(requested))
	for _, raw := range requested {
		id, err := cardid.NormalizeCardID(raw)
		if err != nil {
			return nil, e.rejected(ctx, KindPush, "invalid_id", err)
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// buildPushed assembles the replacement target document for one card.
func (e *Executor) buildPushed(source, target, id string, f pushFields) (fieldpath.Document, error) {
	src, ok, err := e.repo.GetCard(source, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("syncengine: card %s not in %s: %w", id, source, apperr.ErrNotFound)
	}
	prev, ok, err := e.repo.GetCard(target, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		prev = records.NewCard(id)
	}

	out := records.NewCard(id)
	out.Title = pick(f.sync[records.FieldTitle], src.Title, prev.Title)
	out.SelectOptions = slices.Clone(src.SelectOptions)
	out.Options = make([]records.Option, 0, len(src.Options))
	for _, so := range src.Options {
		po, _ := prev.OptionByID(so.ID)
		out.Options = append(out.Options, records.Option{
			ID:    so.ID,
			Name:  pick(f.sync[records.FieldOptionName], so.Name, po.Name),
			Value: pick(f.sync[records.FieldOptionValue], so.Value, po.Value),
			Unit:  pick(f.sync[records.FieldOptionUnit], so.Unit, po.Unit),
		})
	}

	for _, field := range records.FixedFields {
		out.SyncStatus[field] = records.FieldStatus{HasSync: true}
	}
	for _, field := range records.ConfigurableFields {
		out.SyncStatus[field] = f.status(field)
	}

	if err := checkReserved(out); err != nil {
		return nil, err
	}
	doc, err := out.Document()
	if err != nil {
		return nil, err
	}
	vr := e.validator.Validate(doc)
	if !vr.Pass {
		return nil, fmt.Errorf("syncengine: card %s: %w: %s", id, apperr.ErrValidation, strings.Join(vr.Errors, "; "))
	}
	return vr.Normalized, nil
}

func (e *Executor) replicateOrder(source, target string) error {
	srcOrder, err := e.repo.Order(source)
	if err != nil {
		return err
	}
	present, err := e.repo.ListIDs(target)
	if err != nil {
		return err
	}
	return e.repo.SetOrder(target, records.MergeOrder(srcOrder, present))
}

func pick(synced bool, src, prev records.Value) records.Value {
	if synced {
		return src.Normalized()
	}
	return prev.Normalized()
}

func checkReserved(c *records.Card) error {
	bad := c.Title.IsReserved()
	for _, o := range c.Options {
		bad = bad || o.Name.IsReserved() || o.Value.IsReserved() || o.Unit.IsReserved()
	}
	if bad {
		return fmt.Errorf("syncengine: card %s holds %q: %w", c.ID, records.ReservedNull, apperr.ErrReservedValue)
	}
	return nil
}

// orderedFields lists set fields in ConfigurableFields order.
func orderedFields(set map[string]bool) []string {
	out := []string{}
	for _, f := range records.ConfigurableFields {
		if set[f] {
			out = append(out, f)
		}
	}
	return out
}

func authorizedOnly(synced []string, auth map[string]bool) []string {
	out := []string{}
	for _, f := range synced {
		if auth[f] {
			out = append(out, f)
		}
	}
	return out
}
