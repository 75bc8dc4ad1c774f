package syncengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/fieldpath"
	"github.com/starford/cardsync/internal/kv"
	"github.com/starford/cardsync/internal/ledger"
	"github.com/starford/cardsync/internal/linkage"
	"github.com/starford/cardsync/internal/records"
	"github.com/starford/cardsync/internal/storekey"
	"github.com/starford/cardsync/internal/transform"
)

type fixture struct {
	store   kv.Store
	repo    *records.Repository
	rules   *linkage.Store
	history *ledger.History
	auths   *ledger.Authorizations
	exec    *Executor
	events  []string
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := kv.NewMemory()
	codec := storekey.NewCodec("", "v1")
	f := &fixture{
		store:   store,
		repo:    records.NewRepository(store, codec),
		rules:   linkage.NewStore(store, codec),
		history: ledger.NewHistory(store, codec),
		auths:   ledger.NewAuthorizations(store, codec),
	}
	modes := records.NewModes(store, codec, "")
	require.NoError(t, modes.Register(records.Mode{ID: "tenant"}))

	opts = append([]Option{WithObserver(func(kind string, _ ledger.Entry) {
		f.events = append(f.events, kind)
	})}, opts...)
	f.exec = New(Deps{
		Repo:           f.repo,
		Modes:          modes,
		Rules:          f.rules,
		History:        f.history,
		Authorizations: f.auths,
		Transforms:     transform.NewRegistry(),
	}, opts...)
	return f
}

func (f *fixture) putCard(t *testing.T, mode, id, title string, opts ...records.Option) {
	t.Helper()
	c := records.NewCard(id)
	c.Title = records.Text(title)
	c.Options = append(c.Options, opts...)
	c.SelectOptions = []string{"x", "y"}
	require.NoError(t, f.repo.PutCard(mode, c))
}

func (f *fixture) card(t *testing.T, mode, id string) *records.Card {
	t.Helper()
	c, ok, err := f.repo.GetCard(mode, id)
	require.NoError(t, err)
	require.True(t, ok, "card %s/%s missing", mode, id)
	return c
}

func (f *fixture) historyLen(t *testing.T) int {
	t.Helper()
	list, err := f.history.List(0)
	require.NoError(t, err)
	return len(list)
}

func opt(id, name, value, unit string) records.Option {
	return records.Option{ID: id, Name: records.Text(name), Value: records.Text(value), Unit: records.Text(unit)}
}

func titleRule(t *testing.T, f *fixture) linkage.Rule {
	t.Helper()
	r, err := f.rules.Save(linkage.Rule{
		Name:         "copy titles",
		SourceModeID: "source",
		TargetModeID: "tenant",
		Enabled:      true,
		CardMappings: []linkage.CardMapping{{
			SourceCardID: "A",
			TargetCardID: "C",
			Enabled:      true,
			FieldMappings: []linkage.FieldMapping{
				{SourceField: "title", TargetField: "title", Enabled: true},
				{SourceField: "selectOptions", TargetField: "selectOptions", Enabled: true},
			},
		}},
	})
	require.NoError(t, err)
	return r
}

func TestExecuteLinkageCreatesTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.putCard(t, "source", "A", "Speed", opt("1", "max", "10", "km/h"))
	rule := titleRule(t, f)

	res, err := f.exec.ExecuteLinkage(ctx, rule.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.SyncedRecordCount)
	assert.False(t, res.ConflictDetected)
	assert.NotEmpty(t, res.HistoryID)

	got := f.card(t, "tenant", "C")
	assert.Equal(t, "Speed", got.Title.String())
	assert.Equal(t, []string{"x", "y"}, got.SelectOptions)
	assert.Equal(t, records.FieldStatus{HasSync: true, IsAuthorized: true}, got.SyncStatus[records.FieldTitle])
	assert.Equal(t, records.FieldStatus{}, got.SyncStatus[records.FieldOptionValue])

	entry, err := f.history.Get(res.HistoryID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompleted, entry.Status)
	assert.Equal(t, rule.ID, entry.RuleID)
	assert.Equal(t, []string{"C"}, entry.RecordIDs)
	assert.Equal(t, []string{"title", "selectOptions"}, entry.Fields)
	assert.Equal(t, []string{KindLinkage}, f.events)
}

func TestExecuteLinkageTwiceIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.putCard(t, "source", "A", "Speed")
	rule := titleRule(t, f)

	_, err := f.exec.ExecuteLinkage(ctx, rule.ID)
	require.NoError(t, err)
	first, _, err := f.repo.Get("tenant", "C")
	require.NoError(t, err)

	_, err = f.exec.ExecuteLinkage(ctx, rule.ID)
	require.NoError(t, err)
	second, _, err := f.repo.Get("tenant", "C")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, f.historyLen(t))
}

func TestReverseRestoresSource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.putCard(t, "source", "A", "Original")
	rule := titleRule(t, f)

	_, err := f.exec.ExecuteLinkage(ctx, rule.ID)
	require.NoError(t, err)

	src := f.card(t, "source", "A")
	src.Title = records.Text("Changed")
	require.NoError(t, f.repo.PutCard("source", src))

	res, err := f.exec.ExecuteReverseLinkage(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, res.RecordIDs)
	assert.Equal(t, "reverse:"+rule.ID, res.RuleID)
	assert.Equal(t, "Original", f.card(t, "source", "A").Title.String())

	entry, err := f.history.Get(res.HistoryID)
	require.NoError(t, err)
	assert.Equal(t, "tenant", entry.SourceModeID)
	assert.Equal(t, "source", entry.TargetModeID)
}

func TestExecuteLinkageWarnings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.putCard(t, "source", "A", "Speed", opt("1", "ratio", "abc", ""))
	f.putCard(t, "tenant", "D", "Local", records.Option{ID: "1"})

	rule, err := f.rules.Save(linkage.Rule{
		Name: "mixed", SourceModeID: "source", TargetModeID: "tenant", Enabled: true,
		CardMappings: []linkage.CardMapping{
			{SourceCardID: "Q", TargetCardID: "C", Enabled: true, FieldMappings: []linkage.FieldMapping{
				{SourceField: "title", TargetField: "title", Enabled: true},
			}},
			{SourceCardID: "A", TargetCardID: "D", Enabled: true, FieldMappings: []linkage.FieldMapping{
				{SourceField: "options.0.value", TargetField: "options.0.value", Transform: "percentage", Enabled: true},
				{SourceField: "missing", TargetField: "title", Enabled: true},
				{SourceField: "title", TargetField: "title", Transform: "uppercase", Enabled: true},
				{SourceField: "options.0.name", TargetField: "options.0.name", Enabled: false},
			}},
		},
	})
	require.NoError(t, err)

	res, err := f.exec.ExecuteLinkage(ctx, rule.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Len(t, res.Warnings, 3)
	assert.Equal(t, []string{"D"}, res.RecordIDs)

	got := f.card(t, "tenant", "D")
	assert.Equal(t, "SPEED", got.Title.String())
	assert.True(t, got.Options[0].Value.IsEmpty())
	assert.True(t, got.Options[0].Name.IsEmpty())
	assert.False(t, got.SyncStatus[records.FieldOptionValue].HasSync)
}

func TestExecuteLinkageSeedsNewOptionID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.putCard(t, "source", "A", "Speed", opt("4", "n", "5", "u"))
	f.putCard(t, "tenant", "E", "Local", opt("4", "taken", "1", ""))

	rule, err := f.rules.Save(linkage.Rule{
		Name: "options into new slots", SourceModeID: "source", TargetModeID: "tenant", Enabled: true,
		CardMappings: []linkage.CardMapping{
			{SourceCardID: "A", TargetCardID: "B", Enabled: true, FieldMappings: []linkage.FieldMapping{
				{SourceField: "options.0.value", TargetField: "options.0.value", Enabled: true},
			}},
			{SourceCardID: "A", TargetCardID: "E", Enabled: true, FieldMappings: []linkage.FieldMapping{
				{SourceField: "options.0.value", TargetField: "options.1.value", Enabled: true},
			}},
		},
	})
	require.NoError(t, err)

	res, err := f.exec.ExecuteLinkage(ctx, rule.ID)
	require.NoError(t, err)
	assert.True(t, res.Success, "errors: %v", res.Errors)
	assert.Equal(t, []string{"B", "E"}, res.RecordIDs)

	b := f.card(t, "tenant", "B")
	require.Len(t, b.Options, 1)
	assert.Equal(t, "4", b.Options[0].ID, "takes the id of the source option at the same index")
	assert.Equal(t, "5", b.Options[0].Value.String())
	assert.True(t, b.Options[0].Name.IsEmpty())

	e := f.card(t, "tenant", "E")
	assert.Equal(t, []string{"4", "5"}, e.OptionIDs(), "falls back to the next free id")
	assert.Equal(t, "5", e.Options[1].Value.String())
}

func TestExecuteLinkageValidationFailureSkipsRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.putCard(t, "source", "A", "Speed", opt("1", "n", "5", "u"))

	rule, err := f.rules.Save(linkage.Rule{
		Name: "option past the end", SourceModeID: "source", TargetModeID: "tenant", Enabled: true,
		CardMappings: []linkage.CardMapping{{
			SourceCardID: "A", TargetCardID: "B", Enabled: true,
			FieldMappings: []linkage.FieldMapping{
				{SourceField: "options.0.value", TargetField: "options.1.value", Enabled: true},
			},
		}},
	})
	require.NoError(t, err)

	res, err := f.exec.ExecuteLinkage(ctx, rule.ID)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Len(t, res.Errors, 1)
	assert.Zero(t, res.SyncedRecordCount)

	_, ok, err := f.repo.Get("tenant", "B")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, f.historyLen(t))
}

func TestExecuteLinkageRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.exec.ExecuteLinkage(ctx, "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	rule := titleRule(t, f)
	rule.Enabled = false
	_, err = f.rules.Save(rule)
	require.NoError(t, err)
	_, err = f.exec.ExecuteLinkage(ctx, rule.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	rule.Enabled = true
	rule.TargetModeID = "ghost"
	_, err = f.rules.Save(rule)
	require.NoError(t, err)
	_, err = f.exec.ExecuteLinkage(ctx, rule.ID)
	assert.ErrorIs(t, err, apperr.ErrUnknownMode)

	rule.SourceModeID, rule.TargetModeID = "tenant", "source"
	_, err = f.rules.Save(rule)
	require.NoError(t, err)
	_, err = f.exec.ExecuteLinkage(ctx, rule.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	assert.Zero(t, f.historyLen(t))
}

func TestConflictDetectorFlagsHistory(t *testing.T) {
	f := newFixture(t, WithConflictDetector(func(_, target fieldpath.Document, _ linkage.CardMapping) bool {
		return true
	}))
	f.putCard(t, "source", "A", "Speed")
	rule := titleRule(t, f)

	res, err := f.exec.ExecuteLinkage(context.Background(), rule.ID)
	require.NoError(t, err)
	assert.True(t, res.ConflictDetected)

	entry, err := f.history.Get(res.HistoryID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompletedWithConflicts, entry.Status)
}

func TestStatusField(t *testing.T) {
	cases := map[string]string{
		"title":           "title",
		"options.3.value": "optionValue",
		"options.0.name":  "optionName",
		"options.0.unit":  "optionUnit",
		"options.0":       "options",
		"selectOptions.1": "selectOptions",
		"custom.deep":     "custom",
	}
	for in, want := range cases {
		assert.Equal(t, want, StatusField(fieldpath.MustParse(in)), in)
	}
}
