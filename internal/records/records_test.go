package records

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/fieldpath"
	"github.com/starford/cardsync/internal/kv"
	"github.com/starford/cardsync/internal/storekey"
)

func newFixture(t *testing.T) (*Repository, *Modes, *Service) {
	t.Helper()
	store := kv.NewMemory()
	codec := storekey.NewCodec("", "v1")
	repo := NewRepository(store, codec)
	modes := NewModes(store, codec, "")
	require.NoError(t, modes.Register(Mode{ID: "tenant-a", Name: "Tenant A"}))
	return repo, modes, NewService(repo, modes, nil)
}

func TestValueJSON(t *testing.T) {
	c := NewCard("A")
	c.Options = []Option{{ID: "1", Name: Text("weight"), Value: Empty(), Unit: Text("kg")}}

	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"title":null`)
	assert.Contains(t, string(data), `"value":null`)

	var back Card
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.Title.IsEmpty())
	assert.Equal(t, "weight", back.Options[0].Name.String())

	var n Value
	require.NoError(t, json.Unmarshal([]byte(`12.5`), &n))
	assert.Equal(t, "12.5", n.String())
}

func TestNormalizeValue(t *testing.T) {
	v, err := NormalizeValue("")
	require.NoError(t, err)
	assert.True(t, v.IsEmpty())

	_, err = NormalizeValue("null")
	assert.ErrorIs(t, err, apperr.ErrReservedValue)
}

func TestSkeleton(t *testing.T) {
	doc := Skeleton("B")
	assert.Equal(t, "B", doc["id"])
	assert.Nil(t, doc["title"])
	assert.Contains(t, doc, "title")
	assert.Equal(t, []any{}, doc["options"])

	st, ok := fieldpath.Get(doc, fieldpath.MustParse("syncStatus.title.hasSync"))
	require.True(t, ok)
	assert.Equal(t, false, st)
}

func TestShapeValidator(t *testing.T) {
	v := ShapeValidator{}

	good := fieldpath.Document{"id": "C", "title": "x", "extra": 1}
	res := v.Validate(good)
	require.True(t, res.Pass, res.Errors)
	assert.Equal(t, 1, res.Normalized["extra"])
	assert.Contains(t, res.Normalized, "syncStatus")

	bad := fieldpath.Document{
		"id": "c1",
		"options": []any{
			map[string]any{"id": "1", "value": "null"},
			map[string]any{"id": "1"},
		},
	}
	res = v.Validate(bad)
	assert.False(t, res.Pass)
	assert.NotEmpty(t, res.Errors)
	assert.Nil(t, res.Normalized)
}

func TestRepositoryListAndOrder(t *testing.T) {
	repo, _, _ := newFixture(t)

	for _, id := range []string{"B", "AA", "A"} {
		require.NoError(t, repo.PutCard("source", NewCard(id)))
	}
	require.NoError(t, repo.PutCard("tenant-a", NewCard("Z")))
	// Full-id and undecodable keys under the same prefix are not cards.
	prefix := repo.codec.CardKeyPrefix("source")
	require.NoError(t, repo.store.Set(prefix+"A1", []byte(`{}`)))
	require.NoError(t, repo.store.Set(prefix+"%zz", []byte(`{}`)))

	ids, err := repo.ListIDs("source")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "AA"}, ids)

	require.NoError(t, repo.SetOrder("source", []string{"AA", "GONE", "A"}))
	order, err := repo.Order("source")
	require.NoError(t, err)
	assert.Equal(t, []string{"AA", "A", "B"}, order)

	require.NoError(t, repo.Delete("source", "AA"))
	_, ok, err := repo.Get("source", "AA")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMergeOrder(t *testing.T) {
	assert.Equal(t, []string{"C", "A", "B"}, MergeOrder([]string{"C", "A", "C"}, []string{"A", "B", "C"}))
	assert.Equal(t, []string{}, MergeOrder(nil, nil))
}

func TestModes(t *testing.T) {
	_, modes, _ := newFixture(t)

	list, err := modes.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "source", list[0].ID)

	assert.ErrorIs(t, modes.Register(Mode{ID: "tenant-a"}), apperr.ErrAlreadyExists)
	assert.ErrorIs(t, modes.Register(Mode{ID: "source"}), apperr.ErrAlreadyExists)
	assert.ErrorIs(t, modes.Register(Mode{ID: "bad id"}), apperr.ErrValidation)
	assert.ErrorIs(t, modes.Remove("source"), apperr.ErrForbidden)

	require.NoError(t, modes.Remove("tenant-a"))
	ok, err := modes.Exists("tenant-a")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, modes.Remove("tenant-a"), apperr.ErrNotFound)
}

func TestServiceCreateAndAddOption(t *testing.T) {
	_, _, svc := newFixture(t)
	ctx := context.Background()

	a, err := svc.CreateCard(ctx, "source", "First", nil)
	require.NoError(t, err)
	assert.Equal(t, "A", a.ID)

	b, err := svc.CreateCard(ctx, "source", "", []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, "B", b.ID)
	assert.True(t, b.Title.IsEmpty())

	a, err = svc.AddOption(ctx, "source", "A", OptionInput{Name: "n", Value: "1"})
	require.NoError(t, err)
	a, err = svc.AddOption(ctx, "source", "A", OptionInput{Name: "m"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, a.OptionIDs())

	cards, err := svc.ListCards(ctx, "source")
	require.NoError(t, err)
	require.Len(t, cards, 2)

	_, err = svc.CreateCard(ctx, "nowhere", "x", nil)
	assert.ErrorIs(t, err, apperr.ErrUnknownMode)
	_, err = svc.CreateCard(ctx, "source", "null", nil)
	assert.ErrorIs(t, err, apperr.ErrReservedValue)
}

func TestServiceUpdateHonorsAuthorization(t *testing.T) {
	repo, _, svc := newFixture(t)
	ctx := context.Background()

	c := NewCard("A")
	c.Title = Text("synced")
	c.Options = []Option{{ID: "1", Value: Text("10")}}
	c.SyncStatus[FieldTitle] = FieldStatus{HasSync: true}
	c.SyncStatus[FieldOptionValue] = FieldStatus{HasSync: true, IsAuthorized: true}
	require.NoError(t, repo.PutCard("tenant-a", c))

	title := "local"
	_, err := svc.UpdateCard(ctx, "tenant-a", "A", CardPatch{Title: &title})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	val := "11"
	got, err := svc.UpdateCard(ctx, "tenant-a", "A", CardPatch{
		Options: map[string]OptionPatch{"1": {Value: &val}},
	})
	require.NoError(t, err)
	assert.Equal(t, "11", got.Options[0].Value.String())
	assert.Equal(t, "synced", got.Title.String())

	_, err = svc.UpdateCard(ctx, "tenant-a", "A", CardPatch{
		Options: map[string]OptionPatch{"9": {Value: &val}},
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestServiceDelete(t *testing.T) {
	_, _, svc := newFixture(t)
	ctx := context.Background()

	_, err := svc.CreateCard(ctx, "source", "a", nil)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteCard(ctx, "source", "A"))
	assert.ErrorIs(t, svc.DeleteCard(ctx, "source", "A"), apperr.ErrNotFound)
	assert.ErrorIs(t, svc.DeleteCard(ctx, "source", "a1"), apperr.ErrInvalidID)
}
