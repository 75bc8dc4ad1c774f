package fieldpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	p, err := Parse("options.0.value")
	require.NoError(t, err)
	assert.Equal(t, Path{"options", "0", "value"}, p)
	assert.Equal(t, "options.0.value", p.String())

	for _, bad := range []string{"", "  ", "a..b", ".a", "a."} {
		_, err := Parse(bad)
		assert.Error(t, err, bad)
	}
}

func TestGet(t *testing.T) {
	doc := Document{
		"title": "Speed",
		"options": []any{
			map[string]any{"id": "1", "value": "10"},
		},
		"nothing": nil,
	}

	v, ok := Get(doc, MustParse("options.0.value"))
	require.True(t, ok)
	assert.Equal(t, "10", v)

	v, ok = Get(doc, MustParse("nothing"))
	assert.True(t, ok, "present-but-nil is not absent")
	assert.Nil(t, v)

	for _, path := range []string{"missing", "options.1.value", "options.x", "title.deep"} {
		_, ok := Get(doc, MustParse(path))
		assert.False(t, ok, path)
	}
}

func TestSetCreatesContainers(t *testing.T) {
	doc := Document{}
	require.NoError(t, Set(doc, MustParse("options.2.value"), "x"))

	opts, ok := doc["options"].([]any)
	require.True(t, ok)
	require.Len(t, opts, 3)
	assert.Nil(t, opts[0])
	assert.Equal(t, map[string]any{"value": "x"}, opts[2])

	require.NoError(t, Set(doc, MustParse("meta.owner.name"), "ops"))
	v, ok := Get(doc, MustParse("meta.owner.name"))
	require.True(t, ok)
	assert.Equal(t, "ops", v)
}

func TestSetOverwritesExisting(t *testing.T) {
	doc := Document{"options": []any{map[string]any{"id": "1", "value": "1"}}}
	require.NoError(t, Set(doc, MustParse("options.0.value"), "2"))
	v, _ := Get(doc, MustParse("options.0.value"))
	assert.Equal(t, "2", v)
	id, _ := Get(doc, MustParse("options.0.id"))
	assert.Equal(t, "1", id)
}

func TestSetRejectsScalarDescent(t *testing.T) {
	doc := Document{"title": "x"}
	assert.Error(t, Set(doc, MustParse("title.sub"), 1))
	assert.Error(t, Set(doc, nil, 1))

	doc = Document{"list": []any{}}
	assert.Error(t, Set(doc, MustParse("list.name"), 1))
}
