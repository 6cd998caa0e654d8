package object

import (
	"testing"

	"github.com/emrgen/ormstore/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func articleConfig(t *testing.T) *entity.Config {
	t.Helper()
	cfg := &entity.Config{
		Name:       "article",
		Connection: "default",
		RevControl: true,
		Fields: map[string]*entity.Field{
			"title":  {Type: entity.TypeString},
			"views":  {Type: entity.TypeInteger, Default: 0},
			"author": {Link: &entity.LinkConfig{Kind: entity.LinkObject, Object: "user"}},
			"tags":   {Link: &entity.LinkConfig{Kind: entity.LinkManyToMany, Object: "tag"}},
		},
	}
	require.NoError(t, cfg.Finalize())
	return cfg
}

func TestObject_New(t *testing.T) {
	obj := New(articleConfig(t))

	assert.True(t, obj.IsNew())
	assert.Equal(t, "article", obj.Name())
	assert.Equal(t, int64(0), obj.Get("views"))
	assert.Equal(t, false, obj.Get(entity.FieldPublished))
	assert.Equal(t, []int64{}, obj.Get("tags"))
	assert.Nil(t, obj.Get("title"))
	assert.False(t, obj.HasUpdates())
}

func TestObject_SetTracksChanges(t *testing.T) {
	obj := New(articleConfig(t))

	require.NoError(t, obj.Set("title", "A"))
	require.NoError(t, obj.Set("tags", []int{3, 1, 2}))
	assert.True(t, obj.HasUpdates())
	assert.Equal(t, []string{"tags", "title"}, obj.Changed())
	assert.Equal(t, []int64{3, 1, 2}, obj.IDs("tags"))

	// setting the committed value again is not a change
	require.NoError(t, obj.Set("views", 0))
	assert.False(t, obj.IsChanged("views"))

	obj.CommitChanges()
	assert.False(t, obj.HasUpdates())
	assert.Equal(t, "A", obj.String("title"))

	require.NoError(t, obj.Set("title", "A"))
	assert.False(t, obj.HasUpdates())

	require.NoError(t, obj.Set("title", "B"))
	assert.True(t, obj.IsChanged("title"))
	require.NoError(t, obj.Set("title", "A"))
	assert.False(t, obj.IsChanged("title"))
}

func TestObject_SetRejects(t *testing.T) {
	obj := New(articleConfig(t))

	assert.ErrorIs(t, obj.Set("missing", 1), entity.ErrUnknownField)
	assert.ErrorIs(t, obj.Set("views", "many"), entity.ErrInvalidValue)
	assert.False(t, obj.HasUpdates())
}

func TestObject_FromRecord(t *testing.T) {
	cfg := articleConfig(t)

	obj, err := FromRecord(cfg, map[string]any{
		"id":                     int64(12),
		"title":                  []byte("stored"),
		"views":                  int32(4),
		"author":                 int64(0),
		entity.FieldPublished:    int64(1),
		entity.FieldLastVersion:  nil,
		"column_not_in_settings": "x",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(12), obj.ID())
	assert.False(t, obj.IsNew())
	assert.Equal(t, "stored", obj.Get("title"))
	assert.Equal(t, int64(4), obj.Int("views"))
	assert.Nil(t, obj.Get("author"))
	assert.True(t, obj.Bool(entity.FieldPublished))
	assert.False(t, obj.HasUpdates())

	_, err = FromRecord(cfg, map[string]any{"title": "no id"})
	assert.ErrorIs(t, err, entity.ErrConfiguration)
}

func TestObject_AssignAndRollback(t *testing.T) {
	obj := New(articleConfig(t))

	require.NoError(t, obj.Assign("tags", []int64{5}))
	assert.False(t, obj.HasUpdates())
	assert.Equal(t, []int64{5}, obj.IDs("tags"))

	require.NoError(t, obj.Set("title", "draft"))
	data := obj.Data()
	assert.Equal(t, "draft", data["title"])

	obj.Rollback()
	assert.False(t, obj.HasUpdates())
	assert.Nil(t, obj.Get("title"))
}

func TestObject_Checkpoint(t *testing.T) {
	obj := New(articleConfig(t))
	require.NoError(t, obj.Set("title", "draft"))

	restore := obj.Checkpoint()
	require.NoError(t, obj.Set(entity.FieldPublished, true))
	require.NoError(t, obj.Set("title", "final"))
	assert.Equal(t, []string{entity.FieldPublished, "title"}, obj.Changed())

	restore()
	assert.Equal(t, []string{"title"}, obj.Changed())
	assert.Equal(t, "draft", obj.String("title"))
	assert.False(t, obj.Bool(entity.FieldPublished))
}
