package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/emrgen/ormstore/internal/model"
	"github.com/emrgen/ormstore/internal/store"
	"github.com/emrgen/ormstore/internal/tester"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newStore(t *testing.T) *store.GormStore {
	s := store.NewGormStore(tester.Setup(t))
	require.NoError(t, s.EnsureTable(context.Background(), "items", "id", []store.Column{
		{Name: "name", Type: "VARCHAR(100)"},
		{Name: "order", Type: "BIGINT"},
	}))
	return s
}

func TestGormStore_Rows(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	id, err := s.InsertRow(ctx, "items", "id", map[string]any{"name": "first", "order": int64(3)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	id, err = s.InsertRow(ctx, "items", "id", map[string]any{"id": int64(40), "name": "explicit"})
	require.NoError(t, err)
	assert.Equal(t, int64(40), id)

	id, err = s.InsertRow(ctx, "items", "id", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, int64(41), id)

	require.NoError(t, s.UpdateRow(ctx, "items", "id", 1, map[string]any{"name": "renamed", "order": nil}))

	var row map[string]any
	require.NoError(t, s.DB().Table("items").Where("id = ?", 1).Take(&row).Error)
	assert.Equal(t, "renamed", row["name"])
	assert.Nil(t, row["order"])

	n, err := s.DeleteRows(ctx, "items", "id", 1, 40, 999)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.DeleteRows(ctx, "items", "id")
	require.NoError(t, err)
	assert.Zero(t, n)

	// idempotent
	require.NoError(t, s.EnsureTable(ctx, "items", "id", nil))
}

func TestGormStore_Links(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	links := []*model.Link{
		{SrcType: "article", SrcID: 1, SrcField: "related", TargetType: "article", TargetID: 9, Order: 0},
		{SrcType: "article", SrcID: 1, SrcField: "related", TargetType: "article", TargetID: 4, Order: 1},
		{SrcType: "article", SrcID: 1, SrcField: "related", TargetType: "article", TargetID: 7, Order: 2},
		{SrcType: "article", SrcID: 1, SrcField: "other", TargetType: "tag", TargetID: 1, Order: 0},
		{SrcType: "article", SrcID: 2, SrcField: "related", TargetType: "article", TargetID: 1, Order: 0},
	}
	require.NoError(t, s.CreateLinks(ctx, links))
	require.NoError(t, s.CreateLinks(ctx, nil))

	got, err := s.ListLinks(ctx, "article", 1, "related")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{9, 4, 7}, []int64{got[0].TargetID, got[1].TargetID, got[2].TargetID})

	require.NoError(t, s.DeleteLinks(ctx, "article", 1, "related", "article"))
	got, err = s.ListLinks(ctx, "article", 1, "related")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.ListLinks(ctx, "article", 1, "other")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	require.NoError(t, s.DeleteLinksFrom(ctx, "article", []int64{1, 2}))
	var count int64
	require.NoError(t, s.DB().Model(&model.Link{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestGormStore_OrphanLinks(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	id, err := s.InsertRow(ctx, "items", "id", map[string]any{"name": "alive"})
	require.NoError(t, err)

	require.NoError(t, s.CreateLinks(ctx, []*model.Link{
		{SrcType: "item", SrcID: id, SrcField: "f", TargetType: "tag", TargetID: 1},
		{SrcType: "item", SrcID: id + 100, SrcField: "f", TargetType: "tag", TargetID: 1},
		{SrcType: "other", SrcID: id + 100, SrcField: "f", TargetType: "tag", TargetID: 1},
	}))

	n, err := s.DeleteOrphanLinks(ctx, "item", "items", "id")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, s.EnsureRelationTable(ctx, "items_tags_to_tag"))
	require.NoError(t, s.CreateRelations(ctx, "items_tags_to_tag", []*model.Relation{
		{SourceID: id, TargetID: 5},
		{SourceID: id + 100, TargetID: 5},
	}))

	n, err = s.DeleteOrphanRelations(ctx, "items_tags_to_tag", "items", "id")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestGormStore_Relations(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	table := "articles_tags_to_tag"
	require.NoError(t, s.EnsureRelationTable(ctx, table))
	require.NoError(t, s.EnsureRelationTable(ctx, table))

	require.NoError(t, s.CreateRelations(ctx, table, []*model.Relation{
		{SourceID: 1, TargetID: 3, OrderNo: 0},
		{SourceID: 1, TargetID: 1, OrderNo: 1},
		{SourceID: 1, TargetID: 2, OrderNo: 2},
		{SourceID: 2, TargetID: 3, OrderNo: 0},
	}))

	rows, err := s.ListRelations(ctx, table, 1)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for i, target := range []int64{3, 1, 2} {
		assert.Equal(t, target, rows[i].TargetID)
		assert.Equal(t, i, rows[i].OrderNo)
	}

	require.NoError(t, s.DeleteRelations(ctx, table, 1))
	rows, err = s.ListRelations(ctx, table, 1)
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = s.ListRelations(ctx, table, 2)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestGormStore_Versions(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	last, err := s.LastVersion(ctx, "article", 1)
	require.NoError(t, err)
	assert.Zero(t, last)

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, s.CreateVersion(ctx, &model.Version{ObjectType: "article", ObjectID: 1, Number: i, Data: []byte("{}")}))
	}
	require.NoError(t, s.CreateVersion(ctx, &model.Version{ObjectType: "article", ObjectID: 2, Number: 1}))

	last, err = s.LastVersion(ctx, "article", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), last)

	// (object_type, object_id, version_number) is unique
	err = s.CreateVersion(ctx, &model.Version{ObjectType: "article", ObjectID: 1, Number: 2})
	assert.Error(t, err)

	v, err := s.GetVersion(ctx, "article", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v.Number)

	_, err = s.GetVersion(ctx, "article", 1, 9)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	versions, err := s.ListVersions(ctx, "article", 1)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, int64(1), versions[0].Number)
	assert.Equal(t, int64(3), versions[2].Number)
}

func TestGormStore_TransactionRollback(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	err := s.Transaction(ctx, func(tx store.Store) error {
		if _, err := tx.InsertRow(ctx, "items", "id", map[string]any{"name": "rolled back"}); err != nil {
			return err
		}
		return tx.CreateHistory(ctx, &model.History{ID: "h1", Action: model.ActionCreate, Table: "items", Timestamp: time.Now()})
	})
	require.NoError(t, err)

	err = s.Transaction(ctx, func(tx store.Store) error {
		if _, err := tx.InsertRow(ctx, "items", "id", map[string]any{"name": "x"}); err != nil {
			return err
		}
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	var count int64
	require.NoError(t, s.DB().Table("items").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	entries, err := s.ListHistory(ctx, "items", 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestConnectionProvider(t *testing.T) {
	dir := t.TempDir()
	p := store.NewConnectionProvider(store.Connection{Name: "main", Driver: "sqlite", DSN: dir + "/main.db", Prefix: "app_"})
	defer p.Close()

	s1, err := p.Provide("main")
	require.NoError(t, err)
	s2, err := p.Provide("main")
	require.NoError(t, err)
	assert.Same(t, s1, s2)
	assert.Equal(t, "sqlite", s1.Dialect())

	prefix, err := p.Prefix("main")
	require.NoError(t, err)
	assert.Equal(t, "app_", prefix)

	_, err = p.Provide("missing")
	assert.ErrorIs(t, err, store.ErrConnectionNotFound)

	bad := store.NewConnectionProvider(store.Connection{Name: "x", Driver: "oracle"})
	_, err = bad.Provide("x")
	assert.ErrorIs(t, err, store.ErrUnknownDriver)
}
