package orm

import (
	"context"
	"testing"
	"time"

	"github.com/emrgen/ormstore/internal/entity"
	"github.com/emrgen/ormstore/internal/object"
	"github.com/emrgen/ormstore/internal/store"
	"github.com/emrgen/ormstore/internal/tester"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insert(t *testing.T, env *tester.Env, table string, values map[string]any) int64 {
	t.Helper()
	id, err := env.Store.InsertRow(context.Background(), table, "id", values)
	require.NoError(t, err)
	return id
}

func TestNew_Configuration(t *testing.T) {
	env := tester.NewEnv(t)

	_, err := New(&entity.Config{Name: "x"}, env.Provider, Options{})
	assert.ErrorIs(t, err, entity.ErrConfiguration)

	_, err = New(&entity.Config{Name: "x", Connection: "nowhere"}, env.Provider, Options{})
	assert.ErrorIs(t, err, entity.ErrConfiguration)

	_, err = New(&entity.Config{Name: "x", Connection: tester.Connection, SlaveConnection: "nowhere"}, env.Provider, Options{})
	assert.ErrorIs(t, err, entity.ErrConfiguration)

	provider := store.NewConnectionProvider()
	provider.Register("main", env.Store, "app_")

	cfg := &entity.Config{Name: "book", Connection: "main", UseDBPrefix: true, PrimaryKey: "book_id"}
	require.NoError(t, cfg.Finalize())
	m, err := New(cfg, provider, Options{})
	require.NoError(t, err)
	assert.Equal(t, "app_book", m.Table())
	assert.Equal(t, "book_id", m.PrimaryKey())
	assert.Same(t, m.Master(), m.Slave())

	cfg = &entity.Config{Name: "plain", Connection: "main"}
	require.NoError(t, cfg.Finalize())
	m, err = New(cfg, provider, Options{})
	require.NoError(t, err)
	assert.Equal(t, "plain", m.Table())
	assert.Equal(t, "id", m.PrimaryKey())
}

func TestModel_Reads(t *testing.T) {
	ctx := context.Background()
	env := tester.NewEnv(t)
	m, err := New(env.Config(t, "article"), env.Provider, Options{})
	require.NoError(t, err)

	a := insert(t, env, "articles", map[string]any{"title": "A", "code": "a", "views": 3})
	b := insert(t, env, "articles", map[string]any{"title": "B", "code": "b", "views": 5})

	row, err := m.GetByID(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, a, row["id"])
	assert.Equal(t, "A", row["title"])
	assert.Equal(t, int64(3), row["views"])

	row, err = m.GetByID(ctx, b, "id", "title")
	require.NoError(t, err)
	assert.Len(t, row, 2)

	_, err = m.GetByID(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)

	row, err = m.GetByField(ctx, "code", "b")
	require.NoError(t, err)
	assert.Equal(t, b, row["id"])

	_, err = m.GetByField(ctx, "code", "zzz")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.GetByField(ctx, "missing", 1)
	assert.ErrorIs(t, err, entity.ErrUnknownField)

	rows, err := m.GetMany(ctx, []int64{a, b, 999})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = m.GetMany(ctx, nil)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestModel_ReadsUseSlave(t *testing.T) {
	ctx := context.Background()
	env := tester.NewEnv(t)

	replica := tester.NewEnv(t)
	env.Provider.Register(tester.ReplicaConnection, replica.Store, "")

	m, err := New(env.Config(t, "article"), env.Provider, Options{})
	require.NoError(t, err)

	id := insert(t, env, "articles", map[string]any{"title": "only on master"})

	_, err = m.GetByID(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	tx := m.WithStore(env.Store)
	row, err := tx.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "only on master", row["title"])
}

func TestModel_CachedReads(t *testing.T) {
	ctx := context.Background()
	env := tester.NewEnv(t)
	redis, srv := tester.Redis(t)

	m, err := New(env.Config(t, "article"), env.Provider, Options{Cache: redis, CacheTTL: time.Minute})
	require.NoError(t, err)

	id := insert(t, env, "articles", map[string]any{"title": "A", "code": "a", "views": 1})

	row, err := m.GetCachedByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "A", row["title"])

	require.NoError(t, env.Store.UpdateRow(ctx, "articles", "id", id, map[string]any{"title": "A2"}))

	// writes do not invalidate the cache
	row, err = m.GetCachedByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "A", row["title"])
	assert.Equal(t, id, row["id"])
	assert.Equal(t, int64(1), row["views"])

	row, err = m.GetCachedByField(ctx, "code", "a")
	require.NoError(t, err)
	assert.Equal(t, "A2", row["title"])

	rows, err := m.GetManyCached(ctx, []int64{id})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	srv.FastForward(2 * time.Minute)

	row, err = m.GetCachedByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "A2", row["title"])

	// misses are not cached
	_, err = m.GetCachedByID(ctx, 500)
	assert.ErrorIs(t, err, ErrNotFound)
	insert(t, env, "articles", map[string]any{"id": 500, "title": "late"})
	row, err = m.GetCachedByID(ctx, 500)
	require.NoError(t, err)
	assert.Equal(t, "late", row["title"])
}

func TestModel_CacheBypassed(t *testing.T) {
	ctx := context.Background()
	env := tester.NewEnv(t)
	m, err := New(env.Config(t, "article"), env.Provider, Options{})
	require.NoError(t, err)

	id := insert(t, env, "articles", map[string]any{"title": "A"})
	_, err = m.GetCachedByID(ctx, id)
	require.NoError(t, err)

	require.NoError(t, env.Store.UpdateRow(ctx, "articles", "id", id, map[string]any{"title": "A2"}))
	row, err := m.GetCachedByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "A2", row["title"])
}

func TestModel_CacheKey(t *testing.T) {
	env := tester.NewEnv(t)
	article, err := New(env.Config(t, "article"), env.Provider, Options{})
	require.NoError(t, err)
	tag, err := New(env.Config(t, "tag"), env.Provider, Options{})
	require.NoError(t, err)

	assert.Equal(t, article.CacheKey("item", 1), article.CacheKey("item", 1))
	assert.NotEqual(t, article.CacheKey("item", 1), article.CacheKey("item", 2))
	assert.NotEqual(t, article.CacheKey("item", 1), tag.CacheKey("item", 1))
	assert.NotEqual(t, article.CacheKey("item", "code", "a"), article.CacheKey("item", "code"))
}

func TestQuery(t *testing.T) {
	ctx := context.Background()
	env := tester.NewEnv(t)
	m, err := New(env.Config(t, "article"), env.Provider, Options{})
	require.NoError(t, err)

	for i, title := range []string{"c", "a", "d", "b"} {
		values := map[string]any{"title": title, "views": i}
		if title != "d" {
			values["code"] = title
		}
		insert(t, env, "articles", values)
	}

	rows, err := m.Query().Order("title", false).Fields("title").FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []any{"a", "b", "c", "d"}, []any{rows[0]["title"], rows[1]["title"], rows[2]["title"], rows[3]["title"]})

	rows, err = m.Query().Order("title", true).Limit(2).Offset(1).FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "c", rows[0]["title"])

	rows, err = m.Query().Filter("code", nil).FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "d", rows[0]["title"])

	count, err := m.Query().Filter("title", []string{"a", "b", "zz"}).Order("title", false).Limit(1).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	one, err := m.Query().Filter("title", "b").Fields("views").FetchOne(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), one)

	one, err = m.Query().Filter("title", "b").FetchOne(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), one)

	one, err = m.Query().Filter("title", "none").FetchOne(ctx)
	require.NoError(t, err)
	assert.Nil(t, one)

	list, err := m.Compat().GetList(ctx, ListParams{Start: 0, Limit: 3, Sort: "views", Dir: "desc"}, nil, "title")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "b", list[0]["title"])

	total, err := m.Compat().GetCount(ctx, map[string]any{"views": []int64{0, 1}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	item, err := m.Compat().GetItem(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestModel_CheckUniqueAndTitle(t *testing.T) {
	ctx := context.Background()
	env := tester.NewEnv(t)
	m, err := New(env.Config(t, "article"), env.Provider, Options{})
	require.NoError(t, err)

	id := insert(t, env, "articles", map[string]any{"title": "A", "code": "a"})

	unique, err := m.CheckUnique(ctx, id, "code", "a")
	require.NoError(t, err)
	assert.True(t, unique)

	unique, err = m.CheckUnique(ctx, 0, "code", "a")
	require.NoError(t, err)
	assert.False(t, unique)

	_, err = m.CheckUnique(ctx, 0, "nope", "a")
	assert.ErrorIs(t, err, entity.ErrUnknownField)

	obj := object.New(m.Config())
	require.NoError(t, obj.Set("title", "Hello"))
	require.NoError(t, obj.Set("code", "h1"))
	assert.Equal(t, "Hello (h1)", m.Title(obj))

	tags, err := New(env.Config(t, "tag"), env.Provider, Options{})
	require.NoError(t, err)
	tag := object.New(tags.Config())
	require.NoError(t, tag.Set("name", "go"))
	assert.Equal(t, "go", tags.Title(tag))

	pages, err := New(env.Config(t, "page"), env.Provider, Options{})
	require.NoError(t, err)
	page := object.New(pages.Config())
	page.SetID(7)
	assert.Equal(t, "7", pages.Title(page))
}

func TestModel_Migrate(t *testing.T) {
	ctx := context.Background()
	db := tester.Setup(t)
	provider := store.NewConnectionProvider()
	provider.Register(tester.Connection, store.NewGormStore(db), "")
	provider.Register(tester.ReplicaConnection, store.NewGormStore(db), "")

	registry := tester.Registry(t)
	factory := NewFactory(registry, provider, Options{})

	models, err := factory.Models()
	require.NoError(t, err)
	assert.Len(t, models, len(registry.Names()))

	for _, m := range models {
		require.NoError(t, m.Migrate(ctx))
	}

	m, err := factory.Model("Article")
	require.NoError(t, err)
	same, err := factory.Model("article")
	require.NoError(t, err)
	assert.Same(t, m, same)

	assert.True(t, db.Migrator().HasTable("articles"))
	assert.True(t, db.Migrator().HasTable("articles_tags_to_tag"))
	assert.True(t, db.Migrator().HasTable("notes_labels_to_tag"))
	assert.True(t, db.Migrator().HasColumn("articles", "last_version"))
	assert.False(t, db.Migrator().HasColumn("articles", "tags"))

	table, err := m.RelationTable("tags")
	require.NoError(t, err)
	assert.Equal(t, "articles_tags_to_tag", table)

	_, err = factory.Model("unknown")
	assert.ErrorIs(t, err, entity.ErrConfiguration)
}
