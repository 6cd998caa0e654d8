package entity

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const articleYAML = `
table: articles
connection: default
rev_control: true
transactional: true
save_history: true
link_title: "{title}"
fields:
  title:
    type: string
    length: 100
    unique: true
  body:
    type: text
    null: true
  status:
    link:
      kind: dictionary
      dictionary: [draft, review, done]
    default: draft
  author:
    link:
      kind: object
      object: User
  tags:
    link:
      kind: many_to_many
      object: tag
  related:
    link:
      kind: object_list
      object: article
`

func TestParse_Article(t *testing.T) {
	cfg, err := Parse("Article", []byte(articleYAML))
	require.NoError(t, err)
	require.NoError(t, cfg.Finalize())

	assert.Equal(t, "article", cfg.Name)
	assert.Equal(t, "articles", cfg.Table)
	assert.Equal(t, DefaultPrimaryKey, cfg.PrimaryKey)
	assert.True(t, cfg.RevControl)
	assert.True(t, cfg.Transactional)

	for _, name := range []string{FieldPublished, FieldPublishedVersion, FieldLastVersion, FieldDateUpdated, FieldEditorID} {
		f, err := cfg.Field(name)
		require.NoError(t, err, name)
		assert.True(t, f.System, name)
	}

	assert.Equal(t, []string{"related", "tags"}, cfg.MultiLinkFields())
	assert.Equal(t, []string{"title"}, cfg.UniqueFields())
	assert.False(t, cfg.HasEncrypted())

	author, err := cfg.Field("author")
	require.NoError(t, err)
	assert.True(t, author.IsObjectLink())
	assert.Equal(t, "user", author.LinkedObject())
	assert.True(t, author.Stored())

	status, err := cfg.Field("status")
	require.NoError(t, err)
	assert.Equal(t, "draft", status.Default)

	table, err := cfg.RelationsTable("tags")
	require.NoError(t, err)
	assert.Equal(t, "articles_tags_to_tag", table)

	_, err = cfg.RelationsTable("related")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestConfig_EncryptedFieldsAddIV(t *testing.T) {
	cfg := &Config{
		Name:       "secret",
		Connection: "default",
		Fields: map[string]*Field{
			"login":    {Type: TypeString, Encrypted: true},
			"password": {Type: TypeString, Encrypted: true},
			"comment":  {Type: TypeText},
		},
	}
	require.NoError(t, cfg.Finalize())

	assert.True(t, cfg.HasEncrypted())
	assert.Equal(t, []string{"login", "password"}, cfg.EncryptedFields())
	assert.Equal(t, DefaultIVField, cfg.IVField)
	assert.True(t, cfg.HasField(DefaultIVField))
	assert.Contains(t, cfg.FieldNames(), DefaultIVField)
}

func TestConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{name: "no name", cfg: &Config{}},
		{name: "unknown type", cfg: &Config{Name: "x", Fields: map[string]*Field{"a": {Type: "blob"}}}},
		{name: "link without object", cfg: &Config{Name: "x", Fields: map[string]*Field{"a": {Link: &LinkConfig{Kind: LinkObjectList}}}}},
		{name: "encrypted integer", cfg: &Config{Name: "x", Fields: map[string]*Field{"a": {Type: TypeInteger, Encrypted: true}}}},
		{name: "primary key as field", cfg: &Config{Name: "x", Fields: map[string]*Field{"id": {Type: TypeInteger}}}},
		{name: "bad default", cfg: &Config{Name: "x", Fields: map[string]*Field{"a": {Type: TypeInteger, Default: "abc"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.cfg.Finalize(), ErrConfiguration)
		})
	}
}

func TestField_Filter(t *testing.T) {
	when := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		field *Field
		in    any
		want  any
	}{
		{"string", &Field{Type: TypeString}, "abc", "abc"},
		{"string from bytes", &Field{Type: TypeString}, []byte("abc"), "abc"},
		{"integer from json", &Field{Type: TypeInteger}, json.Number("42"), int64(42)},
		{"integer from float", &Field{Type: TypeInteger}, float64(7), int64(7)},
		{"integer from string", &Field{Type: TypeInteger}, "15", int64(15)},
		{"float", &Field{Type: TypeFloat}, 3, float64(3)},
		{"bool from sqlite int", &Field{Type: TypeBoolean}, int64(1), true},
		{"bool from string", &Field{Type: TypeBoolean}, "false", false},
		{"date from string", &Field{Type: TypeDate}, "2024-03-01T10:30:00Z", when},
		{"object link zero is nil", &Field{Type: TypeLink, Link: &LinkConfig{Kind: LinkObject, Object: "user"}}, 0, nil},
		{"object link", &Field{Type: TypeLink, Link: &LinkConfig{Kind: LinkObject, Object: "user"}}, "9", int64(9)},
		{"multi link keeps order", &Field{Type: TypeLink, Link: &LinkConfig{Kind: LinkManyToMany, Object: "tag"}}, []int{3, 1, 2}, []int64{3, 1, 2}},
		{"multi link from json", &Field{Type: TypeLink, Link: &LinkConfig{Kind: LinkObjectList, Object: "tag"}}, []any{json.Number("5"), json.Number("4")}, []int64{5, 4}},
		{"multi link from csv", &Field{Type: TypeLink, Link: &LinkConfig{Kind: LinkObjectList, Object: "tag"}}, "7, 8", []int64{7, 8}},
		{"multi link nil", &Field{Type: TypeLink, Link: &LinkConfig{Kind: LinkManyToMany, Object: "tag"}}, nil, []int64{}},
		{"nil", &Field{Type: TypeString, Null: true}, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.field.Filter(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestField_FilterRejects(t *testing.T) {
	tests := []struct {
		name  string
		field *Field
		in    any
	}{
		{"integer", &Field{Name: "n", Type: TypeInteger}, "abc"},
		{"fraction", &Field{Name: "n", Type: TypeInteger}, 1.5},
		{"too long", &Field{Name: "s", Type: TypeString, Length: 3}, "abcd"},
		{"dictionary", &Field{Name: "d", Type: TypeLink, Link: &LinkConfig{Kind: LinkDictionary, Dictionary: []string{"a"}}}, "b"},
		{"multi link", &Field{Name: "m", Type: TypeLink, Link: &LinkConfig{Kind: LinkManyToMany, Object: "tag"}}, 5},
		{"date", &Field{Name: "d", Type: TypeDate}, "yesterday"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.field.Filter(tt.in)
			assert.True(t, errors.Is(err, ErrInvalidValue), err)
		})
	}
}

func TestRegistry(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "article.yml"), []byte(articleYAML), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tag.yaml"), []byte("connection: default\nfields:\n  name: {type: string}\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o600))

	registry, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"article", "tag"}, registry.Names())

	cfg, err := registry.Get("Article")
	require.NoError(t, err)
	assert.Equal(t, "articles", cfg.Table)

	_, err = registry.Get("missing")
	assert.ErrorIs(t, err, ErrConfiguration)

	err = registry.Register(&Config{Name: "tag"})
	assert.ErrorIs(t, err, ErrConfiguration)
}
