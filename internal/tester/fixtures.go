package tester

import (
	"testing"

	"github.com/emrgen/ormstore/internal/entity"
)

var fixtures = map[string]string{
	"article": `
table: articles
connection: default
slave_connection: replica
rev_control: true
transactional: true
save_history: true
link_title: "{title} ({code})"
fields:
  title:
    type: string
    length: 100
  body:
    type: text
    null: true
  code:
    type: string
    unique: true
    null: true
  views:
    type: integer
    default: 0
  author:
    link:
      kind: object
      object: tag
  tags:
    link:
      kind: many_to_many
      object: tag
  related:
    link:
      kind: object_list
      object: article
`,
	"tag": `
table: tags
connection: default
transactional: true
link_title: name
fields:
  name:
    type: string
    unique: true
`,
	"note": `
table: notes
connection: default
fields:
  text:
    type: text
    null: true
  refs:
    link:
      kind: object_list
      object: tag
  labels:
    link:
      kind: many_to_many
      object: tag
`,
	"secret": `
table: secrets
connection: default
transactional: true
fields:
  login:
    type: string
    encrypted: true
  password:
    type: string
    encrypted: true
  comment:
    type: text
    null: true
`,
	"country": `
table: countries
connection: default
readonly: true
fields:
  name:
    type: string
`,
	"page": `
table: pages
connection: default
transactional: true
fields:
  title:
    type: string
`,
}

// Registry returns a fresh registry holding the fixture entities:
//
//	article  revision controlled, transactional, history, unique code,
//	         many-to-many tags and object_list related
//	tag      plain transactional entity
//	note     non transactional with both multi link kinds
//	secret   encrypted login and password
//	country  read only
//	page     transactional, not revision controlled
func Registry(t testing.TB) *entity.Registry {
	t.Helper()

	registry := entity.NewRegistry()
	for name, data := range fixtures {
		cfg, err := entity.Parse(name, []byte(data))
		if err != nil {
			t.Fatalf("fixture %s: %v", name, err)
		}
		if err := registry.Register(cfg); err != nil {
			t.Fatalf("fixture %s: %v", name, err)
		}
	}

	return registry
}
