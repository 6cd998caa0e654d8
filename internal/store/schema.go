package store

import (
	"context"
	"fmt"

	"github.com/emrgen/ormstore/internal/entity"
)

// Columns returns the stored columns of an entity in field name order.
func Columns(cfg *entity.Config, dialect string) []Column {
	columns := make([]Column, 0, len(cfg.Fields))
	for _, name := range cfg.FieldNames() {
		f := cfg.Fields[name]
		if !f.Stored() {
			continue
		}
		columns = append(columns, Column{Name: name, Type: f.ColumnType(dialect)})
	}
	return columns
}

// EnsureEntity creates the table of an entity and its relation tables when
// they do not exist. Existing tables are left untouched.
func EnsureEntity(ctx context.Context, s Store, cfg *entity.Config, prefix string) error {
	table := prefix + cfg.Table
	if err := s.EnsureTable(ctx, table, cfg.PrimaryKey, Columns(cfg, s.Dialect())); err != nil {
		return fmt.Errorf("ensure table %s: %w", table, err)
	}

	for _, name := range cfg.MultiLinkFields() {
		if !cfg.Fields[name].IsManyToMany() {
			continue
		}
		relations, err := cfg.RelationsTable(name)
		if err != nil {
			return err
		}
		if err := s.EnsureRelationTable(ctx, prefix+relations); err != nil {
			return fmt.Errorf("ensure relation table %s: %w", prefix+relations, err)
		}
	}

	return nil
}
