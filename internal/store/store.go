package store

import (
	"context"

	"github.com/emrgen/ormstore/internal/model"
	"gorm.io/gorm"
)

// Store is the storage handle of one logical connection. A Store obtained
// from Transaction is bound to that transaction.
type Store interface {
	RowStore
	LinkStore
	RelationStore
	VersionStore
	HistoryStore
	// DB exposes the underlying gorm handle for query building.
	DB() *gorm.DB
	// Dialect returns the gorm dialector name (postgres, sqlite).
	Dialect() string
	Transaction(ctx context.Context, f func(tx Store) error) error
	Migrate() error
}

// Column describes one entity table column for EnsureTable.
type Column struct {
	Name string
	Type string
}

type RowStore interface {
	// InsertRow inserts values and returns the primary key of the new row.
	// When values already carries the primary key it is used as is.
	InsertRow(ctx context.Context, table, pk string, values map[string]any) (int64, error)
	// UpdateRow writes values onto the row identified by id.
	UpdateRow(ctx context.Context, table, pk string, id int64, values map[string]any) error
	// DeleteRows deletes the rows identified by ids and returns the affected count.
	DeleteRows(ctx context.Context, table, pk string, ids ...int64) (int64, error)
	// EnsureTable creates an entity table if it does not exist.
	EnsureTable(ctx context.Context, table, pk string, columns []Column) error
}

type LinkStore interface {
	// CreateLinks inserts generic link rows.
	CreateLinks(ctx context.Context, links []*model.Link) error
	// DeleteLinks removes the links of one object field towards targetType.
	DeleteLinks(ctx context.Context, srcType string, srcID int64, srcField, targetType string) error
	// ListLinks returns the links of one object field sorted by order.
	ListLinks(ctx context.Context, srcType string, srcID int64, srcField string) ([]*model.Link, error)
	// DeleteLinksFrom removes every link whose source is one of srcIDs.
	DeleteLinksFrom(ctx context.Context, srcType string, srcIDs []int64) error
	// DeleteOrphanLinks removes links whose source row is gone from table.
	DeleteOrphanLinks(ctx context.Context, srcType, table, pk string) (int64, error)
}

type RelationStore interface {
	// EnsureRelationTable creates a many-to-many relation table if it does not exist.
	EnsureRelationTable(ctx context.Context, table string) error
	// CreateRelations inserts rows into a relation table.
	CreateRelations(ctx context.Context, table string, rows []*model.Relation) error
	// DeleteRelations removes the rows of the given source ids.
	DeleteRelations(ctx context.Context, table string, sourceIDs ...int64) error
	// ListRelations returns the rows of one source sorted by order_no.
	ListRelations(ctx context.Context, table string, sourceID int64) ([]*model.Relation, error)
	// DeleteOrphanRelations removes rows whose source is gone from srcTable.
	DeleteOrphanRelations(ctx context.Context, table, srcTable, pk string) (int64, error)
}

type VersionStore interface {
	// LastVersion returns the highest version number of an object, 0 if none.
	LastVersion(ctx context.Context, objectType string, objectID int64) (int64, error)
	CreateVersion(ctx context.Context, version *model.Version) error
	GetVersion(ctx context.Context, objectType string, objectID, number int64) (*model.Version, error)
	// ListVersions returns the versions of an object, oldest first.
	ListVersions(ctx context.Context, objectType string, objectID int64) ([]*model.Version, error)
}

type HistoryStore interface {
	CreateHistory(ctx context.Context, entry *model.History) error
	// ListHistory returns the entries of one record, oldest first.
	ListHistory(ctx context.Context, table string, entityID int64) ([]*model.History, error)
}
