package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/emrgen/ormstore/internal/model"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		db: db,
	}
}

var _ Store = (*GormStore)(nil)

type GormStore struct {
	db *gorm.DB
}

func (g *GormStore) DB() *gorm.DB {
	return g.db
}

func (g *GormStore) Dialect() string {
	return g.db.Dialector.Name()
}

func (g *GormStore) InsertRow(ctx context.Context, table, pk string, values map[string]any) (int64, error) {
	columns, args := splitValues(values)

	var query string
	if len(columns) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s", Quote(table), Quote(pk))
	} else {
		quoted := make([]string, len(columns))
		marks := make([]string, len(columns))
		for i, c := range columns {
			quoted[i] = Quote(c)
			marks[i] = "?"
		}
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
			Quote(table), strings.Join(quoted, ", "), strings.Join(marks, ", "), Quote(pk))
	}

	rows, err := g.db.WithContext(ctx).Raw(query, args...).Rows()
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var id int64
	if rows.Next() {
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, fmt.Errorf("insert into %s returned no %s", table, pk)
	}

	return id, nil
}

func (g *GormStore) UpdateRow(ctx context.Context, table, pk string, id int64, values map[string]any) error {
	columns, args := splitValues(values)
	if len(columns) == 0 {
		return nil
	}

	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = Quote(c) + " = ?"
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", Quote(table), strings.Join(sets, ", "), Quote(pk))

	return g.db.WithContext(ctx).Exec(query, append(args, id)...).Error
}

func (g *GormStore) DeleteRows(ctx context.Context, table, pk string, ids ...int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s IN ?", Quote(table), Quote(pk))
	res := g.db.WithContext(ctx).Exec(query, ids)
	return res.RowsAffected, res.Error
}

func (g *GormStore) EnsureTable(ctx context.Context, table, pk string, columns []Column) error {
	defs := make([]string, 0, len(columns)+1)
	defs = append(defs, Quote(pk)+" "+primaryKeyType(g.Dialect()))
	for _, c := range columns {
		defs = append(defs, Quote(c.Name)+" "+c.Type)
	}

	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", Quote(table), strings.Join(defs, ", "))
	if err := g.db.WithContext(ctx).Exec(query).Error; err != nil {
		return err
	}

	logrus.Debugf("table %s ensured with %d columns", table, len(columns))
	return nil
}

func (g *GormStore) CreateLinks(ctx context.Context, links []*model.Link) error {
	if len(links) == 0 {
		return nil
	}
	return g.db.WithContext(ctx).Create(&links).Error
}

func (g *GormStore) DeleteLinks(ctx context.Context, srcType string, srcID int64, srcField, targetType string) error {
	return g.db.WithContext(ctx).
		Where("src_type = ? AND src_id = ? AND src_field = ? AND target_type = ?", srcType, srcID, srcField, targetType).
		Delete(&model.Link{}).Error
}

func (g *GormStore) ListLinks(ctx context.Context, srcType string, srcID int64, srcField string) ([]*model.Link, error) {
	var links []*model.Link
	err := g.db.WithContext(ctx).
		Where("src_type = ? AND src_id = ? AND src_field = ?", srcType, srcID, srcField).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "order"}}).
		Order("id").
		Find(&links).Error
	return links, err
}

func (g *GormStore) DeleteLinksFrom(ctx context.Context, srcType string, srcIDs []int64) error {
	if len(srcIDs) == 0 {
		return nil
	}
	return g.db.WithContext(ctx).
		Where("src_type = ? AND src_id IN ?", srcType, srcIDs).
		Delete(&model.Link{}).Error
}

func (g *GormStore) DeleteOrphanLinks(ctx context.Context, srcType, table, pk string) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE src_type = ? AND NOT EXISTS (SELECT 1 FROM %s s WHERE s.%s = %s.src_id)",
		Quote((&model.Link{}).TableName()), Quote(table), Quote(pk), Quote((&model.Link{}).TableName()))
	res := g.db.WithContext(ctx).Exec(query, srcType)
	return res.RowsAffected, res.Error
}

func (g *GormStore) EnsureRelationTable(ctx context.Context, table string) error {
	if err := g.db.WithContext(ctx).Table(table).AutoMigrate(&model.Relation{}); err != nil {
		return err
	}

	index := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (source_id, order_no)", Quote("idx_"+table+"_source"), Quote(table))
	return g.db.WithContext(ctx).Exec(index).Error
}

func (g *GormStore) CreateRelations(ctx context.Context, table string, rows []*model.Relation) error {
	if len(rows) == 0 {
		return nil
	}
	return g.db.WithContext(ctx).Table(table).Create(&rows).Error
}

func (g *GormStore) DeleteRelations(ctx context.Context, table string, sourceIDs ...int64) error {
	if len(sourceIDs) == 0 {
		return nil
	}
	return g.db.WithContext(ctx).Table(table).Where("source_id IN ?", sourceIDs).Delete(&model.Relation{}).Error
}

func (g *GormStore) ListRelations(ctx context.Context, table string, sourceID int64) ([]*model.Relation, error) {
	var rows []*model.Relation
	err := g.db.WithContext(ctx).Table(table).
		Where("source_id = ?", sourceID).
		Order("order_no").
		Order("id").
		Find(&rows).Error
	return rows, err
}

func (g *GormStore) DeleteOrphanRelations(ctx context.Context, table, srcTable, pk string) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE NOT EXISTS (SELECT 1 FROM %s s WHERE s.%s = %s.source_id)",
		Quote(table), Quote(srcTable), Quote(pk), Quote(table))
	res := g.db.WithContext(ctx).Exec(query)
	return res.RowsAffected, res.Error
}

func (g *GormStore) LastVersion(ctx context.Context, objectType string, objectID int64) (int64, error) {
	var last int64
	err := g.db.WithContext(ctx).Model(&model.Version{}).
		Select("COALESCE(MAX(version_number), 0)").
		Where("object_type = ? AND object_id = ?", objectType, objectID).
		Scan(&last).Error
	return last, err
}

func (g *GormStore) CreateVersion(ctx context.Context, version *model.Version) error {
	return g.db.WithContext(ctx).Create(version).Error
}

func (g *GormStore) GetVersion(ctx context.Context, objectType string, objectID, number int64) (*model.Version, error) {
	var version model.Version
	err := g.db.WithContext(ctx).
		Where("object_type = ? AND object_id = ? AND version_number = ?", objectType, objectID, number).
		First(&version).Error
	if err != nil {
		return nil, err
	}
	return &version, nil
}

func (g *GormStore) ListVersions(ctx context.Context, objectType string, objectID int64) ([]*model.Version, error) {
	var versions []*model.Version
	err := g.db.WithContext(ctx).
		Where("object_type = ? AND object_id = ?", objectType, objectID).
		Order("version_number").
		Find(&versions).Error
	return versions, err
}

func (g *GormStore) CreateHistory(ctx context.Context, entry *model.History) error {
	return g.db.WithContext(ctx).Create(entry).Error
}

func (g *GormStore) ListHistory(ctx context.Context, table string, entityID int64) ([]*model.History, error) {
	var entries []*model.History
	err := g.db.WithContext(ctx).
		Where("table_name = ? AND entity_id = ?", table, entityID).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}}).
		Find(&entries).Error
	return entries, err
}

func (g *GormStore) Migrate() error {
	return model.Migrate(g.db)
}

func (g *GormStore) Transaction(ctx context.Context, f func(tx Store) error) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return f(&GormStore{db: tx})
	})
}

// Quote quotes an identifier for postgres and sqlite alike.
func Quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func primaryKeyType(dialect string) string {
	if dialect == "postgres" {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

// splitValues returns the columns of values in a stable order with the
// matching arguments.
func splitValues(values map[string]any) ([]string, []any) {
	columns := make([]string, 0, len(values))
	for c := range values {
		columns = append(columns, c)
	}
	sort.Strings(columns)

	args := make([]any, len(columns))
	for i, c := range columns {
		args[i] = values[c]
	}
	return columns, args
}
