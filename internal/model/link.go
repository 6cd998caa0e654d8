package model

// Link is a row of the generic link table. It connects one field of a source
// object to a target object; Order keeps the order the caller supplied.
type Link struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	SrcType    string `gorm:"column:src_type;size:100;not null;index:idx_links_source"`
	SrcID      int64  `gorm:"column:src_id;not null;index:idx_links_source"`
	SrcField   string `gorm:"column:src_field;size:100;not null;index:idx_links_source"`
	TargetType string `gorm:"column:target_type;size:100;not null;index:idx_links_target"`
	TargetID   int64  `gorm:"column:target_id;not null;index:idx_links_target"`
	Order      int    `gorm:"column:order;not null;default:0"`
}

func (l *Link) TableName() string {
	return "links"
}

// Relation is a row of a many-to-many relation table. Relation tables are
// created per field, so the table name is always given explicitly.
type Relation struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	SourceID int64  `gorm:"column:source_id;not null"`
	TargetID int64  `gorm:"column:target_id;not null"`
	OrderNo  int    `gorm:"column:order_no;not null;default:0"`
}
