package model

import "time"

type Action string

const (
	ActionCreate     Action = "create"
	ActionUpdate     Action = "update"
	ActionDelete     Action = "delete"
	ActionPublish    Action = "publish"
	ActionUnpublish  Action = "unpublish"
	ActionNewVersion Action = "new_version"
)

// History is a write-only audit row.
type History struct {
	ID        string    `gorm:"primaryKey;size:36"`
	ActorID   int64     `gorm:"column:actor_id"`
	EntityID  int64     `gorm:"column:entity_id;index:idx_history_entity"`
	Action    Action    `gorm:"column:action;size:20;not null"`
	Table     string    `gorm:"column:table_name;size:100;not null;index:idx_history_entity"`
	Timestamp time.Time `gorm:"column:timestamp;not null"`
}

func (History) TableName() string {
	return "history"
}
