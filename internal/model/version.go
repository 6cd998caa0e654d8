package model

import "time"

// Version is an immutable snapshot of an object. Data holds the field values
// encoded as JSON and compressed with the codec named by Compression.
type Version struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement"`
	ObjectType  string    `gorm:"column:object_type;size:100;not null;uniqueIndex:idx_versions_object"`
	ObjectID    int64     `gorm:"column:object_id;not null;uniqueIndex:idx_versions_object"`
	Number      int64     `gorm:"column:version_number;not null;uniqueIndex:idx_versions_object"`
	Data        []byte    `gorm:"column:data"`
	Compression string    `gorm:"column:compression;size:16"`
	ActorID     int64     `gorm:"column:actor_id"`
	CreatedAt   time.Time `gorm:"column:date_created"`
}

func (Version) TableName() string {
	return "versions"
}
