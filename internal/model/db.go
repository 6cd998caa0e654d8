package model

import "gorm.io/gorm"

// Migrate creates the tables owned by the engine itself.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Link{}); err != nil {
		return err
	}

	if err := db.AutoMigrate(&Version{}); err != nil {
		return err
	}

	if err := db.AutoMigrate(&History{}); err != nil {
		return err
	}

	return nil
}
