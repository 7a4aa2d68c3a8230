package models

import "gorm.io/gorm"

// AutoMigrate creates the panel's operational tables. Core schema changes
// ship as SQL migration files; this covers the tables the backend itself
// owns so a dev database comes up without a migration pack.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Activity{},
		&Setting{},
		&InstalledPlugin{},
		&PluginSetting{},
		&SnapshotSchedule{},
		&SnapshotLog{},
	)
}
