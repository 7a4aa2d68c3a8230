package models

import (
	"time"
)

// InstalledPlugin tracks an addon installation. The identifier is the
// stable key: reinstalling the same identifier updates the existing row
// and clears UninstalledAt rather than creating a duplicate.
type InstalledPlugin struct {
	ID            uint       `gorm:"column:id;primaryKey" json:"id"`
	Name          string     `gorm:"column:name;size:255;not null" json:"name"`
	Identifier    string     `gorm:"column:identifier;size:100;uniqueIndex;not null" json:"identifier"`
	Version       *string    `gorm:"column:version;size:50" json:"version"`
	CloudID       *int       `gorm:"column:cloud_id" json:"cloud_id"`
	InstalledAt   time.Time  `gorm:"column:installed_at" json:"installed_at"`
	UninstalledAt *time.Time `gorm:"column:uninstalled_at" json:"uninstalled_at"`
}

func (InstalledPlugin) TableName() string {
	return "featherpanel_installed_plugins"
}

// PluginSetting is a key/value pair scoped to an addon identifier. Settings
// are backed up before an update replaces the addon directory and restored
// afterwards.
type PluginSetting struct {
	ID         uint      `gorm:"column:id;primaryKey" json:"id"`
	Identifier string    `gorm:"column:identifier;size:100;uniqueIndex:idx_plugin_setting;not null" json:"identifier"`
	Key        string    `gorm:"column:setting_key;size:255;uniqueIndex:idx_plugin_setting;not null" json:"key"`
	Value      string    `gorm:"column:setting_value;type:text" json:"value"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (PluginSetting) TableName() string {
	return "featherpanel_plugin_settings"
}
