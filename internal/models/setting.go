package models

import "time"

// Well-known settings keys.
const (
	SettingDeveloperMode = "developer_mode"
	SettingEncryptionKey = "encryption_key"
	SettingAppName       = "app_name"
)

// Setting is a panel-wide key/value pair.
type Setting struct {
	ID        uint      `gorm:"column:id;primaryKey" json:"id"`
	Key       string    `gorm:"column:setting_key;size:255;uniqueIndex;not null" json:"key"`
	Value     string    `gorm:"column:setting_value;type:text" json:"value"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Setting) TableName() string {
	return "featherpanel_settings"
}
