package models

import (
	"time"
)

// Activity names written by the admin pipelines.
const (
	ActivityPluginInstalled  = "cloud_plugin_installed"
	ActivityPluginUpdated    = "cloud_plugin_updated"
	ActivitySnapshotCreated  = "database_snapshot_created"
	ActivitySnapshotDeleted  = "database_snapshot_deleted"
	ActivitySnapshotRestored = "database_snapshot_restored"
	ActivityFreshRestore     = "database_fresh_restore"
)

// Activity is an audit record of an admin action. The table is on the
// snapshot exclusion list: rows written during a restore workflow must
// survive the restore itself.
type Activity struct {
	ID        uint      `gorm:"column:id;primaryKey" json:"id"`
	UserUUID  string    `gorm:"column:user_uuid;size:36;index" json:"user_uuid"`
	Name      string    `gorm:"column:name;size:100;not null;index" json:"name"`
	Context   string    `gorm:"column:context;size:500" json:"context"`
	IPAddress string    `gorm:"column:ip_address;size:50" json:"ip_address"`
	UserAgent string    `gorm:"column:user_agent;size:255" json:"user_agent"`
	CreatedAt time.Time `gorm:"column:created_at;index" json:"created_at"`
}

func (Activity) TableName() string {
	return "featherpanel_activity"
}
