package models

import "time"

// Snapshot schedule run outcomes.
const (
	ScheduleStatusSuccess = "success"
	ScheduleStatusFailed  = "failed"
	ScheduleStatusRunning = "running"
)

// SnapshotSchedule is a recurring snapshot job. The cron expression is
// evaluated by the scheduler service; FTP fields are optional and enable
// offsite upload of completed snapshots.
type SnapshotSchedule struct {
	ID            uint       `gorm:"column:id;primaryKey" json:"id"`
	Name          string     `gorm:"column:name;size:255;not null" json:"name"`
	CronExpr      string     `gorm:"column:cron_expr;size:100;not null" json:"cron_expr"`
	Enabled       bool       `gorm:"column:enabled;default:true" json:"enabled"`
	RetentionDays int        `gorm:"column:retention_days;default:30" json:"retention_days"`
	FTPEnabled    bool       `gorm:"column:ftp_enabled;default:false" json:"ftp_enabled"`
	FTPHost       string     `gorm:"column:ftp_host;size:255" json:"ftp_host"`
	FTPPort       int        `gorm:"column:ftp_port;default:21" json:"ftp_port"`
	FTPUsername   string     `gorm:"column:ftp_username;size:255" json:"ftp_username"`
	FTPPassword   string     `gorm:"column:ftp_password;size:255" json:"-"`
	FTPPath       string     `gorm:"column:ftp_path;size:500" json:"ftp_path"`
	LastRunAt     *time.Time `gorm:"column:last_run_at" json:"last_run_at"`
	NextRunAt     *time.Time `gorm:"column:next_run_at" json:"next_run_at"`
	LastStatus    string     `gorm:"column:last_status;size:50" json:"last_status"`
	CreatedAt     time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (SnapshotSchedule) TableName() string {
	return "featherpanel_snapshot_schedules"
}

// SnapshotLog records a single scheduled snapshot run.
type SnapshotLog struct {
	ID         uint      `gorm:"column:id;primaryKey" json:"id"`
	ScheduleID uint      `gorm:"column:schedule_id;index" json:"schedule_id"`
	Filename   string    `gorm:"column:filename;size:255" json:"filename"`
	Status     string    `gorm:"column:status;size:50" json:"status"`
	Message    string    `gorm:"column:message;type:text" json:"message"`
	SizeBytes  int64     `gorm:"column:size_bytes" json:"size_bytes"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`
}

func (SnapshotLog) TableName() string {
	return "featherpanel_snapshot_logs"
}
