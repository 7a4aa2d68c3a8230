package snapshots

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/featherpanel/backend/internal/config"
	"github.com/featherpanel/backend/internal/events"
	"github.com/featherpanel/backend/internal/migrations"
	"github.com/featherpanel/backend/internal/models"
)

// ExcludedTables are high-churn log tables left out of snapshots. They are
// also skipped during restore drops: rows written during the restore
// workflow itself (activity records in particular) must survive it.
var ExcludedTables = []string{
	"featherpanel_server_activities",
	"featherpanel_featherzerotrust_scan_logs",
	"featherpanel_featherzerotrust_cron_logs",
	"featherpanel_chatbot_messages",
	"featherpanel_chatbot_conversations",
	"featherpanel_activity",
}

// Extension is the snapshot artifact file extension. The content is a
// plain SQL dump.
const Extension = ".fpb"

// Info describes a snapshot file on disk. Mtime is the source of truth for
// the creation time.
type Info struct {
	Filename      string    `json:"filename"`
	SizeBytes     int64     `json:"size"`
	SizeFormatted string    `json:"size_formatted"`
	CreatedAt     time.Time `json:"created_at"`
}

// Manager creates, restores, and deletes database snapshots. All
// operations hold a global lock: two concurrent restores would race
// catastrophically on table drops.
type Manager struct {
	cfg   *config.Config
	db    *sql.DB
	gdb   *gorm.DB
	bus   events.Bus
	mu    sync.Mutex

	backupsDir string
	envFile    string
}

// NewManager creates a snapshot manager.
func NewManager(cfg *config.Config, db *sql.DB, gdb *gorm.DB, bus events.Bus) *Manager {
	return &Manager{
		cfg:        cfg,
		db:         db,
		gdb:        gdb,
		bus:        bus,
		backupsDir: cfg.BackupsDir(),
		envFile:    filepath.Join(cfg.StorageRoot, ".env"),
	}
}

// List returns all snapshots sorted newest-first.
func (m *Manager) List() ([]Info, error) {
	entries, err := os.ReadDir(m.backupsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Info{}, nil
		}
		return nil, fmt.Errorf("failed to read backups directory: %w", err)
	}

	var snapshots []Info
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), Extension) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		snapshots = append(snapshots, Info{
			Filename:      entry.Name(),
			SizeBytes:     info.Size(),
			SizeFormatted: formatBytes(info.Size()),
			CreatedAt:     info.ModTime(),
		})
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].CreatedAt.After(snapshots[j].CreatedAt)
	})
	return snapshots, nil
}

// Path resolves a snapshot filename to its on-disk path, rejecting path
// traversal and unknown files.
func (m *Manager) Path(filename string) (string, error) {
	if filename != filepath.Base(filename) || !strings.HasSuffix(filename, Extension) {
		return "", fmt.Errorf("invalid snapshot filename: %s", filename)
	}
	path := filepath.Join(m.backupsDir, filename)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("snapshot not found: %s", filename)
	}
	return path, nil
}

// Create produces a logical dump of the panel database via mysqldump,
// excluding the log tables, and writes it as a new snapshot file.
func (m *Manager) Create() (*Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.DBName == "" || m.cfg.DBUser == "" {
		return nil, fmt.Errorf("database configuration is incomplete")
	}

	if err := os.MkdirAll(m.backupsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backups directory: %w", err)
	}

	filename := fmt.Sprintf("snapshot_%s%s", time.Now().Format("2006-01-02_15-04-05"), Extension)
	path := filepath.Join(m.backupsDir, filename)

	args := []string{
		"-h", m.cfg.DBHost,
		"-P", fmt.Sprintf("%d", m.cfg.DBPort),
		"-u", m.cfg.DBUser,
		"--add-drop-table",
		"--single-transaction",
		"--skip-lock-tables",
		"--disable-keys",
		"--extended-insert",
		"--routines",
		"--triggers",
		"--hex-blob",
		"--no-autocommit",
	}
	for _, table := range ExcludedTables {
		args = append(args, fmt.Sprintf("--ignore-table=%s.%s", m.cfg.DBName, table))
	}
	args = append(args, m.cfg.DBName)

	outFile, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer outFile.Close()

	cmd := exec.Command("mysqldump", args...)
	cmd.Env = append(os.Environ(), "MYSQL_PWD="+m.cfg.DBPassword)
	cmd.Stdout = outFile
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("mysqldump failed: %v: %s", err, stderr.String())
	}

	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat snapshot file: %w", err)
	}

	info := &Info{
		Filename:      filename,
		SizeBytes:     stat.Size(),
		SizeFormatted: formatBytes(stat.Size()),
		CreatedAt:     stat.ModTime(),
	}
	m.bus.Publish(events.SnapshotCreated, events.SnapshotEvent{
		Filename:  filename,
		SizeBytes: stat.Size(),
	})
	return info, nil
}

// Restore replays a stored snapshot over the current database.
func (m *Manager) Restore(filename string) error {
	path, err := m.Path(filename)
	if err != nil {
		return err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	if err := m.PerformRestore(string(content)); err != nil {
		return err
	}
	m.bus.Publish(events.SnapshotRestored, events.SnapshotEvent{Filename: filename, SizeBytes: int64(len(content))})
	return nil
}

// RestoreUploaded replays an uploaded dump. Uploaded restores publish the
// same event as stored-snapshot restores, carrying the uploaded filename.
func (m *Manager) RestoreUploaded(filename, sqlContent string) error {
	if err := m.PerformRestore(sqlContent); err != nil {
		return err
	}
	m.bus.Publish(events.SnapshotRestored, events.SnapshotEvent{Filename: filename, SizeBytes: int64(len(sqlContent))})
	return nil
}

// PerformRestore is the shared restore routine used for stored snapshots
// and uploaded dumps. It drops every table except the exclusion list inside
// a transaction, then replays the dump's statements.
func (m *Manager) PerformRestore(sqlContent string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ValidateSQLContent(sqlContent); err != nil {
		return err
	}

	// FOREIGN_KEY_CHECKS is session-scoped, so every statement here must
	// run on one pinned connection. Toggling it on the pooled handle would
	// race other pool users and could hand a connection back with checks
	// still off.
	ctx := context.Background()
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire restore connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS = 0"); err != nil {
		return fmt.Errorf("failed to disable foreign key checks: %w", err)
	}
	defer conn.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS = 1")

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin restore transaction: %w", err)
	}

	restoreErr := func() error {
		tables, err := m.listTables(tx)
		if err != nil {
			return err
		}
		for _, table := range tables {
			if isExcluded(table) {
				continue
			}
			quoted := strings.ReplaceAll(table, "`", "``")
			if _, err := tx.Exec(fmt.Sprintf("DROP TABLE IF EXISTS `%s`", quoted)); err != nil {
				return fmt.Errorf("failed to drop table %s: %w", table, err)
			}
		}

		for _, stmt := range splitStatements(stripComments(sqlContent)) {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("failed to execute restore statement: %w", err)
			}
		}
		return nil
	}()

	if restoreErr != nil {
		tx.Rollback()
		return restoreErr
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit restore: %w", err)
	}
	return nil
}

// FreshRestore wipes every table unconditionally, re-runs the full core and
// addon migration set, and re-inserts the preserved admin identity so the
// operator's session survives the wipe.
//
// The migrate-and-reseed phase runs after the table-drop transaction has
// committed, so a failure there leaves the database dropped and partially
// migrated. Recovery is manual: re-run freshRestore, which replays
// idempotently from the ledger.
func (m *Manager) FreshRestore(preserved models.PreservedUser) (*migrations.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Same session pinning as PerformRestore: the FK toggle and the wipe
	// must share one connection.
	ctx := context.Background()
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire wipe connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS = 0"); err != nil {
		return nil, fmt.Errorf("failed to disable foreign key checks: %w", err)
	}
	defer conn.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS = 1")

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin wipe transaction: %w", err)
	}

	wipeErr := func() error {
		tables, err := m.listTables(tx)
		if err != nil {
			return err
		}
		for _, table := range tables {
			quoted := strings.ReplaceAll(table, "`", "``")
			if _, err := tx.Exec(fmt.Sprintf("DROP TABLE IF EXISTS `%s`", quoted)); err != nil {
				return fmt.Errorf("failed to drop table %s: %w", table, err)
			}
		}
		return nil
	}()

	if wipeErr != nil {
		tx.Rollback()
		return nil, wipeErr
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit wipe: %w", err)
	}

	runner := migrations.NewRunner(m.db)
	runner.OnSettingsTableCreated(func() error {
		key, err := migrations.GenerateEncryptionKey()
		if err != nil {
			return err
		}
		return config.WriteEnvValue(m.envFile, "APP_ENCRYPTION_KEY", key)
	})

	summary, err := runner.RunAll(m.cfg.MigrationsDir(), m.cfg.AddonsDir())
	if err != nil {
		return nil, fmt.Errorf("migration replay failed after wipe: %w", err)
	}

	user := preserved.Restore()
	if err := m.gdb.Create(&user).Error; err != nil {
		return summary, fmt.Errorf("failed to re-insert preserved admin: %w", err)
	}

	// The wipe reset every setting to default, including the
	// developer-mode flag that gated this operation.
	if err := m.setSetting(models.SettingDeveloperMode, "true"); err != nil {
		log.Printf("Failed to re-enable developer mode after fresh restore: %v", err)
	}

	m.bus.Publish(events.DatabaseFreshWipe, events.SnapshotEvent{})
	return summary, nil
}

// Delete removes a snapshot file from disk.
func (m *Manager) Delete(filename string) error {
	path, err := m.Path(filename)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	m.bus.Publish(events.SnapshotDeleted, events.SnapshotEvent{Filename: filename})
	return nil
}

type execQuerier interface {
	Query(query string, args ...interface{}) (*sql.Rows, error)
}

func (m *Manager) listTables(q execQuerier) ([]string, error) {
	rows, err := q.Query("SHOW TABLES")
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (m *Manager) setSetting(key, value string) error {
	return m.gdb.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "setting_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"setting_value", "updated_at"}),
	}).Create(&models.Setting{Key: key, Value: value}).Error
}

func isExcluded(table string) bool {
	for _, excluded := range ExcludedTables {
		if table == excluded {
			return true
		}
	}
	return false
}

func formatBytes(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
