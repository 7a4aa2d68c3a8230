package services

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/robfig/cron/v3"

	"github.com/featherpanel/backend/internal/config"
	"github.com/featherpanel/backend/internal/database"
	"github.com/featherpanel/backend/internal/models"
	"github.com/featherpanel/backend/internal/snapshots"
)

// cronParser accepts standard 5-field cron expressions.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// SnapshotSchedulerService runs recurring database snapshots.
type SnapshotSchedulerService struct {
	cfg      *config.Config
	manager  *snapshots.Manager
	stopChan chan struct{}
}

// NewSnapshotSchedulerService creates a new snapshot scheduler service.
func NewSnapshotSchedulerService(cfg *config.Config, manager *snapshots.Manager) *SnapshotSchedulerService {
	os.MkdirAll(cfg.BackupsDir(), 0755)
	return &SnapshotSchedulerService{
		cfg:      cfg,
		manager:  manager,
		stopChan: make(chan struct{}),
	}
}

// Start starts the snapshot scheduler.
func (s *SnapshotSchedulerService) Start() {
	log.Println("SnapshotSchedulerService started, checking every 1 minute")

	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	// Initial check
	s.checkSchedules()

	for {
		select {
		case <-s.stopChan:
			log.Println("SnapshotSchedulerService stopped")
			return
		case <-ticker.C:
			s.checkSchedules()
		}
	}
}

// Stop stops the snapshot scheduler.
func (s *SnapshotSchedulerService) Stop() {
	close(s.stopChan)
}

// checkSchedules loads enabled schedules and runs any that are due.
func (s *SnapshotSchedulerService) checkSchedules() {
	var schedules []models.SnapshotSchedule
	if err := database.DB.Where("enabled = ?", true).Find(&schedules).Error; err != nil {
		log.Printf("SnapshotScheduler: Failed to load schedules: %v", err)
		return
	}

	now := time.Now()
	for i := range schedules {
		schedule := &schedules[i]
		if s.isDue(schedule, now) {
			go s.runSnapshot(schedule)
		}
	}
}

// isDue reports whether a schedule's cron expression fires in the current
// minute. The last-run timestamp keeps a fire from triggering twice inside
// its minute window.
func (s *SnapshotSchedulerService) isDue(schedule *models.SnapshotSchedule, now time.Time) bool {
	spec, err := cronParser.Parse(schedule.CronExpr)
	if err != nil {
		log.Printf("SnapshotScheduler: Invalid cron expression %q for %s: %v",
			schedule.CronExpr, schedule.Name, err)
		return false
	}

	windowStart := now.Truncate(time.Minute)
	next := spec.Next(windowStart.Add(-time.Second))
	if !next.Equal(windowStart) {
		return false
	}
	if schedule.LastRunAt != nil && !schedule.LastRunAt.Before(windowStart) {
		return false
	}
	return true
}

// CalculateNextRun returns when a schedule will next fire. Exported for
// use by the schedule handlers.
func CalculateNextRun(schedule *models.SnapshotSchedule) (time.Time, error) {
	spec, err := cronParser.Parse(schedule.CronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression: %w", err)
	}
	return spec.Next(time.Now()), nil
}

// RunNow executes a schedule immediately, outside its cron window.
func (s *SnapshotSchedulerService) RunNow(schedule *models.SnapshotSchedule) {
	s.runSnapshot(schedule)
}

// runSnapshot executes one scheduled snapshot.
func (s *SnapshotSchedulerService) runSnapshot(schedule *models.SnapshotSchedule) {
	startTime := time.Now()

	database.DB.Model(schedule).Updates(map[string]interface{}{
		"last_status": models.ScheduleStatusRunning,
		"last_run_at": startTime,
	})

	snapLog := models.SnapshotLog{
		ScheduleID: schedule.ID,
		Status:     models.ScheduleStatusRunning,
	}
	database.DB.Create(&snapLog)

	info, err := s.manager.Create()
	if err != nil {
		s.handleError(schedule, &snapLog, err)
		return
	}

	snapLog.Filename = info.Filename
	snapLog.SizeBytes = info.SizeBytes

	if schedule.FTPEnabled {
		localPath := filepath.Join(s.cfg.BackupsDir(), info.Filename)
		if err := s.uploadToFTP(schedule, localPath, info.Filename); err != nil {
			// Local snapshot succeeded; offsite upload is best effort.
			log.Printf("SnapshotScheduler: FTP upload failed for %s: %v", schedule.Name, err)
			snapLog.Message = fmt.Sprintf("Snapshot created, FTP upload failed: %v", err)
		}
	}

	if schedule.RetentionDays > 0 {
		s.cleanOldSnapshots(schedule)
	}

	updates := map[string]interface{}{
		"last_status": models.ScheduleStatusSuccess,
	}
	if next, err := CalculateNextRun(schedule); err == nil {
		updates["next_run_at"] = next
	}
	database.DB.Model(schedule).Updates(updates)

	snapLog.Status = models.ScheduleStatusSuccess
	database.DB.Save(&snapLog)

	log.Printf("SnapshotScheduler: Snapshot completed for %s (%s, %d bytes)",
		schedule.Name, info.Filename, info.SizeBytes)
}

func (s *SnapshotSchedulerService) handleError(schedule *models.SnapshotSchedule, snapLog *models.SnapshotLog, err error) {
	log.Printf("SnapshotScheduler: Snapshot failed for %s: %v", schedule.Name, err)

	database.DB.Model(schedule).Updates(map[string]interface{}{
		"last_status": models.ScheduleStatusFailed,
	})

	snapLog.Status = models.ScheduleStatusFailed
	snapLog.Message = err.Error()
	database.DB.Save(snapLog)
}

// uploadToFTP uploads a snapshot file to the schedule's FTP server.
func (s *SnapshotSchedulerService) uploadToFTP(schedule *models.SnapshotSchedule, localPath, filename string) error {
	addr := fmt.Sprintf("%s:%d", schedule.FTPHost, schedule.FTPPort)
	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(30*time.Second))
	if err != nil {
		return fmt.Errorf("FTP connection failed: %v", err)
	}
	defer conn.Quit()

	if err := conn.Login(schedule.FTPUsername, schedule.FTPPassword); err != nil {
		return fmt.Errorf("FTP login failed: %v", err)
	}

	if schedule.FTPPath != "" && schedule.FTPPath != "/" {
		if err := conn.ChangeDir(schedule.FTPPath); err != nil {
			conn.MakeDir(schedule.FTPPath)
			if err := conn.ChangeDir(schedule.FTPPath); err != nil {
				return fmt.Errorf("FTP directory change failed: %v", err)
			}
		}
	}

	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open snapshot file: %v", err)
	}
	defer file.Close()

	if err := conn.Stor(filename, file); err != nil {
		return fmt.Errorf("FTP upload failed: %v", err)
	}

	log.Printf("SnapshotScheduler: Uploaded %s to FTP %s", filename, schedule.FTPHost)
	return nil
}

// cleanOldSnapshots removes snapshots older than the retention period,
// locally and on FTP if enabled.
func (s *SnapshotSchedulerService) cleanOldSnapshots(schedule *models.SnapshotSchedule) {
	cutoff := time.Now().AddDate(0, 0, -schedule.RetentionDays)

	files, err := os.ReadDir(s.cfg.BackupsDir())
	if err != nil {
		return
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), snapshots.Extension) {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(filepath.Join(s.cfg.BackupsDir(), file.Name()))
			log.Printf("SnapshotScheduler: Deleted old snapshot %s", file.Name())
		}
	}

	if schedule.FTPEnabled {
		s.cleanOldFTPSnapshots(schedule, cutoff)
	}
}

func (s *SnapshotSchedulerService) cleanOldFTPSnapshots(schedule *models.SnapshotSchedule, cutoff time.Time) {
	addr := fmt.Sprintf("%s:%d", schedule.FTPHost, schedule.FTPPort)
	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(30*time.Second))
	if err != nil {
		return
	}
	defer conn.Quit()

	if err := conn.Login(schedule.FTPUsername, schedule.FTPPassword); err != nil {
		return
	}

	if schedule.FTPPath != "" && schedule.FTPPath != "/" {
		conn.ChangeDir(schedule.FTPPath)
	}

	entries, err := conn.List("")
	if err != nil {
		return
	}

	for _, entry := range entries {
		if entry.Type == ftp.EntryTypeFile && entry.Time.Before(cutoff) &&
			strings.HasSuffix(entry.Name, snapshots.Extension) {
			conn.Delete(entry.Name)
			log.Printf("SnapshotScheduler: Deleted old FTP snapshot %s", entry.Name)
		}
	}
}

// TestFTPConnection tests FTP connectivity with the given credentials.
func TestFTPConnection(host string, port int, username, password, path string) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(10*time.Second))
	if err != nil {
		return fmt.Errorf("connection failed: %v", err)
	}
	defer conn.Quit()

	if err := conn.Login(username, password); err != nil {
		return fmt.Errorf("login failed: %v", err)
	}

	if path != "" && path != "/" {
		if err := conn.ChangeDir(path); err != nil {
			if err := conn.MakeDir(path); err != nil {
				return fmt.Errorf("cannot access or create directory %s: %v", path, err)
			}
		}
	}

	return nil
}
