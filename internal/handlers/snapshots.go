package handlers

import (
	"fmt"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/featherpanel/backend/internal/config"
	"github.com/featherpanel/backend/internal/database"
	"github.com/featherpanel/backend/internal/middleware"
	"github.com/featherpanel/backend/internal/models"
	"github.com/featherpanel/backend/internal/services"
	"github.com/featherpanel/backend/internal/snapshots"
)

// maxUploadSize caps uploaded snapshot files at 1 GiB.
const maxUploadSize = 1 << 30

// SnapshotsHandler exposes snapshot create/restore/delete over HTTP. Every
// destructive operation is double-gated: developer mode plus debug mode
// must both be on, and the caller must re-enter their password.
type SnapshotsHandler struct {
	cfg       *config.Config
	manager   *snapshots.Manager
	scheduler *services.SnapshotSchedulerService
}

// NewSnapshotsHandler creates a snapshots handler.
func NewSnapshotsHandler(cfg *config.Config, manager *snapshots.Manager, scheduler *services.SnapshotSchedulerService) *SnapshotsHandler {
	return &SnapshotsHandler{cfg: cfg, manager: manager, scheduler: scheduler}
}

// requireDeveloperMode enforces the mode gates. The developer-mode flag
// lives in the settings table so a fresh restore can re-enable it; the
// debug flag comes from the environment. Returns a non-nil error response
// when the gate fails.
func (h *SnapshotsHandler) requireDeveloperMode(c *fiber.Ctx) error {
	var setting models.Setting
	err := database.DB.Where("setting_key = ?", models.SettingDeveloperMode).First(&setting).Error
	if err != nil || setting.Value != "true" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success":    false,
			"message":    "Developer mode must be enabled to manage database snapshots",
			"error_code": "DEVELOPER_MODE_REQUIRED",
		})
	}

	if !h.cfg.DebugMode {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success":    false,
			"message":    "Debug mode must be enabled to manage database snapshots",
			"error_code": "DEBUG_MODE_REQUIRED",
		})
	}
	return nil
}

// verifyPassword re-authenticates the caller against their stored hash.
// Returns a non-nil error response when verification fails.
func (h *SnapshotsHandler) verifyPassword(c *fiber.Ctx, password string) error {
	if password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success":    false,
			"message":    "Password is required to perform this action",
			"error_code": "PASSWORD_REQUIRED",
		})
	}

	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "User not found",
		})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success":    false,
			"message":    "Invalid password",
			"error_code": "INVALID_PASSWORD",
		})
	}
	return nil
}

// Index lists snapshots newest-first.
func (h *SnapshotsHandler) Index(c *fiber.Ctx) error {
	if resp := h.requireDeveloperMode(c); resp != nil {
		return resp
	}

	list, err := h.manager.List()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": fmt.Sprintf("Failed to list snapshots: %v", err),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"snapshots": list},
	})
}

// Create produces a new snapshot.
func (h *SnapshotsHandler) Create(c *fiber.Ctx) error {
	if resp := h.requireDeveloperMode(c); resp != nil {
		return resp
	}

	var body struct {
		Password string `json:"password"`
	}
	c.BodyParser(&body)
	if resp := h.verifyPassword(c, body.Password); resp != nil {
		return resp
	}

	info, err := h.manager.Create()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": fmt.Sprintf("Failed to create snapshot: %v", err),
		})
	}

	middleware.LogActivity(c, models.ActivitySnapshotCreated, info.Filename)

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Snapshot created successfully",
		"data":    info,
	})
}

// Download streams a snapshot file with forced-download headers.
func (h *SnapshotsHandler) Download(c *fiber.Ctx) error {
	if resp := h.requireDeveloperMode(c); resp != nil {
		return resp
	}

	if resp := h.verifyPassword(c, c.Query("password")); resp != nil {
		return resp
	}

	filename := c.Params("filename")
	path, err := h.manager.Path(filename)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success":    false,
			"message":    "Snapshot not found",
			"error_code": "SNAPSHOT_NOT_FOUND",
		})
	}

	c.Set("Content-Type", "application/sql")
	c.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	return c.Download(path, filename)
}

// Restore replays a stored snapshot.
func (h *SnapshotsHandler) Restore(c *fiber.Ctx) error {
	if resp := h.requireDeveloperMode(c); resp != nil {
		return resp
	}

	var body struct {
		Confirm  bool   `json:"confirm"`
		Password string `json:"password"`
	}
	c.BodyParser(&body)

	if !body.Confirm {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success":    false,
			"message":    "Restoration must be confirmed",
			"error_code": "CONFIRMATION_REQUIRED",
		})
	}
	if resp := h.verifyPassword(c, body.Password); resp != nil {
		return resp
	}

	filename := c.Params("filename")
	if err := h.manager.Restore(filename); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": fmt.Sprintf("Failed to restore snapshot: %v", err),
		})
	}

	middleware.LogActivity(c, models.ActivitySnapshotRestored, filename)

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Snapshot restored successfully. This only restored the panel database; Wings daemons and server files are untouched.",
	})
}

// RestoreUpload replays an uploaded snapshot file.
func (h *SnapshotsHandler) RestoreUpload(c *fiber.Ctx) error {
	if resp := h.requireDeveloperMode(c); resp != nil {
		return resp
	}

	confirm := c.FormValue("confirm")
	if confirm != "true" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success":    false,
			"message":    "Restoration must be confirmed",
			"error_code": "CONFIRMATION_REQUIRED",
		})
	}
	if resp := h.verifyPassword(c, c.FormValue("password")); resp != nil {
		return resp
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success":    false,
			"message":    "A snapshot file is required",
			"error_code": "FILE_REQUIRED",
		})
	}

	if !strings.HasSuffix(fileHeader.Filename, snapshots.Extension) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success":    false,
			"message":    fmt.Sprintf("File must have the %s extension", snapshots.Extension),
			"error_code": "INVALID_FILE_TYPE",
		})
	}
	if fileHeader.Size > maxUploadSize {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success":    false,
			"message":    "Snapshot file exceeds the 1 GiB upload limit",
			"error_code": "FILE_TOO_LARGE",
		})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to read uploaded file",
		})
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to read uploaded file",
		})
	}

	if err := h.manager.RestoreUploaded(fileHeader.Filename, string(content)); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": fmt.Sprintf("Failed to restore uploaded snapshot: %v", err),
		})
	}

	middleware.LogActivity(c, models.ActivitySnapshotRestored, fileHeader.Filename)

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Uploaded snapshot restored successfully. This only restored the panel database; Wings daemons and server files are untouched.",
	})
}

// FreshRestore wipes the database, re-runs all migrations, and reseeds the
// acting admin with their preserved identity.
func (h *SnapshotsHandler) FreshRestore(c *fiber.Ctx) error {
	if resp := h.requireDeveloperMode(c); resp != nil {
		return resp
	}

	var body struct {
		Confirm  bool   `json:"confirm"`
		Password string `json:"password"`
	}
	c.BodyParser(&body)

	if !body.Confirm {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success":    false,
			"message":    "Fresh restore must be confirmed",
			"error_code": "CONFIRMATION_REQUIRED",
		})
	}
	if resp := h.verifyPassword(c, body.Password); resp != nil {
		return resp
	}

	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "User not found",
		})
	}

	// Identity must be captured before the wipe destroys the users table.
	preserved := user.Preserve()

	summary, err := h.manager.FreshRestore(preserved)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": fmt.Sprintf("Fresh restore failed: %v", err),
		})
	}

	middleware.LogActivity(c, models.ActivityFreshRestore, "")

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Database wiped and rebuilt. Your admin account and session were preserved. Wings daemons and server files are untouched.",
		"data": fiber.Map{
			"migrations_executed": summary.Executed,
			"migrations_skipped":  summary.Skipped,
			"migrations_failed":   summary.Failed,
			"details":             summary.Lines,
		},
	})
}

// Delete removes a snapshot file.
func (h *SnapshotsHandler) Delete(c *fiber.Ctx) error {
	if resp := h.requireDeveloperMode(c); resp != nil {
		return resp
	}

	var body struct {
		Password string `json:"password"`
	}
	c.BodyParser(&body)
	if resp := h.verifyPassword(c, body.Password); resp != nil {
		return resp
	}

	filename := c.Params("filename")
	if err := h.manager.Delete(filename); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success":    false,
			"message":    fmt.Sprintf("Failed to delete snapshot: %v", err),
			"error_code": "SNAPSHOT_NOT_FOUND",
		})
	}

	middleware.LogActivity(c, models.ActivitySnapshotDeleted, filename)

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Snapshot deleted successfully",
	})
}

// ListSchedules returns all snapshot schedules.
func (h *SnapshotsHandler) ListSchedules(c *fiber.Ctx) error {
	if resp := h.requireDeveloperMode(c); resp != nil {
		return resp
	}

	var schedules []models.SnapshotSchedule
	if err := database.DB.Order("created_at DESC").Find(&schedules).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to list schedules",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"schedules": schedules},
	})
}

// scheduleRequest is the create/update body for a snapshot schedule.
type scheduleRequest struct {
	Name          string `json:"name"`
	CronExpr      string `json:"cron_expr"`
	Enabled       *bool  `json:"enabled"`
	RetentionDays int    `json:"retention_days"`
	FTPEnabled    *bool  `json:"ftp_enabled"`
	FTPHost       string `json:"ftp_host"`
	FTPPort       int    `json:"ftp_port"`
	FTPUsername   string `json:"ftp_username"`
	FTPPassword   string `json:"ftp_password"`
	FTPPath       string `json:"ftp_path"`
}

// CreateSchedule creates a snapshot schedule.
func (h *SnapshotsHandler) CreateSchedule(c *fiber.Ctx) error {
	if resp := h.requireDeveloperMode(c); resp != nil {
		return resp
	}

	var req scheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}
	if req.Name == "" || req.CronExpr == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Name and cron expression are required",
		})
	}

	schedule := models.SnapshotSchedule{
		Name:          req.Name,
		CronExpr:      req.CronExpr,
		Enabled:       true,
		RetentionDays: req.RetentionDays,
		FTPHost:       req.FTPHost,
		FTPPort:       req.FTPPort,
		FTPUsername:   req.FTPUsername,
		FTPPassword:   req.FTPPassword,
		FTPPath:       req.FTPPath,
	}
	if req.Enabled != nil {
		schedule.Enabled = *req.Enabled
	}
	if req.FTPEnabled != nil {
		schedule.FTPEnabled = *req.FTPEnabled
	}
	if schedule.FTPPort == 0 {
		schedule.FTPPort = 21
	}
	if schedule.RetentionDays == 0 {
		schedule.RetentionDays = 30
	}

	next, err := services.CalculateNextRun(&schedule)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": fmt.Sprintf("Invalid cron expression: %v", err),
		})
	}
	schedule.NextRunAt = &next

	if err := database.DB.Create(&schedule).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to create schedule",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "Schedule created successfully",
		"data":    schedule,
	})
}

// UpdateSchedule updates a snapshot schedule.
func (h *SnapshotsHandler) UpdateSchedule(c *fiber.Ctx) error {
	if resp := h.requireDeveloperMode(c); resp != nil {
		return resp
	}

	var schedule models.SnapshotSchedule
	if err := database.DB.First(&schedule, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Schedule not found",
		})
	}

	var req scheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	if req.Name != "" {
		schedule.Name = req.Name
	}
	if req.CronExpr != "" {
		schedule.CronExpr = req.CronExpr
	}
	if req.Enabled != nil {
		schedule.Enabled = *req.Enabled
	}
	if req.RetentionDays > 0 {
		schedule.RetentionDays = req.RetentionDays
	}
	if req.FTPEnabled != nil {
		schedule.FTPEnabled = *req.FTPEnabled
	}
	if req.FTPHost != "" {
		schedule.FTPHost = req.FTPHost
	}
	if req.FTPPort > 0 {
		schedule.FTPPort = req.FTPPort
	}
	if req.FTPUsername != "" {
		schedule.FTPUsername = req.FTPUsername
	}
	if req.FTPPassword != "" {
		schedule.FTPPassword = req.FTPPassword
	}
	if req.FTPPath != "" {
		schedule.FTPPath = req.FTPPath
	}

	next, err := services.CalculateNextRun(&schedule)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": fmt.Sprintf("Invalid cron expression: %v", err),
		})
	}
	schedule.NextRunAt = &next

	if err := database.DB.Save(&schedule).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to update schedule",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Schedule updated successfully",
		"data":    schedule,
	})
}

// DeleteSchedule removes a snapshot schedule.
func (h *SnapshotsHandler) DeleteSchedule(c *fiber.Ctx) error {
	if resp := h.requireDeveloperMode(c); resp != nil {
		return resp
	}

	var schedule models.SnapshotSchedule
	if err := database.DB.First(&schedule, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Schedule not found",
		})
	}

	if err := database.DB.Delete(&schedule).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to delete schedule",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Schedule deleted successfully",
	})
}

// ToggleSchedule flips a schedule between enabled and disabled.
func (h *SnapshotsHandler) ToggleSchedule(c *fiber.Ctx) error {
	if resp := h.requireDeveloperMode(c); resp != nil {
		return resp
	}

	var schedule models.SnapshotSchedule
	if err := database.DB.First(&schedule, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Schedule not found",
		})
	}

	schedule.Enabled = !schedule.Enabled
	updates := map[string]interface{}{"enabled": schedule.Enabled}
	if schedule.Enabled {
		if next, err := services.CalculateNextRun(&schedule); err == nil {
			updates["next_run_at"] = next
		}
	}
	if err := database.DB.Model(&schedule).Updates(updates).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to update schedule",
		})
	}

	message := "Schedule disabled"
	if schedule.Enabled {
		message = "Schedule enabled"
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": message,
		"data":    schedule,
	})
}

// RunScheduleNow triggers a schedule immediately. The snapshot runs in the
// background; progress lands in the schedule's logs.
func (h *SnapshotsHandler) RunScheduleNow(c *fiber.Ctx) error {
	if resp := h.requireDeveloperMode(c); resp != nil {
		return resp
	}

	var schedule models.SnapshotSchedule
	if err := database.DB.First(&schedule, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Schedule not found",
		})
	}

	go h.scheduler.RunNow(&schedule)

	middleware.LogActivity(c, models.ActivitySnapshotCreated, schedule.Name)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success": true,
		"message": "Snapshot run started",
	})
}

// TestFTP validates FTP credentials for a schedule.
func (h *SnapshotsHandler) TestFTP(c *fiber.Ctx) error {
	if resp := h.requireDeveloperMode(c); resp != nil {
		return resp
	}

	var req struct {
		Host     string `json:"host"`
		Port     int    `json:"port"`
		Username string `json:"username"`
		Password string `json:"password"`
		Path     string `json:"path"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}
	if req.Port == 0 {
		req.Port = 21
	}

	if err := services.TestFTPConnection(req.Host, req.Port, req.Username, req.Password, req.Path); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": fmt.Sprintf("FTP test failed: %v", err),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "FTP connection successful",
	})
}

// ScheduleLogs returns recent runs for a schedule.
func (h *SnapshotsHandler) ScheduleLogs(c *fiber.Ctx) error {
	if resp := h.requireDeveloperMode(c); resp != nil {
		return resp
	}

	var logs []models.SnapshotLog
	query := database.DB.Order("created_at DESC").Limit(100)
	if id := c.Params("id"); id != "" {
		query = query.Where("schedule_id = ?", id)
	}
	if err := query.Find(&logs).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to list snapshot logs",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"logs": logs},
	})
}
