package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/featherpanel/backend/internal/addons"
	"github.com/featherpanel/backend/internal/config"
	"github.com/featherpanel/backend/internal/database"
	"github.com/featherpanel/backend/internal/events"
	"github.com/featherpanel/backend/internal/handlers"
	"github.com/featherpanel/backend/internal/middleware"
	"github.com/featherpanel/backend/internal/migrations"
	"github.com/featherpanel/backend/internal/models"
	"github.com/featherpanel/backend/internal/registry"
	"github.com/featherpanel/backend/internal/services"
	"github.com/featherpanel/backend/internal/snapshots"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Connect to database
	if err := database.Connect(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Create backend-owned tables
	if err := models.AutoMigrate(database.DB); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	sqlDB, err := database.SQL()
	if err != nil {
		log.Fatalf("Failed to get raw database handle: %v", err)
	}

	// Apply pending core and addon SQL migrations. The ledger makes this
	// idempotent across restarts.
	runner := migrations.NewRunner(sqlDB)
	summary, err := runner.RunAll(cfg.MigrationsDir(), cfg.AddonsDir())
	if err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}
	log.Printf("Migrations: %d executed, %d skipped, %d failed",
		summary.Executed, summary.Skipped, summary.Failed)

	// Seed admin user if not exists
	seedAdminUser()

	bus := events.NewBus()

	regClient := registry.NewClient(cfg.RegistryBaseURL)
	cloudClient := registry.NewCloudClient(cfg.RegistryBaseURL, cfg.CloudAccessKey, cfg.CloudSecretKey)
	installer := addons.NewInstaller(database.DB, sqlDB, regClient, cloudClient, bus, cfg.AddonsDir(), cfg.PublicRoot)

	snapshotManager := snapshots.NewManager(cfg, sqlDB, database.DB, bus)

	// Start snapshot scheduler (checks schedules every minute)
	scheduler := services.NewSnapshotSchedulerService(cfg, snapshotManager)
	go scheduler.Start()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "FeatherPanel API v1.0",
		ServerHeader: "FeatherPanel",
		BodyLimit:    1024 * 1024 * 1024, // 1GiB, snapshot uploads
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(middleware.Recovery())
	app.Use(compress.New())
	app.Use(middleware.Logger())
	app.Use(middleware.CORS())
	app.Use(middleware.RateLimiter(100, time.Minute))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "featherpanel-api",
			"version": cfg.AppVersion,
		})
	})

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(cfg)
	twoFAHandler := handlers.NewTwoFAHandler()
	pluginsHandler := handlers.NewPluginsHandler(cfg, regClient, installer)
	snapshotsHandler := handlers.NewSnapshotsHandler(cfg, snapshotManager, scheduler)

	api := app.Group("/api")

	// Public auth routes
	auth := api.Group("/auth")
	auth.Post("/login", authHandler.Login)

	// Protected routes
	protected := api.Group("", middleware.AuthRequired(cfg))
	protected.Post("/auth/logout", authHandler.Logout)
	protected.Get("/auth/me", authHandler.Me)
	protected.Post("/auth/change-password", authHandler.ChangePassword)
	protected.Post("/auth/refresh", authHandler.RefreshToken)

	twofa := protected.Group("/auth/2fa")
	twofa.Post("/setup", twoFAHandler.Setup)
	twofa.Post("/verify", twoFAHandler.Verify)
	twofa.Post("/disable", twoFAHandler.Disable)
	twofa.Get("/status", twoFAHandler.Status)

	// Cloud plugin routes (Admin only)
	plugins := protected.Group("/admin/plugins", middleware.AdminOnly())
	plugins.Get("/", pluginsHandler.List)
	plugins.Get("/popular", pluginsHandler.Popular)
	plugins.Get("/installed", pluginsHandler.Installed)
	plugins.Get("/previously-installed", pluginsHandler.PreviouslyInstalled)
	plugins.Get("/tag/:tag", pluginsHandler.ByTag)
	plugins.Get("/:identifier", pluginsHandler.Show)
	plugins.Get("/:identifier/check", pluginsHandler.Check)
	plugins.Post("/:identifier/install", pluginsHandler.Install)

	// Database snapshot routes (Admin only)
	snaps := protected.Group("/admin/database-snapshots", middleware.AdminOnly())
	snaps.Get("/", snapshotsHandler.Index)
	snaps.Post("/", snapshotsHandler.Create)
	snaps.Post("/restore-upload", snapshotsHandler.RestoreUpload)
	snaps.Post("/fresh-restore", snapshotsHandler.FreshRestore)
	snaps.Get("/:filename/download", snapshotsHandler.Download)
	snaps.Post("/:filename/restore", snapshotsHandler.Restore)
	snaps.Delete("/:filename", snapshotsHandler.Delete)

	// Snapshot schedule routes (Admin only)
	schedules := protected.Group("/admin/snapshot-schedules", middleware.AdminOnly())
	schedules.Get("/", snapshotsHandler.ListSchedules)
	schedules.Post("/", snapshotsHandler.CreateSchedule)
	schedules.Post("/test-ftp", snapshotsHandler.TestFTP)
	schedules.Get("/logs", snapshotsHandler.ScheduleLogs)
	schedules.Get("/:id/logs", snapshotsHandler.ScheduleLogs)
	schedules.Put("/:id", snapshotsHandler.UpdateSchedule)
	schedules.Post("/:id/toggle", snapshotsHandler.ToggleSchedule)
	schedules.Post("/:id/run", snapshotsHandler.RunScheduleNow)
	schedules.Delete("/:id", snapshotsHandler.DeleteSchedule)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		scheduler.Stop()
		app.Shutdown()
	}()

	// Start server
	addr := fmt.Sprintf(":%d", cfg.APIPort)
	log.Printf("Starting FeatherPanel API server on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func seedAdminUser() {
	var count int64
	database.DB.Model(&models.User{}).Where("role_id = ?", models.RoleAdmin).Count(&count)

	if count == 0 {
		log.Println("Creating default admin user...")

		hashedPassword, _ := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)

		admin := models.User{
			UUID:      uuid.NewString(),
			Username:  "admin",
			Password:  string(hashedPassword),
			Email:     "admin@featherpanel.local",
			FirstName: "System",
			LastName:  "Administrator",
			RoleID:    models.RoleAdmin,
		}

		if err := database.DB.Create(&admin).Error; err != nil {
			log.Printf("Failed to create admin user: %v", err)
		} else {
			log.Println("Admin user created successfully (username: admin, password: admin123)")
		}
	}
}
