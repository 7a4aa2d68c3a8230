package addons

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/featherpanel/backend/internal/events"
	"github.com/featherpanel/backend/internal/migrations"
	"github.com/featherpanel/backend/internal/models"
	"github.com/featherpanel/backend/internal/registry"
)

// InstallError is a typed installer failure carrying the machine-readable
// code and HTTP status the API surfaces.
type InstallError struct {
	Code       string
	HTTPStatus int
	Message    string

	// Upsell details, set on premium entitlement failures.
	PremiumLink  string
	PremiumPrice string
}

func (e *InstallError) Error() string {
	return e.Message
}

func installErr(code string, status int, format string, args ...interface{}) *InstallError {
	return &InstallError{Code: code, HTTPStatus: status, Message: fmt.Sprintf(format, args...)}
}

// Result describes a completed install or update.
type Result struct {
	Identifier string  `json:"identifier"`
	Name       *string `json:"name"`
	IsUpdate   bool    `json:"is_update"`
	Version    *string `json:"version,omitempty"`
	OldVersion *string `json:"old_version,omitempty"`
	NewVersion *string `json:"new_version,omitempty"`
}

// Installer materializes registry addons onto disk and brings their schema,
// settings, and lifecycle hooks up to date.
type Installer struct {
	db       *gorm.DB
	sqlDB    *sql.DB
	reg      *registry.Client
	cloud    *registry.CloudClient
	bus      events.Bus
	settings *SettingsStore

	addonsRoot string
	publicRoot string

	// Per-identifier locks: two installs of the same addon would race on
	// directory deletion and the migration ledger.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewInstaller creates an addon installer.
func NewInstaller(db *gorm.DB, sqlDB *sql.DB, reg *registry.Client, cloud *registry.CloudClient, bus events.Bus, addonsRoot, publicRoot string) *Installer {
	return &Installer{
		db:         db,
		sqlDB:      sqlDB,
		reg:        reg,
		cloud:      cloud,
		bus:        bus,
		settings:   NewSettingsStore(db),
		addonsRoot: addonsRoot,
		publicRoot: publicRoot,
		locks:      make(map[string]*sync.Mutex),
	}
}

// Settings returns the installer's settings store.
func (i *Installer) Settings() *SettingsStore {
	return i.settings
}

func (i *Installer) lockFor(identifier string) *sync.Mutex {
	i.locksMu.Lock()
	defer i.locksMu.Unlock()
	if _, ok := i.locks[identifier]; !ok {
		i.locks[identifier] = &sync.Mutex{}
	}
	return i.locks[identifier]
}

// Install resolves an identifier against the registry, downloads the
// package, and runs the shared install routine. requestedVersion is only
// consulted for premium packages whose registry metadata lacks a latest
// version.
func (i *Installer) Install(identifier, requestedVersion string) (*Result, error) {
	if !ValidRegistryIdentifier(identifier) {
		return nil, installErr("INVALID_IDENTIFIER", http.StatusBadRequest,
			"Invalid addon identifier: %s", identifier)
	}

	details, err := i.reg.GetPackage(identifier)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, installErr("PACKAGE_NOT_FOUND", http.StatusNotFound,
				"Package %s not found in registry", identifier)
		}
		return nil, installErr("PACKAGE_DETAILS_FETCH_FAILED", http.StatusInternalServerError,
			"Failed to fetch package details: %v", err)
	}
	pkg := details.Package

	var archive []byte
	if pkg.Premium {
		// Credentials are checked before any download attempt so an
		// unconfigured panel fails fast with a purchase link.
		if !i.cloud.IsConfigured() {
			e := installErr("CLOUD_CREDENTIALS_NOT_CONFIGURED", http.StatusServiceUnavailable,
				"Cloud credentials are not configured; premium addons require them")
			e.PremiumLink = pkg.PremiumLink
			e.PremiumPrice = pkg.PremiumPrice
			return nil, e
		}

		version := requestedVersion
		if version == "" && details.LatestVersion != nil {
			version = details.LatestVersion.Version
		}
		if version == "" {
			return nil, installErr("VERSION_REQUIRED", http.StatusBadRequest,
				"A version is required to download premium package %s", identifier)
		}

		archive, err = i.cloud.DownloadPremium(identifier, version)
		if err != nil {
			var cloudErr *registry.CloudError
			if errors.As(err, &cloudErr) {
				e := installErr(cloudErr.Code, cloudErr.HTTPStatus, "%s", cloudErr.Message)
				e.PremiumLink = pkg.PremiumLink
				e.PremiumPrice = pkg.PremiumPrice
				return nil, e
			}
			return nil, installErr("PACKAGE_DOWNLOAD_FAILED", http.StatusInternalServerError,
				"Failed to download premium package: %v", err)
		}
	} else {
		if details.LatestVersion == nil || details.LatestVersion.DownloadURL == "" {
			return nil, installErr("PACKAGE_NO_DOWNLOAD_URL", http.StatusInternalServerError,
				"Package %s has no download URL", identifier)
		}
		archive, err = i.reg.Download(details.LatestVersion.DownloadURL)
		if err != nil {
			return nil, installErr("PACKAGE_DOWNLOAD_FAILED", http.StatusInternalServerError,
				"Failed to download package: %v", err)
		}
	}

	tempFile, err := os.CreateTemp("", "fpa-download-*.fpa")
	if err != nil {
		return nil, installErr("ADDON_EXTRACT_FAILED", http.StatusInternalServerError,
			"Failed to create temp file: %v", err)
	}
	tempPath := tempFile.Name()
	defer os.Remove(tempPath)

	if _, err := tempFile.Write(archive); err != nil {
		tempFile.Close()
		return nil, installErr("ADDON_EXTRACT_FAILED", http.StatusInternalServerError,
			"Failed to write archive: %v", err)
	}
	tempFile.Close()

	tempDir, err := ExtractArchive(tempPath)
	if err != nil {
		return nil, installErr("ADDON_EXTRACT_FAILED", http.StatusUnprocessableEntity,
			"Failed to extract addon archive: %v", err)
	}

	cloudID := pkg.ID
	result, err := i.PerformInstall(tempDir, identifier, &cloudID)
	if err != nil {
		return nil, err
	}

	payload := events.PluginEvent{
		Identifier: result.Identifier,
		OldVersion: deref(result.OldVersion),
		NewVersion: deref(result.NewVersion),
	}
	if result.Name != nil {
		payload.Name = *result.Name
	}
	if result.IsUpdate {
		i.bus.Publish(events.PluginUpdated, payload)
	} else {
		payload.NewVersion = deref(result.Version)
		i.bus.Publish(events.PluginInstalled, payload)
	}
	return result, nil
}

// PerformInstall is the shared install routine used by registry installs
// and any other extraction source. It consumes tempDir: the directory is
// removed on every exit path.
func (i *Installer) PerformInstall(tempDir, identifier string, cloudID *int) (*Result, error) {
	cleanup := func() { os.RemoveAll(tempDir) }

	manifest, err := LoadManifest(tempDir)
	if err != nil {
		cleanup()
		return nil, installErr("ADDON_INVALID", http.StatusUnprocessableEntity,
			"Addon archive has no valid %s: %v", ManifestFilename, err)
	}

	if identifier == "" {
		identifier = manifest.Plugin.Identifier
	}
	if !ValidManifestIdentifier(identifier) {
		cleanup()
		return nil, installErr("ADDON_IDENTIFIER_INVALID", http.StatusUnprocessableEntity,
			"Invalid addon identifier in manifest: %s", identifier)
	}

	lock := i.lockFor(identifier)
	lock.Lock()
	defer lock.Unlock()

	addonDir := filepath.Join(i.addonsRoot, identifier)

	var oldVersion *string
	var settingsBackup map[string]string
	isUpdate := false
	if _, err := os.Stat(addonDir); err == nil {
		isUpdate = true

		if old, err := LoadManifest(addonDir); err == nil && old.Plugin.Version != "" {
			v := old.Plugin.Version
			oldVersion = &v
		}

		// Settings backup is best effort: losing it must not block the
		// update.
		settingsBackup, err = i.settings.All(identifier)
		if err != nil {
			log.Printf("Failed to back up settings for %s: %v", identifier, err)
			settingsBackup = nil
		}

		if err := os.RemoveAll(addonDir); err != nil {
			cleanup()
			return nil, installErr("ADDON_INSTALL_FAILED", http.StatusInternalServerError,
				"Failed to remove existing addon directory: %v", err)
		}
	}

	if err := os.MkdirAll(addonDir, 0755); err != nil {
		cleanup()
		return nil, installErr("ADDON_INSTALL_FAILED", http.StatusInternalServerError,
			"Failed to create addon directory: %v", err)
	}
	if err := copyDir(tempDir, addonDir); err != nil {
		cleanup()
		return nil, installErr("ADDON_INSTALL_FAILED", http.StatusInternalServerError,
			"Failed to copy addon files: %v", err)
	}
	cleanup()

	i.exposeAssets(addonDir, identifier)

	// Schema must be sound before addon code runs against it: any failed
	// migration aborts the install before hooks fire.
	runner := migrations.NewRunner(i.sqlDB)
	summary, err := runner.RunDir(filepath.Join(addonDir, "Migrations"), identifier)
	if err != nil {
		return nil, installErr("ADDON_MIGRATION_FAILED", http.StatusUnprocessableEntity,
			"Failed to run addon migrations: %v", err)
	}
	if summary.Failed > 0 {
		return nil, installErr("ADDON_MIGRATION_FAILED", http.StatusUnprocessableEntity,
			"%d addon migration(s) failed", summary.Failed)
	}

	if isUpdate && len(settingsBackup) > 0 {
		for key, value := range settingsBackup {
			if err := i.settings.Set(identifier, key, value); err != nil {
				log.Printf("Failed to restore setting %s for %s: %v", key, identifier, err)
			}
		}
	}

	var name, newVersion *string
	if fresh, err := LoadManifest(addonDir); err == nil {
		if fresh.Plugin.Name != "" {
			name = &fresh.Plugin.Name
		}
		if fresh.Plugin.Version != "" {
			newVersion = &fresh.Plugin.Version
		}
	} else {
		log.Printf("Failed to re-read manifest for %s: %v", identifier, err)
	}

	i.invokeHooks(identifier, isUpdate, oldVersion, newVersion)

	if err := i.track(identifier, name, newVersion, cloudID); err != nil {
		log.Printf("Failed to record installation of %s: %v", identifier, err)
	}

	result := &Result{
		Identifier: identifier,
		Name:       name,
		IsUpdate:   isUpdate,
	}
	if isUpdate {
		result.OldVersion = oldVersion
		result.NewVersion = newVersion
	} else {
		result.Version = newVersion
	}
	return result, nil
}

// exposeAssets publishes the addon's static asset directories under the
// public root. Failures are logged; missing assets never fail the install.
func (i *Installer) exposeAssets(addonDir, identifier string) {
	publicSrc := filepath.Join(addonDir, "Public")
	if _, err := os.Stat(publicSrc); err == nil {
		dst := filepath.Join(i.publicRoot, "addons", identifier)
		if err := linkOrCopy(publicSrc, dst); err != nil {
			log.Printf("Failed to expose public assets for %s: %v", identifier, err)
		}
	}

	componentsSrc := filepath.Join(addonDir, "Frontend", "Components")
	if _, err := os.Stat(componentsSrc); err == nil {
		dst := filepath.Join(i.publicRoot, "components", identifier)
		if err := linkOrCopy(componentsSrc, dst); err != nil {
			log.Printf("Failed to expose frontend components for %s: %v", identifier, err)
		}
	}
}

// invokeHooks calls the addon's registered lifecycle handler. Hooks are
// best effort: failures are logged and never fail the install.
func (i *Installer) invokeHooks(identifier string, isUpdate bool, oldVersion, newVersion *string) {
	plugin, ok := LookupPlugin(identifier)
	if !ok {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("Lifecycle hook for %s panicked: %v", identifier, r)
		}
	}()

	if isUpdate {
		if err := plugin.OnUpdate(deref(oldVersion), deref(newVersion)); err != nil {
			log.Printf("OnUpdate hook for %s failed: %v", identifier, err)
		}
		return
	}
	if err := plugin.OnInstall(); err != nil {
		log.Printf("OnInstall hook for %s failed: %v", identifier, err)
	}
}

// track upserts the installed-plugin row. Reinstalling an identifier
// updates the existing record and clears its soft-delete marker.
func (i *Installer) track(identifier string, name, version *string, cloudID *int) error {
	displayName := identifier
	if name != nil {
		displayName = *name
	}

	var existing models.InstalledPlugin
	err := i.db.Where("identifier = ?", identifier).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return i.db.Create(&models.InstalledPlugin{
			Name:        displayName,
			Identifier:  identifier,
			Version:     version,
			CloudID:     cloudID,
			InstalledAt: time.Now(),
		}).Error
	}
	if err != nil {
		return err
	}

	updates := map[string]interface{}{
		"name":           displayName,
		"version":        version,
		"installed_at":   time.Now(),
		"uninstalled_at": nil,
	}
	if cloudID != nil {
		updates["cloud_id"] = cloudID
	}
	return i.db.Model(&existing).Updates(updates).Error
}

// PreviouslyInstalled returns tracking rows whose soft-delete marker is
// set.
func (i *Installer) PreviouslyInstalled() ([]models.InstalledPlugin, error) {
	var rows []models.InstalledPlugin
	err := i.db.Where("uninstalled_at IS NOT NULL").Order("uninstalled_at DESC").Find(&rows).Error
	return rows, err
}

// Installed returns tracking rows for currently-installed addons.
func (i *Installer) Installed() ([]models.InstalledPlugin, error) {
	var rows []models.InstalledPlugin
	err := i.db.Where("uninstalled_at IS NULL").Order("installed_at DESC").Find(&rows).Error
	return rows, err
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
