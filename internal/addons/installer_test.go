package addons

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func newTestInstaller(t *testing.T) *Installer {
	t.Helper()
	return NewInstaller(nil, nil, nil, nil, nil, t.TempDir(), t.TempDir())
}

func TestInstallRejectsInvalidIdentifier(t *testing.T) {
	// The registry client is nil: a network call on this path would
	// panic, so passing proves validation happens first.
	installer := newTestInstaller(t)

	for _, identifier := range []string{"", "bad identifier", "../traversal", "semi;colon"} {
		_, err := installer.Install(identifier, "")
		require.Error(t, err)

		var installErr *InstallError
		require.True(t, errors.As(err, &installErr))
		assert.Equal(t, "INVALID_IDENTIFIER", installErr.Code)
		assert.Equal(t, http.StatusBadRequest, installErr.HTTPStatus)
	}
}

func TestPerformInstallMissingManifest(t *testing.T) {
	installer := newTestInstaller(t)

	tempDir, err := os.MkdirTemp("", "addon-staging-")
	require.NoError(t, err)

	_, err = installer.PerformInstall(tempDir, "demo", nil)
	require.Error(t, err)

	var installErr *InstallError
	require.True(t, errors.As(err, &installErr))
	assert.Equal(t, "ADDON_INVALID", installErr.Code)
	assert.Equal(t, http.StatusUnprocessableEntity, installErr.HTTPStatus)

	// The staging directory must be cleaned up on the failure path.
	_, statErr := os.Stat(tempDir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestPerformInstallRejectsUppercaseManifestIdentifier(t *testing.T) {
	installer := newTestInstaller(t)

	tempDir, err := os.MkdirTemp("", "addon-staging-")
	require.NoError(t, err)
	manifest := "plugin:\n  identifier: BadIdentifier\n  version: 1.0.0\n"
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, ManifestFilename), []byte(manifest), 0644))

	_, err = installer.PerformInstall(tempDir, "", nil)
	require.Error(t, err)

	var installErr *InstallError
	require.True(t, errors.As(err, &installErr))
	assert.Equal(t, "ADDON_IDENTIFIER_INVALID", installErr.Code)

	_, statErr := os.Stat(tempDir)
	assert.True(t, os.IsNotExist(statErr))
}

func stageAddon(t *testing.T, manifest string) string {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "addon-staging-")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, ManifestFilename), []byte(manifest), 0644))
	return tempDir
}

func TestPerformInstallFailedMigrationAbortsBeforeHooks(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	installer := NewInstaller(nil, db, nil, nil, nil, t.TempDir(), t.TempDir())

	plugin := &recordingPlugin{}
	RegisterPlugin("gated_addon", func() Plugin { return plugin })
	defer UnregisterPlugin("gated_addon")

	tempDir := stageAddon(t, "plugin:\n  identifier: gated_addon\n  name: Gated Addon\n  version: 1.0.0\n")
	require.NoError(t, os.MkdirAll(filepath.Join(tempDir, "Migrations"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "Migrations", "2025-01-01-init.sql"),
		[]byte("CREATE TABLE gated (id INT);"), 0644))

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS featherpanel_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM featherpanel_migrations`).
		WithArgs("addon:gated_addon:2025-01-01-init.sql").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("CREATE TABLE gated").WillReturnError(fmt.Errorf("table already exists"))

	_, err = installer.PerformInstall(tempDir, "", nil)
	require.Error(t, err)

	var installErr *InstallError
	require.True(t, errors.As(err, &installErr))
	assert.Equal(t, "ADDON_MIGRATION_FAILED", installErr.Code)
	assert.Equal(t, http.StatusUnprocessableEntity, installErr.HTTPStatus)

	// The schema gate fires before any addon code runs.
	assert.False(t, plugin.installed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPerformInstallPreservesSettingsAcrossUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	gdb, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	addonsRoot := t.TempDir()
	installer := NewInstaller(gdb, db, nil, nil, nil, addonsRoot, t.TempDir())

	plugin := &recordingPlugin{}
	RegisterPlugin("kept_addon", func() Plugin { return plugin })
	defer UnregisterPlugin("kept_addon")

	// Existing install at 1.0.0.
	addonDir := filepath.Join(addonsRoot, "kept_addon")
	require.NoError(t, os.MkdirAll(addonDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(addonDir, ManifestFilename),
		[]byte("plugin:\n  identifier: kept_addon\n  name: Kept Addon\n  version: 1.0.0\n"), 0644))

	tempDir := stageAddon(t, "plugin:\n  identifier: kept_addon\n  name: Kept Addon\n  version: 2.0.0\n")

	// Settings replay iterates a map, so the two upserts can arrive in
	// either order.
	mock.MatchExpectationsInOrder(false)

	mock.ExpectQuery("SELECT (.+) FROM `featherpanel_plugin_settings` WHERE identifier = ").
		WithArgs("kept_addon").
		WillReturnRows(sqlmock.NewRows([]string{"id", "identifier", "setting_key", "setting_value"}).
			AddRow(1, "kept_addon", "a", "1").
			AddRow(2, "kept_addon", "b", "2"))

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS featherpanel_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))

	mock.ExpectExec("INSERT INTO `featherpanel_plugin_settings`").
		WithArgs("kept_addon", "a", "1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO `featherpanel_plugin_settings`").
		WithArgs("kept_addon", "b", "2", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(2, 1))

	mock.ExpectQuery("SELECT (.+) FROM `featherpanel_installed_plugins`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec("INSERT INTO `featherpanel_installed_plugins`").
		WillReturnResult(sqlmock.NewResult(1, 1))

	result, err := installer.PerformInstall(tempDir, "", nil)
	require.NoError(t, err)

	assert.True(t, result.IsUpdate)
	require.NotNil(t, result.OldVersion)
	assert.Equal(t, "1.0.0", *result.OldVersion)
	require.NotNil(t, result.NewVersion)
	assert.Equal(t, "2.0.0", *result.NewVersion)

	assert.Equal(t, "1.0.0", plugin.oldVersion)
	assert.Equal(t, "2.0.0", plugin.newVersion)

	// Both settings rows were written back after the update.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockForReturnsSameMutexPerIdentifier(t *testing.T) {
	installer := newTestInstaller(t)

	a := installer.lockFor("demo")
	b := installer.lockFor("demo")
	c := installer.lockFor("other")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}
