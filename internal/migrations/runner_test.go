package migrations

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMigration(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestScriptKey(t *testing.T) {
	assert.Equal(t, "2025-01-01-init.sql", ScriptKey("", "2025-01-01-init.sql"))
	assert.Equal(t, "addon:demo:2025-01-01-init.sql", ScriptKey("demo", "2025-01-01-init.sql"))
}

func TestRunDirAppliesInOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dir := t.TempDir()
	// Written out of order; lexical sort must apply 01 before 02.
	writeMigration(t, dir, "2025-01-02-second.sql", "CREATE TABLE b (id INT);")
	writeMigration(t, dir, "2025-01-01-first.sql", "CREATE TABLE a (id INT);")
	writeMigration(t, dir, "notes.txt", "not a migration")

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS featherpanel_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM featherpanel_migrations`).
		WithArgs("2025-01-01-first.sql").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("CREATE TABLE a").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO featherpanel_migrations").
		WithArgs("2025-01-01-first.sql").
		WillReturnResult(sqlmock.NewResult(1, 1))

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM featherpanel_migrations`).
		WithArgs("2025-01-02-second.sql").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("CREATE TABLE b").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO featherpanel_migrations").
		WithArgs("2025-01-02-second.sql").
		WillReturnResult(sqlmock.NewResult(2, 1))

	runner := NewRunner(db)
	summary, err := runner.RunDir(dir, "")
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Executed)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, 0, summary.Failed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunDirIdempotentReplay(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dir := t.TempDir()
	writeMigration(t, dir, "2025-01-01-init.sql", "CREATE TABLE a (id INT);")

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS featherpanel_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))

	// Ledger already records the script: it must be skipped, not re-run.
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM featherpanel_migrations`).
		WithArgs("2025-01-01-init.sql").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	runner := NewRunner(db)
	summary, err := runner.RunDir(dir, "")
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Executed)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.Failed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunDirFailedFileDoesNotAbortBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dir := t.TempDir()
	writeMigration(t, dir, "2025-01-01-bad.sql", "BROKEN SQL;")
	writeMigration(t, dir, "2025-01-02-good.sql", "CREATE TABLE ok (id INT);")

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS featherpanel_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM featherpanel_migrations`).
		WithArgs("addon:demo:2025-01-01-bad.sql").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("BROKEN SQL").
		WillReturnError(assert.AnError)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM featherpanel_migrations`).
		WithArgs("addon:demo:2025-01-02-good.sql").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("CREATE TABLE ok").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO featherpanel_migrations").
		WithArgs("addon:demo:2025-01-02-good.sql").
		WillReturnResult(sqlmock.NewResult(1, 1))

	runner := NewRunner(db)
	summary, err := runner.RunDir(dir, "demo")
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Executed)
	assert.Equal(t, 1, summary.Failed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunDirMissingDirectory(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS featherpanel_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))

	runner := NewRunner(db)
	summary, err := runner.RunDir(filepath.Join(t.TempDir(), "missing"), "demo")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Executed+summary.Skipped+summary.Failed)
}

func TestSettingsTableCallback(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dir := t.TempDir()
	writeMigration(t, dir, "2025-01-01-create-settings.sql", "CREATE TABLE featherpanel_settings (id INT);")

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS featherpanel_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM featherpanel_migrations`).
		WithArgs("2025-01-01-create-settings.sql").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("CREATE TABLE featherpanel_settings").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO featherpanel_migrations").
		WithArgs("2025-01-01-create-settings.sql").
		WillReturnResult(sqlmock.NewResult(1, 1))

	called := false
	runner := NewRunner(db)
	runner.OnSettingsTableCreated(func() error {
		called = true
		return nil
	})

	_, err = runner.RunDir(dir, "")
	require.NoError(t, err)
	assert.True(t, called)
}

func TestGenerateEncryptionKey(t *testing.T) {
	a, err := GenerateEncryptionKey()
	require.NoError(t, err)
	b, err := GenerateEncryptionKey()
	require.NoError(t, err)

	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
