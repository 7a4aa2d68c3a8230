package migrations

import (
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LedgerTable tracks which migration scripts have been applied.
const LedgerTable = "featherpanel_migrations"

// Summary reports the outcome of a migration pass.
type Summary struct {
	Executed int
	Skipped  int
	Failed   int
	Lines    []string
}

// Runner applies SQL migration files against the panel database, recording
// each applied script in the ledger so replays are idempotent.
type Runner struct {
	db *sql.DB

	// onSettingsTable fires after the core migration that creates the
	// settings table succeeds. Encrypted settings storage needs a key
	// before any setting is written, so key generation hangs off this
	// migration specifically.
	onSettingsTable func() error
}

// NewRunner creates a migration runner.
func NewRunner(db *sql.DB) *Runner {
	return &Runner{db: db}
}

// OnSettingsTableCreated registers a callback invoked after the settings
// table migration is applied.
func (r *Runner) OnSettingsTableCreated(fn func() error) {
	r.onSettingsTable = fn
}

// EnsureLedger creates the ledger table if it does not exist.
func (r *Runner) EnsureLedger() error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id INT NOT NULL AUTO_INCREMENT,
		script TEXT NOT NULL,
		migrated ENUM('true','false') NOT NULL DEFAULT 'true',
		date DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (id)
	)`, LedgerTable)
	if _, err := r.db.Exec(ddl); err != nil {
		return fmt.Errorf("failed to create migration ledger: %w", err)
	}
	return nil
}

// ScriptKey builds the ledger key for a migration file. Core migrations use
// the bare filename; addon migrations are namespaced by identifier.
func ScriptKey(addonIdentifier, filename string) string {
	if addonIdentifier == "" {
		return filename
	}
	return fmt.Sprintf("addon:%s:%s", addonIdentifier, filename)
}

// isApplied reports whether a script key is already marked migrated.
func (r *Runner) isApplied(key string) (bool, error) {
	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE script = ? AND migrated = 'true'", LedgerTable)
	if err := r.db.QueryRow(query, key).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// markApplied records a script key in the ledger.
func (r *Runner) markApplied(key string) error {
	query := fmt.Sprintf("INSERT INTO %s (script, migrated) VALUES (?, 'true')", LedgerTable)
	_, err := r.db.Exec(query, key)
	return err
}

// RunDir applies every *.sql file in dir, sorted lexically. Filenames are
// the only ordering guarantee, so migration files carry date prefixes. A
// failing file is counted and reported but does not abort the rest of the
// batch; callers that need all-or-nothing semantics check Summary.Failed.
func (r *Runner) RunDir(dir, addonIdentifier string) (*Summary, error) {
	if err := r.EnsureLedger(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return &Summary{}, nil
		}
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	summary := &Summary{}
	for _, name := range files {
		key := ScriptKey(addonIdentifier, name)

		applied, err := r.isApplied(key)
		if err != nil {
			return nil, fmt.Errorf("failed to check ledger for %s: %w", key, err)
		}
		if applied {
			summary.Skipped++
			summary.Lines = append(summary.Lines, fmt.Sprintf("SKIPPED: %s (already migrated)", key))
			continue
		}

		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			summary.Failed++
			summary.Lines = append(summary.Lines, fmt.Sprintf("FAILED: %s (%v)", key, err))
			continue
		}

		if _, err := r.db.Exec(string(content)); err != nil {
			summary.Failed++
			summary.Lines = append(summary.Lines, fmt.Sprintf("FAILED: %s (%v)", key, err))
			log.Printf("Migration %s failed: %v", key, err)
			continue
		}

		if err := r.markApplied(key); err != nil {
			return nil, fmt.Errorf("failed to record %s in ledger: %w", key, err)
		}
		summary.Executed++
		summary.Lines = append(summary.Lines, fmt.Sprintf("EXECUTED: %s", key))

		if addonIdentifier == "" && r.onSettingsTable != nil && isSettingsMigration(name) {
			if err := r.onSettingsTable(); err != nil {
				log.Printf("Settings table callback failed after %s: %v", key, err)
			}
		}
	}
	return summary, nil
}

// RunAll applies the core migration set followed by every addon's
// Migrations directory, merged into one summary. Core runs first so addon
// schemas can reference core tables.
func (r *Runner) RunAll(coreDir, addonsRoot string) (*Summary, error) {
	total, err := r.RunDir(coreDir, "")
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(addonsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return total, nil
		}
		return nil, fmt.Errorf("failed to read addons directory: %w", err)
	}

	var identifiers []string
	for _, entry := range entries {
		if entry.IsDir() {
			identifiers = append(identifiers, entry.Name())
		}
	}
	sort.Strings(identifiers)

	for _, identifier := range identifiers {
		dir := filepath.Join(addonsRoot, identifier, "Migrations")
		summary, err := r.RunDir(dir, identifier)
		if err != nil {
			return nil, err
		}
		total.Executed += summary.Executed
		total.Skipped += summary.Skipped
		total.Failed += summary.Failed
		total.Lines = append(total.Lines, summary.Lines...)
	}
	return total, nil
}

// isSettingsMigration matches the core migration that creates the settings
// table.
func isSettingsMigration(filename string) bool {
	return strings.Contains(filename, "settings")
}

// GenerateEncryptionKey produces a fresh symmetric key suitable for
// encrypted settings storage.
func GenerateEncryptionKey() (string, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to generate encryption key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
