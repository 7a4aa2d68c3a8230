package snapshots

import (
	"fmt"
	"strings"
)

// sqlKeywords are the statement starters a real dump must contain at least
// one of.
var sqlKeywords = []string{
	"CREATE TABLE", "INSERT INTO", "DROP TABLE", "ALTER TABLE",
	"CREATE DATABASE", "USE ", "SET ", "LOCK TABLES",
}

// ValidateSQLContent heuristically rejects content that is clearly not a
// SQL dump: empty files, HTML error pages, and JSON error bodies are the
// usual suspects when a download was corrupted or truncated.
func ValidateSQLContent(content string) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return fmt.Errorf("snapshot file is empty; the download may have failed or been truncated")
	}

	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "<!doctype") || strings.HasPrefix(lower, "<html") {
		return fmt.Errorf("snapshot file contains an HTML page instead of SQL; the download likely returned an error page")
	}

	if strings.HasPrefix(trimmed, "{") &&
		(strings.Contains(lower, "\"error\"") || strings.Contains(lower, "\"message\"")) {
		return fmt.Errorf("snapshot file contains a JSON error response instead of SQL")
	}

	upper := strings.ToUpper(trimmed)
	for _, keyword := range sqlKeywords {
		if strings.Contains(upper, keyword) {
			return nil
		}
	}
	return fmt.Errorf("snapshot file contains no recognizable SQL statements; it may be corrupted or incomplete")
}
