package snapshots

import "strings"

// stripComments removes full-line SQL comments (-- and /* ... */) from dump
// content before splitting. mysqldump emits these as whole lines, so a
// line-oriented filter is sufficient.
func stripComments(content string) string {
	lines := strings.Split(content, "\n")
	kept := lines[:0]
	inBlock := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if inBlock {
			if strings.HasSuffix(trimmed, "*/") {
				inBlock = false
			}
			continue
		}
		if strings.HasPrefix(trimmed, "--") {
			continue
		}
		if strings.HasPrefix(trimmed, "/*") && !strings.HasSuffix(trimmed, ";") {
			if !strings.HasSuffix(trimmed, "*/") {
				inBlock = true
			}
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// splitStatements splits dump content into individual statements on ";"
// boundaries, respecting single quotes, double quotes, backticks, and
// backslash escapes so semicolons inside string values do not break
// statements apart.
func splitStatements(content string) []string {
	var statements []string
	var current strings.Builder

	var quote byte
	escaped := false

	for i := 0; i < len(content); i++ {
		ch := content[i]
		current.WriteByte(ch)

		if escaped {
			escaped = false
			continue
		}

		switch {
		case quote != 0:
			if ch == '\\' {
				escaped = true
			} else if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"' || ch == '`':
			quote = ch
		case ch == ';':
			stmt := strings.TrimSpace(strings.TrimSuffix(current.String(), ";"))
			if stmt != "" {
				statements = append(statements, stmt)
			}
			current.Reset()
		}
	}

	if stmt := strings.TrimSpace(current.String()); stmt != "" {
		statements = append(statements, stmt)
	}
	return statements
}
