package config

import (
	"fmt"
	"os"
	"strings"
)

// WriteEnvValue persists a key=value pair into the panel's env file and the
// running process environment. Used when a value must be regenerated at
// runtime, like the settings encryption key during a fresh restore.
func WriteEnvValue(envFile, key, value string) error {
	os.Setenv(key, value)

	line := fmt.Sprintf("%s=%s", key, value)

	data, err := os.ReadFile(envFile)
	if err != nil {
		if os.IsNotExist(err) {
			return os.WriteFile(envFile, []byte(line+"\n"), 0600)
		}
		return fmt.Errorf("failed to read env file: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	replaced := false
	for i, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), key+"=") {
			lines[i] = line
			replaced = true
			break
		}
	}
	if !replaced {
		lines = append(lines, line)
	}

	out := strings.Join(lines, "\n")
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return os.WriteFile(envFile, []byte(out), 0600)
}
