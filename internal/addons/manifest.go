package addons

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// ManifestFilename is the required manifest member of every addon archive.
const ManifestFilename = "conf.yml"

// Identifier patterns. Registry lookups accept mixed case; manifests are
// stricter and require lowercase.
var (
	registryIdentifierRe = regexp.MustCompile(`^[a-zA-Z0-9_\-]+$`)
	manifestIdentifierRe = regexp.MustCompile(`^[a-z0-9_\-]+$`)
)

// ValidRegistryIdentifier reports whether s is acceptable as a registry
// package identifier.
func ValidRegistryIdentifier(s string) bool {
	return registryIdentifierRe.MatchString(s)
}

// ValidManifestIdentifier reports whether s is acceptable as an addon
// manifest identifier.
func ValidManifestIdentifier(s string) bool {
	return manifestIdentifierRe.MatchString(s)
}

// Manifest is the parsed conf.yml of an addon package.
type Manifest struct {
	Plugin struct {
		Identifier      string   `yaml:"identifier"`
		Name            string   `yaml:"name"`
		Version         string   `yaml:"version"`
		Dependencies    []string `yaml:"dependencies"`
		MinPanelVersion string   `yaml:"min_panel_version"`
		MaxPanelVersion string   `yaml:"max_panel_version"`
	} `yaml:"plugin"`
}

// LoadManifest reads and parses the conf.yml inside dir.
func LoadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFilename))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ManifestFilename, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", ManifestFilename, err)
	}
	return &m, nil
}
