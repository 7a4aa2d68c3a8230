package addons

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidRegistryIdentifier(t *testing.T) {
	tests := []struct {
		identifier string
		valid      bool
	}{
		{"my-addon", true},
		{"My_Addon2", true},
		{"addon", true},
		{"", false},
		{"my addon", false},
		{"my.addon", false},
		{"../etc/passwd", false},
		{"addon;drop", false},
	}

	for _, tt := range tests {
		t.Run(tt.identifier, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidRegistryIdentifier(tt.identifier))
		})
	}
}

func TestValidManifestIdentifier(t *testing.T) {
	tests := []struct {
		identifier string
		valid      bool
	}{
		{"my-addon", true},
		{"addon_2", true},
		// The manifest check is lowercase-only, stricter than the
		// registry check.
		{"MyAddon", false},
		{"", false},
		{"my addon", false},
	}

	for _, tt := range tests {
		t.Run(tt.identifier, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidManifestIdentifier(tt.identifier))
		})
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	manifest := `plugin:
  identifier: example-addon
  name: Example Addon
  version: 1.2.0
  dependencies:
    - plugin=other-addon
  min_panel_version: 1.0.0
  max_panel_version: 2.0.0
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFilename), []byte(manifest), 0644))

	m, err := LoadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, "example-addon", m.Plugin.Identifier)
	assert.Equal(t, "Example Addon", m.Plugin.Name)
	assert.Equal(t, "1.2.0", m.Plugin.Version)
	assert.Equal(t, []string{"plugin=other-addon"}, m.Plugin.Dependencies)
	assert.Equal(t, "1.0.0", m.Plugin.MinPanelVersion)
}

func TestLoadManifestMissing(t *testing.T) {
	_, err := LoadManifest(t.TempDir())
	assert.Error(t, err)
}

func TestLoadManifestInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFilename), []byte("plugin: [unclosed"), 0644))

	_, err := LoadManifest(dir)
	assert.Error(t, err)
}
