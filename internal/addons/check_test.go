package addons

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/featherpanel/backend/internal/registry"
)

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b     string
		expected int
	}{
		{"1.0.0", "1.0.0", 0},
		{"v1.0.0", "1.0.0", 0},
		{"1.2.0", "1.1.9", 1},
		{"1.0.0", "1.0.1", -1},
		{"2.0", "1.9.9", 1},
		{"1.0", "1.0.0", 0},
		{"v1.10.0", "v1.9.0", 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, compareVersions(tt.a, tt.b), "%s vs %s", tt.a, tt.b)
	}
}

func TestCheckPanelVersion(t *testing.T) {
	check := checkPanelVersion("v1.2.0", "", "")
	assert.True(t, check.OK)
	assert.Nil(t, check.Message)

	check = checkPanelVersion("v1.2.0", "1.0.0", "2.0.0")
	assert.True(t, check.OK)

	check = checkPanelVersion("v1.2.0", "1.5.0", "")
	assert.False(t, check.OK)
	require.NotNil(t, check.Message)
	assert.Contains(t, *check.Message, "1.5.0 or higher")

	check = checkPanelVersion("v2.1.0", "", "2.0.0")
	assert.False(t, check.OK)
	require.NotNil(t, check.Message)
	assert.Contains(t, *check.Message, "2.0.0 or lower")
}

func TestCheckDependency(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "base_addon"), 0755))
	installer := NewInstaller(nil, nil, nil, nil, nil, root, t.TempDir())

	check := installer.checkDependency("plugin=base_addon")
	assert.True(t, check.Met)

	check = installer.checkDependency("plugin=missing_addon")
	assert.False(t, check.Met)
	assert.Contains(t, check.Message, "missing_addon")

	check = installer.checkDependency("binary=java17")
	assert.True(t, check.Met)
}

func TestCheckRequirements(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"success": true,
			"data": {
				"package": {
					"id": 9,
					"name": "example_addon",
					"display_name": "Example Addon",
					"author": "feather",
					"verified": true
				},
				"latest_version": {
					"version": "2.0.0",
					"download_url": "/downloads/example_addon-2.0.0.fpa",
					"dependencies": ["plugin=base_addon"],
					"min_panel_version": "1.0.0"
				}
			}
		}`)
	}))
	defer srv.Close()

	root := t.TempDir()
	installer := NewInstaller(nil, nil, registry.NewClient(srv.URL), nil, nil, root, t.TempDir())

	// Dependency missing: not installable.
	result, err := installer.CheckRequirements("example_addon", "v1.2.0")
	require.NoError(t, err)
	assert.False(t, result.CanInstall)
	assert.False(t, result.AlreadyInstalled)
	assert.False(t, result.Dependencies.AllMet)
	assert.True(t, result.PanelVersion.OK)
	require.NotNil(t, result.LatestVersion)
	assert.Equal(t, "2.0.0", *result.LatestVersion)

	// Satisfying the dependency makes it installable.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "base_addon"), 0755))
	result, err = installer.CheckRequirements("example_addon", "v1.2.0")
	require.NoError(t, err)
	assert.True(t, result.CanInstall)

	// Installing the current version flips to already-installed with an
	// update available.
	addonDir := filepath.Join(root, "example_addon")
	require.NoError(t, os.MkdirAll(addonDir, 0755))
	manifest := "plugin:\n  identifier: example_addon\n  name: Example Addon\n  version: 1.5.0\n"
	require.NoError(t, os.WriteFile(filepath.Join(addonDir, ManifestFilename), []byte(manifest), 0644))

	result, err = installer.CheckRequirements("example_addon", "v1.2.0")
	require.NoError(t, err)
	assert.True(t, result.AlreadyInstalled)
	assert.True(t, result.UpdateAvailable)
	require.NotNil(t, result.InstalledVersion)
	assert.Equal(t, "1.5.0", *result.InstalledVersion)
	assert.True(t, result.CanInstall)
}

func TestCheckRequirementsInvalidIdentifier(t *testing.T) {
	installer := NewInstaller(nil, nil, nil, nil, nil, t.TempDir(), t.TempDir())

	_, err := installer.CheckRequirements("bad identifier!", "v1.0.0")
	require.Error(t, err)
	var installErr *InstallError
	require.ErrorAs(t, err, &installErr)
	assert.Equal(t, "INVALID_IDENTIFIER", installErr.Code)
}
