package addons

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/featherpanel/backend/internal/registry"
)

// DependencyCheck is the status of a single declared dependency.
type DependencyCheck struct {
	Dependency string `json:"dependency"`
	Met        bool   `json:"met"`
	Message    string `json:"message"`
}

// CheckResult reports whether an addon can be installed on this panel.
type CheckResult struct {
	CanInstall       bool              `json:"can_install"`
	AlreadyInstalled bool              `json:"already_installed"`
	UpdateAvailable  bool              `json:"update_available"`
	InstalledVersion *string           `json:"installed_version"`
	LatestVersion    *string           `json:"latest_version"`
	Package          CheckPackage      `json:"package"`
	Dependencies     DependencyReport  `json:"dependencies"`
	PanelVersion     PanelVersionCheck `json:"panel_version"`
}

// CheckPackage is the package summary embedded in a check result.
type CheckPackage struct {
	Identifier  string  `json:"identifier"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Version     *string `json:"version"`
	Author      string  `json:"author"`
	Verified    bool    `json:"verified"`
	Premium     bool    `json:"premium"`
}

// DependencyReport groups the per-dependency checks.
type DependencyReport struct {
	Checks []DependencyCheck `json:"checks"`
	AllMet bool              `json:"all_met"`
}

// PanelVersionCheck reports panel version compatibility.
type PanelVersionCheck struct {
	OK      bool    `json:"ok"`
	Message *string `json:"message"`
	Min     *string `json:"min"`
	Max     *string `json:"max"`
}

// CheckRequirements verifies an addon's dependencies and panel version
// constraints before installation. Installable means: not yet installed or
// an update exists, the panel version fits, and every dependency is met.
func (i *Installer) CheckRequirements(identifier, panelVersion string) (*CheckResult, error) {
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
	latest := details.LatestVersion
	if latest == nil {
		latest = pkg.LatestVersion
	}

	result := &CheckResult{
		Package: CheckPackage{
			Identifier:  identifier,
			Name:        displayName(pkg),
			Description: pkg.Description,
			Author:      pkg.Author,
			Verified:    pkg.Verified,
			Premium:     pkg.Premium,
		},
	}

	var latestVersion string
	if latest != nil && latest.Version != "" {
		latestVersion = latest.Version
		result.LatestVersion = &latest.Version
		result.Package.Version = &latest.Version
	}

	pluginDir := filepath.Join(i.addonsRoot, identifier)
	if _, statErr := os.Stat(pluginDir); statErr == nil {
		result.AlreadyInstalled = true
		if manifest, mErr := LoadManifest(pluginDir); mErr == nil {
			installed := manifest.Plugin.Version
			result.InstalledVersion = &installed
			if latestVersion != "" && compareVersions(latestVersion, installed) > 0 {
				result.UpdateAvailable = true
			}
		}
	}

	var min, max string
	if latest != nil {
		min = latest.MinPanelVersion
		max = latest.MaxPanelVersion
	}
	result.PanelVersion = checkPanelVersion(panelVersion, min, max)

	result.Dependencies.AllMet = true
	if latest != nil {
		for _, dep := range latest.Dependencies {
			check := i.checkDependency(dep)
			result.Dependencies.Checks = append(result.Dependencies.Checks, check)
			if !check.Met {
				result.Dependencies.AllMet = false
			}
		}
	}

	result.CanInstall = (!result.AlreadyInstalled || result.UpdateAvailable) &&
		result.PanelVersion.OK && result.Dependencies.AllMet
	return result, nil
}

func displayName(pkg registry.Package) string {
	if pkg.DisplayName != "" {
		return pkg.DisplayName
	}
	return pkg.Name
}

// checkDependency understands "plugin={identifier}" references to other
// installed addons. Unknown formats are assumed met rather than blocking the
// install.
func (i *Installer) checkDependency(dep string) DependencyCheck {
	if ref, ok := strings.CutPrefix(dep, "plugin="); ok {
		if _, err := os.Stat(filepath.Join(i.addonsRoot, ref)); err == nil {
			return DependencyCheck{Dependency: dep, Met: true, Message: "Plugin installed"}
		}
		return DependencyCheck{Dependency: dep, Met: false, Message: fmt.Sprintf("Plugin required: %s", ref)}
	}
	return DependencyCheck{Dependency: dep, Met: true, Message: fmt.Sprintf("Unknown dependency format: %s", dep)}
}

func checkPanelVersion(current, min, max string) PanelVersionCheck {
	check := PanelVersionCheck{OK: true}
	if min != "" {
		check.Min = &min
	}
	if max != "" {
		check.Max = &max
	}
	if min == "" && max == "" {
		return check
	}

	if min != "" && compareVersions(current, min) < 0 {
		check.OK = false
		msg := fmt.Sprintf("Requires panel version %s or higher (current: %s)", min, current)
		check.Message = &msg
	}
	if max != "" && compareVersions(current, max) > 0 {
		check.OK = false
		msg := fmt.Sprintf("Requires panel version %s or lower (current: %s)", max, current)
		check.Message = &msg
	}
	return check
}

// compareVersions compares dotted numeric versions, ignoring a leading "v".
// Returns -1, 0, or 1.
func compareVersions(a, b string) int {
	pa := strings.Split(strings.TrimLeft(a, "vV"), ".")
	pb := strings.Split(strings.TrimLeft(b, "vV"), ".")
	for i := 0; i < len(pa) || i < len(pb); i++ {
		var na, nb int
		if i < len(pa) {
			na, _ = strconv.Atoi(pa[i])
		}
		if i < len(pb) {
			nb, _ = strconv.Atoi(pb[i])
		}
		if na != nb {
			if na < nb {
				return -1
			}
			return 1
		}
	}
	return 0
}
