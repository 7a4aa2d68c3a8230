package handlers

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/featherpanel/backend/internal/addons"
	"github.com/featherpanel/backend/internal/config"
	"github.com/featherpanel/backend/internal/middleware"
	"github.com/featherpanel/backend/internal/models"
	"github.com/featherpanel/backend/internal/registry"
)

// PluginsHandler exposes the addon registry and installer over HTTP.
type PluginsHandler struct {
	cfg       *config.Config
	reg       *registry.Client
	installer *addons.Installer
}

// NewPluginsHandler creates a plugins handler.
func NewPluginsHandler(cfg *config.Config, reg *registry.Client, installer *addons.Installer) *PluginsHandler {
	return &PluginsHandler{cfg: cfg, reg: reg, installer: installer}
}

// List returns a page of registry packages.
func (h *PluginsHandler) List(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	search := c.Query("search")

	result, err := h.reg.ListPackages(page, search)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success":    false,
			"message":    fmt.Sprintf("Failed to fetch packages: %v", err),
			"error_code": "PACKAGE_LIST_FETCH_FAILED",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    result,
	})
}

// Popular returns the most-downloaded registry packages.
func (h *PluginsHandler) Popular(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "10"))

	packages, err := h.reg.PopularPackages(limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success":    false,
			"message":    fmt.Sprintf("Failed to fetch popular packages: %v", err),
			"error_code": "POPULAR_FETCH_FAILED",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"addons": packages},
	})
}

// Check reports whether an addon's requirements are satisfied on this
// panel before installation.
func (h *PluginsHandler) Check(c *fiber.Ctx) error {
	identifier := c.Params("identifier")

	result, err := h.installer.CheckRequirements(identifier, h.cfg.AppVersion)
	if err != nil {
		var installErr *addons.InstallError
		if errors.As(err, &installErr) {
			return c.Status(installErr.HTTPStatus).JSON(fiber.Map{
				"success":    false,
				"message":    installErr.Message,
				"error_code": installErr.Code,
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": fmt.Sprintf("Failed to check requirements: %v", err),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Requirements check completed",
		"data":    result,
	})
}

// Show returns a single registry package with its version history.
func (h *PluginsHandler) Show(c *fiber.Ctx) error {
	identifier := c.Params("identifier")
	if !addons.ValidRegistryIdentifier(identifier) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success":    false,
			"message":    "Invalid addon identifier",
			"error_code": "INVALID_IDENTIFIER",
		})
	}

	details, err := h.reg.GetPackage(identifier)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success":    false,
				"message":    "Package not found",
				"error_code": "PACKAGE_NOT_FOUND",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success":    false,
			"message":    fmt.Sprintf("Failed to fetch package details: %v", err),
			"error_code": "PACKAGE_DETAILS_FETCH_FAILED",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    details,
	})
}

// ByTag returns registry packages carrying a tag.
func (h *PluginsHandler) ByTag(c *fiber.Ctx) error {
	tag := c.Params("tag")
	if tag == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success":    false,
			"message":    "Tag is required",
			"error_code": "TAG_REQUIRED",
		})
	}

	result, err := h.reg.SearchByTag(tag)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success":    false,
			"message":    fmt.Sprintf("Failed to search by tag: %v", err),
			"error_code": "TAG_SEARCH_FAILED",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    result,
	})
}

// Installed returns currently-installed addons.
func (h *PluginsHandler) Installed(c *fiber.Ctx) error {
	plugins, err := h.installer.Installed()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to list installed plugins",
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"plugins": plugins},
	})
}

// PreviouslyInstalled returns addons whose tracking row carries the
// soft-delete marker.
func (h *PluginsHandler) PreviouslyInstalled(c *fiber.Ctx) error {
	plugins, err := h.installer.PreviouslyInstalled()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to list previously installed plugins",
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"plugins": plugins},
	})
}

// Install downloads a registry package and installs it.
func (h *PluginsHandler) Install(c *fiber.Ctx) error {
	identifier := c.Params("identifier")

	var body struct {
		Version string `json:"version"`
	}
	// Body is optional; version only matters for premium packages.
	c.BodyParser(&body)

	result, err := h.installer.Install(identifier, body.Version)
	if err != nil {
		var installErr *addons.InstallError
		if errors.As(err, &installErr) {
			resp := fiber.Map{
				"success":    false,
				"message":    installErr.Message,
				"error_code": installErr.Code,
			}
			if installErr.PremiumLink != "" {
				resp["premium_link"] = installErr.PremiumLink
			}
			if installErr.PremiumPrice != "" {
				resp["premium_price"] = installErr.PremiumPrice
			}
			return c.Status(installErr.HTTPStatus).JSON(resp)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": fmt.Sprintf("Install failed: %v", err),
		})
	}

	status := fiber.StatusCreated
	message := "Addon installed successfully"
	activity := models.ActivityPluginInstalled
	if result.IsUpdate {
		status = fiber.StatusOK
		message = "Addon updated successfully"
		activity = models.ActivityPluginUpdated
	}
	middleware.LogActivity(c, activity, result.Identifier)

	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"message": message,
		"data":    result,
	})
}
