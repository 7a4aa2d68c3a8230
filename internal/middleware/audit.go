package middleware

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/featherpanel/backend/internal/database"
	"github.com/featherpanel/backend/internal/models"
)

// LogActivity writes an activity row for the current request. Activity
// logging is best effort: a failed insert must never fail the action that
// triggered it.
func LogActivity(c *fiber.Ctx, name, context string) {
	user := GetCurrentUser(c)
	if user == nil {
		return
	}

	activity := models.Activity{
		UserUUID:  user.UUID,
		Name:      name,
		Context:   context,
		IPAddress: c.IP(),
		UserAgent: c.Get("User-Agent"),
	}
	if err := database.DB.Create(&activity).Error; err != nil {
		log.Printf("Failed to record activity %s: %v", name, err)
	}
}
