package route

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	eventController "tickethub_backend/internals/features/events/controller"
	"tickethub_backend/internals/features/payments/gateway"
)

func EventPublicRoutes(api fiber.Router, db *gorm.DB, gateways *gateway.Registry) {
	ctrl := eventController.NewEventController(db, gateways)

	// Buyers need the event page before checkout.
	api.Get("/events/:id", ctrl.GetByID)
}

func EventAdminRoutes(api fiber.Router, db *gorm.DB, gateways *gateway.Registry) {
	ctrl := eventController.NewEventController(db, gateways)

	events := api.Group("/events")
	events.Post("/", ctrl.CreateEvent)
	events.Get("/", ctrl.ListEvents)
	events.Post("/:id/webhook-setup", ctrl.SetupWebhook)
	events.Get("/:id/activity", ctrl.ListActivity)
}
