package route

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	registrationController "tickethub_backend/internals/features/registrations/controller"
	registrationService "tickethub_backend/internals/features/registrations/service"
)

func RegistrationPublicRoutes(api fiber.Router, registrations *registrationService.RegistrationService) {
	checkout := registrationController.NewCheckoutController(registrations)
	webhook := registrationController.NewWebhookController(registrations)

	api.Post("/events/:id/checkout", checkout.CreateCheckout)
	api.Post("/checkout/multi", checkout.CreateMultiCheckout)

	// Provider deliveries authenticate by signature, not by session.
	api.Post("/webhooks/:provider", webhook.HandleProviderWebhook)
}

func RegistrationAdminRoutes(api fiber.Router, db *gorm.DB, registrations *registrationService.RegistrationService) {
	ctrl := registrationController.NewAttendeeController(db, registrations)

	api.Get("/events/:id/attendees", ctrl.ListAttendees)
	api.Patch("/attendees/:attendee_id/check-in", ctrl.CheckIn)
	api.Post("/attendees/:attendee_id/refund", ctrl.Refund)
}
