package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"tickethub_backend/internals/configs"
	paymentModel "tickethub_backend/internals/features/payments/model"
	"tickethub_backend/internals/features/registrations/service"
	helper "tickethub_backend/internals/helpers"
)

type WebhookController struct {
	Registrations *service.RegistrationService
}

func NewWebhookController(registrations *service.RegistrationService) *WebhookController {
	return &WebhookController{Registrations: registrations}
}

// HandleProviderWebhook receives payment notifications. Anything transient
// returns 500 so the provider redelivers; terminal outcomes ack with 2xx/4xx
// so redelivery stops.
func (ctrl *WebhookController) HandleProviderWebhook(c *fiber.Ctx) error {
	provider := paymentModel.PaymentProvider(c.Params("provider"))
	if !provider.Valid() {
		return helper.JsonError(c, fiber.StatusNotFound, "Unknown payment provider")
	}

	payload := c.Body()
	signature := providerSignature(c, provider)
	requestURL := configs.PublicBaseURL + c.OriginalURL()

	result, err := ctrl.Registrations.HandleWebhook(c.UserContext(), provider, payload, signature, requestURL)
	if err != nil {
		log.Printf("[ERROR] %s webhook processing: %v", provider, err)
		return helper.JsonError(c, fiber.StatusInternalServerError, "Webhook processing failed")
	}

	switch result.Status {
	case service.WebhookRejected:
		return helper.JsonError(c, fiber.StatusBadRequest, "Invalid webhook signature")
	case service.WebhookConflict:
		return helper.JsonError(c, fiber.StatusConflict, "Payment is being processed")
	case service.WebhookRegistered:
		return helper.JsonOK(c, "Registration created", fiber.Map{"attendee_id": result.AttendeeID})
	case service.WebhookReplayed:
		return helper.JsonOK(c, "Already processed", fiber.Map{"attendee_id": result.AttendeeID})
	default:
		return helper.JsonOK(c, "Ignored", nil)
	}
}

// providerSignature pulls the verification material from wherever the
// provider puts it. Midtrans signs inside the JSON body, so no header.
func providerSignature(c *fiber.Ctx, provider paymentModel.PaymentProvider) string {
	switch provider {
	case paymentModel.PaymentProviderStripe:
		return c.Get("Stripe-Signature")
	case paymentModel.PaymentProviderSquare:
		return c.Get("x-square-hmacsha256-signature")
	default:
		return ""
	}
}
