package controller

import (
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"tickethub_backend/internals/configs"
	"tickethub_backend/internals/features/payments/gateway"
	"tickethub_backend/internals/features/registrations/dto"
	"tickethub_backend/internals/features/registrations/service"
	helper "tickethub_backend/internals/helpers"
)

var validate = validator.New()

type CheckoutController struct {
	Registrations *service.RegistrationService
}

func NewCheckoutController(registrations *service.RegistrationService) *CheckoutController {
	return &CheckoutController{Registrations: registrations}
}

// CreateCheckout is the public ticket-purchase entry point. No auth: buyers
// are anonymous until the provider confirms payment.
func (ctrl *CheckoutController) CreateCheckout(c *fiber.Ctx) error {
	eventID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "Invalid event id")
	}

	var req dto.CheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "Invalid request format")
	}
	if err := validate.Struct(req); err != nil {
		return helper.JsonValidationError(c, err)
	}

	contact := map[string]string{
		gateway.MetaName:  req.Name,
		gateway.MetaEmail: req.Email,
		gateway.MetaPhone: req.Phone,
	}
	session, userErr, err := ctrl.Registrations.CreateCheckout(
		c.UserContext(), eventID, req.Quantity, contact, configs.PublicBaseURL)
	if err != nil {
		log.Printf("[ERROR] checkout for event %s: %v", eventID, err)
		return helper.JsonError(c, fiber.StatusBadGateway, "Checkout is temporarily unavailable")
	}
	if userErr != "" {
		return helper.JsonError(c, fiber.StatusBadRequest, userErr)
	}
	return helper.JsonCreated(c, "Checkout session created", dto.CheckoutResponse{
		OrderID:     session.OrderID,
		CheckoutURL: session.URL,
	})
}

func (ctrl *CheckoutController) CreateMultiCheckout(c *fiber.Ctx) error {
	var req dto.MultiCheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "Invalid request format")
	}
	if err := validate.Struct(req); err != nil {
		return helper.JsonValidationError(c, err)
	}

	items := make([]gateway.CheckoutItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, gateway.CheckoutItem{EventID: it.EventID, Quantity: it.Quantity})
	}
	contact := map[string]string{
		gateway.MetaName:  req.Name,
		gateway.MetaEmail: req.Email,
		gateway.MetaPhone: req.Phone,
	}
	session, userErr, err := ctrl.Registrations.CreateMultiCheckout(
		c.UserContext(), items, contact, configs.PublicBaseURL)
	if err != nil {
		log.Printf("[ERROR] multi checkout: %v", err)
		return helper.JsonError(c, fiber.StatusBadGateway, "Checkout is temporarily unavailable")
	}
	if userErr != "" {
		return helper.JsonError(c, fiber.StatusBadRequest, userErr)
	}
	return helper.JsonCreated(c, "Checkout session created", dto.CheckoutResponse{
		OrderID:     session.OrderID,
		CheckoutURL: session.URL,
	})
}
