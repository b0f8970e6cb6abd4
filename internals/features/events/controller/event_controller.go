package controller

import (
	"errors"
	"log"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"tickethub_backend/internals/configs"
	"tickethub_backend/internals/features/events/dto"
	"tickethub_backend/internals/features/events/model"
	"tickethub_backend/internals/features/payments/gateway"
	paymentModel "tickethub_backend/internals/features/payments/model"
	helper "tickethub_backend/internals/helpers"
)

var validate = validator.New()

type EventController struct {
	DB       *gorm.DB
	Gateways *gateway.Registry
}

func NewEventController(db *gorm.DB, gateways *gateway.Registry) *EventController {
	return &EventController{DB: db, Gateways: gateways}
}

func (ctrl *EventController) CreateEvent(c *fiber.Ctx) error {
	var req dto.CreateEventRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "Invalid request format")
	}
	if err := validate.Struct(req); err != nil {
		return helper.JsonValidationError(c, err)
	}

	ownerID, err := currentUserID(c)
	if err != nil {
		return helper.JsonError(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	event := &model.Event{
		EventOwnerID:      ownerID,
		EventName:         req.EventName,
		EventDescription:  req.EventDescription,
		EventPriceAmount:  req.EventPriceAmount,
		EventCurrency:     strings.ToUpper(defaultString(req.EventCurrency, "USD")),
		EventProvider:     paymentModel.PaymentProvider(req.EventProvider),
		EventCollectName:  boolOr(req.EventCollectName, true),
		EventCollectEmail: boolOr(req.EventCollectEmail, true),
		EventCollectPhone: boolOr(req.EventCollectPhone, false),
		EventNotifyURL:    req.EventNotifyURL,
	}
	if err := ctrl.DB.Create(event).Error; err != nil {
		log.Printf("[ERROR] create event: %v", err)
		return helper.JsonError(c, fiber.StatusInternalServerError, "Failed to create event")
	}
	return helper.JsonCreated(c, "Event created", dto.FromEventModel(event))
}

func (ctrl *EventController) ListEvents(c *fiber.Ctx) error {
	ownerID, err := currentUserID(c)
	if err != nil {
		return helper.JsonError(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	var rows []model.Event
	if err := ctrl.DB.
		Where("event_owner_id = ?", ownerID).
		Order("event_created_at DESC").
		Find(&rows).Error; err != nil {
		return helper.JsonError(c, fiber.StatusInternalServerError, "Failed to list events")
	}

	out := make([]*dto.EventResponse, 0, len(rows))
	for i := range rows {
		out = append(out, dto.FromEventModel(&rows[i]))
	}
	return helper.JsonOK(c, "OK", out)
}

func (ctrl *EventController) GetByID(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "Invalid event id")
	}
	var event model.Event
	if err := ctrl.DB.First(&event, "event_id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return helper.JsonError(c, fiber.StatusNotFound, "Event not found")
		}
		return helper.JsonError(c, fiber.StatusInternalServerError, "Failed to load event")
	}
	return helper.JsonOK(c, "OK", dto.FromEventModel(&event))
}

// SetupWebhook registers this deployment's webhook endpoint with the event's
// provider. Safe to re-run: providers that support lookup-by-URL return the
// existing endpoint instead of creating a duplicate.
func (ctrl *EventController) SetupWebhook(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "Invalid event id")
	}
	var event model.Event
	if err := ctrl.DB.First(&event, "event_id = ?", id).Error; err != nil {
		return helper.JsonError(c, fiber.StatusNotFound, "Event not found")
	}

	adapter, err := ctrl.Gateways.Get(event.EventProvider)
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, err.Error())
	}

	webhookURL := configs.PublicBaseURL + "/api/webhooks/" + string(event.EventProvider)
	existing := ""
	if event.EventWebhookEndpointID != nil {
		existing = *event.EventWebhookEndpointID
	}
	endpointID, err := adapter.SetupWebhookEndpoint(c.UserContext(), webhookURL, existing)
	if err != nil {
		log.Printf("[ERROR] webhook setup for event %s: %v", id, err)
		return helper.JsonError(c, fiber.StatusBadGateway, err.Error())
	}

	if err := ctrl.DB.Model(&event).
		Update("event_webhook_endpoint_id", endpointID).Error; err != nil {
		return helper.JsonError(c, fiber.StatusInternalServerError, "Failed to record endpoint id")
	}
	return helper.JsonOK(c, "Webhook endpoint configured", fiber.Map{
		"endpoint_id": endpointID,
		"webhook_url": webhookURL,
	})
}

func (ctrl *EventController) ListActivity(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "Invalid event id")
	}
	var rows []model.ActivityLog
	if err := ctrl.DB.
		Where("activity_event_id = ?", id).
		Order("activity_created_at DESC").
		Limit(200).
		Find(&rows).Error; err != nil {
		return helper.JsonError(c, fiber.StatusInternalServerError, "Failed to list activity")
	}
	return helper.JsonOK(c, "OK", rows)
}

/* ========================= helpers ========================= */

func currentUserID(c *fiber.Ctx) (uuid.UUID, error) {
	raw, _ := c.Locals("user_id").(string)
	return uuid.Parse(raw)
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
