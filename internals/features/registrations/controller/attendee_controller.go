package controller

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	eventModel "tickethub_backend/internals/features/events/model"
	eventService "tickethub_backend/internals/features/events/service"
	"tickethub_backend/internals/features/registrations/dto"
	"tickethub_backend/internals/features/registrations/model"
	"tickethub_backend/internals/features/registrations/service"
	helper "tickethub_backend/internals/helpers"
	"tickethub_backend/internals/helpers/encryption"
)

const fieldUnavailable = "unavailable"

var (
	errNotAuthenticated = errors.New("not authenticated")
	errNotOwner         = errors.New("not the event owner")
)

type AttendeeController struct {
	DB            *gorm.DB
	Registrations *service.RegistrationService
}

func NewAttendeeController(db *gorm.DB, registrations *service.RegistrationService) *AttendeeController {
	return &AttendeeController{DB: db, Registrations: registrations}
}

// ListAttendees returns the attendees of one event with contact fields
// decrypted under the requesting admin's session key.
func (ctrl *AttendeeController) ListAttendees(c *fiber.Ctx) error {
	eventID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "Invalid event id")
	}
	event, err := ctrl.ownedEvent(c, eventID)
	if err != nil {
		return ownershipError(c, err)
	}

	dataKey, _ := c.Locals("data_key").([]byte)
	if len(dataKey) == 0 {
		return helper.JsonError(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	var rows []model.Attendee
	if err := ctrl.DB.
		Where("attendee_event_id = ?", event.EventID).
		Order("attendee_created_at DESC").
		Find(&rows).Error; err != nil {
		return helper.JsonError(c, fiber.StatusInternalServerError, "Failed to list attendees")
	}

	out := make([]dto.AttendeeResponse, 0, len(rows))
	for i := range rows {
		out = append(out, attendeeResponse(&rows[i], dataKey))
	}
	return helper.JsonOK(c, "OK", out)
}

func (ctrl *AttendeeController) CheckIn(c *fiber.Ctx) error {
	attendeeID, err := uuid.Parse(c.Params("attendee_id"))
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "Invalid attendee id")
	}
	attendee, err := ctrl.ownedAttendee(c, attendeeID)
	if err != nil {
		return ownershipError(c, err)
	}
	if attendee.AttendeeCheckedIn {
		return helper.JsonError(c, fiber.StatusConflict, "Attendee is already checked in")
	}
	if err := ctrl.DB.Model(attendee).
		Update("attendee_checked_in", true).Error; err != nil {
		return helper.JsonError(c, fiber.StatusInternalServerError, "Check-in failed")
	}
	eventService.LogActivity(ctrl.DB, "attendee checked in", &attendee.AttendeeEventID,
		map[string]any{"attendee_id": attendee.AttendeeID})
	return helper.JsonOK(c, "Checked in", fiber.Map{"attendee_id": attendee.AttendeeID})
}

func (ctrl *AttendeeController) Refund(c *fiber.Ctx) error {
	attendeeID, err := uuid.Parse(c.Params("attendee_id"))
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "Invalid attendee id")
	}
	attendee, err := ctrl.ownedAttendee(c, attendeeID)
	if err != nil {
		return ownershipError(c, err)
	}

	ok, err := ctrl.Registrations.RefundAttendee(c.UserContext(), attendeeID)
	if err != nil {
		log.Printf("[ERROR] refund attendee %s: %v", attendeeID, err)
		return helper.JsonError(c, fiber.StatusBadGateway, "Refund failed")
	}
	if !ok {
		return helper.JsonError(c, fiber.StatusBadGateway, "Provider declined the refund")
	}
	eventService.LogActivity(ctrl.DB, "attendee refunded", &attendee.AttendeeEventID,
		map[string]any{"attendee_id": attendeeID})
	return helper.JsonOK(c, "Refunded", fiber.Map{"attendee_id": attendeeID})
}

/* ========================= ownership checks ========================= */

func (ctrl *AttendeeController) ownedEvent(c *fiber.Ctx, eventID uuid.UUID) (*eventModel.Event, error) {
	ownerID, err := currentUserID(c)
	if err != nil {
		return nil, errNotAuthenticated
	}
	var event eventModel.Event
	if err := ctrl.DB.First(&event, "event_id = ?", eventID).Error; err != nil {
		return nil, err
	}
	if event.EventOwnerID != ownerID {
		return nil, errNotOwner
	}
	return &event, nil
}

func (ctrl *AttendeeController) ownedAttendee(c *fiber.Ctx, attendeeID uuid.UUID) (*model.Attendee, error) {
	var attendee model.Attendee
	if err := ctrl.DB.First(&attendee, "attendee_id = ?", attendeeID).Error; err != nil {
		return nil, err
	}
	if _, err := ctrl.ownedEvent(c, attendee.AttendeeEventID); err != nil {
		return nil, err
	}
	return &attendee, nil
}

func ownershipError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, errNotAuthenticated):
		return helper.JsonError(c, fiber.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, errNotOwner):
		return helper.JsonError(c, fiber.StatusForbidden, "Not your event")
	case errors.Is(err, gorm.ErrRecordNotFound):
		return helper.JsonError(c, fiber.StatusNotFound, "Not found")
	default:
		return helper.JsonError(c, fiber.StatusInternalServerError, "Lookup failed")
	}
}

/* ========================= responses ========================= */

func currentUserID(c *fiber.Ctx) (uuid.UUID, error) {
	raw, _ := c.Locals("user_id").(string)
	return uuid.Parse(raw)
}

func attendeeResponse(a *model.Attendee, key []byte) dto.AttendeeResponse {
	return dto.AttendeeResponse{
		AttendeeID:  a.AttendeeID,
		EventID:     a.AttendeeEventID,
		Name:        decryptOrUnavailable(a.AttendeeName, key),
		Email:       decryptOrUnavailable(a.AttendeeEmail, key),
		Phone:       decryptOrUnavailable(a.AttendeePhone, key),
		Quantity:    a.AttendeeQuantity,
		AmountTotal: a.AttendeeAmountTotal,
		CheckedIn:   a.AttendeeCheckedIn,
		CreatedAt:   a.CreatedAt,
	}
}

// decryptOrUnavailable never returns garbled plaintext: a ciphertext the
// session key cannot open is reported as unavailable.
func decryptOrUnavailable(stored string, key []byte) string {
	plain, err := encryption.DecryptField(stored, key)
	if err != nil {
		return fieldUnavailable
	}
	return plain
}
