package dto

import (
	"time"

	"github.com/google/uuid"
)

/* ========================= REQUEST DTOs ========================= */

type CheckoutRequest struct {
	Quantity int    `json:"quantity" validate:"required,gt=0,lte=50"`
	Name     string `json:"name" validate:"omitempty,max=200"`
	Email    string `json:"email" validate:"omitempty,email"`
	Phone    string `json:"phone" validate:"omitempty,max=32"`
}

type MultiCheckoutItem struct {
	EventID  uuid.UUID `json:"event_id" validate:"required"`
	Quantity int       `json:"quantity" validate:"required,gt=0,lte=50"`
}

type MultiCheckoutRequest struct {
	Items []MultiCheckoutItem `json:"items" validate:"required,min=1,max=20,dive"`
	Name  string              `json:"name" validate:"omitempty,max=200"`
	Email string              `json:"email" validate:"omitempty,email"`
	Phone string              `json:"phone" validate:"omitempty,max=32"`
}

/* ========================= RESPONSE DTOs ========================= */

type CheckoutResponse struct {
	OrderID     string `json:"order_id"`
	CheckoutURL string `json:"checkout_url"`
}

// AttendeeResponse carries contact fields decrypted with the requesting
// admin's session key. A field that cannot be decrypted is reported as
// unavailable rather than returned garbled.
type AttendeeResponse struct {
	AttendeeID  uuid.UUID `json:"attendee_id"`
	EventID     uuid.UUID `json:"event_id"`
	Name        string    `json:"name,omitempty"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Quantity    int       `json:"quantity"`
	AmountTotal int64     `json:"amount_total"`
	CheckedIn   bool      `json:"checked_in"`
	CreatedAt   time.Time `json:"created_at"`
}
