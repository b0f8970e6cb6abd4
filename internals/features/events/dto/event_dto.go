package dto

import (
	"time"

	"github.com/google/uuid"

	"tickethub_backend/internals/features/events/model"
)

/* ========================= REQUEST DTOs ========================= */

type CreateEventRequest struct {
	EventName        string  `json:"event_name" validate:"required,min=2,max=200"`
	EventDescription *string `json:"event_description,omitempty"`

	EventPriceAmount int64  `json:"event_price_amount" validate:"required,gt=0"`
	EventCurrency    string `json:"event_currency" validate:"omitempty,len=3"`

	EventProvider string `json:"event_provider" validate:"required,oneof=stripe square midtrans"`

	EventCollectName  *bool `json:"event_collect_name,omitempty"`
	EventCollectEmail *bool `json:"event_collect_email,omitempty"`
	EventCollectPhone *bool `json:"event_collect_phone,omitempty"`

	EventNotifyURL *string `json:"event_notify_url,omitempty" validate:"omitempty,url"`
}

/* ========================= RESPONSE DTOs ========================= */

type EventResponse struct {
	EventID          uuid.UUID `json:"event_id"`
	EventName        string    `json:"event_name"`
	EventDescription *string   `json:"event_description,omitempty"`
	EventPriceAmount int64     `json:"event_price_amount"`
	EventCurrency    string    `json:"event_currency"`
	EventProvider    string    `json:"event_provider"`
	EventCollect     []string  `json:"event_collect"`
	EventNotifyURL   *string   `json:"event_notify_url,omitempty"`
	EventCreatedAt   time.Time `json:"event_created_at"`
}

func FromEventModel(m *model.Event) *EventResponse {
	collect := make([]string, 0, 3)
	if m.EventCollectName {
		collect = append(collect, "name")
	}
	if m.EventCollectEmail {
		collect = append(collect, "email")
	}
	if m.EventCollectPhone {
		collect = append(collect, "phone")
	}
	return &EventResponse{
		EventID:          m.EventID,
		EventName:        m.EventName,
		EventDescription: m.EventDescription,
		EventPriceAmount: m.EventPriceAmount,
		EventCurrency:    m.EventCurrency,
		EventProvider:    string(m.EventProvider),
		EventCollect:     collect,
		EventNotifyURL:   m.EventNotifyURL,
		EventCreatedAt:   m.CreatedAt,
	}
}
