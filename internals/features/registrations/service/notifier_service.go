package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// NotifyPayload is the outbound webhook body. PII is intentionally excluded;
// receivers get ids and counts only.
type NotifyPayload struct {
	EventType string    `json:"event_type"`
	EventID   uuid.UUID `json:"event_id"`
	EventName string    `json:"event_name"`
	Attendee  struct {
		ID       uuid.UUID `json:"id"`
		Quantity int       `json:"quantity"`
	} `json:"attendee"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier delivers per-event outbound webhooks. Fire-and-forget: one bounded
// attempt, failures logged and swallowed — a downstream outage must never fail
// or retry a registration.
type Notifier struct {
	Client *http.Client
}

func NewNotifier() *Notifier {
	return &Notifier{Client: &http.Client{Timeout: 5 * time.Second}}
}

func (n *Notifier) Send(url string, payload NotifyPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[WARN] notify payload marshal failed: %v", err)
		return
	}
	resp, err := n.Client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("[WARN] notify %s failed: %v", url, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Printf("[WARN] notify %s returned %s", url, resp.Status)
	}
}

func RegistrationNotifyPayload(eventID uuid.UUID, eventName string, attendeeID uuid.UUID, quantity int) NotifyPayload {
	p := NotifyPayload{
		EventType: "attendee.registered",
		EventID:   eventID,
		EventName: eventName,
		Timestamp: time.Now().UTC(),
	}
	p.Attendee.ID = attendeeID
	p.Attendee.Quantity = quantity
	return p
}

func registrationActivityMessage(eventName string, quantity int) string {
	return fmt.Sprintf("registration confirmed for %q (%d ticket(s))", eventName, quantity)
}
