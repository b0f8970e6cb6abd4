// Package gateway normalizes the payment processors behind one contract so the
// registration pipeline stays provider-blind. Providers differ structurally
// (hosted checkout session vs payment link + order lookup; webhook event names
// differ), so each adapter translates its processor's shapes into the
// normalized types below.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	paymentModel "tickethub_backend/internals/features/payments/model"
)

/* =========================================================
   Normalized shapes
========================================================= */

// CheckoutIntent describes a single-event purchase about to be handed to a
// hosted checkout.
type CheckoutIntent struct {
	EventID    uuid.UUID
	EventName  string
	UnitAmount int64 // smallest currency unit
	Currency   string
	Quantity   int
	Contact    map[string]string // name / email / phone, only collected fields
}

type CheckoutItem struct {
	EventID    uuid.UUID `json:"event_id"`
	EventName  string    `json:"-"`
	UnitAmount int64     `json:"-"`
	Currency   string    `json:"-"`
	Quantity   int       `json:"quantity"`
}

// MultiCheckoutIntent is a combined purchase across several events in one
// checkout session.
type MultiCheckoutIntent struct {
	Items   []CheckoutItem
	Contact map[string]string
}

// CheckoutSession is what the payer is redirected to.
type CheckoutSession struct {
	OrderID string `json:"order_id"`
	URL     string `json:"url"`
}

// ValidatedSession is a retrieved provider session whose metadata has already
// been checked for the fields the registration needs.
type ValidatedSession struct {
	ID               string
	PaymentStatus    paymentModel.PaymentStatus
	PaymentReference string // charge/payment id used for refunds
	AmountTotal      int64
	Metadata         map[string]string
}

type EventKind string

const (
	EventCheckoutCompleted EventKind = "checkout_completed"
	EventIgnored           EventKind = "ignored"
)

// WebhookEvent is a signature-verified provider notification reduced to what
// the pipeline consumes.
type WebhookEvent struct {
	Kind      EventKind
	SessionID string
}

/* =========================================================
   Contract
========================================================= */

// Provider is implemented once per processor. CreateCheckoutSession returns a
// user-facing message (second return) on provider-side validation rejection and
// an error on unexpected failure; exactly one of the three results is set.
// RetrieveSession returns (nil, nil) for both "not found" and "malformed
// metadata" — callers must not be able to tell those apart. A webhook payload
// whose signature fails verification is never returned as an event.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, intent CheckoutIntent, baseURL string) (*CheckoutSession, string, error)
	CreateMultiCheckoutSession(ctx context.Context, intent MultiCheckoutIntent, baseURL string) (*CheckoutSession, string, error)
	RetrieveSession(ctx context.Context, sessionID string) (*ValidatedSession, error)
	VerifyWebhookSignature(payload []byte, signature string, requestURL string) (*WebhookEvent, error)
	RefundPayment(ctx context.Context, paymentRef string) bool
	IsPaymentRefunded(ctx context.Context, paymentRef string) bool
	SetupWebhookEndpoint(ctx context.Context, webhookURL string, existingEndpointID string) (string, error)
}

/* =========================================================
   Registry (runtime provider selection by stored enum)
========================================================= */

type Registry struct {
	providers map[paymentModel.PaymentProvider]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[paymentModel.PaymentProvider]Provider)}
}

func (r *Registry) Register(name paymentModel.PaymentProvider, p Provider) {
	r.providers[name] = p
}

func (r *Registry) Get(name paymentModel.PaymentProvider) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("gateway: provider %q is not configured", name)
	}
	return p, nil
}

/* =========================================================
   Shared metadata plumbing
========================================================= */

// Metadata keys every adapter writes at checkout time and requires back at
// retrieval time. A session missing them is treated as not found.
const (
	MetaEventID  = "event_id"
	MetaQuantity = "quantity"
	MetaItems    = "items" // multi-purchase: JSON array of {event_id, quantity}
	MetaName     = "name"
	MetaEmail    = "email"
	MetaPhone    = "phone"
)

func IntentMetadata(intent CheckoutIntent) map[string]string {
	md := map[string]string{
		MetaEventID:  intent.EventID.String(),
		MetaQuantity: strconv.Itoa(intent.Quantity),
	}
	for k, v := range intent.Contact {
		if v != "" {
			md[k] = v
		}
	}
	return md
}

func MultiIntentMetadata(intent MultiCheckoutIntent) (map[string]string, error) {
	items, err := json.Marshal(intent.Items)
	if err != nil {
		return nil, err
	}
	md := map[string]string{MetaItems: string(items)}
	for k, v := range intent.Contact {
		if v != "" {
			md[k] = v
		}
	}
	return md, nil
}

// MetadataComplete reports whether a metadata bag carries enough to
// reconstruct a registration.
func MetadataComplete(md map[string]string) bool {
	if md == nil {
		return false
	}
	if md[MetaItems] != "" {
		return true
	}
	if md[MetaEventID] == "" {
		return false
	}
	if _, err := uuid.Parse(md[MetaEventID]); err != nil {
		return false
	}
	if q, err := strconv.Atoi(md[MetaQuantity]); err != nil || q <= 0 {
		return false
	}
	return true
}

// ParseItems expands a metadata bag into per-event registration items.
func ParseItems(md map[string]string) ([]CheckoutItem, error) {
	if raw := md[MetaItems]; raw != "" {
		var items []CheckoutItem
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return nil, err
		}
		return items, nil
	}
	eventID, err := uuid.Parse(md[MetaEventID])
	if err != nil {
		return nil, err
	}
	qty, err := strconv.Atoi(md[MetaQuantity])
	if err != nil {
		return nil, err
	}
	return []CheckoutItem{{EventID: eventID, Quantity: qty}}, nil
}
