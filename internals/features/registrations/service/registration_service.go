package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	eventModel "tickethub_backend/internals/features/events/model"
	eventService "tickethub_backend/internals/features/events/service"
	"tickethub_backend/internals/features/payments/gateway"
	paymentModel "tickethub_backend/internals/features/payments/model"
	"tickethub_backend/internals/features/registrations/model"
	userModel "tickethub_backend/internals/features/users/model"
	"tickethub_backend/internals/helpers/encryption"
)

/* =========================================================
   Webhook outcome
========================================================= */

type WebhookStatus int

const (
	WebhookRejected   WebhookStatus = iota // signature failure → 400
	WebhookIgnored                         // idempotent no-op → 200
	WebhookConflict                        // fresh in-flight claim → 409
	WebhookRegistered                      // attendee created → 200
	WebhookReplayed                        // already finalized → 200
)

type WebhookResult struct {
	Status     WebhookStatus
	AttendeeID *uuid.UUID
}

/* =========================================================
   Service
========================================================= */

// RegistrationService drives checkout creation and the webhook-to-attendee
// pipeline: verify → retrieve → status gate → reserve → create encrypted
// attendee → finalize → best-effort side effects.
type RegistrationService struct {
	DB           *gorm.DB
	Gateways     *gateway.Registry
	Ledger       *LedgerService
	Notifier     *Notifier
	MasterSecret string
}

func NewRegistrationService(db *gorm.DB, gateways *gateway.Registry, ledger *LedgerService, notifier *Notifier, masterSecret string) *RegistrationService {
	return &RegistrationService{
		DB:           db,
		Gateways:     gateways,
		Ledger:       ledger,
		Notifier:     notifier,
		MasterSecret: masterSecret,
	}
}

/* =========================================================
   Checkout creation
========================================================= */

// CreateCheckout starts a hosted checkout for one event. Returns the session,
// or a user-facing message on provider-side validation rejection, or an error
// on transient failure (nothing committed, safe to retry).
func (s *RegistrationService) CreateCheckout(ctx context.Context, eventID uuid.UUID, quantity int, contact map[string]string, baseURL string) (*gateway.CheckoutSession, string, error) {
	event, err := s.loadEvent(s.DB.WithContext(ctx), eventID)
	if err != nil {
		return nil, "", err
	}
	if event == nil {
		return nil, "event not found", nil
	}
	adapter, err := s.Gateways.Get(event.EventProvider)
	if err != nil {
		return nil, "", err
	}
	intent := gateway.CheckoutIntent{
		EventID:    event.EventID,
		EventName:  event.EventName,
		UnitAmount: event.EventPriceAmount,
		Currency:   event.EventCurrency,
		Quantity:   quantity,
		Contact:    filterContact(event, contact),
	}
	return adapter.CreateCheckoutSession(ctx, intent, baseURL)
}

// CreateMultiCheckout starts one combined checkout covering several events.
// All events must charge through the same provider.
func (s *RegistrationService) CreateMultiCheckout(ctx context.Context, items []gateway.CheckoutItem, contact map[string]string, baseURL string) (*gateway.CheckoutSession, string, error) {
	if len(items) == 0 {
		return nil, "no items to purchase", nil
	}
	var provider paymentModel.PaymentProvider
	resolved := make([]gateway.CheckoutItem, 0, len(items))
	for i, item := range items {
		event, err := s.loadEvent(s.DB.WithContext(ctx), item.EventID)
		if err != nil {
			return nil, "", err
		}
		if event == nil {
			return nil, fmt.Sprintf("event %s not found", item.EventID), nil
		}
		if i == 0 {
			provider = event.EventProvider
		} else if event.EventProvider != provider {
			return nil, "all events in a combined purchase must use the same payment provider", nil
		}
		resolved = append(resolved, gateway.CheckoutItem{
			EventID:    event.EventID,
			EventName:  event.EventName,
			UnitAmount: event.EventPriceAmount,
			Currency:   event.EventCurrency,
			Quantity:   item.Quantity,
		})
	}
	adapter, err := s.Gateways.Get(provider)
	if err != nil {
		return nil, "", err
	}
	intent := gateway.MultiCheckoutIntent{Items: resolved, Contact: contact}
	return adapter.CreateMultiCheckoutSession(ctx, intent, baseURL)
}

/* =========================================================
   Webhook pipeline
========================================================= */

// HandleWebhook processes one provider delivery. Safe under concurrent and
// repeated delivery of the same payload: the reservation ledger guarantees at
// most one attendee creation per payment session.
func (s *RegistrationService) HandleWebhook(ctx context.Context, provider paymentModel.PaymentProvider, payload []byte, signature, requestURL string) (WebhookResult, error) {
	adapter, err := s.Gateways.Get(provider)
	if err != nil {
		return WebhookResult{}, err
	}

	event, err := adapter.VerifyWebhookSignature(payload, signature, requestURL)
	if err != nil {
		log.Printf("[WARN] %s webhook signature rejected: %v", provider, err)
		return WebhookResult{Status: WebhookRejected}, nil
	}
	if event.Kind != gateway.EventCheckoutCompleted {
		return WebhookResult{Status: WebhookIgnored}, nil
	}

	session, err := adapter.RetrieveSession(ctx, event.SessionID)
	if err != nil {
		// Transient provider failure: let the processor redeliver.
		return WebhookResult{}, fmt.Errorf("retrieve session %s: %w", event.SessionID, err)
	}
	if session == nil {
		log.Printf("[WARN] %s webhook for unknown or malformed session %s ignored", provider, event.SessionID)
		return WebhookResult{Status: WebhookIgnored}, nil
	}
	if session.PaymentStatus != paymentModel.PaymentStatusPaid {
		return WebhookResult{Status: WebhookIgnored}, nil
	}

	claim, err := s.Ledger.Reserve(ctx, session.ID)
	if err != nil {
		return WebhookResult{}, err
	}
	if !claim.Reserved {
		if claim.Existing.Finalized() {
			return WebhookResult{Status: WebhookReplayed, AttendeeID: claim.Existing.AttendeeID}, nil
		}
		return WebhookResult{Status: WebhookConflict}, nil
	}

	attendeeID, err := s.register(ctx, session)
	if err != nil {
		// register committed nothing, so releasing the claim lets the
		// processor's redelivery retry now instead of waiting out the stale
		// threshold. The payer's money is never lost: the session stays paid
		// and unprocessed.
		s.release(ctx, session.ID)
		return WebhookResult{}, err
	}
	return WebhookResult{Status: WebhookRegistered, AttendeeID: &attendeeID}, nil
}

// register creates the encrypted attendee rows for a reserved session and
// finalizes the ledger entry. A multi-event purchase creates one attendee per
// event; the ledger records the first (the others are reachable through the
// session's activity trail).
func (s *RegistrationService) register(ctx context.Context, session *gateway.ValidatedSession) (uuid.UUID, error) {
	items, err := gateway.ParseItems(session.Metadata)
	if err != nil || len(items) == 0 {
		return uuid.Nil, fmt.Errorf("session %s metadata not reconstructable: %w", session.ID, err)
	}

	var first uuid.UUID
	type sideEffect struct {
		event    *eventModel.Event
		attendee *model.Attendee
	}
	var effects []sideEffect

	// Every attendee row and the ledger transition commit together. A failure
	// partway through a multi-event purchase rolls everything back, so the
	// released claim hands redelivery a clean slate instead of duplicates.
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		effects = make([]sideEffect, 0, len(items))
		for i, item := range items {
			event, err := s.loadEvent(tx, item.EventID)
			if err != nil {
				return err
			}
			if event == nil {
				return fmt.Errorf("session %s references missing event %s", session.ID, item.EventID)
			}

			dataKey, err := s.ownerDataKey(tx, event.EventOwnerID)
			if err != nil {
				return err
			}

			attendee := &model.Attendee{
				AttendeeEventID:     event.EventID,
				AttendeeQuantity:    item.Quantity,
				AttendeeAmountTotal: session.AmountTotal,
			}
			if session.PaymentReference != "" {
				ref := session.PaymentReference
				attendee.AttendeePaymentRef = &ref
			}
			if err := encryptContact(attendee, event, session.Metadata, dataKey); err != nil {
				return err
			}
			if err := tx.Create(attendee).Error; err != nil {
				return fmt.Errorf("create attendee: %w", err)
			}
			if i == 0 {
				first = attendee.AttendeeID
			}
			effects = append(effects, sideEffect{event: event, attendee: attendee})
		}
		return s.Ledger.FinalizeTx(ctx, tx, session.ID, first)
	})
	if err != nil {
		return uuid.Nil, err
	}

	// Side effects run after commit, inline and best-effort: LogActivity and
	// Send swallow their own failures, and nothing outlives the request.
	for _, fx := range effects {
		eventService.LogActivity(s.DB,
			registrationActivityMessage(fx.event.EventName, fx.attendee.AttendeeQuantity),
			&fx.event.EventID,
			map[string]any{
				"attendee_id":  fx.attendee.AttendeeID,
				"quantity":     fx.attendee.AttendeeQuantity,
				"amount_total": fx.attendee.AttendeeAmountTotal,
			})
		if fx.event.EventNotifyURL != nil && *fx.event.EventNotifyURL != "" {
			payload := RegistrationNotifyPayload(fx.event.EventID, fx.event.EventName,
				fx.attendee.AttendeeID, fx.attendee.AttendeeQuantity)
			s.Notifier.Send(*fx.event.EventNotifyURL, payload)
		}
	}
	return first, nil
}

func (s *RegistrationService) release(ctx context.Context, sessionID string) {
	err := s.DB.WithContext(ctx).
		Where("stripe_session_id = ? AND attendee_id IS NULL", sessionID).
		Delete(&model.ProcessedPayment{}).Error
	if err != nil {
		log.Printf("[WARN] release reservation %s failed: %v", sessionID, err)
	}
}

/* =========================================================
   Refunds
========================================================= */

func (s *RegistrationService) RefundAttendee(ctx context.Context, attendeeID uuid.UUID) (bool, error) {
	var attendee model.Attendee
	err := s.DB.WithContext(ctx).First(&attendee, "attendee_id = ?", attendeeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, gorm.ErrRecordNotFound
	}
	if err != nil {
		return false, err
	}
	if attendee.AttendeePaymentRef == nil {
		return false, errors.New("attendee has no payment reference")
	}
	event, err := s.loadEvent(s.DB.WithContext(ctx), attendee.AttendeeEventID)
	if err != nil || event == nil {
		return false, fmt.Errorf("attendee %s references missing event", attendeeID)
	}
	adapter, err := s.Gateways.Get(event.EventProvider)
	if err != nil {
		return false, err
	}
	if adapter.IsPaymentRefunded(ctx, *attendee.AttendeePaymentRef) {
		return true, nil
	}
	return adapter.RefundPayment(ctx, *attendee.AttendeePaymentRef), nil
}

/* =========================================================
   Helpers
========================================================= */

func (s *RegistrationService) loadEvent(db *gorm.DB, eventID uuid.UUID) (*eventModel.Event, error) {
	var event eventModel.Event
	err := db.First(&event, "event_id = ?", eventID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// ownerDataKey recovers the event owner's data key from its server-wrapped
// copy. Unwrap failure here means the master secret rotated underneath stored
// keys — a hard failure, never silently skipped.
func (s *RegistrationService) ownerDataKey(db *gorm.DB, ownerID uuid.UUID) ([]byte, error) {
	var owner userModel.User
	if err := db.First(&owner, "user_id = ?", ownerID).Error; err != nil {
		return nil, fmt.Errorf("load event owner: %w", err)
	}
	kek, err := encryption.ServerKEK(s.MasterSecret, owner.UserID)
	if err != nil {
		return nil, err
	}
	key, err := encryption.UnwrapDataKey(owner.UserServerWrappedKey, kek)
	if err != nil {
		return nil, fmt.Errorf("owner %s data key: %w", ownerID, err)
	}
	return key, nil
}

func filterContact(event *eventModel.Event, contact map[string]string) map[string]string {
	out := make(map[string]string, 3)
	if event.EventCollectName {
		out[gateway.MetaName] = contact[gateway.MetaName]
	}
	if event.EventCollectEmail {
		out[gateway.MetaEmail] = contact[gateway.MetaEmail]
	}
	if event.EventCollectPhone {
		out[gateway.MetaPhone] = contact[gateway.MetaPhone]
	}
	return out
}

func encryptContact(attendee *model.Attendee, event *eventModel.Event, md map[string]string, key []byte) error {
	var err error
	if event.EventCollectName {
		if attendee.AttendeeName, err = encryption.EncryptField(md[gateway.MetaName], key); err != nil {
			return err
		}
	}
	if event.EventCollectEmail {
		if attendee.AttendeeEmail, err = encryption.EncryptField(md[gateway.MetaEmail], key); err != nil {
			return err
		}
	}
	if event.EventCollectPhone {
		if attendee.AttendeePhone, err = encryption.EncryptField(md[gateway.MetaPhone], key); err != nil {
			return err
		}
	}
	return nil
}
