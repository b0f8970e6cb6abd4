package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	eventModel "tickethub_backend/internals/features/events/model"
	"tickethub_backend/internals/features/payments/gateway"
	paymentModel "tickethub_backend/internals/features/payments/model"
	"tickethub_backend/internals/features/registrations/model"
	userModel "tickethub_backend/internals/features/users/model"
	"tickethub_backend/internals/helpers/encryption"
)

/* ===================== fake provider ===================== */

// fakeProvider treats the webhook payload as the raw session id and skips real
// signature math; rejectSignature flips every delivery to a verification
// failure.
type fakeProvider struct {
	mu              sync.Mutex
	sessions        map[string]*gateway.ValidatedSession
	retrieveErr     error
	rejectSignature bool
	refunded        map[string]bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		sessions: make(map[string]*gateway.ValidatedSession),
		refunded: make(map[string]bool),
	}
}

func (f *fakeProvider) CreateCheckoutSession(_ context.Context, intent gateway.CheckoutIntent, baseURL string) (*gateway.CheckoutSession, string, error) {
	return &gateway.CheckoutSession{OrderID: "fake_order", URL: baseURL + "/pay/fake_order"}, "", nil
}

func (f *fakeProvider) CreateMultiCheckoutSession(_ context.Context, intent gateway.MultiCheckoutIntent, baseURL string) (*gateway.CheckoutSession, string, error) {
	return &gateway.CheckoutSession{OrderID: "fake_multi", URL: baseURL + "/pay/fake_multi"}, "", nil
}

func (f *fakeProvider) RetrieveSession(_ context.Context, sessionID string) (*gateway.ValidatedSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.retrieveErr != nil {
		return nil, f.retrieveErr
	}
	session, ok := f.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return session, nil
}

func (f *fakeProvider) VerifyWebhookSignature(payload []byte, _ string, _ string) (*gateway.WebhookEvent, error) {
	if f.rejectSignature {
		return nil, errors.New("fake: signature mismatch")
	}
	if len(payload) == 0 {
		return &gateway.WebhookEvent{Kind: gateway.EventIgnored}, nil
	}
	return &gateway.WebhookEvent{Kind: gateway.EventCheckoutCompleted, SessionID: string(payload)}, nil
}

func (f *fakeProvider) RefundPayment(_ context.Context, paymentRef string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refunded[paymentRef] = true
	return true
}

func (f *fakeProvider) IsPaymentRefunded(_ context.Context, paymentRef string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refunded[paymentRef]
}

func (f *fakeProvider) SetupWebhookEndpoint(_ context.Context, _ string, _ string) (string, error) {
	return "ep_fake", nil
}

/* ===================== fixture ===================== */

const testMasterSecret = "test-master-secret"

type fixture struct {
	db       *gorm.DB
	svc      *RegistrationService
	provider *fakeProvider
	owner    *userModel.User
	event    *eventModel.Event
	dataKey  []byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)

	dataKey, err := encryption.GenerateDataKey()
	require.NoError(t, err)
	salt, err := encryption.GenerateSalt()
	require.NoError(t, err)

	ownerID := uuid.New()
	serverKEK, err := encryption.ServerKEK(testMasterSecret, ownerID)
	require.NoError(t, err)
	serverWrapped, err := encryption.WrapDataKey(dataKey, serverKEK)
	require.NoError(t, err)
	pwWrapped, err := encryption.WrapDataKey(dataKey,
		encryption.PasswordKEK("test-password", salt, testMasterSecret))
	require.NoError(t, err)

	owner := &userModel.User{
		UserID:               ownerID,
		UserEmail:            "organizer@example.com",
		UserName:             "Organizer",
		UserPasswordHash:     "x",
		UserKeySalt:          salt,
		UserWrappedDataKey:   pwWrapped,
		UserServerWrappedKey: serverWrapped,
	}
	require.NoError(t, db.Create(owner).Error)

	event := &eventModel.Event{
		EventOwnerID:      ownerID,
		EventName:         "Go Conference",
		EventPriceAmount:  2500,
		EventCurrency:     "USD",
		EventProvider:     paymentModel.PaymentProviderStripe,
		EventCollectName:  true,
		EventCollectEmail: true,
	}
	require.NoError(t, db.Create(event).Error)

	provider := newFakeProvider()
	registry := gateway.NewRegistry()
	registry.Register(paymentModel.PaymentProviderStripe, provider)

	svc := NewRegistrationService(db,
		registry,
		NewLedgerService(db, 5*time.Minute),
		NewNotifier(),
		testMasterSecret)

	return &fixture{db: db, svc: svc, provider: provider, owner: owner, event: event, dataKey: dataKey}
}

func (fx *fixture) paidSession(id string, quantity int) *gateway.ValidatedSession {
	return &gateway.ValidatedSession{
		ID:               id,
		PaymentStatus:    paymentModel.PaymentStatusPaid,
		PaymentReference: "pay_" + id,
		AmountTotal:      fx.event.EventPriceAmount * int64(quantity),
		Metadata: map[string]string{
			gateway.MetaEventID:  fx.event.EventID.String(),
			gateway.MetaQuantity: "2",
			gateway.MetaName:     "Jane Doe",
			gateway.MetaEmail:    "jane@example.com",
		},
	}
}

func (fx *fixture) deliver(t *testing.T, sessionID string) WebhookResult {
	t.Helper()
	result, err := fx.svc.HandleWebhook(context.Background(),
		paymentModel.PaymentProviderStripe, []byte(sessionID), "sig", "https://t.example/api/webhooks/stripe")
	require.NoError(t, err)
	return result
}

/* ===================== tests ===================== */

func TestHandleWebhookRegistersEncryptedAttendee(t *testing.T) {
	fx := newFixture(t)
	fx.provider.sessions["cs_test_1"] = fx.paidSession("cs_test_1", 2)

	result := fx.deliver(t, "cs_test_1")
	assert.Equal(t, WebhookRegistered, result.Status)
	require.NotNil(t, result.AttendeeID)

	var attendee model.Attendee
	require.NoError(t, fx.db.First(&attendee, "attendee_id = ?", result.AttendeeID).Error)
	assert.Equal(t, fx.event.EventID, attendee.AttendeeEventID)
	assert.Equal(t, 2, attendee.AttendeeQuantity)
	assert.Equal(t, int64(5000), attendee.AttendeeAmountTotal)
	require.NotNil(t, attendee.AttendeePaymentRef)
	assert.Equal(t, "pay_cs_test_1", *attendee.AttendeePaymentRef)

	// Stored contact is ciphertext that only the owner's data key opens.
	assert.NotEqual(t, "Jane Doe", attendee.AttendeeName)
	name, err := encryption.DecryptField(attendee.AttendeeName, fx.dataKey)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", name)
	email, err := encryption.DecryptField(attendee.AttendeeEmail, fx.dataKey)
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", email)
	assert.Empty(t, attendee.AttendeePhone, "uncollected fields stay empty")

	var ledgerRow model.ProcessedPayment
	require.NoError(t, fx.db.First(&ledgerRow, "stripe_session_id = ?", "cs_test_1").Error)
	require.True(t, ledgerRow.Finalized())
	assert.Equal(t, *result.AttendeeID, *ledgerRow.AttendeeID)
}

func TestHandleWebhookRedeliveryIsIdempotent(t *testing.T) {
	fx := newFixture(t)
	fx.provider.sessions["cs_test_1"] = fx.paidSession("cs_test_1", 2)

	first := fx.deliver(t, "cs_test_1")
	require.Equal(t, WebhookRegistered, first.Status)

	for i := 0; i < 3; i++ {
		replay := fx.deliver(t, "cs_test_1")
		assert.Equal(t, WebhookReplayed, replay.Status)
		assert.Equal(t, *first.AttendeeID, *replay.AttendeeID)
	}

	var count int64
	require.NoError(t, fx.db.Model(&model.Attendee{}).Count(&count).Error)
	assert.EqualValues(t, 1, count, "redelivery must never duplicate attendees")
}

func TestHandleWebhookUnpaidIgnored(t *testing.T) {
	fx := newFixture(t)
	session := fx.paidSession("cs_test_1", 2)
	session.PaymentStatus = paymentModel.PaymentStatusUnpaid
	fx.provider.sessions["cs_test_1"] = session

	result := fx.deliver(t, "cs_test_1")
	assert.Equal(t, WebhookIgnored, result.Status)

	var count int64
	require.NoError(t, fx.db.Model(&model.ProcessedPayment{}).Count(&count).Error)
	assert.EqualValues(t, 0, count, "unpaid sessions must not touch the ledger")
}

func TestHandleWebhookUnknownSessionIgnored(t *testing.T) {
	fx := newFixture(t)
	result := fx.deliver(t, "cs_missing")
	assert.Equal(t, WebhookIgnored, result.Status)
}

func TestHandleWebhookSignatureRejected(t *testing.T) {
	fx := newFixture(t)
	fx.provider.rejectSignature = true
	fx.provider.sessions["cs_test_1"] = fx.paidSession("cs_test_1", 2)

	result := fx.deliver(t, "cs_test_1")
	assert.Equal(t, WebhookRejected, result.Status)
}

func TestHandleWebhookTransientRetrieveError(t *testing.T) {
	fx := newFixture(t)
	fx.provider.retrieveErr = errors.New("provider 503")

	_, err := fx.svc.HandleWebhook(context.Background(),
		paymentModel.PaymentProviderStripe, []byte("cs_test_1"), "sig", "https://t.example/api/webhooks/stripe")
	assert.Error(t, err, "transient failures must bubble so the processor redelivers")
}

func TestHandleWebhookInFlightConflict(t *testing.T) {
	fx := newFixture(t)
	fx.provider.sessions["cs_test_1"] = fx.paidSession("cs_test_1", 2)

	// Another handler holds a fresh unfinalized claim.
	claim := model.ProcessedPayment{StripeSessionID: "cs_test_1", ProcessedAt: time.Now().UTC()}
	require.NoError(t, fx.db.Create(&claim).Error)

	result := fx.deliver(t, "cs_test_1")
	assert.Equal(t, WebhookConflict, result.Status)
}

func TestHandleWebhookRegisterFailureReleasesClaim(t *testing.T) {
	fx := newFixture(t)
	session := fx.paidSession("cs_test_1", 2)
	session.Metadata[gateway.MetaEventID] = uuid.NewString() // dangling event
	fx.provider.sessions["cs_test_1"] = session

	_, err := fx.svc.HandleWebhook(context.Background(),
		paymentModel.PaymentProviderStripe, []byte("cs_test_1"), "sig", "https://t.example/api/webhooks/stripe")
	require.Error(t, err)

	var count int64
	require.NoError(t, fx.db.Model(&model.ProcessedPayment{}).Count(&count).Error)
	assert.EqualValues(t, 0, count, "failed registration must release the claim for redelivery")

	// After the event is fixed, redelivery succeeds immediately.
	session.Metadata[gateway.MetaEventID] = fx.event.EventID.String()
	result := fx.deliver(t, "cs_test_1")
	assert.Equal(t, WebhookRegistered, result.Status)
}

func TestHandleWebhookMultiEventPurchase(t *testing.T) {
	fx := newFixture(t)
	second := &eventModel.Event{
		EventOwnerID:      fx.owner.UserID,
		EventName:         "Workshop Day",
		EventPriceAmount:  1500,
		EventCurrency:     "USD",
		EventProvider:     paymentModel.PaymentProviderStripe,
		EventCollectEmail: true,
	}
	require.NoError(t, fx.db.Create(second).Error)

	md, err := gateway.MultiIntentMetadata(gateway.MultiCheckoutIntent{
		Items: []gateway.CheckoutItem{
			{EventID: fx.event.EventID, Quantity: 1},
			{EventID: second.EventID, Quantity: 3},
		},
		Contact: map[string]string{gateway.MetaEmail: "jane@example.com"},
	})
	require.NoError(t, err)

	fx.provider.sessions["cs_multi"] = &gateway.ValidatedSession{
		ID:            "cs_multi",
		PaymentStatus: paymentModel.PaymentStatusPaid,
		AmountTotal:   7000,
		Metadata:      md,
	}

	result := fx.deliver(t, "cs_multi")
	assert.Equal(t, WebhookRegistered, result.Status)

	var attendees []model.Attendee
	require.NoError(t, fx.db.Order("attendee_created_at").Find(&attendees).Error)
	require.Len(t, attendees, 2)

	var ledgerRow model.ProcessedPayment
	require.NoError(t, fx.db.First(&ledgerRow, "stripe_session_id = ?", "cs_multi").Error)
	require.True(t, ledgerRow.Finalized())
	assert.Equal(t, *result.AttendeeID, *ledgerRow.AttendeeID)
}

func TestHandleWebhookMultiEventPartialFailureLeavesNoPartialState(t *testing.T) {
	fx := newFixture(t)
	missingID := uuid.New()

	md, err := gateway.MultiIntentMetadata(gateway.MultiCheckoutIntent{
		Items: []gateway.CheckoutItem{
			{EventID: fx.event.EventID, Quantity: 1},
			{EventID: missingID, Quantity: 2},
		},
		Contact: map[string]string{gateway.MetaEmail: "jane@example.com"},
	})
	require.NoError(t, err)

	fx.provider.sessions["cs_multi"] = &gateway.ValidatedSession{
		ID:            "cs_multi",
		PaymentStatus: paymentModel.PaymentStatusPaid,
		AmountTotal:   5500,
		Metadata:      md,
	}

	_, err = fx.svc.HandleWebhook(context.Background(),
		paymentModel.PaymentProviderStripe, []byte("cs_multi"), "sig", "https://t.example/api/webhooks/stripe")
	require.Error(t, err)

	var attendees int64
	require.NoError(t, fx.db.Model(&model.Attendee{}).Count(&attendees).Error)
	assert.EqualValues(t, 0, attendees, "a failed delivery must not persist attendees for any event")
	var claims int64
	require.NoError(t, fx.db.Model(&model.ProcessedPayment{}).Count(&claims).Error)
	assert.EqualValues(t, 0, claims)

	// Once the second event exists, redelivery registers every event exactly
	// once: the earlier rollback left nothing to duplicate.
	second := &eventModel.Event{
		EventID:           missingID,
		EventOwnerID:      fx.owner.UserID,
		EventName:         "Workshop Day",
		EventPriceAmount:  1500,
		EventCurrency:     "USD",
		EventProvider:     paymentModel.PaymentProviderStripe,
		EventCollectEmail: true,
	}
	require.NoError(t, fx.db.Create(second).Error)

	result := fx.deliver(t, "cs_multi")
	assert.Equal(t, WebhookRegistered, result.Status)

	var perFirst, perSecond int64
	require.NoError(t, fx.db.Model(&model.Attendee{}).
		Where("attendee_event_id = ?", fx.event.EventID).Count(&perFirst).Error)
	require.NoError(t, fx.db.Model(&model.Attendee{}).
		Where("attendee_event_id = ?", missingID).Count(&perSecond).Error)
	assert.EqualValues(t, 1, perFirst)
	assert.EqualValues(t, 1, perSecond)
}

func TestHandleWebhookSideEffectsCompleteInline(t *testing.T) {
	fx := newFixture(t)

	got := make(chan []byte, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- body
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()
	require.NoError(t, fx.db.Model(fx.event).Update("event_notify_url", ts.URL).Error)

	fx.provider.sessions["cs_test_1"] = fx.paidSession("cs_test_1", 2)
	result := fx.deliver(t, "cs_test_1")
	require.Equal(t, WebhookRegistered, result.Status)

	// HandleWebhook has returned, so the notification and the activity write
	// are already done; nothing is left running past the request.
	select {
	case body := <-got:
		var p NotifyPayload
		require.NoError(t, json.Unmarshal(body, &p))
		assert.Equal(t, "attendee.registered", p.EventType)
		assert.Equal(t, fx.event.EventID, p.EventID)
		assert.Equal(t, *result.AttendeeID, p.Attendee.ID)
		assert.Equal(t, 2, p.Attendee.Quantity)
		assert.NotContains(t, string(body), "jane@example.com", "outbound payloads carry no contact details")
	default:
		t.Fatal("outbound notification was not delivered before HandleWebhook returned")
	}

	var logs int64
	require.NoError(t, fx.db.Model(&eventModel.ActivityLog{}).
		Where("activity_event_id = ?", fx.event.EventID).Count(&logs).Error)
	assert.EqualValues(t, 1, logs)
}

func TestCreateMultiCheckoutRejectsMixedProviders(t *testing.T) {
	fx := newFixture(t)
	squareEvent := &eventModel.Event{
		EventOwnerID:     fx.owner.UserID,
		EventName:        "Square Event",
		EventPriceAmount: 1000,
		EventCurrency:    "USD",
		EventProvider:    paymentModel.PaymentProviderSquare,
	}
	require.NoError(t, fx.db.Create(squareEvent).Error)

	session, userErr, err := fx.svc.CreateMultiCheckout(context.Background(),
		[]gateway.CheckoutItem{
			{EventID: fx.event.EventID, Quantity: 1},
			{EventID: squareEvent.EventID, Quantity: 1},
		}, nil, "https://t.example")
	require.NoError(t, err)
	assert.Nil(t, session)
	assert.Contains(t, userErr, "same payment provider")
}

func TestRefundAttendee(t *testing.T) {
	fx := newFixture(t)
	fx.provider.sessions["cs_test_1"] = fx.paidSession("cs_test_1", 2)
	result := fx.deliver(t, "cs_test_1")
	require.Equal(t, WebhookRegistered, result.Status)

	ok, err := fx.svc.RefundAttendee(context.Background(), *result.AttendeeID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, fx.provider.refunded["pay_cs_test_1"])

	// Refunding again is a no-op success, not a double refund.
	ok, err = fx.svc.RefundAttendee(context.Background(), *result.AttendeeID)
	require.NoError(t, err)
	assert.True(t, ok)
}
