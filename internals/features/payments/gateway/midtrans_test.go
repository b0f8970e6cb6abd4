package gateway

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func midtransSign(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

func TestMidtransOrderIDRoundTrip(t *testing.T) {
	eventID := uuid.New()
	orderID := midtransOrderID(eventID, 3)
	assert.True(t, strings.HasPrefix(orderID, "TIX."))

	md, ok := parseMidtransOrderID(orderID)
	require.True(t, ok)
	assert.Equal(t, eventID.String(), md[MetaEventID])
	assert.Equal(t, "3", md[MetaQuantity])
	assert.True(t, MetadataComplete(md))
}

func TestMidtransOrderIDUnique(t *testing.T) {
	eventID := uuid.New()
	assert.NotEqual(t, midtransOrderID(eventID, 1), midtransOrderID(eventID, 1))
}

func TestParseMidtransOrderIDRejects(t *testing.T) {
	for _, orderID := range []string{
		"",
		"ORDER-123",
		"TIX.not-a-uuid.2.abcd1234",
		"TIX." + uuid.NewString() + ".0.abcd1234",
		"TIX." + uuid.NewString() + ".2",
	} {
		_, ok := parseMidtransOrderID(orderID)
		assert.False(t, ok, "order id %q", orderID)
	}
}

func TestMidtransVerifyWebhookSignature(t *testing.T) {
	g := NewMidtransGateway("server-key", false)
	orderID := midtransOrderID(uuid.New(), 2)
	sig := midtransSign(orderID, "200", "50000.00", "server-key")
	payload := []byte(fmt.Sprintf(
		`{"order_id":%q,"status_code":"200","gross_amount":"50000.00","signature_key":%q,"transaction_status":"settlement"}`,
		orderID, sig))

	event, err := g.VerifyWebhookSignature(payload, "", "")
	require.NoError(t, err)
	assert.Equal(t, EventCheckoutCompleted, event.Kind)
	assert.Equal(t, orderID, event.SessionID)
}

func TestMidtransVerifyWebhookSignatureMismatch(t *testing.T) {
	g := NewMidtransGateway("server-key", false)
	payload := []byte(`{"order_id":"TIX.x","status_code":"200","gross_amount":"100.00","signature_key":"deadbeef","transaction_status":"settlement"}`)

	_, err := g.VerifyWebhookSignature(payload, "", "")
	assert.Error(t, err)
}

func TestMidtransVerifyWebhookIgnoresNonSettlement(t *testing.T) {
	g := NewMidtransGateway("server-key", false)
	orderID := "TIX.x"
	sig := midtransSign(orderID, "201", "100.00", "server-key")
	payload := []byte(fmt.Sprintf(
		`{"order_id":%q,"status_code":"201","gross_amount":"100.00","signature_key":%q,"transaction_status":"pending"}`,
		orderID, sig))

	event, err := g.VerifyWebhookSignature(payload, "", "")
	require.NoError(t, err)
	assert.Equal(t, EventIgnored, event.Kind)
}

func TestMidtransMultiCheckoutRejected(t *testing.T) {
	g := NewMidtransGateway("server-key", false)
	session, userErr, err := g.CreateMultiCheckoutSession(context.Background(), MultiCheckoutIntent{}, "")
	require.NoError(t, err)
	assert.Nil(t, session)
	assert.NotEmpty(t, userErr)
}

func TestMidtransRetrieveSessionForeignOrderID(t *testing.T) {
	g := NewMidtransGateway("server-key", false)
	// An order id this platform never minted is treated as not found before any
	// API call is made.
	session, err := g.RetrieveSession(context.Background(), "someone-elses-order")
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestMidtransSetupWebhookEndpoint(t *testing.T) {
	g := NewMidtransGateway("server-key", false)
	ctx := context.Background()

	id, err := g.SetupWebhookEndpoint(ctx, "https://tickets.example.com/api/webhooks/midtrans", "dash-1")
	require.NoError(t, err)
	assert.Equal(t, "dash-1", id)

	_, err = g.SetupWebhookEndpoint(ctx, "https://tickets.example.com/api/webhooks/midtrans", "")
	assert.Error(t, err)
}

func TestMidtransPaymentStatusMapping(t *testing.T) {
	assert.Equal(t, "paid", string(midtransPaymentStatus("settlement")))
	assert.Equal(t, "paid", string(midtransPaymentStatus("capture")))
	assert.Equal(t, "pending", string(midtransPaymentStatus("pending")))
	assert.Equal(t, "unpaid", string(midtransPaymentStatus("expire")))
	assert.Equal(t, "other", string(midtransPaymentStatus("refund")))
}
