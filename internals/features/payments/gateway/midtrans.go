package gateway

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"

	"github.com/google/uuid"

	paymentModel "tickethub_backend/internals/features/payments/model"
)

// MidtransGateway implements Provider over Midtrans Snap checkout plus the
// core API for status lookups and refunds.
//
// Midtrans status lookups do not echo arbitrary metadata back, so the
// registration fields are encoded into the order id itself:
// TIX.<event_id>.<quantity>.<nonce>. Contact details ride along in the Snap
// customer block for the processor's records but are not reconstructed here.
type MidtransGateway struct {
	snap      snap.Client
	core      coreapi.Client
	serverKey string
}

func NewMidtransGateway(serverKey string, production bool) *MidtransGateway {
	env := midtrans.Sandbox
	if production {
		env = midtrans.Production
	}
	g := &MidtransGateway{serverKey: serverKey}
	g.snap.New(serverKey, env)
	g.core.New(serverKey, env)
	return g
}

const midtransOrderPrefix = "TIX"

func midtransOrderID(eventID uuid.UUID, quantity int) string {
	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s.%s.%d.%s", midtransOrderPrefix, eventID, quantity, nonce)
}

func parseMidtransOrderID(orderID string) (map[string]string, bool) {
	parts := strings.Split(orderID, ".")
	if len(parts) != 4 || parts[0] != midtransOrderPrefix {
		return nil, false
	}
	if _, err := uuid.Parse(parts[1]); err != nil {
		return nil, false
	}
	if q, err := strconv.Atoi(parts[2]); err != nil || q <= 0 {
		return nil, false
	}
	return map[string]string{MetaEventID: parts[1], MetaQuantity: parts[2]}, true
}

func (g *MidtransGateway) CreateCheckoutSession(_ context.Context, intent CheckoutIntent, _ string) (*CheckoutSession, string, error) {
	orderID := midtransOrderID(intent.EventID, intent.Quantity)
	gross := intent.UnitAmount * int64(intent.Quantity)

	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  orderID,
			GrossAmt: gross,
		},
		Items: &[]midtrans.ItemDetails{{
			ID:    intent.EventID.String(),
			Price: intent.UnitAmount,
			Qty:   int32(intent.Quantity),
			Name:  intent.EventName,
		}},
	}
	if email := intent.Contact[MetaEmail]; email != "" {
		req.CustomerDetail = &midtrans.CustomerDetails{
			FName: intent.Contact[MetaName],
			Email: email,
			Phone: intent.Contact[MetaPhone],
		}
	}

	resp, err := g.snap.CreateTransaction(req)
	if err != nil {
		if err.StatusCode >= 400 && err.StatusCode < 500 {
			return nil, err.Message, nil
		}
		return nil, "", err
	}
	return &CheckoutSession{OrderID: orderID, URL: resp.RedirectURL}, "", nil
}

// CreateMultiCheckoutSession: Midtrans order ids cannot carry a combined item
// list, so multi-event purchases are rejected with a user-facing message.
func (g *MidtransGateway) CreateMultiCheckoutSession(_ context.Context, _ MultiCheckoutIntent, _ string) (*CheckoutSession, string, error) {
	return nil, "combined purchases are not available for this payment method", nil
}

func (g *MidtransGateway) RetrieveSession(_ context.Context, sessionID string) (*ValidatedSession, error) {
	md, ok := parseMidtransOrderID(sessionID)
	if !ok {
		log.Printf("[WARN] midtrans order id %q is not reconstructable", sessionID)
		return nil, nil
	}

	resp, err := g.core.CheckTransaction(sessionID)
	if err != nil {
		if err.StatusCode == 404 {
			return nil, nil
		}
		return nil, err
	}

	amount := int64(0)
	if f, convErr := strconv.ParseFloat(resp.GrossAmount, 64); convErr == nil {
		amount = int64(f)
	}
	return &ValidatedSession{
		ID:               resp.OrderID,
		PaymentStatus:    midtransPaymentStatus(resp.TransactionStatus),
		PaymentReference: resp.TransactionID,
		AmountTotal:      amount,
		Metadata:         md,
	}, nil
}

func midtransPaymentStatus(status string) paymentModel.PaymentStatus {
	switch status {
	case "settlement", "capture":
		return paymentModel.PaymentStatusPaid
	case "pending":
		return paymentModel.PaymentStatusPending
	case "deny", "cancel", "expire":
		return paymentModel.PaymentStatusUnpaid
	default:
		return paymentModel.PaymentStatusOther
	}
}

// VerifyWebhookSignature checks the in-body signature_key:
// sha512(order_id + status_code + gross_amount + server_key). There is no
// signature header; the signature argument is unused for this provider.
func (g *MidtransGateway) VerifyWebhookSignature(payload []byte, _ string, _ string) (*WebhookEvent, error) {
	var notif struct {
		OrderID           string `json:"order_id"`
		StatusCode        string `json:"status_code"`
		GrossAmount       string `json:"gross_amount"`
		SignatureKey      string `json:"signature_key"`
		TransactionStatus string `json:"transaction_status"`
	}
	if err := json.Unmarshal(payload, &notif); err != nil {
		return nil, errors.New("midtrans: malformed notification body")
	}

	sum := sha512.Sum512([]byte(notif.OrderID + notif.StatusCode + notif.GrossAmount + g.serverKey))
	expected := hex.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(expected), []byte(notif.SignatureKey)) != 1 {
		return nil, errors.New("midtrans: notification signature mismatch")
	}

	switch notif.TransactionStatus {
	case "settlement", "capture":
		return &WebhookEvent{Kind: EventCheckoutCompleted, SessionID: notif.OrderID}, nil
	default:
		return &WebhookEvent{Kind: EventIgnored}, nil
	}
}

// RefundPayment refunds by order id (the ledger key doubles as the Midtrans
// refund handle).
func (g *MidtransGateway) RefundPayment(_ context.Context, paymentRef string) bool {
	_, err := g.core.RefundTransaction(paymentRef, &coreapi.RefundReq{
		RefundKey: uuid.NewString(),
		Reason:    "requested by event organizer",
	})
	if err != nil {
		log.Printf("[ERROR] midtrans refund for %s failed: %v", paymentRef, err)
		return false
	}
	return true
}

func (g *MidtransGateway) IsPaymentRefunded(_ context.Context, paymentRef string) bool {
	resp, err := g.core.CheckTransaction(paymentRef)
	if err != nil {
		return false
	}
	return resp.TransactionStatus == "refund" || resp.TransactionStatus == "partial_refund"
}

// SetupWebhookEndpoint: Midtrans has no endpoint-management API; notification
// URLs are configured in the merchant dashboard.
func (g *MidtransGateway) SetupWebhookEndpoint(_ context.Context, _ string, existingEndpointID string) (string, error) {
	if existingEndpointID != "" {
		return existingEndpointID, nil
	}
	return "", errors.New("midtrans: notification URL must be configured in the merchant dashboard")
}
