package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	paymentModel "tickethub_backend/internals/features/payments/model"
)

const squareAPIVersion = "2024-01-18"

var errSquareNotFound = errors.New("square: not found")

// SquareGateway implements Provider over Square's REST API: payment links for
// checkout, the Orders API for retrieval and the Refunds API for refunds.
// Square webhooks sign the notification URL concatenated with the raw body
// using HMAC-SHA256 under the subscription signature key.
type SquareGateway struct {
	accessToken  string
	signatureKey string
	locationID   string
	apiBase      string
	http         *http.Client
}

func NewSquareGateway(accessToken, signatureKey, locationID string, sandbox bool) *SquareGateway {
	base := "https://connect.squareup.com"
	if sandbox {
		base = "https://connect.squareupsandbox.com"
	}
	return &SquareGateway{
		accessToken:  accessToken,
		signatureKey: signatureKey,
		locationID:   locationID,
		apiBase:      base,
		http:         &http.Client{Timeout: 10 * time.Second},
	}
}

/* =========================================================
   Checkout (payment links over an order)
========================================================= */

type squareMoney struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type squareLineItem struct {
	Name           string      `json:"name"`
	Quantity       string      `json:"quantity"`
	BasePriceMoney squareMoney `json:"base_price_money"`
}

func (g *SquareGateway) CreateCheckoutSession(ctx context.Context, intent CheckoutIntent, baseURL string) (*CheckoutSession, string, error) {
	items := []squareLineItem{{
		Name:           intent.EventName,
		Quantity:       strconv.Itoa(intent.Quantity),
		BasePriceMoney: squareMoney{Amount: intent.UnitAmount, Currency: intent.Currency},
	}}
	return g.createPaymentLink(ctx, items, IntentMetadata(intent), baseURL)
}

func (g *SquareGateway) CreateMultiCheckoutSession(ctx context.Context, intent MultiCheckoutIntent, baseURL string) (*CheckoutSession, string, error) {
	md, err := MultiIntentMetadata(intent)
	if err != nil {
		return nil, "", err
	}
	items := make([]squareLineItem, 0, len(intent.Items))
	for _, it := range intent.Items {
		items = append(items, squareLineItem{
			Name:           it.EventName,
			Quantity:       strconv.Itoa(it.Quantity),
			BasePriceMoney: squareMoney{Amount: it.UnitAmount, Currency: it.Currency},
		})
	}
	return g.createPaymentLink(ctx, items, md, baseURL)
}

func (g *SquareGateway) createPaymentLink(ctx context.Context, items []squareLineItem, metadata map[string]string, baseURL string) (*CheckoutSession, string, error) {
	body := map[string]any{
		"idempotency_key": uuid.NewString(),
		"order": map[string]any{
			"location_id": g.locationID,
			"line_items":  items,
			"metadata":    metadata,
		},
		"checkout_options": map[string]any{
			"redirect_url": baseURL + "/checkout/success",
		},
	}
	var resp struct {
		PaymentLink struct {
			ID      string `json:"id"`
			URL     string `json:"url"`
			OrderID string `json:"order_id"`
		} `json:"payment_link"`
	}
	if err := g.doJSON(ctx, http.MethodPost, "/v2/online-checkout/payment-links", body, &resp); err != nil {
		var apiErr *squareAPIError
		if errors.As(err, &apiErr) && apiErr.Validation() {
			return nil, apiErr.Detail(), nil
		}
		return nil, "", err
	}
	return &CheckoutSession{OrderID: resp.PaymentLink.OrderID, URL: resp.PaymentLink.URL}, "", nil
}

/* =========================================================
   Retrieval
========================================================= */

type squareOrder struct {
	ID         string            `json:"id"`
	State      string            `json:"state"`
	Metadata   map[string]string `json:"metadata"`
	TotalMoney squareMoney       `json:"total_money"`
	Tenders    []struct {
		ID string `json:"id"`
	} `json:"tenders"`
}

func (g *SquareGateway) RetrieveSession(ctx context.Context, sessionID string) (*ValidatedSession, error) {
	var resp struct {
		Order squareOrder `json:"order"`
	}
	err := g.doJSON(ctx, http.MethodGet, "/v2/orders/"+sessionID, nil, &resp)
	if errors.Is(err, errSquareNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !MetadataComplete(resp.Order.Metadata) {
		log.Printf("[WARN] square order %s has incomplete metadata", sessionID)
		return nil, nil
	}

	out := &ValidatedSession{
		ID:            resp.Order.ID,
		PaymentStatus: squarePaymentStatus(resp.Order),
		AmountTotal:   resp.Order.TotalMoney.Amount,
		Metadata:      resp.Order.Metadata,
	}
	if len(resp.Order.Tenders) > 0 {
		// The tender id doubles as the payment id for card payments.
		out.PaymentReference = resp.Order.Tenders[0].ID
	}
	return out, nil
}

func squarePaymentStatus(o squareOrder) paymentModel.PaymentStatus {
	switch o.State {
	case "COMPLETED":
		return paymentModel.PaymentStatusPaid
	case "OPEN":
		if len(o.Tenders) > 0 {
			return paymentModel.PaymentStatusPending
		}
		return paymentModel.PaymentStatusUnpaid
	default:
		return paymentModel.PaymentStatusOther
	}
}

/* =========================================================
   Webhooks
========================================================= */

// VerifyWebhookSignature recomputes base64(HMAC-SHA256(notificationURL+body))
// and compares with hmac.Equal.
func (g *SquareGateway) VerifyWebhookSignature(payload []byte, signature string, requestURL string) (*WebhookEvent, error) {
	mac := hmac.New(sha256.New, []byte(g.signatureKey))
	mac.Write([]byte(requestURL))
	mac.Write(payload)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return nil, errors.New("square: webhook signature mismatch")
	}

	var event struct {
		Type string `json:"type"`
		Data struct {
			Object struct {
				Payment struct {
					ID      string `json:"id"`
					OrderID string `json:"order_id"`
					Status  string `json:"status"`
				} `json:"payment"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return &WebhookEvent{Kind: EventIgnored}, nil
	}
	if event.Type != "payment.updated" || event.Data.Object.Payment.Status != "COMPLETED" {
		return &WebhookEvent{Kind: EventIgnored}, nil
	}
	if event.Data.Object.Payment.OrderID == "" {
		return &WebhookEvent{Kind: EventIgnored}, nil
	}
	return &WebhookEvent{Kind: EventCheckoutCompleted, SessionID: event.Data.Object.Payment.OrderID}, nil
}

/* =========================================================
   Refunds
========================================================= */

type squarePayment struct {
	ID            string      `json:"id"`
	Status        string      `json:"status"`
	AmountMoney   squareMoney `json:"amount_money"`
	RefundedMoney squareMoney `json:"refunded_money"`
}

func (g *SquareGateway) getPayment(ctx context.Context, paymentID string) (*squarePayment, error) {
	var resp struct {
		Payment squarePayment `json:"payment"`
	}
	if err := g.doJSON(ctx, http.MethodGet, "/v2/payments/"+paymentID, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Payment, nil
}

func (g *SquareGateway) RefundPayment(ctx context.Context, paymentRef string) bool {
	payment, err := g.getPayment(ctx, paymentRef)
	if err != nil {
		log.Printf("[ERROR] square payment lookup for %s failed: %v", paymentRef, err)
		return false
	}
	body := map[string]any{
		"idempotency_key": uuid.NewString(),
		"payment_id":      payment.ID,
		"amount_money":    payment.AmountMoney,
	}
	var resp struct {
		Refund struct {
			ID string `json:"id"`
		} `json:"refund"`
	}
	if err := g.doJSON(ctx, http.MethodPost, "/v2/refunds", body, &resp); err != nil {
		log.Printf("[ERROR] square refund for %s failed: %v", paymentRef, err)
		return false
	}
	return true
}

func (g *SquareGateway) IsPaymentRefunded(ctx context.Context, paymentRef string) bool {
	payment, err := g.getPayment(ctx, paymentRef)
	if err != nil {
		return false
	}
	return payment.RefundedMoney.Amount > 0
}

/* =========================================================
   Webhook endpoint setup
========================================================= */

func (g *SquareGateway) SetupWebhookEndpoint(ctx context.Context, webhookURL string, existingEndpointID string) (string, error) {
	var listResp struct {
		Subscriptions []struct {
			ID              string `json:"id"`
			NotificationURL string `json:"notification_url"`
		} `json:"subscriptions"`
	}
	if err := g.doJSON(ctx, http.MethodGet, "/v2/webhooks/subscriptions", nil, &listResp); err != nil && !errors.Is(err, errSquareNotFound) {
		return "", err
	}
	for _, sub := range listResp.Subscriptions {
		if sub.NotificationURL == webhookURL {
			return sub.ID, nil
		}
	}

	body := map[string]any{
		"idempotency_key": uuid.NewString(),
		"subscription": map[string]any{
			"name":             "tickethub registrations",
			"notification_url": webhookURL,
			"event_types":      []string{"payment.updated"},
		},
	}
	var resp struct {
		Subscription struct {
			ID string `json:"id"`
		} `json:"subscription"`
	}
	if err := g.doJSON(ctx, http.MethodPost, "/v2/webhooks/subscriptions", body, &resp); err != nil {
		return "", err
	}
	return resp.Subscription.ID, nil
}

/* =========================================================
   HTTP plumbing
========================================================= */

type squareAPIError struct {
	Status int
	Errors []struct {
		Category  string `json:"category"`
		Code      string `json:"code"`
		DetailMsg string `json:"detail"`
	}
}

func (e *squareAPIError) Error() string {
	return fmt.Sprintf("square: api status %d: %s", e.Status, e.Detail())
}

func (e *squareAPIError) Validation() bool {
	return e.Status == http.StatusBadRequest || e.Status == http.StatusUnprocessableEntity
}

func (e *squareAPIError) Detail() string {
	if len(e.Errors) > 0 && e.Errors[0].DetailMsg != "" {
		return e.Errors[0].DetailMsg
	}
	return "payment request was rejected"
}

func (g *SquareGateway) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.apiBase+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+g.accessToken)
	req.Header.Set("Square-Version", squareAPIVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNotFound {
		return errSquareNotFound
	}
	if resp.StatusCode >= 300 {
		apiErr := &squareAPIError{Status: resp.StatusCode}
		_ = json.Unmarshal(raw, apiErr)
		return apiErr
	}
	if out != nil {
		return json.Unmarshal(raw, out)
	}
	return nil
}
