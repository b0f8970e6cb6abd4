package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	paymentModel "tickethub_backend/internals/features/payments/model"
)

const stripeCheckoutCompleted = "checkout.session.completed"

// StripeGateway implements Provider on top of Stripe hosted Checkout Sessions.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
}

func NewStripeGateway(secretKey, webhookSecret string) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeGateway{api: api, webhookSecret: webhookSecret}
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, intent CheckoutIntent, baseURL string) (*CheckoutSession, string, error) {
	params := g.sessionParams(ctx, baseURL)
	params.LineItems = []*stripe.CheckoutSessionLineItemParams{
		stripeLineItem(intent.EventName, intent.Currency, intent.UnitAmount, intent.Quantity),
	}
	for k, v := range IntentMetadata(intent) {
		params.AddMetadata(k, v)
	}
	return g.create(params)
}

func (g *StripeGateway) CreateMultiCheckoutSession(ctx context.Context, intent MultiCheckoutIntent, baseURL string) (*CheckoutSession, string, error) {
	md, err := MultiIntentMetadata(intent)
	if err != nil {
		return nil, "", err
	}
	params := g.sessionParams(ctx, baseURL)
	for _, item := range intent.Items {
		params.LineItems = append(params.LineItems,
			stripeLineItem(item.EventName, item.Currency, item.UnitAmount, item.Quantity))
	}
	for k, v := range md {
		params.AddMetadata(k, v)
	}
	return g.create(params)
}

func (g *StripeGateway) sessionParams(ctx context.Context, baseURL string) *stripe.CheckoutSessionParams {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(baseURL + "/checkout/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(baseURL + "/checkout/cancel"),
	}
	params.Context = ctx
	return params
}

func stripeLineItem(name, currency string, unitAmount int64, quantity int) *stripe.CheckoutSessionLineItemParams {
	return &stripe.CheckoutSessionLineItemParams{
		PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripe.String(currency),
			UnitAmount: stripe.Int64(unitAmount),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(name),
			},
		},
		Quantity: stripe.Int64(int64(quantity)),
	}
}

func (g *StripeGateway) create(params *stripe.CheckoutSessionParams) (*CheckoutSession, string, error) {
	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeInvalidRequest {
			return nil, stripeErr.Msg, nil
		}
		return nil, "", err
	}
	return &CheckoutSession{OrderID: s.ID, URL: s.URL}, "", nil
}

func (g *StripeGateway) RetrieveSession(ctx context.Context, sessionID string) (*ValidatedSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")

	s, err := g.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == 404 {
			return nil, nil
		}
		return nil, err
	}
	if !MetadataComplete(s.Metadata) {
		// Malformed sessions are indistinguishable from missing ones on
		// purpose; log for the operator only.
		log.Printf("[WARN] stripe session %s has incomplete metadata", sessionID)
		return nil, nil
	}

	out := &ValidatedSession{
		ID:            s.ID,
		PaymentStatus: stripePaymentStatus(s.PaymentStatus),
		AmountTotal:   s.AmountTotal,
		Metadata:      s.Metadata,
	}
	if s.PaymentIntent != nil {
		out.PaymentReference = s.PaymentIntent.ID
	}
	return out, nil
}

func stripePaymentStatus(s stripe.CheckoutSessionPaymentStatus) paymentModel.PaymentStatus {
	switch s {
	case stripe.CheckoutSessionPaymentStatusPaid, stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		return paymentModel.PaymentStatusPaid
	case stripe.CheckoutSessionPaymentStatusUnpaid:
		return paymentModel.PaymentStatusUnpaid
	default:
		return paymentModel.PaymentStatusOther
	}
}

// VerifyWebhookSignature delegates to stripe-go's ConstructEvent, which checks
// the Stripe-Signature header with constant-time HMAC comparison.
func (g *StripeGateway) VerifyWebhookSignature(payload []byte, signature string, _ string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEvent(payload, signature, g.webhookSecret)
	if err != nil {
		return nil, err
	}
	if event.Type != stripeCheckoutCompleted {
		return &WebhookEvent{Kind: EventIgnored}, nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(event.Data.Raw, &obj); err != nil || obj.ID == "" {
		return &WebhookEvent{Kind: EventIgnored}, nil
	}
	return &WebhookEvent{Kind: EventCheckoutCompleted, SessionID: obj.ID}, nil
}

func (g *StripeGateway) RefundPayment(ctx context.Context, paymentRef string) bool {
	params := &stripe.RefundParams{PaymentIntent: stripe.String(paymentRef)}
	params.Context = ctx
	if _, err := g.api.Refunds.New(params); err != nil {
		log.Printf("[ERROR] stripe refund for %s failed: %v", paymentRef, err)
		return false
	}
	return true
}

// IsPaymentRefunded approximates Square's refund-status lookup by listing
// refunds for the payment intent.
func (g *StripeGateway) IsPaymentRefunded(ctx context.Context, paymentRef string) bool {
	params := &stripe.RefundListParams{PaymentIntent: stripe.String(paymentRef)}
	params.Context = ctx
	iter := g.api.Refunds.List(params)
	for iter.Next() {
		if iter.Refund().Status == stripe.RefundStatusSucceeded {
			return true
		}
	}
	return false
}

// SetupWebhookEndpoint is idempotent: an endpoint already registered for the
// URL is reused instead of creating a duplicate.
func (g *StripeGateway) SetupWebhookEndpoint(ctx context.Context, webhookURL string, existingEndpointID string) (string, error) {
	listParams := &stripe.WebhookEndpointListParams{}
	listParams.Context = ctx
	iter := g.api.WebhookEndpoints.List(listParams)
	for iter.Next() {
		ep := iter.WebhookEndpoint()
		if ep.URL == webhookURL {
			return ep.ID, nil
		}
	}
	if err := iter.Err(); err != nil {
		return "", err
	}

	params := &stripe.WebhookEndpointParams{
		URL:           stripe.String(webhookURL),
		EnabledEvents: stripe.StringSlice([]string{stripeCheckoutCompleted}),
	}
	params.Context = ctx
	ep, err := g.api.WebhookEndpoints.New(params)
	if err != nil {
		return "", err
	}
	return ep.ID, nil
}
