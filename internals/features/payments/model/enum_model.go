package model

/* ===================== Enums (string) ===================== */
/* Matches the payment_provider ENUM in PostgreSQL. The provider an event
   charges through is stored as this enum and resolved through the gateway
   registry; call sites never switch on raw strings. */

type PaymentProvider string

const (
	PaymentProviderStripe   PaymentProvider = "stripe"
	PaymentProviderSquare   PaymentProvider = "square"
	PaymentProviderMidtrans PaymentProvider = "midtrans"
)

func (p PaymentProvider) Valid() bool {
	switch p {
	case PaymentProviderStripe, PaymentProviderSquare, PaymentProviderMidtrans:
		return true
	default:
		return false
	}
}

/* ===================== Normalized payment status ===================== */

type PaymentStatus string

const (
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusUnpaid  PaymentStatus = "unpaid"
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusOther   PaymentStatus = "other"
)
