package models

import "time"

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFree     PaymentStatus = "free"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// TerminalSuccess reports whether the payment reached a state that permits
// ticket issuance. Paid and free are the only such states.
func (s PaymentStatus) TerminalSuccess() bool {
	return s == PaymentPaid || s == PaymentFree
}

// ConfirmedPurchase is what the payment-confirmation callback hands to the
// issuance flow. The surrounding purchase transaction (inventory decrement,
// order row) is owned by the caller.
type ConfirmedPurchase struct {
	OrderID       string        `json:"order_id"`
	EventID       string        `json:"event_id"`
	HolderID      string        `json:"holder_id"`
	Quantity      int           `json:"quantity"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	PurchasedAt   time.Time     `json:"purchased_at"`
	EventStartsAt time.Time     `json:"event_starts_at"`
}
