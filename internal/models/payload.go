package models

import "time"

// TicketPayload is the signed unit carried inside the QR symbol. It is built
// once at issuance and never mutated afterwards; the signature covers every
// other field, including the human-readable code so a valid QR cannot be
// paired with someone else's code.
type TicketPayload struct {
	TicketID    string
	EventID     string
	HolderID    string
	HumanCode   string
	PurchasedAt time.Time
	IssuedAt    time.Time
	Quantity    int
	Signature   string
}
