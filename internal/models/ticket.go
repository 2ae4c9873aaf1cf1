package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TicketStatus string

const (
	TicketActive    TicketStatus = "active"
	TicketUsed      TicketStatus = "used"
	TicketCancelled TicketStatus = "cancelled"
	TicketExpired   TicketStatus = "expired"
)

// Ticket is the persisted record behind a payload. Status only ever moves
// active -> used (scan) or active -> cancelled (administrative); rejected
// scans never change it.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	TicketID      string       `bun:"ticket_id,pk" json:"ticket_id"`
	HumanCode     string       `bun:"human_code,unique" json:"human_code"`
	OrderID       string       `bun:"order_id" json:"order_id"`
	EventID       string       `bun:"event_id" json:"event_id"`
	HolderID      string       `bun:"holder_id" json:"holder_id"`
	Quantity      int          `bun:"quantity" json:"quantity"`
	Status        TicketStatus `bun:"status" json:"status"`
	EventStartsAt time.Time    `bun:"event_starts_at" json:"event_starts_at"`
	PurchasedAt   time.Time    `bun:"purchased_at" json:"purchased_at"`
	IssuedAt      time.Time    `bun:"issued_at" json:"issued_at"`
	UsedAt        time.Time    `bun:"used_at,nullzero" json:"used_at,omitempty"`
	ValidatedBy   string       `bun:"validated_by,nullzero" json:"validated_by,omitempty"`
}
