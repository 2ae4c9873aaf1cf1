package models

import (
	"time"

	"github.com/uptrace/bun"
)

// ValidationEvent is the immutable audit record appended for every scan
// attempt, accepted or rejected. Rows are never updated or deleted.
type ValidationEvent struct {
	bun.BaseModel `bun:"table:validation_events"`

	ID        string    `bun:"id,pk" json:"id"`
	TicketID  string    `bun:"ticket_id" json:"ticket_id"`
	EventID   string    `bun:"event_id" json:"event_id"`
	ActorID   string    `bun:"actor_id" json:"actor_id"`
	Accepted  bool      `bun:"accepted" json:"accepted"`
	Reason    string    `bun:"reason,nullzero" json:"reason,omitempty"`
	ScannedAt time.Time `bun:"scanned_at" json:"scanned_at"`
}
