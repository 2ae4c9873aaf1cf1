package validate

import (
	"context"
	"errors"
	"time"

	"ms-gatepass/internal/models"
)

var (
	// ErrNotFound means the store has no ticket under the given key.
	ErrNotFound = errors.New("ticket not found")
	// ErrConflict means the conditional transition found the ticket no
	// longer active. A race loss, not a failure.
	ErrConflict = errors.New("ticket is not active")
)

// TicketStore is the persistence collaborator. CompareAndSetUsed is the
// concurrency-safety boundary: it must set status to used only where the
// current status is still active, atomically, and return ErrConflict
// otherwise. Any error other than the two sentinels is infrastructure
// trouble and propagates to the caller.
type TicketStore interface {
	GetByTicketID(ctx context.Context, id string) (*models.Ticket, error)
	GetByHumanCode(ctx context.Context, code string) (*models.Ticket, error)
	CompareAndSetUsed(ctx context.Context, id string, usedAt time.Time, actorID string) error
	InsertNewTicket(ctx context.Context, ticket models.Ticket) error
}

// AuditSink receives one immutable record per scan attempt.
type AuditSink interface {
	RecordValidation(ctx context.Context, ev models.ValidationEvent) error
}
