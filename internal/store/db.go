package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-gatepass/internal/models"
	"ms-gatepass/internal/validate"

	"github.com/uptrace/bun"
)

// DB is the bun-backed TicketStore. Production runs it on Postgres; tests
// run the same queries on the embedded sqlite driver.
type DB struct {
	Bun *bun.DB
}

func New(bunDB *bun.DB) *DB {
	return &DB{Bun: bunDB}
}

func (d *DB) GetByTicketID(ctx context.Context, id string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("ticket_id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, validate.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select ticket %s: %w", id, err)
	}
	return &ticket, nil
}

func (d *DB) GetByHumanCode(ctx context.Context, code string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("human_code = ?", code).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, validate.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select ticket by code %s: %w", code, err)
	}
	return &ticket, nil
}

// CompareAndSetUsed performs the conditional active->used transition. The
// WHERE status = 'active' clause is the whole concurrency story: of any
// number of racing scans only one UPDATE can match, the rest see zero rows
// and come back ErrConflict.
func (d *DB) CompareAndSetUsed(ctx context.Context, id string, usedAt time.Time, actorID string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", models.TicketUsed).
		Set("used_at = ?", usedAt).
		Set("validated_by = ?", actorID).
		Where("ticket_id = ?", id).
		Where("status = ?", models.TicketActive).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("transition ticket %s: %w", id, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition ticket %s: %w", id, err)
	}
	if rows > 0 {
		return nil
	}

	// Zero rows: either the ticket is gone or it already left active.
	exists, err := d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		Where("ticket_id = ?", id).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("transition ticket %s: %w", id, err)
	}
	if !exists {
		return validate.ErrNotFound
	}
	return validate.ErrConflict
}

func (d *DB) InsertNewTicket(ctx context.Context, ticket models.Ticket) error {
	_, err := d.Bun.NewInsert().Model(&ticket).Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert ticket %s: %w", ticket.TicketID, err)
	}
	return nil
}

// CancelTicket is the administrative active->cancelled transition. Like the
// used transition it is conditional; a ticket that was already scanned
// cannot be cancelled out from under the audit trail.
func (d *DB) CancelTicket(ctx context.Context, id string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", models.TicketCancelled).
		Where("ticket_id = ?", id).
		Where("status = ?", models.TicketActive).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("cancel ticket %s: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cancel ticket %s: %w", id, err)
	}
	if rows == 0 {
		return validate.ErrConflict
	}
	return nil
}

// RecordValidation appends the immutable audit row; DB doubles as the
// engine's database audit sink.
func (d *DB) RecordValidation(ctx context.Context, ev models.ValidationEvent) error {
	_, err := d.Bun.NewInsert().Model(&ev).Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert validation event: %w", err)
	}
	return nil
}

// ValidationHistory returns the audit trail for one ticket, oldest first.
func (d *DB) ValidationHistory(ctx context.Context, ticketID string) ([]models.ValidationEvent, error) {
	var events []models.ValidationEvent
	err := d.Bun.NewSelect().
		Model(&events).
		Where("ticket_id = ?", ticketID).
		Order("scanned_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select validation events for %s: %w", ticketID, err)
	}
	return events, nil
}
