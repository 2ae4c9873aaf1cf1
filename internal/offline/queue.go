package offline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-gatepass/internal/logger"
	"ms-gatepass/internal/models"
	"ms-gatepass/internal/monitoring"
	"ms-gatepass/internal/payload"
	"ms-gatepass/internal/validate"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// QueuedScan is one buffered validation attempt on the validator device.
// The autoincrement id fixes the local replay order.
type QueuedScan struct {
	bun.BaseModel `bun:"table:offline_scans"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Scanned   string    `bun:"scanned"`
	EventID   string    `bun:"event_id"`
	ActorID   string    `bun:"actor_id"`
	ScannedAt time.Time `bun:"scanned_at"`
	Synced    bool      `bun:"synced"`
	Accepted  bool      `bun:"accepted"`
	Reason    string    `bun:"reason,nullzero"`
}

// Validator is the slice of the validation engine the queue replays
// against.
type Validator interface {
	Validate(ctx context.Context, scanned, eventID, actorID string) (validate.Outcome, error)
}

// StatusCache exposes the last status the device saw the server report for
// a ticket. It only informs the provisional display while offline; the
// server stays the source of truth at sync time.
type StatusCache interface {
	LastKnownStatus(ctx context.Context, ticketID string) (models.TicketStatus, bool, error)
	SetStatus(ctx context.Context, ticketID string, status models.TicketStatus) error
}

// Conflict surfaces a queued scan whose authoritative outcome came back
// already_used, the expected result when two offline devices scanned the
// same ticket before either synced.
type Conflict struct {
	ScanID      int64     `json:"scan_id"`
	TicketID    string    `json:"ticket_id"`
	ScannedAt   time.Time `json:"scanned_at"`
	UsedAt      time.Time `json:"used_at,omitempty"`
	ValidatedBy string    `json:"validated_by,omitempty"`
}

// SyncReport summarizes one replay pass.
type SyncReport struct {
	Replayed  int        `json:"replayed"`
	Accepted  int        `json:"accepted"`
	Rejected  int        `json:"rejected"`
	Conflicts []Conflict `json:"conflicts,omitempty"`
	Remaining int        `json:"remaining"`
}

// Queue buffers scans made without connectivity in a local sqlite file and
// replays them through the validation engine once connectivity returns.
type Queue struct {
	db     *bun.DB
	engine Validator
	codec  *payload.Codec
	cache  StatusCache
	log    *logger.Logger
	now    func() time.Time
}

type Option func(*Queue)

// WithStatusCache enables provisional accepted display for tickets last
// known active.
func WithStatusCache(cache StatusCache) Option {
	return func(q *Queue) { q.cache = cache }
}

// WithLogger attaches the device logger.
func WithLogger(l *logger.Logger) Option {
	return func(q *Queue) { q.log = l }
}

// WithClock injects the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// Open opens (creating if needed) the durable queue database at path.
// Pass ":memory:" in tests.
func Open(path string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, path)
	if err != nil {
		return nil, fmt.Errorf("open offline queue db: %w", err)
	}
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	_, err = bunDB.NewCreateTable().
		Model((*QueuedScan)(nil)).
		IfNotExists().
		Exec(context.Background())
	if err != nil {
		return nil, fmt.Errorf("create offline queue table: %w", err)
	}
	return bunDB, nil
}

func NewQueue(db *bun.DB, engine Validator, codec *payload.Codec, opts ...Option) *Queue {
	q := &Queue{db: db, engine: engine, codec: codec, now: time.Now}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Record appends a scan attempt with its local timestamp and returns the
// provisional outcome to display. The outcome is optimistically accepted
// only when the payload decodes locally and the last known server status
// for the ticket was active; it is always marked provisional because only
// Sync yields the authoritative result.
func (q *Queue) Record(ctx context.Context, scanned, eventID, actorID string) (validate.Outcome, error) {
	scan := QueuedScan{
		Scanned:   scanned,
		EventID:   eventID,
		ActorID:   actorID,
		ScannedAt: q.now().UTC(),
	}
	if _, err := q.db.NewInsert().Model(&scan).Exec(ctx); err != nil {
		return validate.Outcome{}, fmt.Errorf("enqueue scan: %w", err)
	}
	q.updateDepthGauge(ctx)

	return q.provisional(ctx, scanned, eventID), nil
}

func (q *Queue) provisional(ctx context.Context, scanned, eventID string) validate.Outcome {
	out := validate.Outcome{Provisional: true}

	decoded, err := q.codec.Decode(scanned)
	if err != nil {
		// Signature and structure checks need no connectivity; a forged
		// or stale payload is rejected on the spot.
		out.Reason = decodeReason(err)
		return out
	}

	out.TicketID = decoded.TicketID
	out.HumanCode = decoded.HumanCode
	out.Quantity = decoded.Quantity

	if decoded.EventID != eventID {
		out.Reason = validate.ReasonWrongEvent
		return out
	}

	if q.cache != nil {
		status, known, cerr := q.cache.LastKnownStatus(ctx, decoded.TicketID)
		if cerr == nil && known && status != models.TicketActive {
			out.Reason = validate.ReasonAlreadyUsed
			if status == models.TicketCancelled {
				out.Reason = validate.ReasonCancelled
			}
			return out
		}
	}

	out.Accepted = true
	return out
}

// Sync replays the unsynced scans in local scan order against the engine,
// records each authoritative outcome, and reports already_used conflicts.
// Replay is strictly sequential to preserve per-device order. An
// infrastructure error stops the pass; the remaining entries stay queued
// for the next call.
func (q *Queue) Sync(ctx context.Context) (*SyncReport, error) {
	var pending []QueuedScan
	err := q.db.NewSelect().
		Model(&pending).
		Where("synced = ?", false).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load pending scans: %w", err)
	}

	report := &SyncReport{Remaining: len(pending)}
	for _, scan := range pending {
		outcome, verr := q.engine.Validate(ctx, scan.Scanned, scan.EventID, scan.ActorID)
		if verr != nil {
			// Still offline or the store went away again; keep the rest
			// queued and surface the error to the caller.
			if q.log != nil {
				q.log.Warn("SYNC", fmt.Sprintf("replay stopped at scan %d: %v", scan.ID, verr))
			}
			q.updateDepthGauge(ctx)
			return report, verr
		}

		scan.Synced = true
		scan.Accepted = outcome.Accepted
		scan.Reason = string(outcome.Reason)
		_, uerr := q.db.NewUpdate().
			Model(&scan).
			Column("synced", "accepted", "reason").
			Where("id = ?", scan.ID).
			Exec(ctx)
		if uerr != nil {
			return report, fmt.Errorf("mark scan %d synced: %w", scan.ID, uerr)
		}

		report.Replayed++
		report.Remaining--
		if outcome.Accepted {
			report.Accepted++
		} else {
			report.Rejected++
			if outcome.Reason == validate.ReasonAlreadyUsed {
				report.Conflicts = append(report.Conflicts, Conflict{
					ScanID:      scan.ID,
					TicketID:    outcome.TicketID,
					ScannedAt:   scan.ScannedAt,
					UsedAt:      outcome.UsedAt,
					ValidatedBy: outcome.ValidatedBy,
				})
			}
		}

		q.warmCache(ctx, outcome)
	}

	if q.log != nil {
		q.log.LogSync(fmt.Sprintf("replayed %d scans: %d accepted, %d rejected, %d conflicts",
			report.Replayed, report.Accepted, report.Rejected, len(report.Conflicts)))
	}
	q.updateDepthGauge(ctx)
	return report, nil
}

// Pending returns the number of unsynced scans.
func (q *Queue) Pending(ctx context.Context) (int, error) {
	count, err := q.db.NewSelect().
		Model((*QueuedScan)(nil)).
		Where("synced = ?", false).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count pending scans: %w", err)
	}
	return count, nil
}

// warmCache records the authoritative status so later provisional
// decisions for the same ticket are honest about it.
func (q *Queue) warmCache(ctx context.Context, out validate.Outcome) {
	if q.cache == nil || out.TicketID == "" {
		return
	}
	status := models.TicketActive
	switch {
	case out.Accepted, out.Reason == validate.ReasonAlreadyUsed:
		status = models.TicketUsed
	case out.Reason == validate.ReasonCancelled:
		status = models.TicketCancelled
	case out.Reason == validate.ReasonEventExpired:
		status = models.TicketExpired
	default:
		return
	}
	if err := q.cache.SetStatus(ctx, out.TicketID, status); err != nil && q.log != nil {
		q.log.Warn("SYNC", fmt.Sprintf("status cache update for %s: %v", out.TicketID, err))
	}
}

func (q *Queue) updateDepthGauge(ctx context.Context) {
	if n, err := q.Pending(ctx); err == nil {
		monitoring.SetOfflineQueueDepth(n)
	}
}

func decodeReason(err error) validate.Reason {
	switch {
	case errors.Is(err, payload.ErrForgedOrCorrupted):
		return validate.ReasonForged
	case errors.Is(err, payload.ErrPayloadExpired):
		return validate.ReasonPayloadExpired
	default:
		return validate.ReasonMalformed
	}
}
