package validate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-gatepass/internal/issue"
	"ms-gatepass/internal/logger"
	"ms-gatepass/internal/models"
	"ms-gatepass/internal/monitoring"
	"ms-gatepass/internal/payload"

	"github.com/google/uuid"
)

// DefaultEventGrace is how long after the event start a ticket remains
// scannable. Past it the ticket is stale relative to the event itself,
// independent of payload age.
const DefaultEventGrace = 24 * time.Hour

// Engine decides entry eligibility for one scan at a time and requests the
// active->used transition. Decode and signature checks are pure; the store
// round trip is the only blocking work.
type Engine struct {
	codec      *payload.Codec
	store      TicketStore
	audit      AuditSink
	log        *logger.Logger
	eventGrace time.Duration
	now        func() time.Time
}

type Option func(*Engine)

// WithEventGrace overrides the post-event admission window.
func WithEventGrace(d time.Duration) Option {
	return func(e *Engine) { e.eventGrace = d }
}

// WithClock injects the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithAudit attaches the audit sink receiving one record per scan.
func WithAudit(sink AuditSink) Option {
	return func(e *Engine) { e.audit = sink }
}

// WithLogger attaches the service logger.
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func NewEngine(codec *payload.Codec, store TicketStore, opts ...Option) *Engine {
	e := &Engine{
		codec:      codec,
		store:      store,
		eventGrace: DefaultEventGrace,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Validate runs one scan attempt. scanned is either QR wire content or a
// bare human-readable code (the staff fallback when the QR cannot be
// scanned). eventID is the event the validator device is gating; actorID
// identifies the operator. Every enumerated rejection comes back inside
// the Outcome with a nil error; a non-nil error means the store or sink
// was unreachable and the attempt decided nothing.
func (e *Engine) Validate(ctx context.Context, scanned, eventID, actorID string) (Outcome, error) {
	outcome, err := e.decide(ctx, scanned, eventID, actorID)
	if err != nil {
		return Outcome{}, err
	}

	e.record(ctx, outcome, eventID, actorID)
	monitoring.ObserveValidation(outcome.Accepted, string(outcome.Reason))
	if e.log != nil {
		e.log.LogValidation(outcome.TicketID, actorID, outcomeLabel(outcome))
	}
	return outcome, nil
}

func (e *Engine) decide(ctx context.Context, scanned, eventID, actorID string) (Outcome, error) {
	ticket, wrongEvent, reject, err := e.resolve(ctx, scanned, eventID)
	if err != nil {
		return Outcome{}, err
	}
	if reject != nil {
		return *reject, nil
	}

	out := Outcome{
		TicketID:  ticket.TicketID,
		HumanCode: ticket.HumanCode,
		Quantity:  ticket.Quantity,
	}

	// Event cross-check before status: a ticket for another event is
	// rejected wrong_event even when it is otherwise spendable.
	if wrongEvent {
		out.Reason = ReasonWrongEvent
		return out, nil
	}

	switch ticket.Status {
	case models.TicketUsed:
		out.Reason = ReasonAlreadyUsed
		out.UsedAt = ticket.UsedAt
		out.ValidatedBy = ticket.ValidatedBy
		return out, nil
	case models.TicketCancelled:
		out.Reason = ReasonCancelled
		return out, nil
	case models.TicketExpired:
		out.Reason = ReasonEventExpired
		return out, nil
	}

	now := e.now()
	if now.Sub(ticket.EventStartsAt) > e.eventGrace {
		out.Reason = ReasonEventExpired
		return out, nil
	}

	start := time.Now()
	err = e.store.CompareAndSetUsed(ctx, ticket.TicketID, now.UTC(), actorID)
	monitoring.ObserveStoreRoundTrip(start)
	switch {
	case err == nil:
		out.Accepted = true
		return out, nil
	case errors.Is(err, ErrConflict):
		// Race loss: another scan won the conditional write. Re-read so
		// staff see who admitted the holder first.
		out.Reason = ReasonAlreadyUsed
		if current, gerr := e.store.GetByTicketID(ctx, ticket.TicketID); gerr == nil {
			out.UsedAt = current.UsedAt
			out.ValidatedBy = current.ValidatedBy
		}
		return out, nil
	case errors.Is(err, ErrNotFound):
		out.Reason = ReasonUnknownTicket
		return out, nil
	default:
		return Outcome{}, fmt.Errorf("ticket store transition: %w", err)
	}
}

// resolve turns the scanned string into a persisted ticket. It reports a
// payload/context event mismatch separately so the caller can prefer the
// wrong_event rejection over status rejections.
func (e *Engine) resolve(ctx context.Context, scanned, eventID string) (ticket *models.Ticket, wrongEvent bool, reject *Outcome, err error) {
	var decoded *models.TicketPayload

	if issue.IsHumanCode(scanned) {
		// Staff fallback path: no payload to verify, the store record is
		// the sole source.
		start := time.Now()
		ticket, err = e.store.GetByHumanCode(ctx, scanned)
		monitoring.ObserveStoreRoundTrip(start)
	} else {
		decoded, err = e.codec.Decode(scanned)
		if err != nil {
			out := rejected(decodeReason(err))
			return nil, false, &out, nil
		}
		start := time.Now()
		ticket, err = e.store.GetByTicketID(ctx, decoded.TicketID)
		monitoring.ObserveStoreRoundTrip(start)
	}

	if errors.Is(err, ErrNotFound) {
		out := rejected(ReasonUnknownTicket)
		return nil, false, &out, nil
	}
	if err != nil {
		return nil, false, nil, fmt.Errorf("ticket store lookup: %w", err)
	}

	if decoded != nil {
		wrongEvent = decoded.EventID != eventID
	} else {
		wrongEvent = ticket.EventID != eventID
	}
	return ticket, wrongEvent, nil, nil
}

// record appends the audit event. The admission decision is already made;
// a sink failure is logged and swallowed rather than turning a committed
// transition into an apparent failure.
func (e *Engine) record(ctx context.Context, out Outcome, eventID, actorID string) {
	if e.audit == nil {
		return
	}
	ev := models.ValidationEvent{
		ID:        uuid.New().String(),
		TicketID:  out.TicketID,
		EventID:   eventID,
		ActorID:   actorID,
		Accepted:  out.Accepted,
		Reason:    string(out.Reason),
		ScannedAt: e.now().UTC(),
	}
	if err := e.audit.RecordValidation(ctx, ev); err != nil && e.log != nil {
		e.log.Error("AUDIT", fmt.Sprintf("record validation event: %v", err))
	}
}

func decodeReason(err error) Reason {
	switch {
	case errors.Is(err, payload.ErrForgedOrCorrupted):
		return ReasonForged
	case errors.Is(err, payload.ErrPayloadExpired):
		return ReasonPayloadExpired
	default:
		return ReasonMalformed
	}
}

func outcomeLabel(out Outcome) string {
	if out.Accepted {
		return "accepted"
	}
	return string(out.Reason)
}
