package payload

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"ms-gatepass/internal/models"
	"ms-gatepass/internal/signer"
)

// DefaultMaxAge is the payload staleness policy: QR content older than a
// year from its issuance instant is rejected regardless of ticket status.
const DefaultMaxAge = 365 * 24 * time.Hour

var (
	ErrMalformedPayload  = errors.New("malformed payload")
	ErrForgedOrCorrupted = errors.New("payload forged or corrupted")
	ErrPayloadExpired    = errors.New("payload expired")
)

// wirePayload is the self-describing JSON structure inside the QR symbol.
// Timestamps travel as unix milliseconds so the canonical signing tuple
// survives the round trip byte for byte.
type wirePayload struct {
	TicketID    string `json:"ticket_id"`
	EventID     string `json:"event_id"`
	HolderID    string `json:"holder_id"`
	HumanCode   string `json:"human_code"`
	PurchasedAt int64  `json:"purchase_ts"`
	IssuedAt    int64  `json:"issued_at"`
	Quantity    int    `json:"quantity,omitempty"`
	Signature   string `json:"sig"`
}

// Codec round-trips TicketPayload to and from the QR wire string. Pure: no
// I/O, decisions depend only on the payload fields and the injected clock.
type Codec struct {
	signer *signer.Signer
	maxAge time.Duration
	now    func() time.Time
}

type Option func(*Codec)

// WithMaxAge overrides the payload staleness policy.
func WithMaxAge(d time.Duration) Option {
	return func(c *Codec) { c.maxAge = d }
}

// WithClock injects the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

func NewCodec(s *signer.Signer, opts ...Option) *Codec {
	c := &Codec{signer: s, maxAge: DefaultMaxAge, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Encode signs the payload over the canonical field order, serializes the
// full structure and returns it base64url encoded. The input signature
// field is ignored; Encode always computes its own.
func (c *Codec) Encode(p models.TicketPayload) (string, error) {
	if p.TicketID == "" || p.EventID == "" || p.HolderID == "" || p.HumanCode == "" {
		return "", fmt.Errorf("%w: missing identity field", ErrMalformedPayload)
	}
	if p.IssuedAt.IsZero() || p.PurchasedAt.IsZero() {
		return "", fmt.Errorf("%w: missing timestamp", ErrMalformedPayload)
	}

	w := wirePayload{
		TicketID:    p.TicketID,
		EventID:     p.EventID,
		HolderID:    p.HolderID,
		HumanCode:   p.HumanCode,
		PurchasedAt: p.PurchasedAt.UnixMilli(),
		IssuedAt:    p.IssuedAt.UnixMilli(),
		Quantity:    normalizeQuantity(p.Quantity),
	}
	w.Signature = c.signer.Sign(canonicalFields(w))

	data, err := json.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

// Decode parses, verifies and staleness-checks a wire string. The three
// failure modes come back as typed errors so the validation engine can map
// them to rejection reasons.
func (c *Codec) Decode(wire string) (*models.TicketPayload, error) {
	data, err := base64.URLEncoding.DecodeString(wire)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	var w wirePayload
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if w.TicketID == "" || w.EventID == "" || w.HolderID == "" || w.HumanCode == "" ||
		w.PurchasedAt == 0 || w.IssuedAt == 0 || w.Signature == "" {
		return nil, fmt.Errorf("%w: missing field", ErrMalformedPayload)
	}
	if w.Quantity < 0 {
		return nil, fmt.Errorf("%w: negative quantity", ErrMalformedPayload)
	}

	if !c.signer.Verify(canonicalFields(w), w.Signature) {
		return nil, ErrForgedOrCorrupted
	}

	issuedAt := time.UnixMilli(w.IssuedAt).UTC()
	if c.now().Sub(issuedAt) > c.maxAge {
		return nil, ErrPayloadExpired
	}

	return &models.TicketPayload{
		TicketID:    w.TicketID,
		EventID:     w.EventID,
		HolderID:    w.HolderID,
		HumanCode:   w.HumanCode,
		PurchasedAt: time.UnixMilli(w.PurchasedAt).UTC(),
		IssuedAt:    issuedAt,
		Quantity:    normalizeQuantity(w.Quantity),
		Signature:   w.Signature,
	}, nil
}

// canonicalFields fixes the concatenation order the signature covers. The
// serialization format around it can change; this order cannot.
func canonicalFields(w wirePayload) []string {
	return []string{
		w.TicketID,
		w.EventID,
		w.HolderID,
		w.HumanCode,
		strconv.FormatInt(w.PurchasedAt, 10),
		strconv.FormatInt(w.IssuedAt, 10),
		strconv.Itoa(normalizeQuantity(w.Quantity)),
	}
}

// Quantity is optional metadata; absent means a single admission.
func normalizeQuantity(q int) int {
	if q < 1 {
		return 1
	}
	return q
}
