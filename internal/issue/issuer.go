package issue

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"time"

	"ms-gatepass/internal/models"
	"ms-gatepass/internal/payload"

	"github.com/google/uuid"
)

// Human code format: short prefix + issuance year + random alphanumeric
// suffix. The alphabet drops 0/O/1/I/L to keep codes readable over the
// phone; 10 characters of it give well over 10^15 combinations, so
// collisions are negligible and the store's unique index is a backstop.
const (
	codePrefix      = "GP"
	codeSuffixLen   = 10
	codeAlphabet    = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"
	humanCodeFormat = `^GP-\d{4}-[23456789ABCDEFGHJKMNPQRSTUVWXYZ]{10}$`
)

var humanCodeRe = regexp.MustCompile(humanCodeFormat)

var (
	ErrPaymentNotSettled = errors.New("payment has not reached a terminal success state")
	ErrInvalidQuantity   = errors.New("purchase quantity must be at least 1")
)

// IsHumanCode reports whether a scanned string is a staff-entered human
// code rather than QR wire content.
func IsHumanCode(s string) bool {
	return humanCodeRe.MatchString(s)
}

// Issuance is everything the purchase flow needs after a confirmed
// purchase: the QR wire string, the staff-facing code, and the ticket
// record the caller must persist atomically with its purchase transaction.
type Issuance struct {
	Ticket    models.Ticket
	Payload   models.TicketPayload
	Wire      string
	HumanCode string
}

// Issuer turns confirmed purchases into QR-ready content. It performs no
// persistence of its own.
type Issuer struct {
	codec *payload.Codec
	now   func() time.Time
}

type Option func(*Issuer)

// WithClock injects the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

func NewIssuer(codec *payload.Codec, opts ...Option) *Issuer {
	i := &Issuer{codec: codec, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue allocates a ticket id and human code, builds the signed payload and
// encodes it. It refuses any purchase whose payment is not terminal-success;
// the zero-amount free path counts as success.
func (i *Issuer) Issue(purchase models.ConfirmedPurchase) (*Issuance, error) {
	if !purchase.PaymentStatus.TerminalSuccess() {
		return nil, fmt.Errorf("%w: status %q", ErrPaymentNotSettled, purchase.PaymentStatus)
	}
	if purchase.Quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	now := i.now().UTC().Truncate(time.Millisecond)
	code, err := i.newHumanCode(now)
	if err != nil {
		return nil, fmt.Errorf("generate human code: %w", err)
	}

	p := models.TicketPayload{
		TicketID:    uuid.New().String(),
		EventID:     purchase.EventID,
		HolderID:    purchase.HolderID,
		HumanCode:   code,
		PurchasedAt: purchase.PurchasedAt.UTC().Truncate(time.Millisecond),
		IssuedAt:    now,
		Quantity:    purchase.Quantity,
	}

	wire, err := i.codec.Encode(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	ticket := models.Ticket{
		TicketID:      p.TicketID,
		HumanCode:     code,
		OrderID:       purchase.OrderID,
		EventID:       purchase.EventID,
		HolderID:      purchase.HolderID,
		Quantity:      purchase.Quantity,
		Status:        models.TicketActive,
		EventStartsAt: purchase.EventStartsAt.UTC(),
		PurchasedAt:   p.PurchasedAt,
		IssuedAt:      now,
	}

	return &Issuance{
		Ticket:    ticket,
		Payload:   p,
		Wire:      wire,
		HumanCode: code,
	}, nil
}

// Reencode rebuilds wire content for an already issued ticket from its
// stored record. Encoding is deterministic over the canonical fields, so
// the result is byte-identical to the original issuance.
func (i *Issuer) Reencode(ticket models.Ticket) (string, error) {
	return i.codec.Encode(models.TicketPayload{
		TicketID:    ticket.TicketID,
		EventID:     ticket.EventID,
		HolderID:    ticket.HolderID,
		HumanCode:   ticket.HumanCode,
		PurchasedAt: ticket.PurchasedAt,
		IssuedAt:    ticket.IssuedAt,
		Quantity:    ticket.Quantity,
	})
}

func (i *Issuer) newHumanCode(now time.Time) (string, error) {
	suffix := make([]byte, codeSuffixLen)
	max := big.NewInt(int64(len(codeAlphabet)))
	for j := range suffix {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		suffix[j] = codeAlphabet[n.Int64()]
	}
	return fmt.Sprintf("%s-%d-%s", codePrefix, now.Year(), suffix), nil
}
