package issue_test

import (
	"testing"
	"time"

	"ms-gatepass/internal/issue"
	"ms-gatepass/internal/models"
	"ms-gatepass/internal/payload"
	"ms-gatepass/internal/signer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(t *testing.T) (*issue.Issuer, *payload.Codec) {
	t.Helper()
	s, err := signer.New("test-secret-key")
	require.NoError(t, err)
	codec := payload.NewCodec(s)
	return issue.NewIssuer(codec), codec
}

func confirmedPurchase() models.ConfirmedPurchase {
	return models.ConfirmedPurchase{
		OrderID:       "order-1",
		EventID:       "event-1",
		HolderID:      "holder-1",
		Quantity:      2,
		PaymentStatus: models.PaymentPaid,
		PurchasedAt:   time.Date(2026, 3, 10, 18, 30, 0, 0, time.UTC),
		EventStartsAt: time.Date(2026, 6, 1, 20, 0, 0, 0, time.UTC),
	}
}

func TestIssueProducesDecodablePayload(t *testing.T) {
	issuer, codec := newTestIssuer(t)

	iss, err := issuer.Issue(confirmedPurchase())
	require.NoError(t, err)

	decoded, err := codec.Decode(iss.Wire)
	require.NoError(t, err)

	assert.Equal(t, iss.Ticket.TicketID, decoded.TicketID)
	assert.Equal(t, "event-1", decoded.EventID)
	assert.Equal(t, "holder-1", decoded.HolderID)
	assert.Equal(t, 2, decoded.Quantity)
	assert.Equal(t, iss.HumanCode, decoded.HumanCode, "human code must live inside the signed payload")
}

func TestIssueTicketRecord(t *testing.T) {
	issuer, _ := newTestIssuer(t)

	iss, err := issuer.Issue(confirmedPurchase())
	require.NoError(t, err)

	assert.Equal(t, models.TicketActive, iss.Ticket.Status)
	assert.Equal(t, "order-1", iss.Ticket.OrderID)
	assert.Equal(t, 2, iss.Ticket.Quantity)
	assert.Equal(t, iss.HumanCode, iss.Ticket.HumanCode)
	assert.False(t, iss.Ticket.IssuedAt.IsZero())
	assert.True(t, iss.Ticket.UsedAt.IsZero())
}

func TestIssueHumanCodeFormat(t *testing.T) {
	issuer, _ := newTestIssuer(t)

	iss, err := issuer.Issue(confirmedPurchase())
	require.NoError(t, err)

	assert.True(t, issue.IsHumanCode(iss.HumanCode), "code %q should match the human code format", iss.HumanCode)
	assert.False(t, issue.IsHumanCode(iss.Wire))
}

func TestIssueCodesAreUnique(t *testing.T) {
	issuer, _ := newTestIssuer(t)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		iss, err := issuer.Issue(confirmedPurchase())
		require.NoError(t, err)
		assert.False(t, seen[iss.HumanCode], "duplicate human code %s", iss.HumanCode)
		seen[iss.HumanCode] = true
	}
}

func TestIssueRefusesUnsettledPayment(t *testing.T) {
	issuer, _ := newTestIssuer(t)

	for _, status := range []models.PaymentStatus{
		models.PaymentPending,
		models.PaymentFailed,
		models.PaymentRefunded,
	} {
		p := confirmedPurchase()
		p.PaymentStatus = status
		_, err := issuer.Issue(p)
		assert.ErrorIs(t, err, issue.ErrPaymentNotSettled, "status %s must not issue", status)
	}
}

func TestIssueAllowsFreePurchase(t *testing.T) {
	issuer, _ := newTestIssuer(t)

	p := confirmedPurchase()
	p.PaymentStatus = models.PaymentFree
	_, err := issuer.Issue(p)
	assert.NoError(t, err)
}

func TestIssueRejectsZeroQuantity(t *testing.T) {
	issuer, _ := newTestIssuer(t)

	p := confirmedPurchase()
	p.Quantity = 0
	_, err := issuer.Issue(p)
	assert.ErrorIs(t, err, issue.ErrInvalidQuantity)
}

func TestReencodeMatchesOriginalWire(t *testing.T) {
	issuer, _ := newTestIssuer(t)

	iss, err := issuer.Issue(confirmedPurchase())
	require.NoError(t, err)

	wire, err := issuer.Reencode(iss.Ticket)
	require.NoError(t, err)
	assert.Equal(t, iss.Wire, wire)
}

func TestRenderPNG(t *testing.T) {
	issuer, _ := newTestIssuer(t)

	iss, err := issuer.Issue(confirmedPurchase())
	require.NoError(t, err)

	png, err := issue.RenderPNG(iss.Wire)
	require.NoError(t, err)
	assert.NotEmpty(t, png)
}
