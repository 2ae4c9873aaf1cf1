package payload_test

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"ms-gatepass/internal/models"
	"ms-gatepass/internal/payload"
	"ms-gatepass/internal/signer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T, opts ...payload.Option) *payload.Codec {
	t.Helper()
	s, err := signer.New("test-secret-key")
	require.NoError(t, err)
	return payload.NewCodec(s, opts...)
}

func samplePayload() models.TicketPayload {
	return models.TicketPayload{
		TicketID:    "7b1d6d0e-54f5-4a1a-9a9f-0b8f9a1c2d3e",
		EventID:     "event-1",
		HolderID:    "holder-1",
		HumanCode:   "GP-2026-AB12CD34EF",
		PurchasedAt: time.Date(2026, 3, 10, 18, 30, 0, 0, time.UTC),
		IssuedAt:    time.Date(2026, 3, 10, 18, 31, 12, 0, time.UTC),
		Quantity:    2,
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	codec := newTestCodec(t, payload.WithClock(func() time.Time {
		return time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	}))

	p := samplePayload()
	wire, err := codec.Encode(p)
	require.NoError(t, err)
	assert.NotEmpty(t, wire)

	decoded, err := codec.Decode(wire)
	require.NoError(t, err)

	assert.Equal(t, p.TicketID, decoded.TicketID)
	assert.Equal(t, p.EventID, decoded.EventID)
	assert.Equal(t, p.HolderID, decoded.HolderID)
	assert.Equal(t, p.HumanCode, decoded.HumanCode)
	assert.Equal(t, p.Quantity, decoded.Quantity)
	assert.True(t, p.PurchasedAt.Equal(decoded.PurchasedAt))
	assert.True(t, p.IssuedAt.Equal(decoded.IssuedAt))
	assert.NotEmpty(t, decoded.Signature)
}

func TestDecodeRejectsMutatedFields(t *testing.T) {
	codec := newTestCodec(t, payload.WithClock(func() time.Time {
		return time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	}))

	wire, err := codec.Encode(samplePayload())
	require.NoError(t, err)

	data, err := base64.URLEncoding.DecodeString(wire)
	require.NoError(t, err)

	mutations := map[string]func(m map[string]any){
		"ticket_id":   func(m map[string]any) { m["ticket_id"] = "other-ticket" },
		"event_id":    func(m map[string]any) { m["event_id"] = "event-2" },
		"holder_id":   func(m map[string]any) { m["holder_id"] = "holder-2" },
		"human_code":  func(m map[string]any) { m["human_code"] = "GP-2026-ZZZZZZZZZZ" },
		"purchase_ts": func(m map[string]any) { m["purchase_ts"] = float64(1700000000000) },
		"issued_at":   func(m map[string]any) { m["issued_at"] = float64(1765000000000) },
		"quantity":    func(m map[string]any) { m["quantity"] = float64(9) },
	}

	for field, mutate := range mutations {
		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		mutate(m)
		tampered, err := json.Marshal(m)
		require.NoError(t, err)

		_, err = codec.Decode(base64.URLEncoding.EncodeToString(tampered))
		assert.ErrorIs(t, err, payload.ErrForgedOrCorrupted, "mutating %s must invalidate the signature", field)
	}
}

func TestDecodeRejectsByteFlip(t *testing.T) {
	codec := newTestCodec(t, payload.WithClock(func() time.Time {
		return time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	}))

	wire, err := codec.Encode(samplePayload())
	require.NoError(t, err)

	data, err := base64.URLEncoding.DecodeString(wire)
	require.NoError(t, err)
	// Flip a bit inside the JSON body. Depending on where it lands the
	// result is either unparseable or parseable with a broken signature.
	data[len(data)/2] ^= 0x01
	flipped := base64.URLEncoding.EncodeToString(data)

	_, err = codec.Decode(flipped)
	require.Error(t, err)
	assert.True(t,
		errors.Is(err, payload.ErrForgedOrCorrupted) || errors.Is(err, payload.ErrMalformedPayload),
		"byte flip must decode as forged or malformed, got %v", err)
}

func TestDecodeMalformedInput(t *testing.T) {
	codec := newTestCodec(t)

	cases := map[string]string{
		"not base64":  "%%%not-base64%%%",
		"not json":    base64.URLEncoding.EncodeToString([]byte("plain text")),
		"empty json":  base64.URLEncoding.EncodeToString([]byte("{}")),
		"missing sig": base64.URLEncoding.EncodeToString([]byte(`{"ticket_id":"t","event_id":"e","holder_id":"h","human_code":"c","purchase_ts":1,"issued_at":1}`)),
	}

	for name, wire := range cases {
		_, err := codec.Decode(wire)
		assert.ErrorIs(t, err, payload.ErrMalformedPayload, name)
	}
}

func TestDecodeRejectsStalePayload(t *testing.T) {
	issued := time.Date(2026, 3, 10, 18, 31, 12, 0, time.UTC)

	encodeCodec := newTestCodec(t)
	p := samplePayload()
	p.IssuedAt = issued
	wire, err := encodeCodec.Encode(p)
	require.NoError(t, err)

	// Just inside the one-year window.
	fresh := newTestCodec(t, payload.WithClock(func() time.Time {
		return issued.Add(payload.DefaultMaxAge - time.Second)
	}))
	_, err = fresh.Decode(wire)
	assert.NoError(t, err)

	// Just past it.
	stale := newTestCodec(t, payload.WithClock(func() time.Time {
		return issued.Add(payload.DefaultMaxAge + time.Second)
	}))
	_, err = stale.Decode(wire)
	assert.ErrorIs(t, err, payload.ErrPayloadExpired)
}

func TestQuantityDefaultsToOne(t *testing.T) {
	codec := newTestCodec(t, payload.WithClock(func() time.Time {
		return time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	}))

	p := samplePayload()
	p.Quantity = 0
	wire, err := codec.Encode(p)
	require.NoError(t, err)

	decoded, err := codec.Decode(wire)
	require.NoError(t, err)
	assert.Equal(t, 1, decoded.Quantity)
}
