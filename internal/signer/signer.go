package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

// fieldSeparator joins the canonical field tuple before the HMAC is taken.
// Payload fields never contain it (ids are uuids / alphanumeric codes,
// timestamps are integers).
const fieldSeparator = "|"

var ErrEmptySecret = errors.New("signing secret must not be empty")

// Signer produces and verifies keyed HMAC-SHA256 stamps over an ordered
// field tuple. The primary secret signs; verification also accepts any
// grace secret so that rotation can run with old payloads still in the
// wild. Secrets are held in memory only and are never serialized.
type Signer struct {
	primary []byte
	grace   [][]byte
}

// New builds a Signer from the primary secret plus any previous secrets
// still inside their rotation grace window.
func New(secret string, previous ...string) (*Signer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	s := &Signer{primary: []byte(secret)}
	for _, p := range previous {
		if p == "" {
			continue
		}
		s.grace = append(s.grace, []byte(p))
	}
	return s, nil
}

// Sign returns the HMAC-SHA256 of the fields joined in the given order,
// base64url encoded. Deterministic: same fields and secret, same signature.
func (s *Signer) Sign(fields []string) string {
	return s.stamp(s.primary, fields)
}

// Verify recomputes the signature under the primary and every grace secret
// and compares in constant time. A failed verification is an ordinary
// outcome, not an error.
func (s *Signer) Verify(fields []string, signature string) bool {
	if hmac.Equal([]byte(s.stamp(s.primary, fields)), []byte(signature)) {
		return true
	}
	for _, g := range s.grace {
		if hmac.Equal([]byte(s.stamp(g, fields)), []byte(signature)) {
			return true
		}
	}
	return false
}

func (s *Signer) stamp(secret []byte, fields []string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strings.Join(fields, fieldSeparator)))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
