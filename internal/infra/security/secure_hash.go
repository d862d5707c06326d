// File: internal/infra/security/secure_hash.go
package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"event-billing/internal/domain"
	"event-billing/internal/domain/model"
	"event-billing/internal/domain/ports/adapter"
)

var _ adapter.RequestSigner = (*HashSigner)(nil)

// Canonical key order. The gateway recomputes the digest over the same string
// and rejects any mismatch, so this order is a wire contract.
var canonicalKeys = []string{
	"Amount",
	"CurrencyId",
	"MerchantId",
	"MerchantReference",
	"RequestDateTime",
	"SessionToken",
	"TerminalId",
}

// HashSigner computes the SecureHash of payment requests.
// HMAC-SHA256 over the canonical string, keyed with the decoded secret.
type HashSigner struct {
	key []byte
}

// NewHashSigner decodes the hex-encoded shared secret once.
func NewHashSigner(hexKey string) (*HashSigner, error) {
	hexKey = strings.TrimSpace(hexKey)
	if hexKey == "" {
		return nil, fmt.Errorf("%w: empty", domain.ErrSecretKeyInvalid)
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSecretKeyInvalid, err)
	}
	return &HashSigner{key: key}, nil
}

// Canonical renders fields as Key=Value pairs joined by '&' in the fixed key
// order. Missing keys render with an empty value; unknown keys are ignored.
func Canonical(fields map[string]string) string {
	var b strings.Builder
	for i, k := range canonicalKeys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(fields[k])
	}
	return b.String()
}

// Sign returns the uppercase hex HMAC-SHA256 of the canonical string.
func (s *HashSigner) Sign(fields map[string]string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(Canonical(fields)))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

// SignRequest signs the hashed subset of req. The SecureHash field itself is
// not an input.
func (s *HashSigner) SignRequest(req *model.PaymentRequest) string {
	return s.Sign(RequestFields(req))
}

// RequestFields extracts the signed fields of a request.
func RequestFields(req *model.PaymentRequest) map[string]string {
	return map[string]string{
		"Amount":            req.Amount,
		"CurrencyId":        strconv.Itoa(req.CurrencyID),
		"MerchantId":        req.MerchantID,
		"MerchantReference": req.MerchantReference,
		"RequestDateTime":   req.TrxDateTime,
		"SessionToken":      req.SessionToken,
		"TerminalId":        req.TerminalID,
	}
}

// Verify reports whether req carries the digest this signer would compute.
func (s *HashSigner) Verify(req *model.PaymentRequest) bool {
	want := s.SignRequest(req)
	return hmac.Equal([]byte(want), []byte(strings.ToUpper(req.SecureHash)))
}
