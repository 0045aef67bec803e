package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	pkgerrors "github.com/asbolsyn/mealmarket-backend/pkg/errors"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Signature"

// Verifier authenticates webhook bodies. With no secret configured every
// body is accepted.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(strings.TrimSpace(secret))}
}

func (v *Verifier) Enabled() bool {
	return v != nil && len(v.secret) > 0
}

func (v *Verifier) Verify(body []byte, signature string) error {
	if !v.Enabled() {
		return nil
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(got) == 0 {
		return pkgerrors.New(pkgerrors.CodeInvalidWebhook, "invalid webhook signature")
	}
	if !hmac.Equal(got, v.sign(body)) {
		return pkgerrors.New(pkgerrors.CodeInvalidWebhook, "invalid webhook signature")
	}
	return nil
}

// Sign returns the hex signature for body; used by tests and local tooling.
func (v *Verifier) Sign(body []byte) string {
	return hex.EncodeToString(v.sign(body))
}

func (v *Verifier) sign(body []byte) []byte {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return mac.Sum(nil)
}
