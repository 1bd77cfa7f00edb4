package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

var (
	// ErrMissingSignature is returned when the delivery carries no HMAC header.
	ErrMissingSignature = errors.New("missing webhook signature")
	// ErrSignatureMismatch is returned when the HMAC does not match the payload.
	ErrSignatureMismatch = errors.New("webhook signature mismatch")
)

// Validator checks the HMAC of webhook deliveries.
type Validator struct {
	secret []byte
}

// NewValidator creates a validator keyed by the app's API secret.
func NewValidator(secret string) *Validator {
	return &Validator{secret: []byte(secret)}
}

// Validate compares signature, the base64 HMAC-SHA256 of the raw payload,
// against the expected value in constant time.
func (v *Validator) Validate(payload []byte, signature string) error {
	if signature == "" {
		return ErrMissingSignature
	}
	if len(v.secret) == 0 {
		return fmt.Errorf("webhook secret not configured")
	}

	provided, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: signature is not base64", ErrSignatureMismatch)
	}

	if !hmac.Equal(v.compute(payload), provided) {
		return ErrSignatureMismatch
	}
	return nil
}

// Sign returns the signature a sender would put on payload.
func (v *Validator) Sign(payload []byte) string {
	return base64.StdEncoding.EncodeToString(v.compute(payload))
}

func (v *Validator) compute(payload []byte) []byte {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	return mac.Sum(nil)
}
