package hotswap

import (
	"crypto/hmac"
	"crypto/sha256"
)

// Signer provides tamper evidence for committed payloads. The engine treats
// it as opaque and acts only on the Verify verdict.
type Signer interface {
	Sign(payload []byte) ([]byte, error)
	Verify(payload, signature []byte) bool
}

// HMACSigner signs with HMAC-SHA256 under a shared key.
type HMACSigner struct {
	Key []byte
}

func (s HMACSigner) Sign(payload []byte) ([]byte, error) {
	mac := hmac.New(sha256.New, s.Key)
	mac.Write(payload)
	return mac.Sum(nil), nil
}

func (s HMACSigner) Verify(payload, signature []byte) bool {
	want, _ := s.Sign(payload)
	return hmac.Equal(want, signature)
}
