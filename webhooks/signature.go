package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

const signaturePrefix = "sha256="

// VerifySignature reports whether signature is the hex HMAC-SHA-256 of
// payload under secret. An optional "sha256=" prefix on the signature is
// tolerated. Comparison is constant time.
func VerifySignature(payload []byte, signature string, secret string) bool {
	signature = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(signature), signaturePrefix))
	if signature == "" || strings.TrimSpace(secret) == "" {
		return false
	}
	decoded, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	expected := mac.Sum(nil)

	return subtle.ConstantTimeCompare(decoded, expected) == 1
}

// SignPayload produces the hex HMAC-SHA-256 a sender would attach.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// PayloadHash returns a deterministic digest over (eventType, data). The
// JSON encoder emits map keys in sorted order, so semantically identical
// data always canonicalizes to the same bytes.
func PayloadHash(eventType string, data map[string]any) (string, error) {
	canonical, err := json.Marshal(struct {
		EventType string         `json:"eventType"`
		Data      map[string]any `json:"data"`
	}{
		EventType: strings.TrimSpace(eventType),
		Data:      data,
	})
	if err != nil {
		return "", fmt.Errorf("webhooks: canonicalize payload: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
