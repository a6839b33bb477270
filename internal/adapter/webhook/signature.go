// Package webhook is the HTTP ingress: it authenticates GitHub deliveries,
// classifies them, and admits the resulting jobs to the queue.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// signaturePrefix is the scheme GitHub prepends to the hex digest in the
// X-Hub-Signature-256 header.
const signaturePrefix = "sha256="

// VerifySignature checks the delivery's HMAC-SHA256 signature against the
// shared webhook secret. The returned error describes the failure for logs;
// callers must answer the client with a generic message.
func VerifySignature(secret string, body []byte, header string) error {
	if secret == "" {
		return fmt.Errorf("webhook secret is not configured")
	}
	if header == "" {
		return fmt.Errorf("missing signature header")
	}
	if !strings.HasPrefix(header, signaturePrefix) {
		return fmt.Errorf("signature header has unexpected scheme")
	}

	received, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return fmt.Errorf("signature is not valid hex")
	}

	expected := ComputeSignature(secret, body)
	if len(received) != len(expected) {
		return fmt.Errorf("signature length mismatch")
	}
	if !hmac.Equal(received, expected) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

// ComputeSignature returns the raw HMAC-SHA256 digest of body under secret.
func ComputeSignature(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

// SignBody renders the signature header value for a body, used by tests and
// diagnostics.
func SignBody(secret string, body []byte) string {
	return signaturePrefix + hex.EncodeToString(ComputeSignature(secret, body))
}

// BodyDigest returns the SHA-256 of the delivery body, safe to log in place
// of the body itself.
func BodyDigest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
