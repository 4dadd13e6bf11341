package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
)

const (
	// SignaturePrefix is prepended to the hex digest of every request signature
	SignaturePrefix = "sha256="

	codeMin = 100000
	codeMax = 999999
)

var codeSpan = big.NewInt(codeMax - codeMin + 1)

// GenerateCode returns a uniformly random 6-digit code in [100000, 999999]
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpan)
	if err != nil {
		return "", fmt.Errorf("failed to generate random number: %w", err)
	}

	return fmt.Sprintf("%d", n.Int64()+codeMin), nil
}

// Sign computes the HMAC-SHA256 of payload formatted as "sha256=<hex>"
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is the valid signature of payload under secret.
// The comparison runs in constant time for equal-length inputs.
func Verify(payload []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}

	expected := Sign(payload, secret)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
