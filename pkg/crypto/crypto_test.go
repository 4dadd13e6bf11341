package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-that-is-at-least-32-characters-long"

func TestGenerateCode_Format(t *testing.T) {
	codeRegex := regexp.MustCompile(`^\d{6}$`)

	for i := 0; i < 1000; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		assert.Regexp(t, codeRegex, code)

		n, err := strconv.Atoi(code)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 100000)
		assert.LessOrEqual(t, n, 999999)
	}
}

func TestGenerateCode_Uncorrelated(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		seen[code] = struct{}{}
	}

	// 100 draws from 900000 values; collisions beyond a handful mean a broken source
	assert.Greater(t, len(seen), 95)
}

func TestSign(t *testing.T) {
	body := []byte(`{"phoneNumber":"+15551234567"}`)

	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	assert.Equal(t, expected, Sign(body, testSecret))
}

func TestVerify_Valid(t *testing.T) {
	body := []byte(`{"phoneNumber":"+15551234567"}`)
	assert.True(t, Verify(body, Sign(body, testSecret), testSecret))
}

func TestVerify_BodyBitFlip(t *testing.T) {
	body := []byte(`{"phoneNumber":"+15551234567"}`)
	signature := Sign(body, testSecret)

	for i := range body {
		for bit := 0; bit < 8; bit++ {
			mutated := append([]byte(nil), body...)
			mutated[i] ^= 1 << bit
			assert.False(t, Verify(mutated, signature, testSecret), "byte %d bit %d", i, bit)
		}
	}
}

func TestVerify_SignatureBitFlip(t *testing.T) {
	body := []byte(`{"phoneNumber":"+15551234567"}`)
	signature := []byte(Sign(body, testSecret))

	for i := range signature {
		for bit := 0; bit < 8; bit++ {
			mutated := append([]byte(nil), signature...)
			mutated[i] ^= 1 << bit
			assert.False(t, Verify(body, string(mutated), testSecret), "byte %d bit %d", i, bit)
		}
	}
}

func TestVerify_Malformed(t *testing.T) {
	body := []byte(`{"phoneNumber":"+15551234567"}`)
	valid := Sign(body, testSecret)

	testCases := []struct {
		name      string
		signature string
		secret    string
	}{
		{name: "empty signature", signature: "", secret: testSecret},
		{name: "missing prefix", signature: valid[len(SignaturePrefix):], secret: testSecret},
		{name: "truncated", signature: valid[:len(valid)-1], secret: testSecret},
		{name: "extended", signature: valid + "0", secret: testSecret},
		{name: "uppercase hex", signature: "sha256=" + upper(valid[len(SignaturePrefix):]), secret: testSecret},
		{name: "wrong secret", signature: valid, secret: testSecret + "x"},
		{name: "empty secret", signature: valid, secret: ""},
		{name: "garbage", signature: "not-a-signature", secret: testSecret},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.False(t, Verify(body, tc.signature, tc.secret))
		})
	}
}

func upper(s string) string {
	out := []byte(s)
	for i, c := range out {
		if c >= 'a' && c <= 'f' {
			out[i] = c - 'a' + 'A'
		}
	}
	return string(out)
}
