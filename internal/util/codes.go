package util

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
)

// userCodeAlphabet avoids confusing characters: 0, O, 1, I, L
const userCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// UserCodeLength is the number of alphabet characters in a user code,
// displayed as two hyphen-separated groups of four.
const UserCodeLength = 8

// NewDeviceCode generates an opaque high-entropy device code: 32 bytes of
// cryptographically secure randomness in URL-safe, padding-free encoding.
func NewDeviceCode() (string, error) {
	buf, err := CryptoRandomBytes(32)
	if err != nil {
		return "", fmt.Errorf("failed to generate device code: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewUserCode creates a short, human-typeable code like "ABCDEFGH"
// (stored without the display hyphen).
func NewUserCode() (string, error) {
	code := make([]byte, UserCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(userCodeAlphabet))))
		if err != nil {
			return "", fmt.Errorf("failed to generate user code: %w", err)
		}
		code[i] = userCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}

// FormatUserCode formats a user code for display (e.g., "ABCDEFGH" -> "ABCD-EFGH")
func FormatUserCode(code string) string {
	if len(code) != UserCodeLength {
		return code
	}
	return code[:4] + "-" + code[4:]
}

// NormalizeUserCode uppercases a user code and strips the display hyphen,
// so "abcd-efgh" resolves the same record as "ABCDEFGH".
func NormalizeUserCode(code string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
}
