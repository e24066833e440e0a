package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
)

// Vendor-response tokens are the sole lookup key on the public response
// endpoint, so uniqueness rests on entropy, not on a central counter.

const vendorTokenBytes = 24

var vendorTokenPattern = regexp.MustCompile(`^[0-9a-f]{48}$`)

// NewVendorToken returns a high-entropy hex token for a vendor request.
func NewVendorToken() (string, error) {
	return randomHex(vendorTokenBytes)
}

// ValidVendorToken reports whether s matches the vendor token format. Used
// to reject malformed input cheaply before any database lookup.
func ValidVendorToken(s string) bool {
	return vendorTokenPattern.MatchString(s)
}

// NewOrderSuffix returns a short random suffix for human-readable order
// numbers.
func NewOrderSuffix() (string, error) {
	s, err := randomHex(3)
	if err != nil {
		return "", err
	}
	return s, nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
