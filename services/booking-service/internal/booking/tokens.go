package booking

import (
	"crypto/rand"
	"encoding/base64"
	"math/big"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Management tokens avoid characters that are easy to misread (0/O, 1/I/L).
const (
	managementAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	managementLength   = 12
)

// NewManagementToken returns a random 12-character booking reference.
func NewManagementToken() (string, error) {
	max := big.NewInt(int64(len(managementAlphabet)))
	var b strings.Builder
	b.Grow(managementLength)
	for i := 0; i < managementLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(managementAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeManagementToken upper-cases and trims a presented token and
// reports whether it has the shape of one.
func NormalizeManagementToken(raw string) (string, bool) {
	tok := strings.ToUpper(strings.TrimSpace(raw))
	if len(tok) != managementLength {
		return "", false
	}
	for i := 0; i < len(tok); i++ {
		if strings.IndexByte(managementAlphabet, tok[i]) < 0 {
			return "", false
		}
	}
	return tok, true
}

// HashManagementToken is the form stored in the database; the plain token is
// only ever returned to the booker.
func HashManagementToken(token string) []byte {
	sum := blake2b.Sum256([]byte(token))
	return sum[:]
}

// NewPublishingToken returns an opaque URL-safe token for a booking page.
func NewPublishingToken() (string, error) {
	var b [24]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}
