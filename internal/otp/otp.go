package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
)

// CodeLength is the number of digits in a generated code.
const CodeLength = 6

// GenerateCode returns a random numeric code of CodeLength digits, drawn from
// crypto/rand so the full 10^6 space is uniformly covered.
func GenerateCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < CodeLength; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate otp code: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeLength, n), nil
}

// Hasher computes one-way hashes of OTP codes. Codes are hashed as
// SHA-256(phone:code:salt) so the stored hash is bound to the phone the code
// was issued for; the salt is a server-side secret, never stored next to the
// hash. The 6-digit space is additionally gated by the attempt limit.
type Hasher struct {
	salt string
}

// NewHasher creates a Hasher with the given server salt.
func NewHasher(salt string) *Hasher {
	return &Hasher{salt: salt}
}

// Hash returns the hex-encoded hash of the code for the given phone.
func (h *Hasher) Hash(phone, code string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s", phone, code, h.salt)))
	return hex.EncodeToString(sum[:])
}

// Verify compares the submitted code against a stored hash in constant time.
func (h *Hasher) Verify(phone, code, storedHex string) bool {
	computed := h.Hash(phone, code)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHex)) == 1
}
