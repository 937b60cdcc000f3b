// Package random generates the alphanumeric values used as lookup keys,
// sign-up pins, and temporary passwords.
package random

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Alphanumeric returns a cryptographically random string of the given length
// drawn from [A-Za-z0-9].
func Alphanumeric(length int) (string, error) {
	out := make([]byte, length)
	max := big.NewInt(int64(len(alphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out), nil
}
