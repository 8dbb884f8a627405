package codes

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Generate returns a uniformly random string of length decimal digits drawn
// from crypto/rand.
func Generate(length int) (string, error) {
	if length <= 0 || length > 18 {
		return "", fmt.Errorf("codes: invalid length %d", length)
	}
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("codes: read random: %w", err)
	}
	return fmt.Sprintf("%0*d", length, n), nil
}
