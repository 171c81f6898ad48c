package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// CodeLength is the number of digits in a generated code. Six digits give
// a million possibilities against a five-minute guessing window.
const CodeLength = 6

var codeSpace = big.NewInt(1_000_000)

// Generate returns a zero-padded numeric code from a cryptographic source.
func Generate() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
