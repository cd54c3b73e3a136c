package utils

import (
	"crypto/rand"
	"math/big"
)

// CodeAlphabet is the set of characters access codes are drawn from
const CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateCode returns n characters picked uniformly from CodeAlphabet
func GenerateCode(n int) (string, error) {
	if n <= 0 {
		n = 8
	}
	max := big.NewInt(int64(len(CodeAlphabet)))
	b := make([]byte, n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = CodeAlphabet[idx.Int64()]
	}
	return string(b), nil
}
