package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"math/big"
)

// releaseCodeAlphabet omits 0/O/1/I so codes survive being read aloud.
const releaseCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const releaseCodeLength = 8

// NewReleaseCode returns a single-use escrow release code drawn from
// crypto/rand. 8 characters over a 32-symbol alphabet gives 40 bits,
// far beyond what the constant-time check lets an attacker probe.
func NewReleaseCode() (string, error) {
	max := big.NewInt(int64(len(releaseCodeAlphabet)))
	buf := make([]byte, releaseCodeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = releaseCodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// CodeMatches compares a stored release code with a supplied one in
// constant time. Both sides are hashed first so length differences do
// not short-circuit the comparison.
func CodeMatches(stored, supplied string) bool {
	if stored == "" {
		return false
	}
	a := sha256.Sum256([]byte(stored))
	b := sha256.Sum256([]byte(supplied))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
