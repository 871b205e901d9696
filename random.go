package ddbtest

import "math/rand/v2"

// DefaultAlphabet is the character pool RandomString draws from.
const DefaultAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandomString returns length characters sampled uniformly from
// DefaultAlphabet.
func RandomString(length int) string {
	return RandomStringFrom(length, DefaultAlphabet)
}

// RandomStringFrom returns length characters sampled uniformly and
// independently from alphabet.
func RandomStringFrom(length int, alphabet string) string {
	if length <= 0 {
		return ""
	}

	pool := []rune(alphabet)
	if len(pool) == 0 {
		panic("RandomStringFrom: empty alphabet")
	}

	out := make([]rune, length)
	for i := range out {
		out[i] = pool[rand.IntN(len(pool))]
	}

	return string(out)
}

// RandomBytes returns length uniformly random bytes.
func RandomBytes(length int) []byte {
	if length < 0 {
		length = 0
	}

	out := make([]byte, length)
	for i := range out {
		out[i] = byte(rand.IntN(256))
	}

	return out
}
