package progress

import (
	"crypto/rand"
	"regexp"
)

// tokenAlphabet excludes visually ambiguous characters (I, O, 0, 1).
const tokenAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

var tokenPattern = regexp.MustCompile(`^[A-HJ-NP-Z2-9]{4}-[A-HJ-NP-Z2-9]{4}$`)

// GenerateToken returns a new student token of the form XXXX-XXXX.
func GenerateToken() string {
	b := make([]byte, 8)
	rand.Read(b)
	out := make([]byte, 9)
	for i := 0; i < 4; i++ {
		out[i] = tokenAlphabet[int(b[i])%len(tokenAlphabet)]
	}
	out[4] = '-'
	for i := 4; i < 8; i++ {
		out[i+1] = tokenAlphabet[int(b[i])%len(tokenAlphabet)]
	}
	return string(out)
}

// ValidToken reports whether s matches the XXXX-XXXX token format.
func ValidToken(s string) bool {
	return tokenPattern.MatchString(s)
}
