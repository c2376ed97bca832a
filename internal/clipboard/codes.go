package clipboard

import (
	"crypto/rand"
	"fmt"
	"regexp"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// CodeLength is the fixed length of a room code.
	CodeLength = 4
	// maxCodeAttempts bounds the generate-and-check loop so a nearly
	// full code space fails loudly instead of spinning.
	maxCodeAttempts = 50
)

var codePattern = regexp.MustCompile(fmt.Sprintf("^[A-Z0-9]{%d}$", CodeLength))

// ValidCode reports whether code is a well-formed room code. It says
// nothing about whether the room exists.
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// generateCode produces a random candidate room code. Uniqueness is the
// caller's problem.
func generateCode() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}

	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}

	return string(buf), nil
}
