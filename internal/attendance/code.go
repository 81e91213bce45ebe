package attendance

import (
	"crypto/rand"
	"fmt"
)

// codeAlphabet leaves out 0/O and 1/I so codes survive being read aloud.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const codeLength = 8

// maxCodeAttempts bounds retries when a generated code collides with a stored one.
const maxCodeAttempts = 5

// NewSessionCode returns a random session code.
func NewSessionCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
