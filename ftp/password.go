package ftp

import (
	"crypto/rand"
	"fmt"
)

// PasswordAlphabet is the character set of generated passwords
const PasswordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// DefaultPasswordLength is used when no length is configured
const DefaultPasswordLength = 12

// GeneratePassword returns a password drawn uniformly from PasswordAlphabet.
func GeneratePassword(length int) (string, error) {
	if length <= 0 {
		length = DefaultPasswordLength
	}
	// largest multiple of the alphabet size that fits in a byte
	limit := byte(256 - 256%len(PasswordAlphabet))

	out := make([]byte, 0, length)
	buf := make([]byte, length*2)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, PasswordAlphabet[int(b)%len(PasswordAlphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}
