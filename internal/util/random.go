// Package util provides small helpers shared across the Avellano bot components.
package util

import (
	"math/rand/v2"
	"strings"
)

// GenerateRandomID returns "{prefix}{hex}" with hexLength random hex characters.
// The ids are not secret; they key outbox and job rows.
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex returns a random lowercase hexadecimal string of the given length.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}
	const hexChars = "0123456789abcdef"
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		b.WriteByte(hexChars[rand.IntN(16)])
	}
	return b.String()
}
