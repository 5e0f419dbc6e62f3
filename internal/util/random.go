package util

import (
	"math/rand/v2"
	"strings"
)

// GenerateRandomAlphaNumeric generates a random uppercase alphanumeric string
// of the specified length. Uses math/rand/v2; not for cryptographic use.
func GenerateRandomAlphaNumeric(length int) string {
	if length <= 0 {
		return ""
	}
	const chars = "0123456789ABCDEFGHJKMNPQRSTUVWXYZ" // I, L, O dropped to avoid confusion when read aloud
	var builder strings.Builder
	builder.Grow(length)
	for i := 0; i < length; i++ {
		builder.WriteByte(chars[rand.IntN(len(chars))])
	}
	return builder.String()
}

// GenerateBookingRef generates a booking reference with the "BK-" prefix.
func GenerateBookingRef() string {
	return "BK-" + GenerateRandomAlphaNumeric(8)
}
