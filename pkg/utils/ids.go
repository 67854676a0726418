package utils

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateID returns a random identifier used for alerts and ticks
func GenerateID() string {
	return uuid.NewString()
}

// ShortID returns the first segment of a generated ID, handy for log correlation
func ShortID() string {
	id := GenerateID()
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

// NormalizeChainName lower-cases and trims a user supplied chain name
func NormalizeChainName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
