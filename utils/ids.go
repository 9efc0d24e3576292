package utils

import (
	"crypto/rand"
	"fmt"
	"time"
)

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// RandomSuffix returns n random base36 characters. Falls back to a
// timestamp-derived string if the system randomness source fails.
func RandomSuffix(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%0*d", n, time.Now().UnixNano()%1_000_000_000)[:n]
	}
	for i := range b {
		b[i] = base36[int(b[i])%len(base36)]
	}
	return string(b)
}

// NewDeviceID generates a fresh device identifier. Collision-resistant in
// practice (time prefix + random suffix) but uniqueness is best-effort.
func NewDeviceID() string {
	return fmt.Sprintf("device_%d_%s", time.Now().UnixMilli(), RandomSuffix(9))
}

// NewEventID generates a fresh event identifier in the same shape.
func NewEventID() string {
	return fmt.Sprintf("event_%d_%s", time.Now().UnixMilli(), RandomSuffix(9))
}
