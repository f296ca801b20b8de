package wire

import (
	"strconv"
	"time"
)

// FormatTime renders t as the modeled provider's wire convention:
// RFC-3339 with millisecond precision and a literal "Z" suffix, never a
// numeric offset.
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// FormatGeneration stringifies generation/metageneration counters; the
// wire format carries these as strings so large integers survive
// JavaScript's float64 round-trip.
func FormatGeneration(g int64) string {
	return strconv.FormatInt(g, 10)
}
