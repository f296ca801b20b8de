package wire

import (
	"testing"
	"time"
)

func TestFormatTime(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	in := time.Date(2024, 6, 1, 17, 4, 5, 123456789, loc)
	got := FormatTime(in)
	// rendered in UTC, ms precision, literal Z suffix
	if got != "2024-06-01T12:04:05.123Z" {
		t.Errorf("FormatTime = %q", got)
	}
}

func TestFormatGeneration(t *testing.T) {
	if got := FormatGeneration(1); got != "1" {
		t.Errorf("FormatGeneration(1) = %q", got)
	}
	// large values survive as strings, never float64
	if got := FormatGeneration(1 << 62); got != "4611686018427387904" {
		t.Errorf("FormatGeneration(1<<62) = %q", got)
	}
}
