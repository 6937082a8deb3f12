package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDueDate(t *testing.T) {
	cases := []struct {
		name  string
		start string
		freq  Frequency
		n     int
		want  string
	}{
		{"index zero is start", "2025-01-15", Monthly, 0, "2025-01-15"},
		{"monthly three", "2025-01-15", Monthly, 3, "2025-04-15"},
		{"monthly across year", "2025-11-10", Monthly, 3, "2026-02-10"},
		{"quarterly two", "2025-01-01", Quarterly, 2, "2025-07-01"},
		{"yearly one", "2025-06-01", Yearly, 1, "2026-06-01"},
		{"monthly clamps to february", "2025-01-31", Monthly, 1, "2025-02-28"},
		{"monthly clamps to leap february", "2024-01-31", Monthly, 1, "2024-02-29"},
		{"monthly returns to day 31", "2025-01-31", Monthly, 2, "2025-03-31"},
		{"monthly clamps to 30 day month", "2025-01-31", Monthly, 3, "2025-04-30"},
		{"quarterly clamps", "2025-08-31", Quarterly, 1, "2025-11-30"},
		{"yearly leap day clamps", "2024-02-29", Yearly, 1, "2025-02-28"},
		{"yearly leap day restores", "2024-02-29", Yearly, 4, "2028-02-29"},
		{"unknown frequency yields start", "2025-05-05", Frequency("weekly"), 4, "2025-05-05"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start := mustDate(t, tc.start)
			got := DueDate(start, tc.freq, tc.n)
			assert.Equal(t, tc.want, got.String())
		})
	}
}

func TestDueDateQuarterlyMatchesThreeMonths(t *testing.T) {
	for _, start := range []string{"2025-01-01", "2025-01-31", "2024-02-29", "2023-12-15"} {
		s := mustDate(t, start)
		for k := 0; k < 40; k++ {
			assert.Truef(t, DueDate(s, Quarterly, k).Equal(DueDate(s, Monthly, 3*k)),
				"start %s k=%d", start, k)
		}
	}
}

func TestDueDateMonotonic(t *testing.T) {
	for _, freq := range []Frequency{Monthly, Quarterly, Yearly} {
		start := NewDate(2024, 1, 31)
		prev := DueDate(start, freq, 0)
		for n := 1; n < 150; n++ {
			next := DueDate(start, freq, n)
			assert.Truef(t, next.After(prev), "%s n=%d: %s not after %s", freq, n, next, prev)
			prev = next
		}
	}
}

func TestDueDateHasNoTimeOfDay(t *testing.T) {
	d := DueDate(NewDate(2025, 3, 15), Monthly, 7)
	assert.Equal(t, 0, d.Hour())
	assert.Equal(t, 0, d.Minute())
	assert.Equal(t, "UTC", d.Location().String())
}

func mustDate(t *testing.T, s string) Date {
	t.Helper()
	d, err := ParseDate(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return d
}
