package alert

import (
	"testing"
	"time"
)

func TestParseOffsetValid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{raw: "PT0S", want: 0},
		{raw: "PT5M", want: 5 * time.Minute},
		{raw: "-PT5M", want: -5 * time.Minute},
		{raw: "+PT5M", want: 5 * time.Minute},
		{raw: "-PT15M", want: -15 * time.Minute},
		{raw: "PT1H", want: time.Hour},
		{raw: "-PT1H30M", want: -(time.Hour + 30*time.Minute)},
		{raw: "P1D", want: 24 * time.Hour},
		{raw: "-P1D", want: -24 * time.Hour},
		{raw: "P2DT3H4M5S", want: 2*24*time.Hour + 3*time.Hour + 4*time.Minute + 5*time.Second},
		{raw: "-P0DT0H0M0S", want: 0},
		{raw: "PT90M", want: 90 * time.Minute},
		{raw: "PT3600S", want: time.Hour},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			got, err := ParseOffset(tt.raw)
			if err != nil {
				t.Fatalf("ParseOffset(%q) error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("ParseOffset(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseOffsetInvalid(t *testing.T) {
	t.Parallel()
	invalid := []string{
		"",
		"P",
		"PT",
		"-PT",
		"P1DT",
		"5M",
		"PT5",
		"PTM",
		"P1W",
		"P1M",   // months are not in the grammar
		"PT5M!", // trailing garbage
		"PT5M3H",
		"P1D2H",
		"pt5m",
		"--PT5M",
		"P-1D",
		"PT1.5H",
		"ten minutes",
	}

	for _, raw := range invalid {
		if _, err := ParseOffset(raw); err == nil {
			t.Fatalf("ParseOffset(%q): expected error", raw)
		}
	}
}
