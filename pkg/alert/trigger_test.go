package alert

import (
	"testing"
	"time"
)

func utc(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func utcPtr(s string) *time.Time {
	t := utc(s)
	return &t
}

func TestComputeFireTimeOffsetFromUTCStart(t *testing.T) {
	t.Parallel()
	ev := &CalendarEvent{
		ID:       "ev1",
		StartUTC: utcPtr("2026-03-01T10:00:00Z"),
	}

	fire, err := ComputeFireTime(ev, OffsetTrigger{Offset: "-PT5M", RelativeTo: AnchorStart})
	if err != nil {
		t.Fatalf("ComputeFireTime error: %v", err)
	}
	if want := utc("2026-03-01T09:55:00Z"); !fire.Equal(want) {
		t.Fatalf("fire = %v, want %v", fire, want)
	}
}

func TestComputeFireTimeUTCAndLocalAgree(t *testing.T) {
	t.Parallel()
	// The same instant, once authoritative, once only as a floating literal.
	withUTC := &CalendarEvent{ID: "a", StartUTC: utcPtr("2026-03-01T10:00:00Z")}
	withLocal := &CalendarEvent{ID: "a", StartLocal: "2026-03-01T10:00:00"}

	trg := OffsetTrigger{Offset: "-PT15M", RelativeTo: AnchorStart}

	f1, err := ComputeFireTime(withUTC, trg)
	if err != nil {
		t.Fatalf("utc variant error: %v", err)
	}
	f2, err := ComputeFireTime(withLocal, trg)
	if err != nil {
		t.Fatalf("local variant error: %v", err)
	}
	if !f1.Equal(f2) {
		t.Fatalf("fire times differ: utc=%v local=%v", f1, f2)
	}
}

func TestComputeFireTimeEndAnchor(t *testing.T) {
	t.Parallel()
	ev := &CalendarEvent{
		ID:       "ev1",
		StartUTC: utcPtr("2026-03-01T10:00:00Z"),
		EndUTC:   utcPtr("2026-03-01T11:00:00Z"),
	}

	fire, err := ComputeFireTime(ev, OffsetTrigger{Offset: "PT10M", RelativeTo: AnchorEnd})
	if err != nil {
		t.Fatalf("ComputeFireTime error: %v", err)
	}
	if want := utc("2026-03-01T11:10:00Z"); !fire.Equal(want) {
		t.Fatalf("fire = %v, want %v", fire, want)
	}
}

func TestComputeFireTimeEndAnchorLocalFallback(t *testing.T) {
	t.Parallel()
	ev := &CalendarEvent{ID: "ev1", EndLocal: "20260301T110000Z"}

	fire, err := ComputeFireTime(ev, OffsetTrigger{Offset: "-PT30M", RelativeTo: AnchorEnd})
	if err != nil {
		t.Fatalf("ComputeFireTime error: %v", err)
	}
	if want := utc("2026-03-01T10:30:00Z"); !fire.Equal(want) {
		t.Fatalf("fire = %v, want %v", fire, want)
	}
}

func TestComputeFireTimeAbsolute(t *testing.T) {
	t.Parallel()
	ev := &CalendarEvent{ID: "ev1"}

	fire, err := ComputeFireTime(ev, AbsoluteTrigger{Instant: "2026-03-01T09:45:00Z"})
	if err != nil {
		t.Fatalf("ComputeFireTime error: %v", err)
	}
	if want := utc("2026-03-01T09:45:00Z"); !fire.Equal(want) {
		t.Fatalf("fire = %v, want %v", fire, want)
	}
}

func TestComputeFireTimeInvalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		ev   *CalendarEvent
		trg  Trigger
	}{
		{
			name: "bad offset",
			ev:   &CalendarEvent{StartUTC: utcPtr("2026-03-01T10:00:00Z")},
			trg:  OffsetTrigger{Offset: "PT5X"},
		},
		{
			name: "no anchor at all",
			ev:   &CalendarEvent{},
			trg:  OffsetTrigger{Offset: "-PT5M"},
		},
		{
			name: "unparseable local anchor",
			ev:   &CalendarEvent{StartLocal: "tomorrow-ish"},
			trg:  OffsetTrigger{Offset: "-PT5M"},
		},
		{
			name: "bad absolute instant",
			ev:   &CalendarEvent{},
			trg:  AbsoluteTrigger{Instant: "not-a-time"},
		},
		{
			name: "nil trigger",
			ev:   &CalendarEvent{StartUTC: utcPtr("2026-03-01T10:00:00Z")},
			trg:  nil,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ComputeFireTime(tt.ev, tt.trg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
