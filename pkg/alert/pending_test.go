package alert

import (
	"testing"
	"time"
)

func displayAlert(offset string) Alert {
	return Alert{Trigger: OffsetTrigger{Offset: offset}, Action: ActionDisplay}
}

func eventAt(id, startUTC string, alerts AlertSet) CalendarEvent {
	return CalendarEvent{
		ID:          id,
		CalendarIDs: []string{"cal1"},
		StartUTC:    utcPtr(startUTC),
		Alerts:      alerts,
	}
}

var testCalendars = []Calendar{{ID: "cal1", Name: "Personal"}}

func TestPendingAlertsBasicScenario(t *testing.T) {
	t.Parallel()
	ev := eventAt("ev1", "2026-03-01T10:00:00Z", AlertSet{"a1": displayAlert("-PT5M")})

	// One second after the fire instant: due.
	now := utc("2026-03-01T09:55:01Z")
	got := PendingAlerts([]CalendarEvent{ev}, testCalendars, AckedSet{}, now, 0)
	if len(got) != 1 {
		t.Fatalf("pending = %d, want 1", len(got))
	}
	p := got[0]
	if want := utc("2026-03-01T09:55:00Z"); !p.FireTime.Equal(want) {
		t.Fatalf("fire = %v, want %v", p.FireTime, want)
	}
	if p.EventID != "ev1" || p.AlertID != "a1" {
		t.Fatalf("identity = %s/%s", p.EventID, p.AlertID)
	}
	if p.CalendarName != "Personal" {
		t.Fatalf("calendar name = %q", p.CalendarName)
	}

	// Acknowledge it; nothing remains.
	acked := AckedSet{Key(p.EventID, p.AlertID, p.FireTime): {}}
	if again := PendingAlerts([]CalendarEvent{ev}, testCalendars, acked, now, 0); len(again) != 0 {
		t.Fatalf("after ack: pending = %d, want 0", len(again))
	}

	// First-ever evaluation 11 minutes past due: stale, suppressed.
	late := utc("2026-03-01T10:06:00Z")
	if got := PendingAlerts([]CalendarEvent{ev}, testCalendars, AckedSet{}, late, 0); len(got) != 0 {
		t.Fatalf("stale evaluation: pending = %d, want 0", len(got))
	}
}

func TestPendingAlertsStaleBoundary(t *testing.T) {
	t.Parallel()
	ev := eventAt("ev1", "2026-03-01T10:00:00Z", AlertSet{"a1": displayAlert("PT0S")})
	fire := utc("2026-03-01T10:00:00Z")

	// Exactly the stale window past due: excluded (inclusive-stale).
	atWindow := fire.Add(DefaultStaleWindow)
	if got := PendingAlerts([]CalendarEvent{ev}, testCalendars, AckedSet{}, atWindow, 0); len(got) != 0 {
		t.Fatalf("at boundary: pending = %d, want 0", len(got))
	}

	// One millisecond less: included.
	justInside := atWindow.Add(-time.Millisecond)
	if got := PendingAlerts([]CalendarEvent{ev}, testCalendars, AckedSet{}, justInside, 0); len(got) != 1 {
		t.Fatalf("inside boundary: pending = %d, want 1", len(got))
	}

	// Not yet due.
	if got := PendingAlerts([]CalendarEvent{ev}, testCalendars, AckedSet{}, fire.Add(-time.Second), 0); len(got) != 0 {
		t.Fatalf("before due: pending = %d, want 0", len(got))
	}
}

func TestPendingAlertsFilters(t *testing.T) {
	t.Parallel()
	ack := utc("2026-03-01T09:00:00Z")
	ev := eventAt("ev1", "2026-03-01T10:00:00Z", AlertSet{
		"display": displayAlert("-PT5M"),
		"email":   {Trigger: OffsetTrigger{Offset: "-PT5M"}, Action: ActionEmail},
		"other":   {Trigger: OffsetTrigger{Offset: "-PT5M"}, Action: ActionOther},
		"server":  {Trigger: OffsetTrigger{Offset: "-PT5M"}, Action: ActionDisplay, AcknowledgedAt: &ack},
		"broken":  {Trigger: OffsetTrigger{Offset: "in five minutes"}, Action: ActionDisplay},
	})

	now := utc("2026-03-01T09:55:30Z")
	got := PendingAlerts([]CalendarEvent{ev}, testCalendars, AckedSet{}, now, 0)
	if len(got) != 1 {
		t.Fatalf("pending = %d, want 1", len(got))
	}
	if got[0].AlertID != "display" {
		t.Fatalf("alert id = %q, want \"display\"", got[0].AlertID)
	}
}

func TestPendingAlertsTwoOffsets(t *testing.T) {
	t.Parallel()
	start := "2026-03-01T10:00:00Z"
	ev := eventAt("ev1", start, AlertSet{
		"five": displayAlert("-PT5M"),
		"ten":  displayAlert("-PT10M"),
	})

	// (start - 10m) + 1s: only the 10-minute alert is due.
	at10 := utc(start).Add(-10*time.Minute + time.Second)
	got := PendingAlerts([]CalendarEvent{ev}, testCalendars, AckedSet{}, at10, 0)
	if len(got) != 1 || got[0].AlertID != "ten" {
		t.Fatalf("at -10m+1s: got %+v, want only \"ten\"", got)
	}
	tenKey := Key(got[0].EventID, got[0].AlertID, got[0].FireTime)

	// (start - 5m) + 1s with the first acknowledged: only the 5-minute alert.
	at5 := utc(start).Add(-5*time.Minute + time.Second)
	got = PendingAlerts([]CalendarEvent{ev}, testCalendars, AckedSet{tenKey: {}}, at5, 0)
	if len(got) != 1 || got[0].AlertID != "five" {
		t.Fatalf("at -5m+1s: got %+v, want only \"five\"", got)
	}
}

func TestPendingAlertsIdempotentAfterAck(t *testing.T) {
	t.Parallel()
	events := []CalendarEvent{
		eventAt("ev1", "2026-03-01T10:00:00Z", AlertSet{"a1": displayAlert("-PT5M")}),
		eventAt("ev2", "2026-03-01T10:02:00Z", AlertSet{"a1": displayAlert("-PT8M")}),
	}
	now := utc("2026-03-01T09:55:30Z")

	acked := AckedSet{}
	first := PendingAlerts(events, testCalendars, acked, now, 0)
	if len(first) != 2 {
		t.Fatalf("first pass: pending = %d, want 2", len(first))
	}
	for _, p := range first {
		acked[Key(p.EventID, p.AlertID, p.FireTime)] = struct{}{}
	}
	if second := PendingAlerts(events, testCalendars, acked, now, 0); len(second) != 0 {
		t.Fatalf("second pass: pending = %d, want 0", len(second))
	}
}

func TestPendingAlertsRescheduleChangesKey(t *testing.T) {
	t.Parallel()
	ev := eventAt("ev1", "2026-03-01T10:00:00Z", AlertSet{"a1": displayAlert("-PT5M")})
	now := utc("2026-03-01T09:55:30Z")

	first := PendingAlerts([]CalendarEvent{ev}, testCalendars, AckedSet{}, now, 0)
	if len(first) != 1 {
		t.Fatalf("pending = %d, want 1", len(first))
	}
	acked := AckedSet{Key(first[0].EventID, first[0].AlertID, first[0].FireTime): {}}

	// Event moves 3 minutes later; the old acknowledgment no longer applies.
	moved := ev
	moved.StartUTC = utcPtr("2026-03-01T10:03:00Z")
	later := utc("2026-03-01T09:58:30Z")
	got := PendingAlerts([]CalendarEvent{moved}, testCalendars, acked, later, 0)
	if len(got) != 1 {
		t.Fatalf("after reschedule: pending = %d, want 1", len(got))
	}
	if want := utc("2026-03-01T09:58:00Z"); !got[0].FireTime.Equal(want) {
		t.Fatalf("fire = %v, want %v", got[0].FireTime, want)
	}
}

func TestPendingAlertsDefaultsTimedOnlyAllDaySet(t *testing.T) {
	t.Parallel()
	// Event requests inherited defaults; its calendar only defines the
	// all-day set; the event is timed. Resolver yields nil, evaluator
	// yields nothing.
	cals := []Calendar{{
		ID:                  "cal1",
		Name:                "Personal",
		DefaultAlertsAllDay: AlertSet{"d": displayAlert("PT0S")},
	}}
	ev := CalendarEvent{
		ID:               "ev1",
		CalendarIDs:      []string{"cal1"},
		StartUTC:         utcPtr("2026-03-01T10:00:00Z"),
		UseDefaultAlerts: true,
	}

	now := utc("2026-03-01T10:00:01Z")
	if got := PendingAlerts([]CalendarEvent{ev}, cals, AckedSet{}, now, 0); len(got) != 0 {
		t.Fatalf("pending = %d, want 0", len(got))
	}
}

func TestPendingAlertsDuplicateInputsCollapse(t *testing.T) {
	t.Parallel()
	// The same event arriving from two sources (visible set + look-ahead
	// window) produces one dispatchable key; acknowledging it suppresses
	// both copies.
	ev := eventAt("ev1", "2026-03-01T10:00:00Z", AlertSet{"a1": displayAlert("-PT5M")})
	events := []CalendarEvent{ev, ev}
	now := utc("2026-03-01T09:55:30Z")

	got := PendingAlerts(events, testCalendars, AckedSet{}, now, 0)
	if len(got) != 2 {
		t.Fatalf("pending = %d, want 2 (no input dedup)", len(got))
	}
	if Key(got[0].EventID, got[0].AlertID, got[0].FireTime) != Key(got[1].EventID, got[1].AlertID, got[1].FireTime) {
		t.Fatal("duplicate inputs should share one key")
	}

	acked := AckedSet{Key(got[0].EventID, got[0].AlertID, got[0].FireTime): {}}
	if again := PendingAlerts(events, testCalendars, acked, now, 0); len(again) != 0 {
		t.Fatalf("after ack: pending = %d, want 0", len(again))
	}
}

func TestPendingAlertsNilAckedPanics(t *testing.T) {
	t.Parallel()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on nil acknowledgment view")
		}
	}()
	PendingAlerts(nil, nil, nil, time.Now(), 0)
}

func TestKeyDeterministic(t *testing.T) {
	t.Parallel()
	fire := utc("2026-03-01T09:55:00Z")
	k1 := Key("ev1", "a1", fire)
	k2 := Key("ev1", "a1", fire)
	if k1 != k2 {
		t.Fatalf("keys differ: %q vs %q", k1, k2)
	}
	if k3 := Key("ev1", "a1", fire.Add(time.Minute)); k3 == k1 {
		t.Fatal("different fire instants must yield different keys")
	}
}
