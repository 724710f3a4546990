package ics

import (
	"strings"
	"testing"
	"time"

	"calalert/pkg/alert"
	logx "calalert/pkg/logx"
)

func icsBody(lines ...string) []byte {
	all := append([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
	}, lines...)
	all = append(all, "END:VCALENDAR", "")
	return []byte(strings.Join(all, "\r\n"))
}

func TestParseEventWithAlarms(t *testing.T) {
	t.Parallel()
	body := icsBody(
		"BEGIN:VEVENT",
		"UID:standup@example.com",
		"DTSTART:20260301T100000Z",
		"DTEND:20260301T103000Z",
		"SUMMARY:Standup",
		"LOCATION:Room 4",
		"BEGIN:VALARM",
		"ACTION:DISPLAY",
		"TRIGGER:-PT15M",
		"END:VALARM",
		"BEGIN:VALARM",
		"ACTION:EMAIL",
		"TRIGGER;RELATED=END:PT5M",
		"END:VALARM",
		"BEGIN:VALARM",
		"ACTION:DISPLAY",
		"TRIGGER;VALUE=DATE-TIME:20260301T095500Z",
		"ACKNOWLEDGED:20260301T095600Z",
		"END:VALARM",
		"END:VEVENT",
	)

	events, errs := parseCalendar(body)
	if len(errs) != 0 {
		t.Fatalf("parse errors: %v", errs)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.UID != "standup@example.com" || ev.Summary != "Standup" || ev.Location != "Room 4" {
		t.Fatalf("event = %+v", ev)
	}
	if ev.AllDay {
		t.Fatal("timed event flagged all-day")
	}
	if len(ev.Alarms) != 3 {
		t.Fatalf("got %d alarms, want 3", len(ev.Alarms))
	}

	a1 := ev.Alarms["alarm-1"]
	if trg, ok := a1.Trigger.(alert.OffsetTrigger); !ok || trg.Offset != "-PT15M" || trg.RelativeTo != alert.AnchorStart {
		t.Fatalf("alarm-1 trigger = %#v", a1.Trigger)
	}
	if a1.Action != alert.ActionDisplay {
		t.Fatalf("alarm-1 action = %v", a1.Action)
	}

	a2 := ev.Alarms["alarm-2"]
	if trg, ok := a2.Trigger.(alert.OffsetTrigger); !ok || trg.RelativeTo != alert.AnchorEnd {
		t.Fatalf("alarm-2 trigger = %#v", a2.Trigger)
	}
	if a2.Action != alert.ActionEmail {
		t.Fatalf("alarm-2 action = %v", a2.Action)
	}

	a3 := ev.Alarms["alarm-3"]
	if trg, ok := a3.Trigger.(alert.AbsoluteTrigger); !ok || trg.Instant != "20260301T095500Z" {
		t.Fatalf("alarm-3 trigger = %#v", a3.Trigger)
	}
	if a3.AcknowledgedAt == nil || !a3.AcknowledgedAt.Equal(time.Date(2026, 3, 1, 9, 56, 0, 0, time.UTC)) {
		t.Fatalf("alarm-3 acknowledged = %v", a3.AcknowledgedAt)
	}
}

func TestParseAllDayEvent(t *testing.T) {
	t.Parallel()
	body := icsBody(
		"BEGIN:VEVENT",
		"UID:holiday@example.com",
		"DTSTART;VALUE=DATE:20260301",
		"SUMMARY:Holiday",
		"END:VEVENT",
	)
	events, errs := parseCalendar(body)
	if len(errs) != 0 || len(events) != 1 {
		t.Fatalf("parse = (%d events, %v)", len(events), errs)
	}
	ev := events[0]
	if !ev.AllDay {
		t.Fatal("date-only event not flagged all-day")
	}
	if got := ev.End.Sub(ev.Start); got != 24*time.Hour {
		t.Fatalf("all-day span = %v", got)
	}
	if ev.Alarms != nil {
		t.Fatalf("expected no alarms, got %v", ev.Alarms)
	}
}

func TestParseSkipsEventWithoutUID(t *testing.T) {
	t.Parallel()
	body := icsBody(
		"BEGIN:VEVENT",
		"DTSTART:20260301T100000Z",
		"SUMMARY:No identity",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:ok@example.com",
		"DTSTART:20260301T110000Z",
		"SUMMARY:Fine",
		"END:VEVENT",
	)
	events, errs := parseCalendar(body)
	if len(events) != 1 || events[0].UID != "ok@example.com" {
		t.Fatalf("events = %+v", events)
	}
	if len(errs) != 1 {
		t.Fatalf("errs = %v", errs)
	}
}

func TestExpandRecurringWithExDateAndOverride(t *testing.T) {
	t.Parallel()
	body := icsBody(
		"BEGIN:VEVENT",
		"UID:daily@example.com",
		"DTSTART:20260302T090000Z",
		"DTEND:20260302T093000Z",
		"SUMMARY:Daily sync",
		"RRULE:FREQ=DAILY;COUNT=5",
		"EXDATE:20260304T090000Z",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:daily@example.com",
		"RECURRENCE-ID:20260303T090000Z",
		"DTSTART:20260303T140000Z",
		"DTEND:20260303T143000Z",
		"SUMMARY:Daily sync (moved)",
		"END:VEVENT",
	)
	parsed, errs := parseCalendar(body)
	if len(errs) != 0 {
		t.Fatalf("parse errors: %v", errs)
	}

	after := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	before := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	events := expandEvents("work", parsed, after, before, logx.Nop())

	// 5 occurrences minus the EXDATEd one.
	if len(events) != 4 {
		t.Fatalf("got %d instances, want 4", len(events))
	}

	ids := map[string]alert.CalendarEvent{}
	for _, ev := range events {
		ids[ev.ID] = ev
	}
	if _, ok := ids["daily@example.com/20260304T090000Z"]; ok {
		t.Fatal("EXDATEd instance should be gone")
	}

	moved, ok := ids["daily@example.com/20260303T090000Z"]
	if !ok {
		t.Fatalf("override instance missing; ids = %v", keysOf(ids))
	}
	if moved.Summary != "Daily sync (moved)" {
		t.Fatalf("override summary = %q", moved.Summary)
	}
	if moved.StartUTC == nil || !moved.StartUTC.Equal(time.Date(2026, 3, 3, 14, 0, 0, 0, time.UTC)) {
		t.Fatalf("override start = %v", moved.StartUTC)
	}

	plain, ok := ids["daily@example.com/20260302T090000Z"]
	if !ok {
		t.Fatalf("base instance missing; ids = %v", keysOf(ids))
	}
	if !plain.UseDefaultAlerts {
		t.Fatal("event without alarms should inherit calendar defaults")
	}
	if got := plain.CalendarIDs; len(got) != 1 || got[0] != "work" {
		t.Fatalf("calendar ids = %v", got)
	}
}

func TestExpandSingleEventWindow(t *testing.T) {
	t.Parallel()
	body := icsBody(
		"BEGIN:VEVENT",
		"UID:one@example.com",
		"DTSTART:20260301T100000Z",
		"DTEND:20260301T110000Z",
		"SUMMARY:One-off",
		"END:VEVENT",
	)
	parsed, _ := parseCalendar(body)

	inWindow := expandEvents("cal", parsed,
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), logx.Nop())
	if len(inWindow) != 1 || inWindow[0].ID != "one@example.com" {
		t.Fatalf("in-window = %+v", inWindow)
	}

	outOfWindow := expandEvents("cal", parsed,
		time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC), logx.Nop())
	if len(outOfWindow) != 0 {
		t.Fatalf("out-of-window = %+v", outOfWindow)
	}
}

func keysOf(m map[string]alert.CalendarEvent) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
