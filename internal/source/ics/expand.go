package ics

import (
	"time"

	"github.com/teambition/rrule-go"

	"calalert/pkg/alert"
	logx "calalert/pkg/logx"
)

// maxInstancesPerEvent caps recurrence expansion so a pathological rule
// cannot blow up memory.
const maxInstancesPerEvent = 1000

const instanceIDLayout = "20060102T150405Z"

// expandEvents materializes parsed VEVENTs into concrete calendar events
// within [after, before]. Recurring events yield one event per instance
// with an instance-qualified ID, so each instance gets its own alert
// keys. Events with no alarms of their own inherit calendar defaults.
func expandEvents(calendarID string, parsed []parsedEvent, after, before time.Time, log logx.Logger) []alert.CalendarEvent {
	bases := make([]parsedEvent, 0, len(parsed))
	overrides := make(map[string][]parsedEvent)
	for _, ev := range parsed {
		if ev.isOverride() {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
		} else {
			bases = append(bases, ev)
		}
	}

	var out []alert.CalendarEvent
	for _, ev := range bases {
		if ev.RawRRule == "" {
			if ev.End.Before(after) || ev.Start.After(before) {
				continue
			}
			out = append(out, materialize(calendarID, ev, ev.UID, ev.Start, ev.End))
			continue
		}
		out = append(out, expandRecurring(calendarID, ev, overrides[ev.UID], after, before, log)...)
	}
	return out
}

func expandRecurring(calendarID string, ev parsedEvent, overrides []parsedEvent, after, before time.Time, log logx.Logger) []alert.CalendarEvent {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		log.Warn("skipping event with unparsable RRULE",
			logx.String("uid", ev.UID), logx.String("rrule", ev.RawRRule), logx.Err(err))
		return nil
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Widen the window by the event duration so an instance already in
	// progress at `after` is still included.
	duration := ev.End.Sub(ev.Start)
	starts := set.Between(after.Add(-duration).In(ev.Start.Location()), before.In(ev.Start.Location()), true)
	if len(starts) > maxInstancesPerEvent {
		log.Warn("recurrence expansion capped",
			logx.String("uid", ev.UID), logx.Int("cap", maxInstancesPerEvent))
		starts = starts[:maxInstancesPerEvent]
	}

	out := make([]alert.CalendarEvent, 0, len(starts))
	for _, start := range starts {
		end := start.Add(duration)
		inst := ev
		if ov, ok := findOverride(overrides, start); ok {
			inst = ov
			start, end = ov.Start, ov.End
		}
		id := ev.UID + "/" + start.UTC().Format(instanceIDLayout)
		out = append(out, materialize(calendarID, inst, id, start, end))
	}
	return out
}

// findOverride matches a RECURRENCE-ID against an instance start.
func findOverride(overrides []parsedEvent, start time.Time) (parsedEvent, bool) {
	for _, ov := range overrides {
		if ov.RecurrenceID != nil && ov.RecurrenceID.Equal(start) {
			return ov, true
		}
	}
	return parsedEvent{}, false
}

func materialize(calendarID string, ev parsedEvent, id string, start, end time.Time) alert.CalendarEvent {
	su := start.UTC()
	eu := end.UTC()
	return alert.CalendarEvent{
		ID:          id,
		CalendarIDs: []string{calendarID},
		Summary:     ev.Summary,
		Location:    ev.Location,
		StartUTC:    &su,
		EndUTC:      &eu,
		AllDay:      ev.AllDay,

		UseDefaultAlerts: len(ev.Alarms) == 0,
		Alerts:           ev.Alarms,
	}
}
