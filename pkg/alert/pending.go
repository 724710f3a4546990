package alert

import "time"

// DefaultStaleWindow bounds how long past its fire instant an alert may
// still be surfaced. Beyond it, missed alerts stay missed.
const DefaultStaleWindow = 10 * time.Minute

// Acked is the read side of the acknowledgment store: has this concrete
// firing already been shown?
type Acked interface {
	Has(key string) bool
}

// AckedSet is a map-backed Acked, convenient for tests and snapshots.
type AckedSet map[string]struct{}

func (s AckedSet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// PendingAlerts evaluates every event's effective alerts against now and
// returns those that are due, fresh, display-action, and not yet
// acknowledged (neither server-side nor via acked).
//
// Malformed entries (bad offsets, undeterminable anchors) are dropped
// silently; one broken alert never aborts the batch. A nil acked is a
// caller bug, not a data condition, and panics. staleWindow <= 0 selects
// DefaultStaleWindow; an alert exactly staleWindow past due is already
// stale. No ordering across events is guaranteed.
func PendingAlerts(events []CalendarEvent, calendars []Calendar, acked Acked, now time.Time, staleWindow time.Duration) []PendingAlert {
	if acked == nil {
		panic("alert: PendingAlerts called with nil acknowledgment view")
	}
	if staleWindow <= 0 {
		staleWindow = DefaultStaleWindow
	}

	var out []PendingAlert
	for i := range events {
		ev := &events[i]
		set := EffectiveAlerts(ev, calendars)
		if len(set) == 0 {
			continue
		}

		calName := ""
		if cal := firstCalendar(ev, calendars); cal != nil {
			calName = cal.Name
		}

		for id, al := range set {
			if al.Action != ActionDisplay {
				continue
			}
			if al.AcknowledgedAt != nil {
				continue
			}
			fire, err := ComputeFireTime(ev, al.Trigger)
			if err != nil {
				continue
			}
			if fire.After(now) {
				continue
			}
			if now.Sub(fire) >= staleWindow {
				continue
			}
			if acked.Has(Key(ev.ID, id, fire)) {
				continue
			}
			out = append(out, PendingAlert{
				EventID:      ev.ID,
				AlertID:      id,
				FireTime:     fire,
				CalendarName: calName,
				Event:        ev,
			})
		}
	}
	return out
}
