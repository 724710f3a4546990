package alert

// EffectiveAlerts resolves which alert set applies to ev.
//
// Events that do not request inherited defaults keep their own set
// verbatim, whatever the calendars say. Otherwise the first calendar in
// the event's membership order that is present in calendars supplies its
// all-day or timed default set; nil when no calendar matches. Pure, no
// time computation.
func EffectiveAlerts(ev *CalendarEvent, calendars []Calendar) AlertSet {
	if ev == nil {
		return nil
	}
	if !ev.UseDefaultAlerts {
		return ev.Alerts
	}
	cal := firstCalendar(ev, calendars)
	if cal == nil {
		return nil
	}
	if ev.AllDay {
		return cal.DefaultAlertsAllDay
	}
	return cal.DefaultAlerts
}

// firstCalendar returns the first calendar, in the event's membership
// order, present in the supplied set.
func firstCalendar(ev *CalendarEvent, calendars []Calendar) *Calendar {
	for _, id := range ev.CalendarIDs {
		for i := range calendars {
			if calendars[i].ID == id {
				return &calendars[i]
			}
		}
	}
	return nil
}
