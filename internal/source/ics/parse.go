package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"calalert/pkg/alert"
)

// parsedEvent is a VEVENT before recurrence expansion.
type parsedEvent struct {
	UID      string
	Summary  string
	Location string

	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule     string
	ExDates      []time.Time
	RecurrenceID *time.Time // set when this VEVENT overrides one instance

	Alarms alert.AlertSet
}

func (p parsedEvent) isOverride() bool { return p.RecurrenceID != nil }

// parseCalendar parses one ICS body into events. Broken VEVENTs are
// skipped so one malformed entry cannot take down the whole feed.
func parseCalendar(body []byte) ([]parsedEvent, []error) {
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, []error{err}
	}

	var (
		events []parsedEvent
		errs   []error
	)
	for _, ve := range cal.Events() {
		ev, perr := parseVEvent(ve)
		if perr != nil {
			errs = append(errs, perr)
			continue
		}
		events = append(events, ev)
	}
	return events, errs
}

func parseVEvent(ve *ical.VEvent) (parsedEvent, error) {
	var out parsedEvent

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return out, errors.New("vevent missing UID")
	}
	out.UID = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return out, fmt.Errorf("vevent %s: DTSTART: %w", out.UID, err)
	}
	out.Start = start
	if end, err := ve.GetEndAt(); err == nil {
		out.End = end
	} else {
		out.End = start
	}

	// All-day: VALUE=DATE parameter, or a date-only literal.
	if p := ve.GetProperty(ical.ComponentPropertyDtStart); p != nil {
		if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			out.AllDay = true
		}
		if !strings.Contains(p.Value, "T") {
			out.AllDay = true
		}
	}
	if out.AllDay && out.End.Equal(out.Start) {
		out.End = out.Start.Add(24 * time.Hour)
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(strings.TrimSpace(part)); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}
	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		if t, err := parseICSTime(p.Value); err == nil {
			out.RecurrenceID = &t
		}
	}

	out.Alarms = parseAlarms(ve)
	return out, nil
}

// parseAlarms maps VALARM subcomponents to an alert set. Alarm ids are
// ordinal within the event; ICS alarms carry no identifier of their own.
func parseAlarms(ve *ical.VEvent) alert.AlertSet {
	alarms := ve.Alarms()
	if len(alarms) == 0 {
		return nil
	}

	set := make(alert.AlertSet, len(alarms))
	for i, va := range alarms {
		a, ok := parseAlarm(va)
		if !ok {
			continue
		}
		set[fmt.Sprintf("alarm-%d", i+1)] = a
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

func parseAlarm(va *ical.VAlarm) (alert.Alert, bool) {
	var out alert.Alert

	trg := va.GetProperty("TRIGGER")
	if trg == nil || strings.TrimSpace(trg.Value) == "" {
		return out, false
	}

	// VALUE=DATE-TIME means a fixed instant; otherwise the value is a
	// signed offset, anchored at DTSTART unless RELATED=END.
	absolute := false
	if vs, ok := trg.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE-TIME") {
		absolute = true
	}
	if absolute {
		out.Trigger = alert.AbsoluteTrigger{Instant: strings.TrimSpace(trg.Value)}
	} else {
		anchor := alert.AnchorStart
		if rs, ok := trg.ICalParameters["RELATED"]; ok && len(rs) > 0 && strings.EqualFold(rs[0], "END") {
			anchor = alert.AnchorEnd
		}
		out.Trigger = alert.OffsetTrigger{Offset: strings.TrimSpace(trg.Value), RelativeTo: anchor}
	}

	out.Action = alert.ActionOther
	if p := va.GetProperty("ACTION"); p != nil {
		switch strings.ToUpper(strings.TrimSpace(p.Value)) {
		case "DISPLAY", "AUDIO":
			out.Action = alert.ActionDisplay
		case "EMAIL":
			out.Action = alert.ActionEmail
		}
	}

	if p := va.GetProperty("ACKNOWLEDGED"); p != nil {
		if t, err := parseICSTime(p.Value); err == nil {
			out.AcknowledgedAt = &t
		}
	}
	if p := va.GetProperty("RELATED-TO"); p != nil {
		out.RelatedTo = strings.TrimSpace(p.Value)
	}

	return out, true
}

// parseICSTime parses the basic ICS date and date-time literals.
// Floating values are taken as UTC so they agree with backend-resolved
// instants.
func parseICSTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.Parse("20060102T150405", v)
	}
	return time.Parse("20060102", v)
}
