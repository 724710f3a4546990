package alert

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNoAnchor reports that neither the authoritative UTC instant nor
	// the local/floating literal of the required event edge could be used.
	ErrNoAnchor = errors.New("alert: trigger anchor is undeterminable")

	// ErrInvalidInstant reports an unparseable timestamp literal.
	ErrInvalidInstant = errors.New("alert: invalid trigger instant")
)

// instantLayouts are the accepted timestamp layouts, RFC 3339 first, then
// the floating and iCalendar basic forms. Floating literals carry no zone
// and are read as UTC so that the fallback agrees with the authoritative
// representation whenever both denote the same instant.
var instantLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"20060102T150405Z",
	"20060102T150405",
	"2006-01-02",
	"20060102",
}

func parseInstant(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, ErrInvalidInstant
	}
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, ErrInvalidInstant
}

// ComputeFireTime resolves a trigger to the absolute instant the alert
// becomes due. It is a pure function of its inputs.
//
// For offset triggers the anchor is the event's authoritative UTC
// start/end when present, else the local/floating literal parsed as a
// timestamp. Events may legitimately lack the UTC instants (drafts,
// recurrence exceptions); the fallback keeps the function total over
// realistic input while keeping "undeterminable" an explicit error
// instead of a meaningless default.
func ComputeFireTime(ev *CalendarEvent, trg Trigger) (time.Time, error) {
	switch t := trg.(type) {
	case OffsetTrigger:
		off, err := ParseOffset(t.Offset)
		if err != nil {
			return time.Time{}, err
		}
		anchor, err := anchorTime(ev, t.RelativeTo)
		if err != nil {
			return time.Time{}, err
		}
		return anchor.Add(off), nil
	case AbsoluteTrigger:
		return parseInstant(t.Instant)
	case nil:
		return time.Time{}, fmt.Errorf("%w: nil trigger", ErrInvalidInstant)
	default:
		// Unreachable while the sum stays sealed.
		return time.Time{}, fmt.Errorf("alert: unknown trigger variant %T", trg)
	}
}

func anchorTime(ev *CalendarEvent, a Anchor) (time.Time, error) {
	if ev == nil {
		return time.Time{}, ErrNoAnchor
	}
	var (
		utc   *time.Time
		local string
	)
	switch a {
	case AnchorEnd:
		utc, local = ev.EndUTC, ev.EndLocal
	default:
		utc, local = ev.StartUTC, ev.StartLocal
	}
	if utc != nil {
		return utc.UTC(), nil
	}
	if t, err := parseInstant(local); err == nil {
		return t, nil
	}
	return time.Time{}, ErrNoAnchor
}
