package alert

import "time"

// Action classifies what an alert does when it fires.
// Only display alerts are ever surfaced locally.
type Action int

const (
	ActionDisplay Action = iota
	ActionEmail
	ActionOther
)

// Anchor selects which edge of the event an offset trigger is measured from.
type Anchor int

const (
	AnchorStart Anchor = iota
	AnchorEnd
)

// Trigger describes when an alert fires. It is a sealed sum:
// OffsetTrigger and AbsoluteTrigger are the only variants, and
// ComputeFireTime matches them exhaustively. New firing rules are added
// as new variants plus a match arm, not as string branching.
type Trigger interface {
	trigger()
}

// OffsetTrigger fires at a signed duration before or after the event's
// start or end.
type OffsetTrigger struct {
	// Offset is a signed day/time duration literal, e.g. "-PT15M".
	// See ParseOffset for the accepted grammar.
	Offset     string
	RelativeTo Anchor
}

// AbsoluteTrigger fires at a fixed instant, independent of the event times.
type AbsoluteTrigger struct {
	// Instant is a timestamp literal; see ComputeFireTime for accepted layouts.
	Instant string
}

func (OffsetTrigger) trigger()   {}
func (AbsoluteTrigger) trigger() {}

// Alert is one alert definition. Its identifier is the key under which it
// is stored in an AlertSet.
type Alert struct {
	Trigger Trigger
	Action  Action

	// AcknowledgedAt is the server-side acknowledgment instant, if the
	// backend recorded one (e.g. the alert was shown on another device).
	AcknowledgedAt *time.Time

	// RelatedTo optionally references a companion alert id.
	RelatedTo string
}

// AlertSet maps alert id to alert definition. A nil set means "no alerts".
type AlertSet map[string]Alert

// Calendar carries the per-calendar metadata the resolver needs:
// identity, display name, and the default alert sets inherited by events
// that request them.
type Calendar struct {
	ID   string
	Name string

	// DefaultAlerts applies to timed events, DefaultAlertsAllDay to
	// date-only events. Either may be nil.
	DefaultAlerts       AlertSet
	DefaultAlertsAllDay AlertSet
}

// CalendarEvent is the evaluator's view of an event.
//
// Start and end exist in two representations: the authoritative UTC
// instant resolved by the backend (optional; absent for drafts and
// unresolved recurrence exceptions) and the local/floating literal the
// event was authored with. Trigger resolution prefers the former and
// falls back to parsing the latter.
type CalendarEvent struct {
	ID          string
	CalendarIDs []string

	Summary  string
	Location string

	StartUTC   *time.Time
	EndUTC     *time.Time
	StartLocal string
	EndLocal   string
	AllDay     bool

	// UseDefaultAlerts requests the owning calendar's default alert set
	// instead of (not in addition to) the event's own.
	UseDefaultAlerts bool
	Alerts           AlertSet
}

// PendingAlert is one due, unacknowledged display alert.
type PendingAlert struct {
	EventID  string
	AlertID  string
	FireTime time.Time

	// CalendarName is the display name of the first calendar (in the
	// event's membership order) found in the supplied calendar set.
	// Empty when none matched.
	CalendarName string

	// Event points into the evaluated input slice; treat as read-only.
	Event *CalendarEvent
}
