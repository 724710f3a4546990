package alert

import (
	"strconv"
	"time"
)

// Key builds the acknowledgment identity of one concrete firing.
//
// The same (event, alert, fire instant) always yields the same key. The
// fire instant is part of the identity on purpose: when an event is
// rescheduled the instant changes, the key changes, and the alert becomes
// eligible to fire again even though the prior instant was acknowledged.
func Key(eventID, alertID string, fire time.Time) string {
	return eventID + "|" + alertID + "|" + strconv.FormatInt(fire.UnixMilli(), 10)
}
