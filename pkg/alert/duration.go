package alert

import (
	"errors"
	"strconv"
	"time"
)

// ErrInvalidOffset reports an offset literal outside the accepted grammar.
var ErrInvalidOffset = errors.New("alert: invalid offset duration")

// ParseOffset parses a signed, simplified ISO-8601 duration restricted to
// day and time fields:
//
//	[±]P[nD][T[nH][nM][nS]]
//
// Negative means before the anchor, positive after, zero at the anchor.
// At least one component must be present; a dangling T, leftover text, or
// any other deviation yields ErrInvalidOffset. ParseOffset never panics,
// so callers can skip malformed alerts instead of misfiring them.
func ParseOffset(text string) (time.Duration, error) {
	s := text
	sign := time.Duration(1)
	if len(s) > 0 {
		switch s[0] {
		case '-':
			sign = -1
			s = s[1:]
		case '+':
			s = s[1:]
		}
	}
	if len(s) == 0 || s[0] != 'P' {
		return 0, ErrInvalidOffset
	}
	s = s[1:]

	var total time.Duration
	seen := false

	if n, rest, ok := scanComponent(s, 'D'); ok {
		total += time.Duration(n) * 24 * time.Hour
		seen = true
		s = rest
	}

	if len(s) > 0 && s[0] == 'T' {
		s = s[1:]
		timeSeen := false
		if n, rest, ok := scanComponent(s, 'H'); ok {
			total += time.Duration(n) * time.Hour
			timeSeen = true
			s = rest
		}
		if n, rest, ok := scanComponent(s, 'M'); ok {
			total += time.Duration(n) * time.Minute
			timeSeen = true
			s = rest
		}
		if n, rest, ok := scanComponent(s, 'S'); ok {
			total += time.Duration(n) * time.Second
			timeSeen = true
			s = rest
		}
		if !timeSeen {
			return 0, ErrInvalidOffset
		}
		seen = true
	}

	if s != "" || !seen {
		return 0, ErrInvalidOffset
	}
	return sign * total, nil
}

// scanComponent reads a decimal run followed by the unit letter.
// When s does not start with digits, or the digits are not followed by
// unit, it reports ok=false and leaves s for the next component.
func scanComponent(s string, unit byte) (int64, string, bool) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(s) || s[i] != unit {
		return 0, s, false
	}
	n, err := strconv.ParseInt(s[:i], 10, 64)
	if err != nil {
		// Digit run too long for int64.
		return 0, s, false
	}
	return n, s[i+1:], true
}
