package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var relativeTriggerPattern = regexp.MustCompile(`^\+(\d+)\s*(m|min|mins|minute|minutes|h|hr|hrs|hour|hours|d|day|days|w|week|weeks)$`)

// ParseTriggerTime parses a set_reminder `trigger_at` argument: either a
// relative offset ("+30m", "+2h", "+1d", "+1w") or an absolute
// "YYYY-MM-DD HH:MM" timestamp, interpreted as UTC.
func ParseTriggerTime(raw string, now time.Time) (time.Time, error) {
	if m := relativeTriggerPattern.FindStringSubmatch(raw); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, fmt.Errorf("trigger_at: invalid offset %q", raw)
		}
		var unit time.Duration
		switch m[2] {
		case "m", "min", "mins", "minute", "minutes":
			unit = time.Minute
		case "h", "hr", "hrs", "hour", "hours":
			unit = time.Hour
		case "d", "day", "days":
			unit = 24 * time.Hour
		case "w", "week", "weeks":
			unit = 7 * 24 * time.Hour
		}
		return now.UTC().Add(time.Duration(n) * unit), nil
	}

	t, err := time.Parse("2006-01-02 15:04 -0700", raw+" +0000")
	if err != nil {
		return time.Time{}, fmt.Errorf("trigger_at: must be '+N{m|h|d|w}' or 'YYYY-MM-DD HH:MM' (UTC): %w", err)
	}
	return t.UTC(), nil
}
