package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// cronField is one parsed field of a 7-field cron expression: sec min
// hour day month dow year. No Go pack dependency covers this 7-field
// (with trailing year) format used by reminders, so this is a small
// hand-rolled evaluator rather than a borrowed library.
type cronField struct {
	any    bool
	values map[int]struct{}
}

func parseField(raw string, min, max int) (cronField, error) {
	if raw == "*" {
		return cronField{any: true}, nil
	}

	values := make(map[int]struct{})
	for _, part := range strings.Split(raw, ",") {
		step := 1
		rng := part
		if idx := strings.Index(part, "/"); idx != -1 {
			rng = part[:idx]
			s, err := strconv.Atoi(part[idx+1:])
			if err != nil || s <= 0 {
				return cronField{}, fmt.Errorf("cron: invalid step in %q", part)
			}
			step = s
		}

		lo, hi := min, max
		if rng != "*" {
			if dashIdx := strings.Index(rng, "-"); dashIdx != -1 {
				loV, err1 := strconv.Atoi(rng[:dashIdx])
				hiV, err2 := strconv.Atoi(rng[dashIdx+1:])
				if err1 != nil || err2 != nil {
					return cronField{}, fmt.Errorf("cron: invalid range %q", rng)
				}
				lo, hi = loV, hiV
			} else {
				v, err := strconv.Atoi(rng)
				if err != nil {
					return cronField{}, fmt.Errorf("cron: invalid value %q", rng)
				}
				lo, hi = v, v
			}
		}
		if lo < min || hi > max || lo > hi {
			return cronField{}, fmt.Errorf("cron: field value out of range in %q", part)
		}
		for v := lo; v <= hi; v += step {
			values[v] = struct{}{}
		}
	}
	return cronField{values: values}, nil
}

func (f cronField) matches(v int) bool {
	if f.any {
		return true
	}
	_, ok := f.values[v]
	return ok
}

// Schedule is a parsed 7-field cron expression (sec min hour day month dow year).
type Schedule struct {
	sec, min, hour, day, month, dow, year cronField
}

// ParseSchedule parses a 7-field "sec min hour day month dow year"
// expression, matching the semantics of the original Rust implementation's
// `cron` crate usage (e.g. "0 0 9 * * * *" for daily 9am UTC).
func ParseSchedule(expr string) (*Schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 7 {
		return nil, fmt.Errorf("cron: expected 7 fields (sec min hour day month dow year), got %d", len(fields))
	}

	var s Schedule
	var err error
	if s.sec, err = parseField(fields[0], 0, 59); err != nil {
		return nil, err
	}
	if s.min, err = parseField(fields[1], 0, 59); err != nil {
		return nil, err
	}
	if s.hour, err = parseField(fields[2], 0, 23); err != nil {
		return nil, err
	}
	if s.day, err = parseField(fields[3], 1, 31); err != nil {
		return nil, err
	}
	if s.month, err = parseField(fields[4], 1, 12); err != nil {
		return nil, err
	}
	// dow: 0-7 (0 and 7 both Sunday), matching cron convention.
	if s.dow, err = parseField(fields[5], 0, 7); err != nil {
		return nil, err
	}
	if s.year, err = parseField(fields[6], 1970, 2200); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Schedule) matches(t time.Time) bool {
	dow := int(t.Weekday())
	if !s.sec.matches(t.Second()) {
		return false
	}
	if !s.min.matches(t.Minute()) {
		return false
	}
	if !s.hour.matches(t.Hour()) {
		return false
	}
	if !s.day.matches(t.Day()) {
		return false
	}
	if !s.month.matches(int(t.Month())) {
		return false
	}
	if !(s.dow.matches(dow) || (dow == 0 && s.dow.matches(7))) {
		return false
	}
	if !s.year.matches(t.Year()) {
		return false
	}
	return true
}

// Next returns the first matching instant strictly after `after`,
// searching second-by-second up to four years out. Returns an error if no
// match is found in that horizon (treated by the scheduler as "cron
// evaluation failed" -> the reminder is retired rather than left firing
// forever).
func (s *Schedule) Next(after time.Time) (time.Time, error) {
	t := after.Truncate(time.Second).Add(time.Second)
	limit := after.AddDate(4, 0, 0)
	for t.Before(limit) {
		if s.matches(t) {
			return t, nil
		}
		t = t.Add(time.Second)
	}
	return time.Time{}, fmt.Errorf("cron: no matching instant within 4 years of %s", after)
}
