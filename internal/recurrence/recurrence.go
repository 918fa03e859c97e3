package recurrence

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ErrInvalidRule indicates a recurrence string whose termination date is
// missing or unparseable. Expansion fails whole; no partial list is returned.
var ErrInvalidRule = errors.New("recurrence: invalid rule")

// Interval is one concrete occurrence of an event.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Rule is the parsed weekly pattern: which weekdays repeat and the last
// calendar day (inclusive) of the repetition.
type Rule struct {
	Days  [7]bool // indexed by time.Weekday, Sunday = 0
	Until time.Time
}

// The BYDAY and UNTIL segments are extracted by pattern match against a
// larger ICS-style string (e.g. "RRULE:FREQ=WEEKLY;BYDAY=MO,WE;UNTIL=20230217T180000Z");
// everything else in that string is ignored.
var (
	byDayPattern = regexp.MustCompile(`BYDAY=([^;]*)`)
	untilPattern = regexp.MustCompile(`UNTIL=([^;]*)`)
)

var dayCodes = map[string]time.Weekday{
	"SU": time.Sunday,
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
}

// ParseRule extracts the weekday set and the inclusive termination date
// from a recurrence string. Unknown day codes are skipped; a missing or
// malformed UNTIL segment is fatal. Only the first 8 characters of the
// UNTIL value (YYYYMMDD) are significant.
func ParseRule(raw string) (Rule, error) {
	var rule Rule

	if m := byDayPattern.FindStringSubmatch(raw); m != nil {
		for _, code := range strings.Split(m[1], ",") {
			if wd, ok := dayCodes[strings.TrimSpace(code)]; ok {
				rule.Days[wd] = true
			}
		}
	}

	m := untilPattern.FindStringSubmatch(raw)
	if m == nil || len(m[1]) < 8 {
		return Rule{}, fmt.Errorf("%w: no termination date in %q", ErrInvalidRule, raw)
	}
	until, err := time.Parse("20060102", m[1][:8])
	if err != nil {
		return Rule{}, fmt.Errorf("%w: bad termination date %q", ErrInvalidRule, m[1][:8])
	}
	rule.Until = until
	return rule, nil
}

// Expand turns the canonical start/end pair plus an optional recurrence
// string into the ordered list of intervals the event occupies.
//
// Without a rule the event occupies exactly {start, end}. With a rule,
// every calendar day from start's date through the termination date
// (inclusive) whose weekday is in the rule's set yields an interval: the
// day combined with start's original time-of-day, and with end's original
// hour and minute. Stepping is calendar-day based, not elapsed-duration
// based, so DST transitions neither skip nor double a day. Output is
// ascending by construction.
func Expand(start, end time.Time, rawRule string) ([]Interval, error) {
	if strings.TrimSpace(rawRule) == "" {
		return []Interval{{Start: start, End: end}}, nil
	}

	rule, err := ParseRule(rawRule)
	if err != nil {
		return nil, err
	}

	endHour, endMin := end.Hour(), end.Minute()
	var out []Interval
	for day := start; !dateAfter(day, rule.Until); day = nextDay(day) {
		if !rule.Days[day.Weekday()] {
			continue
		}
		occEnd := time.Date(day.Year(), day.Month(), day.Day(),
			endHour, endMin, day.Second(), day.Nanosecond(), day.Location())
		out = append(out, Interval{Start: day, End: occEnd})
	}
	return out, nil
}

func nextDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day()+1,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// dateAfter compares calendar dates only, ignoring time-of-day and zone
// offsets, so the inclusive bound holds regardless of the UNTIL time suffix.
func dateAfter(t, bound time.Time) bool {
	ty, tm, td := t.Date()
	by, bm, bd := bound.Date()
	if ty != by {
		return ty > by
	}
	if tm != bm {
		return tm > bm
	}
	return td > bd
}
