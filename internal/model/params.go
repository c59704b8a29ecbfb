package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the fixed timestamp form used by every log format and by date ranges.
const TimestampLayout = "2006-01-02 15:04:05"

var (
	ErrInvalidGroupBy   = errors.New("invalid group-by field")
	ErrInvalidCountMode = errors.New("invalid count type")
	ErrInvalidDateRange = errors.New("invalid date range")
)

// GroupBy selects the record field used as the aggregation key.
type GroupBy string

const (
	GroupByUser  GroupBy = "user"
	GroupByIP    GroupBy = "ip"
	GroupByLevel GroupBy = "level"
)

func ParseGroupBy(s string) (GroupBy, error) {
	switch g := GroupBy(strings.ToLower(strings.TrimSpace(s))); g {
	case GroupByUser, GroupByIP, GroupByLevel:
		return g, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidGroupBy, s)
	}
}

// Key returns the value of r used for grouping, or "" when r lacks it.
func (g GroupBy) Key(r Record) string {
	switch g {
	case GroupByUser:
		return r.UserID
	case GroupByIP:
		return r.IPAddress
	case GroupByLevel:
		return r.Severity
	default:
		return ""
	}
}

// CountMode selects how records under one key are counted.
//
//	entries, ip  occurrences per key
//	user         distinct user IDs per key
type CountMode string

const (
	CountEntries CountMode = "entries"
	CountUsers   CountMode = "user"
	CountIPs     CountMode = "ip"
)

func ParseCountMode(s string) (CountMode, error) {
	switch c := CountMode(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return CountEntries, nil
	case CountEntries, CountUsers, CountIPs:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCountMode, s)
	}
}

// Distinct reports whether the mode counts distinct user IDs instead of occurrences.
func (c CountMode) Distinct() bool { return c == CountUsers }

// DateRange is an inclusive timestamp window.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ParseTimestamp parses s with TimestampLayout in UTC.
func ParseTimestamp(s string) (time.Time, error) {
	return time.ParseInLocation(TimestampLayout, strings.TrimSpace(s), time.UTC)
}

// ParseDateRange builds a range from two timestamps. Both must parse and
// start must not be after end.
func ParseDateRange(start, end string) (*DateRange, error) {
	s, err := ParseTimestamp(start)
	if err != nil {
		return nil, fmt.Errorf("%w: start %q", ErrInvalidDateRange, start)
	}
	e, err := ParseTimestamp(end)
	if err != nil {
		return nil, fmt.Errorf("%w: end %q", ErrInvalidDateRange, end)
	}
	if s.After(e) {
		return nil, fmt.Errorf("%w: start %q is after end %q", ErrInvalidDateRange, start, end)
	}
	return &DateRange{Start: s, End: e}, nil
}

// Contains reports whether ts falls inside the range. A nil range contains
// everything; a timestamp that does not parse is outside any range.
func (r *DateRange) Contains(ts string) bool {
	if r == nil {
		return true
	}
	t, err := ParseTimestamp(ts)
	if err != nil {
		return false
	}
	return !t.Before(r.Start) && !t.After(r.End)
}

// Params are the control parameters of one request.
type Params struct {
	GroupBy GroupBy
	Count   CountMode
	Range   *DateRange
}

// Label is the prefix used in summary lines, e.g. "ip" or "users per ip".
func (p Params) Label() string {
	if p.Count.Distinct() {
		return "users per " + string(p.GroupBy)
	}
	return string(p.GroupBy)
}
