// Package duetime turns the time part of an /add command into an absolute
// instant in the configured timezone.
//
// Two forms are accepted, tried in order:
//
//	2006-01-02 15:04   a specific date and time
//	15:04              today at that time
package duetime

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrMalformedTime = errors.New("malformed time")

const (
	DateTimeLayout = "2006-01-02 15:04"
	ClockLayout    = "15:04"
)

type Parser struct {
	loc *time.Location
}

func NewParser(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.UTC
	}
	return &Parser{loc: loc}
}

func (p *Parser) Location() *time.Location {
	return p.loc
}

// Parse resolves text relative to now. With rollover set, a clock-only time
// that is at or before now moves to the same time on the next day.
func (p *Parser) Parse(text string, now time.Time, rollover bool) (time.Time, error) {
	text = strings.TrimSpace(text)
	if t, err := time.ParseInLocation(DateTimeLayout, text, p.loc); err == nil {
		return t, nil
	}
	clock, err := time.ParseInLocation(ClockLayout, text, p.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTime, text)
	}
	local := now.In(p.loc)
	t := time.Date(local.Year(), local.Month(), local.Day(), clock.Hour(), clock.Minute(), 0, 0, p.loc)
	if rollover && !t.After(now) {
		t = time.Date(local.Year(), local.Month(), local.Day()+1, clock.Hour(), clock.Minute(), 0, 0, p.loc)
	}
	return t, nil
}
