package config

import (
	"errors"
	"strconv"
	"time"
)

var ErrInvalidTimezone = errors.New("invalid timezone")

// LocationFromTZ accepts an IANA name ("Asia/Tehran") or a fixed offset
// ("+03:30").
func LocationFromTZ(tz string) (*time.Location, error) {
	if tz == "" || tz == "UTC" {
		return time.UTC, nil
	}
	if loc, ok := parseOffsetLocation(tz); ok {
		return loc, nil
	}
	loc, err := time.LoadLocation(tz)
	if err == nil {
		return loc, nil
	}
	return nil, ErrInvalidTimezone
}

func parseOffsetLocation(tz string) (*time.Location, bool) {
	if len(tz) != 6 || (tz[0] != '+' && tz[0] != '-') || tz[3] != ':' {
		return nil, false
	}
	hours, err := strconv.Atoi(tz[1:3])
	if err != nil || hours > 23 {
		return nil, false
	}
	minutes, err := strconv.Atoi(tz[4:6])
	if err != nil || minutes > 59 {
		return nil, false
	}
	offset := hours*3600 + minutes*60
	if tz[0] == '-' {
		offset = -offset
	}
	return time.FixedZone(tz, offset), true
}
