package duetime

import (
	"errors"
	"testing"
	"time"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Skipf("timezone %s unavailable: %v", name, err)
	}
	return loc
}

func TestParseClock_SameDayWhenLater(t *testing.T) {
	loc := time.FixedZone("+03:30", 3*3600+30*60)
	p := NewParser(loc)
	now := time.Date(2026, 1, 7, 10, 0, 0, 0, loc)

	got, err := p.Parse("21:30", now, true)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := time.Date(2026, 1, 7, 21, 30, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestParseClock_RollsOverWhenPast(t *testing.T) {
	loc := time.FixedZone("+03:30", 3*3600+30*60)
	p := NewParser(loc)
	now := time.Date(2026, 1, 7, 22, 0, 0, 0, loc)

	got, err := p.Parse("21:30", now, true)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := time.Date(2026, 1, 8, 21, 30, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestParseClock_ExactlyNowRollsOver(t *testing.T) {
	p := NewParser(time.UTC)
	now := time.Date(2026, 1, 7, 21, 30, 0, 0, time.UTC)
	got, err := p.Parse("21:30", now, true)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !got.Equal(now.AddDate(0, 0, 1)) {
		t.Fatalf("expected next day, got %v", got)
	}
}

func TestParseClock_NoRollover(t *testing.T) {
	p := NewParser(time.UTC)
	now := time.Date(2026, 1, 7, 22, 0, 0, 0, time.UTC)
	got, err := p.Parse("21:30", now, false)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if want := time.Date(2026, 1, 7, 21, 30, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestParseClock_UsesConfiguredDayNotUTCDay(t *testing.T) {
	loc := time.FixedZone("+03:30", 3*3600+30*60)
	p := NewParser(loc)
	// 22:00 UTC on Jan 7 is already 01:30 on Jan 8 locally.
	now := time.Date(2026, 1, 7, 22, 0, 0, 0, time.UTC)
	got, err := p.Parse("09:00", now, true)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if want := time.Date(2026, 1, 8, 9, 0, 0, 0, loc); !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestParseClock_RolloverAcrossDST(t *testing.T) {
	loc := mustLoad(t, "Europe/Berlin")
	p := NewParser(loc)
	// Clocks go forward on 2026-03-29; the next-day instant keeps wall time.
	now := time.Date(2026, 3, 28, 23, 0, 0, 0, loc)
	got, err := p.Parse("08:00", now, true)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Hour() != 8 || got.Day() != 29 {
		t.Fatalf("expected 08:00 on the 29th, got %v", got)
	}
}

func TestParseDateTime_IgnoresNow(t *testing.T) {
	loc := time.FixedZone("+03:30", 3*3600+30*60)
	p := NewParser(loc)
	want := time.Date(2026, 1, 7, 14, 0, 0, 0, loc)
	for _, now := range []time.Time{
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC),
	} {
		got, err := p.Parse("2026-01-07 14:00", now, true)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if !got.Equal(want) || got.Location() != loc {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestParse_RejectsOtherGrammars(t *testing.T) {
	p := NewParser(time.UTC)
	now := time.Date(2026, 1, 7, 10, 0, 0, 0, time.UTC)
	for _, in := range []string{
		"",
		"not-a-time",
		"tomorrow",
		"9pm",
		"25:00",
		"2026-13-01 10:00",
		"2026-01-07",
		"2026-01-07T14:00",
		"14:00:00",
	} {
		if _, err := p.Parse(in, now, true); !errors.Is(err, ErrMalformedTime) {
			t.Fatalf("%q: expected ErrMalformedTime, got %v", in, err)
		}
	}
}

func TestParse_TrimsSurroundingSpace(t *testing.T) {
	p := NewParser(time.UTC)
	now := time.Date(2026, 1, 7, 10, 0, 0, 0, time.UTC)
	if _, err := p.Parse("  2026-01-07 14:00 ", now, true); err != nil {
		t.Fatalf("parse: %v", err)
	}
}
