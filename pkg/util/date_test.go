package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnixAndDate(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok || got.Unix() != ts {
		t.Fatalf("unexpected unix %v ok=%v", got.Unix(), ok)
	}
	d, ok := ParseTime("2024-03-01")
	if !ok || d.Day() != 1 || d.Month() != time.March {
		t.Fatalf("unexpected date %v ok=%v", d, ok)
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	if got := ParseTimeDefault("nope", def); !got.Equal(def) {
		t.Fatalf("expected default")
	}
}

func TestDayKeyUsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	tm := time.Date(2024, 6, 2, 2, 0, 0, 0, loc)
	if got := DayKey(tm); got != "2024-06-01" {
		t.Fatalf("expected 2024-06-01, got %s", got)
	}
	start, end := DayBounds(tm)
	if !start.Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)) || end.Sub(start) != 24*time.Hour {
		t.Fatalf("unexpected bounds %v %v", start, end)
	}
}

func TestCandlesElapsedFloors(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := since.Add(44*time.Minute + 59*time.Second)
	if got := CandlesElapsed(since, now, time.Minute); got != 44 {
		t.Fatalf("expected 44, got %d", got)
	}
	if got := CandlesElapsed(now, since, time.Minute); got != 0 {
		t.Fatalf("expected 0 for reversed range, got %d", got)
	}
}
