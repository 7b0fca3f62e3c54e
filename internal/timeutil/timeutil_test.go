// ABOUTME: Tests for cutoff calculations
// ABOUTME: Uses a fixed reference time so results are deterministic

package timeutil

import (
	"testing"
	"time"
)

// Wednesday afternoon
var ref = time.Date(2024, time.March, 13, 15, 30, 0, 0, time.UTC)

func TestStartOfDay(t *testing.T) {
	got := StartOfDay(ref)
	want := time.Date(2024, time.March, 13, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("StartOfDay() = %v, expected %v", got, want)
	}
}

func TestStartOfWeek(t *testing.T) {
	got := StartOfWeek(ref)
	if got.Weekday() != time.Sunday {
		t.Errorf("StartOfWeek() weekday = %v, expected Sunday", got.Weekday())
	}
	want := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("StartOfWeek() = %v, expected %v", got, want)
	}
}

func TestStartOfMonth(t *testing.T) {
	got := StartOfMonth(ref)
	want := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("StartOfMonth() = %v, expected %v", got, want)
	}
}

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		period string
		want   time.Time
		valid  bool
	}{
		{"today", time.Date(2024, time.March, 13, 0, 0, 0, 0, time.UTC), true},
		{"yesterday", time.Date(2024, time.March, 12, 0, 0, 0, 0, time.UTC), true},
		{"week", time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC), true},
		{"month", time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), true},
		{"invalid", time.Time{}, false},
		{"", time.Time{}, false},
	}

	for _, tc := range tests {
		got, ok := ParsePeriod(tc.period, ref)
		if ok != tc.valid {
			t.Errorf("ParsePeriod(%q) valid = %v, expected %v", tc.period, ok, tc.valid)
			continue
		}
		if tc.valid && !got.Equal(tc.want) {
			t.Errorf("ParsePeriod(%q) = %v, expected %v", tc.period, got, tc.want)
		}
	}
}

func TestParseAge(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"30d", 30 * 24 * time.Hour, false},
		{"2w", 14 * 24 * time.Hour, false},
		{"12h", 12 * time.Hour, false},
		{"90m", 90 * time.Minute, false},
		{"0d", 0, false},
		{"", 0, true},
		{"xd", 0, true},
		{"-3d", 0, true},
		{"-1h", 0, true},
		{"soon", 0, true},
	}

	for _, tc := range tests {
		got, err := ParseAge(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseAge(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseAge(%q) = %v, expected %v", tc.in, got, tc.want)
		}
	}
}

func TestParseCutoff(t *testing.T) {
	got, err := ParseCutoff("7d", ref)
	if err != nil {
		t.Fatalf("ParseCutoff: %v", err)
	}
	if want := ref.Add(-7 * 24 * time.Hour); !got.Equal(want) {
		t.Errorf("ParseCutoff(7d) = %v, expected %v", got, want)
	}

	got, err = ParseCutoff("today", ref)
	if err != nil {
		t.Fatalf("ParseCutoff: %v", err)
	}
	if !got.Equal(StartOfDay(ref)) {
		t.Errorf("ParseCutoff(today) = %v", got)
	}

	got, err = ParseCutoff("2024-03-01", ref)
	if err != nil {
		t.Fatalf("ParseCutoff: %v", err)
	}
	if want := time.Date(2024, time.March, 1, 0, 0, 0, 0, ref.Location()); !got.Equal(want) {
		t.Errorf("ParseCutoff(2024-03-01) = %v, expected %v", got, want)
	}

	if _, err := ParseCutoff("whenever", ref); err == nil {
		t.Error("expected error for unknown cutoff")
	}
}
