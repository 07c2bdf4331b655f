package tz

import (
	"errors"
	"testing"
	"time"
)

func TestParseOffset(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{input: "UTC", want: 0},
		{input: "Z", want: 0},
		{input: "+02:00", want: 120},
		{input: "-0530", want: -330},
		{input: "UTC+2", want: 120},
		{input: "gmt-03:30", want: -210},
		{input: "+14:00", want: 840},
		{input: "+15:00", wantErr: true},
		{input: "+02:75", wantErr: true},
		{input: "Europe/Paris", wantErr: true},
		{input: "UTC+x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			got, err := ParseOffset(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTimezone) {
					t.Fatalf("ParseOffset(%q) error = %v, want ErrInvalidTimezone", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseOffset(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseOffset(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	summer := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	explicit := -60
	tooFar := 2000

	tests := []struct {
		name     string
		zone     string
		explicit *int
		want     int
		wantErr  bool
	}{
		{name: "empty is utc", zone: "", want: 0},
		{name: "explicit wins", zone: "UTC+5", explicit: &explicit, want: -60},
		{name: "explicit out of range", explicit: &tooFar, wantErr: true},
		{name: "offset notation", zone: "UTC+5:45", want: 345},
		{name: "iana zone in summer", zone: "Europe/Paris", want: 120},
		{name: "unknown zone", zone: "Mars/Olympus", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Resolve(tt.zone, tt.explicit, summer)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if got != 0 {
					t.Errorf("offset on error = %d, want 0", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAt(t *testing.T) {
	t.Parallel()

	// Monday 23:30 UTC is Tuesday 01:30 at UTC+2.
	instant := time.Date(2025, 1, 6, 23, 30, 0, 0, time.UTC)

	got := At(instant, 120)
	if got.Weekday != time.Tuesday || got.Minute != 90 {
		t.Errorf("At(+120) = %+v, want Tuesday/90", got)
	}

	got = At(instant, -(23*60 + 30))
	if got.Weekday != time.Monday || got.Minute != 0 {
		t.Errorf("At(-1410) = %+v, want Monday/0", got)
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()

	if got := Format(330); got != "UTC+05:30" {
		t.Errorf("Format(330) = %q", got)
	}
	if got := Format(-480); got != "UTC-08:00" {
		t.Errorf("Format(-480) = %q", got)
	}
}
