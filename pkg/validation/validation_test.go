package validation

import (
	"errors"
	"testing"
	"time"
)

func TestPlateNormalisation(t *testing.T) {
	got, err := Plate("  а 123 вс 77 ")
	if err != nil {
		t.Fatalf("Plate: %v", err)
	}
	if got != "А123ВС77" {
		t.Errorf("expected А123ВС77, got %q", got)
	}

	if _, err := Plate(" a 1 b "); !errors.Is(err, ErrInvalid) {
		t.Errorf("short plate should be invalid, got %v", err)
	}
}

func TestSeatsBounds(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want int
		ok   bool
	}{
		{"1", 1, true},
		{" 10 ", 10, true},
		{"0", 0, false},
		{"11", 0, false},
		{"three", 0, false},
	} {
		got, err := Seats(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Errorf("Seats(%q) = %d, %v; want %d", tc.in, got, err, tc.want)
		}
		if !tc.ok && !errors.Is(err, ErrInvalid) {
			t.Errorf("Seats(%q) should be invalid, got %v", tc.in, err)
		}
	}
}

func TestCityAndNames(t *testing.T) {
	if _, err := City("М"); !errors.Is(err, ErrInvalid) {
		t.Errorf("one-letter city should be invalid")
	}
	if got, err := City("  Казань "); err != nil || got != "Казань" {
		t.Errorf("City should trim, got %q, %v", got, err)
	}
	if _, err := FullName("Иван"); !errors.Is(err, ErrInvalid) {
		t.Errorf("4-char name should be invalid")
	}
	if _, err := CarColor("се"); !errors.Is(err, ErrInvalid) {
		t.Errorf("2-char color should be invalid")
	}
	if _, err := CarModel("   "); !errors.Is(err, ErrInvalid) {
		t.Errorf("blank model should be invalid")
	}
}

func TestParseDateTimeLongFormat(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	got, err := ParseDateTime("25.12.2025 15:30", now)
	if err != nil {
		t.Fatalf("ParseDateTime: %v", err)
	}
	want := time.Date(2025, 12, 25, 15, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseDateTimeShortFormatCurrentYear(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	got, err := ParseDateTime("25.12 15:30", now)
	if err != nil {
		t.Fatalf("ParseDateTime: %v", err)
	}
	if got.Year() != 2025 {
		t.Errorf("future date should stay in current year, got %d", got.Year())
	}
}

func TestParseDateTimeShortFormatRollsOver(t *testing.T) {
	// December 26th: "25.12 15:30" has passed, so it means next year.
	now := time.Date(2025, 12, 26, 12, 0, 0, 0, time.UTC)
	got, err := ParseDateTime("25.12 15:30", now)
	if err != nil {
		t.Fatalf("ParseDateTime: %v", err)
	}
	if got.Year() != 2026 {
		t.Errorf("past short date should roll to next year, got %d", got.Year())
	}
}

func TestParseDateTimeRejectsGarbage(t *testing.T) {
	now := time.Now()
	for _, in := range []string{"tomorrow", "25/12 15:30", "15:30", ""} {
		if _, err := ParseDateTime(in, now); !errors.Is(err, ErrInvalid) {
			t.Errorf("ParseDateTime(%q) should be invalid, got %v", in, err)
		}
	}
}

func TestParseDateShortRollsOverAtDayGranularity(t *testing.T) {
	// Same calendar day is still "today", not next year.
	now := time.Date(2025, 12, 25, 23, 0, 0, 0, time.UTC)
	got, err := ParseDate("25.12", now)
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if got.Year() != 2025 {
		t.Errorf("today should not roll over, got year %d", got.Year())
	}

	got, err = ParseDate("24.12", now)
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if got.Year() != 2026 {
		t.Errorf("yesterday's date should roll to next year, got %d", got.Year())
	}
}
