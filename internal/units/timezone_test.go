package units

import (
	"testing"
	"time"
)

func TestIsTimezoneValid(t *testing.T) {
	valid := []string{"UTC", "America/New_York", "Europe/Berlin"}
	for _, tz := range valid {
		if !IsTimezoneValid(tz) {
			t.Errorf("IsTimezoneValid(%q) = false, want true", tz)
		}
	}

	invalid := []string{"", "Not/AZone", "EST5EDT4EVER"}
	for _, tz := range invalid {
		if IsTimezoneValid(tz) {
			t.Errorf("IsTimezoneValid(%q) = true, want false", tz)
		}
	}
}

func TestResolveLocation(t *testing.T) {
	loc, err := ResolveLocation("")
	if err != nil {
		t.Fatalf("ResolveLocation(\"\"): %v", err)
	}
	if loc != time.Local {
		t.Errorf("empty tz resolved to %v, want time.Local", loc)
	}

	if _, err := ResolveLocation("Pacific/Auckland"); err != nil {
		t.Errorf("ResolveLocation(Pacific/Auckland): %v", err)
	}

	if _, err := ResolveLocation("Nowhere/Fake"); err == nil {
		t.Error("ResolveLocation(Nowhere/Fake) should fail")
	}
}

func TestConvertTime(t *testing.T) {
	utc := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	same, err := ConvertTime(utc, "UTC")
	if err != nil {
		t.Fatalf("ConvertTime UTC: %v", err)
	}
	if !same.Equal(utc) {
		t.Errorf("UTC conversion changed the instant: %v", same)
	}

	ny, err := ConvertTime(utc, "America/New_York")
	if err != nil {
		t.Fatalf("ConvertTime New York: %v", err)
	}
	if !ny.Equal(utc) {
		t.Error("conversion must preserve the instant")
	}
	if ny.Hour() == utc.Hour() {
		t.Error("New York wall clock should differ from UTC in June")
	}

	if _, err := ConvertTime(utc, "Bad/Zone"); err == nil {
		t.Error("ConvertTime with unknown zone should fail")
	}
}
