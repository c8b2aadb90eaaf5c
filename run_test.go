package rawsheets

import (
	"testing"
	"time"
)

func TestParseRawTime(t *testing.T) {
	for input, expected := range map[string]time.Duration{
		"45.123":  45123 * time.Millisecond,
		" 45.1 ":  45100 * time.Millisecond,
		"60":      time.Minute,
		"45.1236": 45124 * time.Millisecond,
		"0":       0,
	} {
		rawTime, err := ParseRawTime(input)

		if err != nil {
			t.Error(err)
			continue
		}

		if rawTime == nil || *rawTime != expected {
			t.Logf("Parsing %q: expected %s, got: %v", input, expected, rawTime)
			t.Fail()
		}
	}

	t.Run("Empty clears the time", func(t *testing.T) {
		rawTime, err := ParseRawTime("")

		if err != nil || rawTime != nil {
			t.Logf("Expected nil, nil, got: %v, %v", rawTime, err)
			t.Fail()
		}
	})

	t.Run("Invalid", func(t *testing.T) {
		for _, input := range []string{"abc", "-1.5", "45.1.2", "NaN", "Inf", "-Inf", "1e20", "9300000000"} {
			if _, err := ParseRawTime(input); err == nil {
				t.Logf("Expected %q to be rejected", input)
				t.Fail()
			}
		}
	})
}

func TestFormatRawTime(t *testing.T) {
	if s := FormatRawTime(nil); s != "" {
		t.Logf("Expected an empty string, got: %q", s)
		t.Fail()
	}

	rawTime := 45123 * time.Millisecond

	if s := FormatRawTime(&rawTime); s != "45.123" {
		t.Logf("Expected 45.123, got: %q", s)
		t.Fail()
	}
}
