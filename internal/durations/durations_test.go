package durations

import (
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"10m", 10 * time.Minute, true},
		{"1h", time.Hour, true},
		{"2d", 48 * time.Hour, true},
		{"1w", 7 * 24 * time.Hour, true},
		{"1y", 365 * 24 * time.Hour, true},
		{"0m", 0, true},
		{" 3H ", 3 * time.Hour, true},
		{"10s", 0, false},
		{"", 0, false},
		{"d", 0, false},
		{"abc", 0, false},
		{"-1h", 0, false},
		{"1.5h", 0, false},
	}

	for _, tc := range cases {
		got, ok := Parse(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("Parse(%q) = %v, %v; expected %v, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestParseZeroIsNotFailure(t *testing.T) {
	got, ok := Parse("0h")
	if !ok {
		t.Fatalf("expected 0h to parse")
	}
	if got != 0 {
		t.Fatalf("expected zero duration, got %v", got)
	}
}

func TestParseShort(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"30s", 30 * time.Second, true},
		{"5m", 5 * time.Minute, true},
		{"1d", 24 * time.Hour, true},
		{"1w", 0, false},
		{"1y", 0, false},
	}

	for _, tc := range cases {
		got, ok := ParseShort(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("ParseShort(%q) = %v, %v; expected %v, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
