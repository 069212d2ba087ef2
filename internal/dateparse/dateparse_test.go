package dateparse

import (
	"testing"
	"time"
)

// Wednesday
var testNow = time.Date(2024, 3, 13, 15, 30, 0, 0, time.UTC)

func TestParseFrom(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"2024-02-29", "2024-02-29"},
		{" 2023-12-31 ", "2023-12-31"},
		{"today", "2024-03-13"},
		{"TODAY", "2024-03-13"},
		{"yesterday", "2024-03-12"},
		{"tomorrow", "2024-03-14"},
		{"month-start", "2024-03-01"},
		{"last-month", "2024-02-01"},
		{"+0d", "2024-03-13"},
		{"+7d", "2024-03-20"},
		{"-13d", "2024-02-29"},
		{"+2w", "2024-03-27"},
		{"-1w", "2024-03-06"},
		{"+1m", "2024-04-13"},
		{"-3m", "2023-12-13"},
		{"friday", "2024-03-15"},
		{"wednesday", "2024-03-20"},
		{"monday", "2024-03-18"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFrom(tt.input, testNow)
			if err != nil {
				t.Fatalf("ParseFrom(%q): %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseFrom(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseFromRejects(t *testing.T) {
	for _, input := range []string{"", "   ", "2024-13-01", "2024-02-30", "+7x", "+d", "7d", "someday", "14/03/2024"} {
		if got, err := ParseFrom(input, testNow); err == nil {
			t.Errorf("ParseFrom(%q) = %q, want error", input, got)
		}
	}
}

func TestLastMonthInJanuary(t *testing.T) {
	jan := time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)
	got, err := ParseFrom("last-month", jan)
	if err != nil {
		t.Fatal(err)
	}
	if got != "2023-12-01" {
		t.Errorf("last-month in January = %q", got)
	}
}
