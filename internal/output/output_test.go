package output

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestFormatTimeAgo(t *testing.T) {
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{30 * time.Second, "just now"},
		{5 * time.Minute, "5m ago"},
		{3 * time.Hour, "3h ago"},
		{49 * time.Hour, "2d ago"},
	}
	for _, tt := range tests {
		if got := FormatTimeAgo(time.Now().Add(-tt.ago)); got != tt.want {
			t.Errorf("FormatTimeAgo(-%v) = %q, want %q", tt.ago, got, tt.want)
		}
	}

	old := time.Date(2023, 4, 5, 0, 0, 0, 0, time.UTC)
	if got := FormatTimeAgo(old); got != "2023-04-05" {
		t.Errorf("old date = %q", got)
	}
}

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "0.00"},
		{"12.5", "12.50"},
		{"1234", "1,234.00"},
		{"1234567.891", "1,234,567.89"},
		{"-70", "-70.00"},
		{"-1000.5", "-1,000.50"},
	}
	for _, tt := range tests {
		if got := FormatMoney(decimal.RequireFromString(tt.in)); got != tt.want {
			t.Errorf("FormatMoney(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello world", 6, "hello…"},
		{"héllo", 3, "hé…"},
		{"abc", 0, "abc"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.width); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}

func TestSyncBadge(t *testing.T) {
	for _, st := range []string{"idle", "syncing", "synced", "offline", "error"} {
		badge := SyncBadge(st, 0)
		if !strings.Contains(badge, st) {
			t.Errorf("SyncBadge(%q) = %q", st, badge)
		}
	}
	if got := SyncBadge("weird", 0); !strings.Contains(got, "?") {
		t.Errorf("unknown status badge = %q", got)
	}
	if got := SyncBadge("error", 3); !strings.Contains(got, "3 pending") {
		t.Errorf("pending count missing: %q", got)
	}
}

func TestOutboxLine(t *testing.T) {
	line := OutboxLine(42, "UPDATE_PRODUCT", 7, 2, strings.Repeat("x", 200), false, 80)
	if !strings.Contains(line, "UPDATE_PRODUCT") || !strings.Contains(line, "#7") || !strings.Contains(line, "2 attempts") {
		t.Errorf("line = %q", line)
	}
	if strings.Count(line, "x") >= 200 {
		t.Error("last error not truncated to the terminal width")
	}
	if dead := OutboxLine(1, "CREATE_FEE", 1, 6, "", true, 80); !strings.Contains(dead, "✗") {
		t.Errorf("dead entry not marked: %q", dead)
	}
}

func TestMarkdownTable(t *testing.T) {
	got := MarkdownTable([]string{"Contact", "Balance"}, [][]string{
		{"Budi", "70.00"},
		{"A|B"},
	})
	want := "| Contact | Balance |\n| --- | --- |\n| Budi | 70.00 |\n| A\\|B |  |\n"
	if got != want {
		t.Errorf("MarkdownTable =\n%s\nwant\n%s", got, want)
	}
}

func TestRenderMarkdownEmpty(t *testing.T) {
	out, err := RenderMarkdownWithWidth("   ", 80)
	if err != nil || out != "" {
		t.Errorf("RenderMarkdownWithWidth(blank) = %q, %v", out, err)
	}
}

func TestTerminalWidthFallback(t *testing.T) {
	t.Setenv("COLUMNS", "")
	if w := TerminalWidth(0); w <= 0 {
		t.Errorf("TerminalWidth(0) = %d", w)
	}
	t.Setenv("COLUMNS", "123")
	if w := TerminalWidth(40); w != 123 && w <= 0 {
		t.Errorf("TerminalWidth = %d", w)
	}
}
