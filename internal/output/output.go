// Package output provides styled terminal output helpers (messages, sync
// status badges, money and outbox formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

var (
	// Styles
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	statusStyles = map[string]lipgloss.Style{
		"idle":    lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
		"syncing": lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		"synced":  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		"offline": lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		"error":   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
	statusSymbols = map[string]string{
		"idle":    "○",
		"syncing": "↻",
		"synced":  "✓",
		"offline": "⊘",
		"error":   "✗",
	}
)

// Success prints a success message
func Success(format string, args ...any) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...any) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...any) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...any) {
	fmt.Println(fmt.Sprintf(format, args...))
}

// Title renders s bold.
func Title(s string) string {
	return titleStyle.Render(s)
}

// Subtle renders s dimmed.
func Subtle(s string) string {
	return subtleStyle.Render(s)
}

// JSON outputs data as JSON
func JSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// Error codes for structured JSON output
const (
	ErrCodeNotFound         = "not_found"
	ErrCodeInvalidInput     = "invalid_input"
	ErrCodeStoreUnavailable = "store_unavailable"
	ErrCodeSyncFailed       = "sync_failed"
)

// JSONError outputs an error as JSON
func JSONError(code, message string) {
	data, _ := json.Marshal(map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
	fmt.Println(string(data))
}

// SyncBadge returns the status indicator for a sync state,
// e.g. "✓ synced", "⊘ offline". Pending > 0 is appended as a count.
func SyncBadge(status string, pending int) string {
	symbol, ok := statusSymbols[status]
	if !ok {
		symbol = "?"
	}
	badge := fmt.Sprintf("%s %s", symbol, status)
	if style, ok := statusStyles[status]; ok {
		badge = style.Render(badge)
	}
	if pending > 0 {
		badge += subtleStyle.Render(fmt.Sprintf(" (%d pending)", pending))
	}
	return badge
}

// FormatMoney renders an amount with two decimals and thousands separators.
func FormatMoney(d decimal.Decimal) string {
	s := d.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	whole, frac, _ := strings.Cut(s, ".")

	var sb strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(r)
	}
	out := sb.String() + "." + frac
	if neg {
		return "-" + out
	}
	return out
}

// Truncate shortens s to width runes, marking the cut with an ellipsis.
func Truncate(s string, width int) string {
	r := []rune(s)
	if width <= 0 || len(r) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return string(r[:width-1]) + "…"
}

// FormatTimeAgo formats a time as a human-readable "ago" string
func FormatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}

// OutboxLine formats one queued mutation, fitted to width columns.
// e.g. "  42  UPDATE_PRODUCT  #7  2 attempts  HTTP 503: down"
func OutboxLine(seq int64, action string, localKey int64, attempts int, lastErr string, dead bool, width int) string {
	line := fmt.Sprintf("%4d  %-20s #%-5d", seq, action, localKey)
	if attempts > 0 {
		line += fmt.Sprintf("  %d attempts", attempts)
	}
	if lastErr != "" {
		room := width - lipgloss.Width(line) - 2
		if room > 8 {
			line += "  " + subtleStyle.Render(Truncate(lastErr, room))
		}
	}
	if dead {
		return errorStyle.Render("✗") + line
	}
	return " " + line
}

// SectionHeader returns a formatted section header for CLI output
// e.g., "\nOUTBOX:\n"
func SectionHeader(title string) string {
	return fmt.Sprintf("\n%s:\n", strings.ToUpper(title))
}
