// Package present turns usage records into the strings, colors and report
// every front end shares.
package present

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tnunamak/gravmeter/internal/api"
)

type Level int

const (
	LevelOK Level = iota
	LevelInfo
	LevelWarning
	LevelCritical
)

// LevelFor maps a consumed percentage onto a display level.
func LevelFor(pct float64) Level {
	switch {
	case pct >= 95:
		return LevelCritical
	case pct >= 90:
		return LevelWarning
	case pct >= 80:
		return LevelInfo
	default:
		return LevelOK
	}
}

func (l Level) String() string {
	switch l {
	case LevelCritical:
		return "critical"
	case LevelWarning:
		return "warning"
	case LevelInfo:
		return "info"
	default:
		return "ok"
	}
}

// Hex is the indicator color: green, yellow, orange, red.
func (l Level) Hex() string {
	switch l {
	case LevelCritical:
		return "#FF0000"
	case LevelWarning:
		return "#FF8C00"
	case LevelInfo:
		return "#FFD700"
	default:
		return "#00FF00"
	}
}

func (l Level) Icon() string {
	switch l {
	case LevelCritical:
		return "✖"
	case LevelWarning:
		return "⚠"
	case LevelInfo:
		return "ℹ"
	default:
		return "✓"
	}
}

// FormatNumber abbreviates large counts: 1500 → 1.5K, 2000000 → 2.0M.
func FormatNumber(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return fmt.Sprint(n)
	}
}

// FormatTimeRemaining renders the time until reset as "3h 12m" or "45m".
func FormatTimeRemaining(reset, now time.Time) string {
	d := reset.Sub(now)
	if d <= 0 {
		return "Resetting..."
	}
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}

// Indicator is the compact status text, e.g. "✓ AG: 42%".
func Indicator(rec *api.Record) string {
	return fmt.Sprintf("%s AG: %.0f%%", LevelFor(rec.Percentage).Icon(), rec.Percentage)
}

// Tooltip is the multi-line summary shown on hover.
func Tooltip(rec *api.Record, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Antigravity usage\n")
	fmt.Fprintf(&b, "Used: %s credits\n", humanize.Comma(rec.Used))
	fmt.Fprintf(&b, "Total: %s credits\n", humanize.Comma(rec.Total))
	fmt.Fprintf(&b, "Remaining: %s credits (%.1f%%)\n", humanize.Comma(rec.Remaining), rec.Percentage)
	fmt.Fprintf(&b, "Plan: %s\n", strings.ToUpper(string(rec.Plan)))
	fmt.Fprintf(&b, "Resets: %s (%s)", rec.ResetTime.Local().Format("Mon Jan 2 15:04"), humanize.RelTime(rec.ResetTime, now, "ago", "from now"))
	return b.String()
}

// ModelLevel colors a per-model quota by how much of it is consumed.
func ModelLevel(q api.ModelQuota) Level {
	return LevelFor(100 - q.RemainingPercent)
}
