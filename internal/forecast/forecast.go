package forecast

import (
	"time"

	"github.com/fatih/color"

	"github.com/tnunamak/gravmeter/internal/api"
)

type Projection struct {
	// ProjectedPct is the estimated usage at reset (0-100+).
	ProjectedPct float64
	// OnTrack is true if projected usage stays under 100% at reset.
	OnTrack bool
}

// Project extrapolates the current burn rate to the end of the window.
// currentPct is 0-100, resetsAt is when the window ends and windowLen is
// its full length.
func Project(currentPct float64, resetsAt, now time.Time, windowLen time.Duration) Projection {
	remaining := resetsAt.Sub(now)
	elapsed := windowLen - remaining

	if elapsed <= 0 || currentPct <= 0 {
		return Projection{ProjectedPct: currentPct, OnTrack: currentPct < 100}
	}

	rate := currentPct / elapsed.Seconds()
	projected := rate * windowLen.Seconds()

	return Projection{
		ProjectedPct: projected,
		OnTrack:      projected < 100,
	}
}

// ForRecord projects rec when its reset cadence is known. Records without
// a window have no meaningful elapsed time.
func ForRecord(rec *api.Record, now time.Time) (Projection, bool) {
	if rec == nil || rec.Window <= 0 || rec.ResetTime.IsZero() {
		return Projection{}, false
	}
	return Project(rec.Percentage, rec.ResetTime, now, rec.Window), true
}

// Indicator returns a short status string for the projection.
func (p Projection) Indicator() string {
	switch {
	case p.ProjectedPct >= 100:
		return "over limit"
	case p.ProjectedPct >= 90:
		return "tight"
	default:
		return "on track"
	}
}

var (
	overColor  = color.New(color.FgRed)
	tightColor = color.New(color.FgYellow)
	okColor    = color.New(color.FgGreen)
)

// ColorIndicator returns the indicator with a symbol, colored when color
// output is enabled.
func (p Projection) ColorIndicator() string {
	switch {
	case p.ProjectedPct >= 100:
		return overColor.Sprint("⚠ over limit")
	case p.ProjectedPct >= 90:
		return tightColor.Sprint("~ tight")
	default:
		return okColor.Sprint("✓ on track")
	}
}
