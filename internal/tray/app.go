// Package tray is the status-bar front end. The systray glue only builds
// with -tags tray; the state it renders lives here so it can be tested
// without a desktop session.
package tray

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/tnunamak/gravmeter/internal/alert"
	"github.com/tnunamak/gravmeter/internal/api"
	"github.com/tnunamak/gravmeter/internal/monitor"
	"github.com/tnunamak/gravmeter/internal/present"
)

// ErrUnavailable is returned by Run in builds without the tray.
var ErrUnavailable = errors.New("tray mode not available in this build; rebuild with: go build -tags tray ./cmd/gravmeter")

// Monitor is the part of *monitor.Monitor the menu drives.
type Monitor interface {
	Run(ctx context.Context) error
	Refresh()
	Reconnect()
	SetNotifications(on bool)
	Snapshot() (monitor.Snapshot, bool)
}

// view is everything the tray shows for one state.
type view struct {
	Title   string
	Tooltip string
	Status  string
	Detail  string
	Level   present.Level
	Known   bool
}

// App holds the latest monitor output and redraws the tray when it
// changes. It is a monitor.Sink.
type App struct {
	logger zerolog.Logger
	now    func() time.Time

	mu      sync.Mutex
	snap    monitor.Snapshot
	hasSnap bool
	loading bool
	draw    func(view)

	notifications bool
	checkNotify   func(on bool)
}

func New(logger zerolog.Logger) *App {
	return &App{logger: logger, now: time.Now, loading: true}
}

func (a *App) Loading() {
	a.mu.Lock()
	a.loading = true
	a.mu.Unlock()
	a.redraw()
}

func (a *App) Update(s monitor.Snapshot) {
	a.mu.Lock()
	a.snap = s
	a.hasSnap = true
	a.loading = false
	a.mu.Unlock()
	a.redraw()
}

// Alert is delivered as a desktop notification by another sink.
func (a *App) Alert(al alert.Alert) {
	a.logger.Debug().Int("threshold", al.Threshold).Msg("tray saw alert")
}

// SetNotifications records whether threshold alerts are on and updates the
// menu checkbox to match.
func (a *App) SetNotifications(on bool) {
	a.mu.Lock()
	a.notifications = on
	check := a.checkNotify
	a.mu.Unlock()
	if check != nil {
		check(on)
	}
}

func (a *App) Notifications() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.notifications
}

func (a *App) setCheckNotify(fn func(on bool)) {
	a.mu.Lock()
	a.checkNotify = fn
	on := a.notifications
	a.mu.Unlock()
	fn(on)
}

func (a *App) setDraw(fn func(view)) {
	a.mu.Lock()
	a.draw = fn
	a.mu.Unlock()
	a.redraw()
}

func (a *App) redraw() {
	a.mu.Lock()
	draw := a.draw
	v := a.view()
	a.mu.Unlock()
	if draw != nil {
		draw(v)
	}
}

// view must be called with mu held.
func (a *App) view() view {
	rec := a.snap.Record
	switch {
	case rec == nil && a.hasSnap && a.snap.Err != "" && !a.loading:
		return view{
			Title:   "AG: --",
			Tooltip: "Antigravity usage\n" + a.snap.Err,
			Status:  a.snap.Err,
			Detail:  hint(a.snap.ErrKind),
		}
	case rec == nil:
		return view{
			Title:   "AG: ...",
			Tooltip: "Antigravity usage\nLoading...",
			Status:  "Loading...",
		}
	}

	now := a.now()
	v := view{
		Title:   present.Indicator(rec),
		Tooltip: present.Tooltip(rec, now),
		Status: fmt.Sprintf("Used %.1f%% (%s / %s credits)",
			rec.Percentage, humanize.Comma(rec.Used), humanize.Comma(rec.Total)),
		Level: present.LevelFor(rec.Percentage),
		Known: true,
	}
	if !rec.ResetTime.IsZero() {
		v.Detail = "Resets in " + present.FormatTimeRemaining(rec.ResetTime, now)
	}
	if a.snap.Stale {
		v.Title += " (stale)"
		v.Tooltip += "\n" + a.snap.Err + ", showing last known usage"
	}
	return v
}

func hint(kind api.Kind) string {
	switch kind {
	case api.KindNotFound:
		return "Start Antigravity or set an API key"
	case api.KindUnauthorized:
		return "Sign in to Antigravity again"
	default:
		return "Will retry automatically"
	}
}
