//go:build tray

package tray

import (
	"context"

	"fyne.io/systray"

	"github.com/tnunamak/gravmeter/internal/present"
)

// Available reports whether this binary was built with the tray.
const Available = true

// Run shows the tray and drives mon until the user quits or ctx ends. It
// must be called from the main goroutine.
func (a *App) Run(ctx context.Context, mon Monitor, notifications bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.SetNotifications(notifications)

	onReady := func() {
		systray.SetTitle("AG: ...")
		systray.SetTooltip("Antigravity usage")

		mStatus := systray.AddMenuItem("Loading...", "")
		mStatus.Disable()
		mDetail := systray.AddMenuItem("", "")
		mDetail.Disable()
		systray.AddSeparator()
		mRefresh := systray.AddMenuItem("Refresh Now", "Poll the language server now")
		mReconnect := systray.AddMenuItem("Reconnect", "Rediscover Antigravity and its session")
		mDetails := systray.AddMenuItem("Show Details", "Open the usage report in a browser")
		mNotify := systray.AddMenuItemCheckbox("Notifications", "Threshold alerts", a.Notifications())
		systray.AddSeparator()
		mQuit := systray.AddMenuItem("Quit", "")

		a.setCheckNotify(func(on bool) {
			if on {
				mNotify.Check()
			} else {
				mNotify.Uncheck()
			}
		})
		a.setDraw(func(v view) {
			systray.SetTitle(v.Title)
			systray.SetTooltip(v.Tooltip)
			mStatus.SetTitle(v.Status)
			if v.Detail == "" {
				mDetail.Hide()
			} else {
				mDetail.SetTitle(v.Detail)
				mDetail.Show()
			}
			systray.SetIcon(iconFor(v.Level, v.Known))
		})

		go func() {
			if err := mon.Run(ctx); err != nil && ctx.Err() == nil {
				a.logger.Error().Err(err).Msg("monitor stopped")
			}
		}()

		go func() {
			for {
				select {
				case <-ctx.Done():
					systray.Quit()
					return
				case <-mRefresh.ClickedCh:
					mon.Refresh()
				case <-mReconnect.ClickedCh:
					mon.Reconnect()
				case <-mDetails.ClickedCh:
					a.openDetails(mon)
				case <-mNotify.ClickedCh:
					on := !a.Notifications()
					a.SetNotifications(on)
					mon.SetNotifications(on)
				case <-mQuit.ClickedCh:
					systray.Quit()
					return
				}
			}
		}()
	}

	systray.Run(onReady, cancel)
	return nil
}

func (a *App) openDetails(mon Monitor) {
	snap, ok := mon.Snapshot()
	if !ok || snap.Record == nil {
		return
	}
	path, err := present.OpenReport(snap.Record, present.ReportOptions{Stale: snap.Stale, Error: snap.Err})
	if err != nil {
		a.logger.Warn().Err(err).Msg("open report")
		return
	}
	a.logger.Debug().Str("path", path).Msg("opened report")
}
