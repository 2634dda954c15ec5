package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tnunamak/gravmeter/internal/autostart"
	"github.com/tnunamak/gravmeter/internal/config"
	"github.com/tnunamak/gravmeter/internal/metrics"
	"github.com/tnunamak/gravmeter/internal/notify"
	"github.com/tnunamak/gravmeter/internal/server"
	"github.com/tnunamak/gravmeter/internal/tray"
)

var (
	trayInstall   bool
	trayUninstall bool
)

var trayCmd = &cobra.Command{
	Use:   "tray",
	Short: "Run as a system tray icon",
	Long: `Run as a system tray icon. The tray needs a binary built with -tags tray.
With http.listen set, the HTTP status endpoint is served as well.`,
	RunE: runTray,
}

func init() {
	trayCmd.Flags().BoolVar(&trayInstall, "install", false, "Enable launch at login")
	trayCmd.Flags().BoolVar(&trayUninstall, "uninstall", false, "Disable launch at login")
	trayCmd.MarkFlagsMutuallyExclusive("install", "uninstall")
	rootCmd.AddCommand(trayCmd)
}

func runTray(cmd *cobra.Command, args []string) error {
	if trayInstall || trayUninstall {
		return runAutostart(cmd)
	}
	if !tray.Available {
		return tray.ErrUnavailable
	}

	a, err := loadApp()
	if err != nil {
		return err
	}
	ui := tray.New(a.logger)
	mon, err := a.monitor(ui, notify.New(a.logger), metrics.Sink{})
	if err != nil {
		return err
	}
	a.watchConfig(mon, func(cfg *config.Config) {
		ui.SetNotifications(cfg.ShowNotifications)
	})

	if a.cfg.HTTP.Listen != "" {
		srv := server.New(mon, a.logger)
		if err := srv.Start(a.cfg.HTTP.Listen); err != nil {
			return err
		}
		defer srv.Stop()
	}

	ctx, cancel := signalContext()
	defer cancel()
	return ui.Run(ctx, mon, a.cfg.ShowNotifications)
}

func runAutostart(cmd *cobra.Command) error {
	inst, err := autostart.Default()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if trayUninstall {
		if err := inst.Uninstall(); err != nil {
			return err
		}
		fmt.Fprintln(out, "gravmeter autostart removed")
		return nil
	}
	bin, err := autostart.ExecPath()
	if err != nil {
		return err
	}
	if err := inst.Install(bin); err != nil {
		return err
	}
	path, _ := inst.Path()
	fmt.Fprintf(out, "gravmeter will start at login (%s)\n", path)
	return nil
}
