package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tnunamak/gravmeter/internal/autostart"
	"github.com/tnunamak/gravmeter/internal/update"
)

var (
	updateCheckOnly bool
	updateRestart   bool
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Install the latest release",
	RunE:  runUpdate,
}

func init() {
	updateCmd.Flags().BoolVar(&updateCheckOnly, "check", false, "Only report whether an update is available")
	updateCmd.Flags().BoolVar(&updateRestart, "restart", false, "Start the tray from the new binary afterwards")
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if version == "dev" {
		fmt.Fprintln(out, "development build, not updating")
		return nil
	}

	ctx, cancel := signalContext()
	defer cancel()
	u := update.New(a.logger.With().Str("component", "update").Logger())
	rel, err := u.Check(ctx, version)
	if err != nil {
		return fmt.Errorf("check for update: %w", err)
	}
	if rel == nil {
		fmt.Fprintf(out, "gravmeter %s is up to date\n", update.StripV(version))
		return nil
	}
	fmt.Fprintf(out, "gravmeter %s is available (current %s)\n", update.StripV(rel.Version), update.StripV(version))
	if updateCheckOnly {
		return nil
	}

	exe, err := autostart.ExecPath()
	if err != nil {
		return err
	}
	if err := u.Apply(ctx, rel, exe); err != nil {
		return fmt.Errorf("update failed: %w", err)
	}
	fmt.Fprintln(out, "updated", exe)
	if updateRestart {
		return update.Restart(exe)
	}
	return nil
}
