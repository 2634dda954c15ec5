package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tnunamak/gravmeter/internal/present"
)

var (
	reportOpen   bool
	reportOutput string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render the HTML usage report",
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().BoolVar(&reportOpen, "open", false, "Open the report in the default browser")
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "Write the report to a file instead of stdout")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	mon, err := a.monitor()
	if err != nil {
		return err
	}
	defer mon.Close()

	ctx, cancel := signalContext()
	defer cancel()
	snap, err := mon.Poll(ctx)
	if snap.Record == nil {
		if err != nil {
			return err
		}
		return fmt.Errorf("no usage returned")
	}

	opts := present.ReportOptions{Now: time.Now(), Stale: snap.Stale, Error: snap.Err}
	switch {
	case reportOpen:
		path, err := present.OpenReport(snap.Record, opts)
		if err != nil {
			return fmt.Errorf("open report: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	case reportOutput != "":
		return present.WriteReportFile(reportOutput, snap.Record, opts)
	default:
		return present.RenderReport(cmd.OutOrStdout(), snap.Record, opts)
	}
}
