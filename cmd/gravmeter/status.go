package main

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tnunamak/gravmeter/internal/cache"
	"github.com/tnunamak/gravmeter/internal/cli"
)

var (
	statusJSON    bool
	statusYAML    bool
	statusPlain   bool
	statusNoCache bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current usage (default)",
	RunE:  runStatus,
}

func init() {
	addStatusFlags(statusCmd)
	rootCmd.AddCommand(statusCmd)
}

func addStatusFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&statusYAML, "yaml", false, "Output as YAML")
	cmd.Flags().BoolVar(&statusPlain, "plain", false, "Plain text, no color codes")
	cmd.Flags().BoolVar(&statusNoCache, "no-cache", false, "Always query Antigravity")
	cmd.MarkFlagsMutuallyExclusive("json", "yaml", "plain")
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	// Keep a one-shot command quiet unless asked.
	if logLevel == "" {
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}

	mon, err := a.monitor()
	if err != nil {
		return err
	}
	defer mon.Close()

	store, err := cache.Default()
	if err != nil {
		a.logger.Debug().Err(err).Msg("no cache directory")
	}

	format := cli.FormatAuto
	switch {
	case statusJSON:
		format = cli.FormatJSON
	case statusYAML:
		format = cli.FormatYAML
	case statusPlain:
		format = cli.FormatPlain
	}

	ctx, cancel := signalContext()
	defer cancel()
	code := cli.Status(ctx, cli.StatusOptions{
		Format:  format,
		NoCache: statusNoCache,
		Cache:   store,
		Poll:    mon.Poll,
		Out:     cmd.OutOrStdout(),
		Err:     cmd.ErrOrStderr(),
		Now:     time.Now,
	})
	if code != 0 {
		return exitError{code}
	}
	return nil
}
