package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tnunamak/gravmeter/internal/config"
)

var (
	version    = "dev"
	configPath string
	logLevel   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gravmeter",
	Short: "Antigravity quota monitor",
	Long: `gravmeter finds the running Antigravity language server, reads the account
quota from it (or from the web API with your browser session) and shows it in
the terminal, a live view, the system tray or over HTTP.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runStatus,
}

func init() {
	defaultPath, err := config.DefaultPath()
	if err != nil {
		defaultPath = "gravmeter.yaml"
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultPath, "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	addStatusFlags(rootCmd)
}

// exitError carries a specific process exit code.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if e, ok := err.(exitError); ok {
			os.Exit(e.code)
		}
		fmt.Fprintln(os.Stderr, "gravmeter:", err)
		os.Exit(1)
	}
}
