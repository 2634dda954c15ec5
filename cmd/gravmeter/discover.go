package main

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/tnunamak/gravmeter/internal/discovery"
)

var discoverJSON bool

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find the Antigravity language server and its RPC port",
	RunE:  runDiscover,
}

func init() {
	discoverCmd.Flags().BoolVar(&discoverJSON, "json", false, "Output as JSON (includes the CSRF token)")
	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	finder, err := a.finder()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	info, err := finder.Find(ctx)
	if err != nil {
		return fmt.Errorf("looking for %s: %w", discovery.ProcessName(runtime.GOOS, runtime.GOARCH), err)
	}

	out := cmd.OutOrStdout()
	if discoverJSON {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}
	fmt.Fprintf(out, "pid             %d\n", info.PID)
	fmt.Fprintf(out, "extension port  %d\n", info.ExtensionPort)
	fmt.Fprintf(out, "connect port    %d\n", info.ConnectPort)
	fmt.Fprintf(out, "csrf token      %s\n", mask(info.CSRFToken))
	return nil
}

// mask keeps only the first few characters of a secret.
func mask(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}
