package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tnunamak/gravmeter/internal/config"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the manual API key",
}

var authSetKeyCmd = &cobra.Command{
	Use:   "set-key [KEY]",
	Short: "Store an API key used when no browser session is found",
	Long: `Store an API key used when no browser session is found.

With no argument the key is read from the terminal without echo.
An empty key removes the stored one.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSetKey,
}

func init() {
	authCmd.AddCommand(authSetKeyCmd)
	rootCmd.AddCommand(authCmd)
}

func runSetKey(cmd *cobra.Command, args []string) error {
	var key string
	if len(args) == 1 {
		key = args[0]
	} else {
		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			return fmt.Errorf("no key given and stdin is not a terminal")
		}
		fmt.Fprint(cmd.ErrOrStderr(), "API key: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return fmt.Errorf("read key: %w", err)
		}
		key = string(b)
	}

	key = strings.TrimSpace(key)
	if err := config.SetAPIKey(configPath, key); err != nil {
		return err
	}
	if key == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "API key removed from", configPath)
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "API key saved to", configPath)
	}
	return nil
}
