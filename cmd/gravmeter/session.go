package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tnunamak/gravmeter/internal/monitor"
)

var sessionCheck bool

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Show which web session the remote mode would use",
	RunE:  runSession,
}

func init() {
	sessionCmd.Flags().BoolVar(&sessionCheck, "check", false, "Reject sessions the usage API refuses")
	rootCmd.AddCommand(sessionCmd)
}

func runSession(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	resolver, err := a.resolver()
	if err != nil {
		return err
	}
	if sessionCheck {
		resolver.Validate = monitor.ValidateRemote(a.cfg.Remote.BaseURL, a.cfg.RequestTimeout, a.logger)
	}

	ctx, cancel := signalContext()
	defer cancel()
	s, err := resolver.Resolve(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "source  %s\n", s.Source)
	fmt.Fprintf(out, "cookie  %s (%d bytes)\n", mask(s.Cookie), len(s.Cookie))
	if s.UserID != "" {
		fmt.Fprintf(out, "user    %s\n", s.UserID)
	}
	if s.Profile != nil {
		fmt.Fprintf(out, "name    %s <%s>\n", s.Profile.Name, s.Profile.Email)
	}
	return nil
}
