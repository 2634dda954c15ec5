package main

import (
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/tnunamak/gravmeter/internal/notify"
	"github.com/tnunamak/gravmeter/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live full-screen usage view",
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	// The view owns the terminal, so logs go to a file.
	logFile, err := openLogFile("watch.log")
	if err != nil {
		return err
	}
	defer logFile.Close()

	a, err := loadAppTo(logFile)
	if err != nil {
		return err
	}

	sink := &tui.Sink{}
	mon, err := a.monitor(sink, notify.New(a.logger))
	if err != nil {
		return err
	}
	a.watchConfig(mon)

	ctx, cancel := signalContext()
	defer cancel()

	p := tea.NewProgram(tui.New(mon), tea.WithAltScreen(), tea.WithContext(ctx))
	sink.Program = p

	go mon.Run(ctx)
	defer mon.Close()

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func openLogFile(name string) (*os.File, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	dir = filepath.Join(dir, "gravmeter")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}
