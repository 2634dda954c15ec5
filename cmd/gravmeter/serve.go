package main

import (
	"github.com/spf13/cobra"

	"github.com/tnunamak/gravmeter/internal/metrics"
	"github.com/tnunamak/gravmeter/internal/monitor"
	"github.com/tnunamak/gravmeter/internal/notify"
	"github.com/tnunamak/gravmeter/internal/server"
)

const defaultListen = "127.0.0.1:7391"

var (
	serveListen string
	serveNotify bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll in the background and serve usage over HTTP",
	Long: `Poll in the background and serve usage over HTTP:

  GET  /usage      latest snapshot as JSON
  GET  /report     HTML usage report
  POST /refresh    poll now
  POST /reconnect  rediscover Antigravity
  GET  /healthz    liveness
  GET  /metrics    Prometheus metrics`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Listen address (default http.listen, else "+defaultListen+")")
	serveCmd.Flags().BoolVar(&serveNotify, "notify", false, "Also send desktop notifications")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}

	sinks := []monitor.Sink{metrics.Sink{}}
	if serveNotify {
		sinks = append(sinks, notify.New(a.logger))
	}
	mon, err := a.monitor(sinks...)
	if err != nil {
		return err
	}
	a.watchConfig(mon)

	addr := serveListen
	if addr == "" {
		addr = a.cfg.HTTP.Listen
	}
	if addr == "" {
		addr = defaultListen
	}
	srv := server.New(mon, a.logger)
	if err := srv.Start(addr); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	err = mon.Run(ctx)
	a.logger.Info().Msg("shutting down")
	if stopErr := srv.Stop(); stopErr != nil {
		a.logger.Error().Err(stopErr).Msg("error stopping http server")
	}
	return err
}
