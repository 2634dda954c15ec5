package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tnunamak/gravmeter/internal/config"
	"github.com/tnunamak/gravmeter/internal/discovery"
	"github.com/tnunamak/gravmeter/internal/monitor"
	"github.com/tnunamak/gravmeter/internal/session"
)

// app is what every command that talks to Antigravity needs.
type app struct {
	loader *config.Loader
	cfg    *config.Config
	logger zerolog.Logger
}

func loadApp() (*app, error) {
	return loadAppTo(os.Stderr)
}

// loadAppTo loads the configuration and builds a logger writing to w.
func loadAppTo(w io.Writer) (*app, error) {
	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	logger := setupLogger(cfg.Logging, w)
	log.Logger = logger
	return &app{loader: loader, cfg: cfg, logger: logger}, nil
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig, w io.Writer) zerolog.Logger {
	// Set log level
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	// Set output format
	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(w).With().Timestamp().Logger()
}

func (a *app) finder() (*discovery.Finder, error) {
	table, err := discovery.SystemTable()
	if err != nil {
		return nil, fmt.Errorf("open process table: %w", err)
	}
	return discovery.NewFinder(table, a.cfg.ProbeTimeout, a.logger.With().Str("component", "discovery").Logger()), nil
}

func (a *app) resolver() (*session.Resolver, error) {
	paths, err := session.DefaultPaths()
	if err != nil {
		return nil, fmt.Errorf("locate session stores: %w", err)
	}
	return session.NewResolver(paths, session.DefaultDecryptor(), a.cfg.APIKey,
		a.logger.With().Str("component", "session").Logger()), nil
}

func (a *app) connector() (monitor.Connector, error) {
	mode, err := monitor.ParseMode(a.cfg.Mode)
	if err != nil {
		return nil, err
	}
	c := &monitor.DefaultConnector{
		Mode:           mode,
		RequestTimeout: a.cfg.RequestTimeout,
		RemoteBase:     a.cfg.Remote.BaseURL,
		Logger:         a.logger,
	}
	if mode != monitor.ModeRemote {
		if c.Finder, err = a.finder(); err != nil {
			return nil, err
		}
	}
	if mode != monitor.ModeLocal {
		if c.Resolver, err = a.resolver(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (a *app) monitor(sinks ...monitor.Sink) (*monitor.Monitor, error) {
	conn, err := a.connector()
	if err != nil {
		return nil, err
	}
	all := append(monitor.Sinks{monitor.LogSink{Logger: a.logger}}, sinks...)
	return monitor.New(conn, all, monitor.Options{
		Interval:      a.cfg.Interval(),
		Notifications: a.cfg.ShowNotifications,
		Logger:        a.logger.With().Str("component", "monitor").Logger(),
	}), nil
}

// watchConfig applies edits to the config file to a running monitor, then
// hands the new config to each of also.
func (a *app) watchConfig(mon *monitor.Monitor, also ...func(*config.Config)) {
	a.loader.Watch(a.logger, func(cfg *config.Config) {
		if cfg.Interval() != mon.Interval() {
			mon.SetInterval(cfg.Interval())
		}
		mon.SetNotifications(cfg.ShowNotifications)
		for _, fn := range also {
			fn(cfg)
		}
	})
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
