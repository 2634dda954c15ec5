package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tnunamak/gravmeter/internal/api"
	"github.com/tnunamak/gravmeter/internal/discovery"
	"github.com/tnunamak/gravmeter/internal/session"
)

type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeAuto, ModeLocal, ModeRemote:
		return m, nil
	case "":
		return ModeAuto, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want auto, local or remote)", s)
	}
}

const (
	SourceLocal  = "local"
	SourceRemote = "remote"
)

// Connection is one authenticated way of reading usage. It is immutable;
// reconnecting builds a new one.
type Connection struct {
	ID      string
	Source  string
	Fetcher api.Fetcher
	Process *discovery.ProcessInfo
	Session *session.Session
}

// Connector establishes a Connection.
type Connector interface {
	Connect(ctx context.Context) (*Connection, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context) (*Connection, error)

func (f ConnectorFunc) Connect(ctx context.Context) (*Connection, error) { return f(ctx) }

// DefaultConnector prefers the local language server and, in auto mode,
// falls back to a web session against the remote API.
type DefaultConnector struct {
	Mode           Mode
	Finder         *discovery.Finder
	Resolver       *session.Resolver
	RequestTimeout time.Duration
	RemoteBase     string
	Logger         zerolog.Logger
}

func (c *DefaultConnector) Connect(ctx context.Context) (*Connection, error) {
	switch c.Mode {
	case ModeLocal:
		return c.local(ctx)
	case ModeRemote:
		return c.remote(ctx)
	}

	conn, err := c.local(ctx)
	if err == nil {
		return conn, nil
	}
	c.Logger.Debug().Err(err).Msg("local discovery failed, trying web session")
	conn, rerr := c.remote(ctx)
	if rerr == nil {
		return conn, nil
	}
	return nil, fmt.Errorf("local: %w; remote: %w", err, rerr)
}

func (c *DefaultConnector) local(ctx context.Context) (*Connection, error) {
	if c.Finder == nil {
		return nil, fmt.Errorf("%w: local discovery disabled", api.ErrNotFound)
	}
	info, err := c.Finder.Find(ctx)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	logger := c.Logger.With().Str("conn", id).Logger()
	logger.Info().Int("pid", info.PID).Int("port", info.ConnectPort).Msg("connected to language server")
	return &Connection{
		ID:      id,
		Source:  SourceLocal,
		Fetcher: api.NewLocalClient(info.Endpoint(), c.RequestTimeout, logger),
		Process: info,
	}, nil
}

func (c *DefaultConnector) remote(ctx context.Context) (*Connection, error) {
	if c.Resolver == nil {
		return nil, fmt.Errorf("%w: session lookup disabled", api.ErrNotFound)
	}
	s, err := c.Resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	logger := c.Logger.With().Str("conn", id).Logger()
	logger.Info().Str("session_source", s.Source).Msg("using web session")
	return &Connection{
		ID:      id,
		Source:  SourceRemote,
		Fetcher: api.NewRemoteClient(c.RemoteBase, s.Cookie, c.RequestTimeout, logger),
		Session: s,
	}, nil
}

// ValidateRemote returns a session check that performs one usage fetch and
// rejects sessions the server refuses.
func ValidateRemote(baseURL string, timeout time.Duration, logger zerolog.Logger) func(context.Context, *session.Session) error {
	return func(ctx context.Context, s *session.Session) error {
		_, err := api.NewRemoteClient(baseURL, s.Cookie, timeout, logger).FetchUsage(ctx)
		return err
	}
}
