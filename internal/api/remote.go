package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultRemoteBase = "https://antigravity.google"
	remoteUsagePath   = "/api/v1/usage"
	remoteUserPath    = "/api/v1/user"
)

// RemoteClient fetches usage from the vendor web API with a session cookie
// instead of the local language server.
type RemoteClient struct {
	BaseURL string
	Cookie  string
	HTTP    *http.Client
	Logger  zerolog.Logger
	Now     func() time.Time
}

func NewRemoteClient(baseURL, cookie string, timeout time.Duration, logger zerolog.Logger) *RemoteClient {
	if baseURL == "" {
		baseURL = DefaultRemoteBase
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &RemoteClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Cookie:  cookie,
		HTTP:    &http.Client{Timeout: timeout},
		Logger:  logger,
		Now:     time.Now,
	}
}

// FetchUsage calls the usage endpoint and, if the server does not know it,
// retries once against the user endpoint which embeds the same quota.
func (c *RemoteClient) FetchUsage(ctx context.Context) (*Record, error) {
	body, err := c.get(ctx, remoteUsagePath)
	if errors.Is(err, ErrNotFound) {
		c.Logger.Debug().Str("path", remoteUserPath).Msg("usage endpoint missing, trying fallback")
		body, err = c.get(ctx, remoteUserPath)
	}
	if err != nil {
		return nil, err
	}

	rec, shape, err := normalize(body, c.Now())
	if err != nil {
		return nil, err
	}
	c.Logger.Debug().Str("shape", shape).Str("summary", rec.Summary()).Msg("usage fetched")
	return rec, nil
}

func (c *RemoteClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cookie", c.Cookie)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, wrapTransport(err)
	}
	defer resp.Body.Close()
	return readBody(resp)
}
