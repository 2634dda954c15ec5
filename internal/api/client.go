package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

const (
	servicePath     = "/exa.language_server_pb.LanguageServerService/"
	userStatusPath  = servicePath + "GetUserStatus"
	unleashDataPath = servicePath + "GetUnleashData"

	csrfHeader     = "X-Codeium-Csrf-Token"
	protocolHeader = "Connect-Protocol-Version"

	loopbackHost   = "127.0.0.1"
	DefaultTimeout = 5 * time.Second
	ProbeTimeout   = 3 * time.Second

	maxResponseBytes = 1 << 20 // 1 MiB
)

// Fetcher returns the current usage for one authenticated connection.
type Fetcher interface {
	FetchUsage(ctx context.Context) (*Record, error)
}

// Endpoint is where the language server's RPC service listens.
type Endpoint struct {
	Host      string // defaults to 127.0.0.1
	Port      int
	CSRFToken string
}

func (e Endpoint) url(path string) string {
	host := e.Host
	if host == "" {
		host = loopbackHost
	}
	return "https://" + host + ":" + strconv.Itoa(e.Port) + path
}

// NewHTTPClient returns a client for the loopback RPC service. The server
// presents a self-signed certificate, so verification is skipped.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
}

type requestMetadata struct {
	IDEName       string `json:"ideName"`
	ExtensionName string `json:"extensionName"`
	Locale        string `json:"locale"`
}

type userStatusRequest struct {
	Metadata requestMetadata `json:"metadata"`
}

// LocalClient talks to the language server discovered on this machine.
type LocalClient struct {
	Endpoint Endpoint
	HTTP     *http.Client
	Logger   zerolog.Logger
	Now      func() time.Time
}

func NewLocalClient(ep Endpoint, timeout time.Duration, logger zerolog.Logger) *LocalClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &LocalClient{
		Endpoint: ep,
		HTTP:     NewHTTPClient(timeout),
		Logger:   logger,
		Now:      time.Now,
	}
}

func (c *LocalClient) FetchUsage(ctx context.Context) (*Record, error) {
	body, err := c.post(ctx, userStatusPath, userStatusRequest{
		Metadata: requestMetadata{
			IDEName:       "antigravity",
			ExtensionName: "antigravity",
			Locale:        "en",
		},
	})
	if err != nil {
		return nil, err
	}

	rec, shape, err := normalize(body, c.Now())
	if err != nil {
		return nil, err
	}
	c.Logger.Debug().
		Str("shape", shape).
		Int("port", c.Endpoint.Port).
		Str("summary", rec.Summary()).
		Msg("usage fetched")
	return rec, nil
}

func (c *LocalClient) post(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint.url(path), bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	setRPCHeaders(req, c.Endpoint.CSRFToken)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, wrapTransport(err)
	}
	defer resp.Body.Close()
	return readBody(resp)
}

func setRPCHeaders(req *http.Request, token string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(protocolHeader, "1")
	req.Header.Set(csrfHeader, token)
}

// readBody enforces the size cap and maps the status code onto the error
// taxonomy.
func readBody(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, wrapTransport(err)
	}
	if len(body) > maxResponseBytes {
		return nil, fmt.Errorf("%w: response too large", ErrMalformedResponse)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: HTTP %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: HTTP 404 %s", ErrNotFound, resp.Request.URL.Path)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: HTTP %d", ErrTransport, resp.StatusCode)
	}
	return body, nil
}

// Probe reports whether port answers an authenticated RPC with a JSON body.
func Probe(ctx context.Context, client *http.Client, ep Endpoint) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.url(unleashDataPath),
		bytes.NewReader([]byte(`{"wrapper_data":{}}`)))
	if err != nil {
		return false
	}
	setRPCHeaders(req, ep.CSRFToken)

	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return false
	}
	return json.Valid(body)
}
