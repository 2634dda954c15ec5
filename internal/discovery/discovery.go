// Package discovery finds the running Antigravity language server and the
// loopback port its RPC service answers on.
package discovery

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tnunamak/gravmeter/internal/api"
)

// Process is one entry of the OS process table.
type Process struct {
	PID     int
	Name    string // executable base name
	CmdLine string
}

// Table is the slice of the OS process table discovery needs.
type Table interface {
	Processes(ctx context.Context) ([]Process, error)
	ListeningPorts(ctx context.Context, pid int) ([]int, error)
}

// ProcessInfo identifies an authenticated language server. ExtensionPort is
// what the command line advertises; ConnectPort is the port that answered.
type ProcessInfo struct {
	PID           int    `json:"pid"`
	ExtensionPort int    `json:"extension_port"`
	ConnectPort   int    `json:"connect_port"`
	CSRFToken     string `json:"csrf_token"`
}

func (p *ProcessInfo) Endpoint() api.Endpoint {
	return api.Endpoint{Port: p.ConnectPort, CSRFToken: p.CSRFToken}
}

// ProbeFunc reports whether ep answers an authenticated RPC.
type ProbeFunc func(ctx context.Context, ep api.Endpoint) bool

// ProcessName is the language server executable shipped for goos/goarch.
func ProcessName(goos, goarch string) string {
	switch goos {
	case "windows":
		return "language_server_windows_x64.exe"
	case "darwin":
		if goarch == "arm64" {
			return "language_server_macos_arm"
		}
		return "language_server_macos"
	default:
		if goarch == "arm64" {
			return "language_server_linux_arm"
		}
		return "language_server_linux_x64"
	}
}

type Finder struct {
	Table       Table
	ProcessName string
	Probe       ProbeFunc
	Logger      zerolog.Logger
}

// NewFinder returns a Finder for the current platform that probes ports
// with the given per-request timeout.
func NewFinder(table Table, probeTimeout time.Duration, logger zerolog.Logger) *Finder {
	if probeTimeout <= 0 {
		probeTimeout = api.ProbeTimeout
	}
	return &Finder{
		Table:       table,
		ProcessName: ProcessName(runtime.GOOS, runtime.GOARCH),
		Probe:       httpProbe(api.NewHTTPClient(probeTimeout)),
		Logger:      logger,
	}
}

func httpProbe(client *http.Client) ProbeFunc {
	return func(ctx context.Context, ep api.Endpoint) bool {
		return api.Probe(ctx, client, ep)
	}
}

// Find runs one discovery pass. Every failure is reported as api.ErrNotFound
// with the step that failed.
func (f *Finder) Find(ctx context.Context) (*ProcessInfo, error) {
	procs, err := f.Table.Processes(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list processes: %v", api.ErrNotFound, err)
	}

	var info *ProcessInfo
	for _, p := range procs {
		if !sameExecutable(p.Name, f.ProcessName) || !isAntigravity(p.CmdLine) {
			continue
		}
		port, token, ok := ParseCommandLine(p.CmdLine)
		if !ok {
			f.Logger.Debug().Int("pid", p.PID).Msg("language server without csrf token")
			continue
		}
		info = &ProcessInfo{PID: p.PID, ExtensionPort: port, CSRFToken: token}
		break
	}
	if info == nil {
		return nil, fmt.Errorf("%w: no %s process with a csrf token", api.ErrNotFound, f.ProcessName)
	}

	ports, err := f.Table.ListeningPorts(ctx, info.PID)
	if err != nil {
		return nil, fmt.Errorf("%w: listening ports of pid %d: %v", api.ErrNotFound, info.PID, err)
	}
	ports = sortPorts(ports)
	if len(ports) == 0 {
		return nil, fmt.Errorf("%w: pid %d has no listening ports", api.ErrNotFound, info.PID)
	}
	f.Logger.Debug().Int("pid", info.PID).Ints("ports", ports).Msg("probing language server ports")

	for _, port := range ports {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", api.ErrNotFound, ctx.Err())
		}
		ep := api.Endpoint{Port: port, CSRFToken: info.CSRFToken}
		if f.Probe(ctx, ep) {
			info.ConnectPort = port
			f.Logger.Info().Int("pid", info.PID).Int("port", port).Msg("language server found")
			return info, nil
		}
	}
	return nil, fmt.Errorf("%w: no port of pid %d answered", api.ErrNotFound, info.PID)
}

func sortPorts(ports []int) []int {
	out := slices.DeleteFunc(slices.Clone(ports), func(p int) bool { return p <= 0 || p > 65535 })
	slices.Sort(out)
	return slices.Compact(out)
}

func sameExecutable(name, want string) bool {
	name = baseName(name)
	if strings.HasSuffix(strings.ToLower(want), ".exe") {
		return strings.EqualFold(name, want)
	}
	return name == want
}

// baseName strips both slash styles so Windows paths work on any host.
func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}
