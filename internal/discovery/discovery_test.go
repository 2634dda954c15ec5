package discovery

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tnunamak/gravmeter/internal/api"
)

type fakeTable struct {
	procs []Process
	ports map[int][]int
}

func (f *fakeTable) Processes(context.Context) ([]Process, error) { return f.procs, nil }

func (f *fakeTable) ListeningPorts(_ context.Context, pid int) ([]int, error) {
	return f.ports[pid], nil
}

const linuxName = "language_server_linux_x64"

func newTestFinder(table Table, probe ProbeFunc) *Finder {
	return &Finder{Table: table, ProcessName: linuxName, Probe: probe, Logger: zerolog.Nop()}
}

func TestProcessName(t *testing.T) {
	tests := []struct{ goos, goarch, want string }{
		{"windows", "amd64", "language_server_windows_x64.exe"},
		{"darwin", "amd64", "language_server_macos"},
		{"darwin", "arm64", "language_server_macos_arm"},
		{"linux", "amd64", "language_server_linux_x64"},
		{"linux", "arm64", "language_server_linux_arm"},
	}
	for _, tt := range tests {
		if got := ProcessName(tt.goos, tt.goarch); got != tt.want {
			t.Errorf("ProcessName(%s, %s) = %q, want %q", tt.goos, tt.goarch, got, tt.want)
		}
	}
}

func TestParseCommandLine(t *testing.T) {
	tests := []struct {
		cmd       string
		wantPort  int
		wantToken string
		wantOK    bool
	}{
		{"ls --extension_server_port=42100 --csrf_token=ab12-cd34", 42100, "ab12-cd34", true},
		{"ls --extension_server_port 42100 --csrf_token  ab12", 42100, "ab12", true},
		{"ls --CSRF_TOKEN=DEADBEEF", 0, "DEADBEEF", true},
		{"ls --extension_server_port=42100", 0, "", false},
		{"ls --csrf_token=", 0, "", false},
	}
	for _, tt := range tests {
		port, token, ok := ParseCommandLine(tt.cmd)
		if port != tt.wantPort || token != tt.wantToken || ok != tt.wantOK {
			t.Errorf("ParseCommandLine(%q) = %d, %q, %v; want %d, %q, %v",
				tt.cmd, port, token, ok, tt.wantPort, tt.wantToken, tt.wantOK)
		}
	}
}

func TestFind_selectsAntigravityProcess(t *testing.T) {
	table := &fakeTable{
		procs: []Process{
			{PID: 10, Name: "bash", CmdLine: "bash --csrf_token=aaaa"},
			{PID: 11, Name: linuxName, CmdLine: "/opt/windsurf/" + linuxName + " --csrf_token=bbbb"},
			{PID: 12, Name: linuxName, CmdLine: linuxName + " --app_data_dir antigravity"},
			{PID: 13, Name: linuxName, CmdLine: linuxName + " --app_data_dir Antigravity --extension_server_port 4000 --csrf_token cafe-01"},
		},
		ports: map[int][]int{13: {5000}},
	}
	var probed []api.Endpoint
	f := newTestFinder(table, func(_ context.Context, ep api.Endpoint) bool {
		probed = append(probed, ep)
		return true
	})

	info, err := f.Find(context.Background())
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	want := ProcessInfo{PID: 13, ExtensionPort: 4000, ConnectPort: 5000, CSRFToken: "cafe-01"}
	if *info != want {
		t.Errorf("info = %+v, want %+v", *info, want)
	}
	if len(probed) != 1 || probed[0].CSRFToken != "cafe-01" {
		t.Errorf("probed = %+v", probed)
	}
}

func TestFind_probesAscendingAndStopsAtFirstSuccess(t *testing.T) {
	table := &fakeTable{
		procs: []Process{{PID: 7, Name: linuxName, CmdLine: "x --extension_server_port=1 --csrf_token=ff"}},
		ports: map[int][]int{7: {9003, 9001, 9002, 9001}},
	}
	var probed []int
	f := newTestFinder(table, func(_ context.Context, ep api.Endpoint) bool {
		probed = append(probed, ep.Port)
		return ep.Port == 9002
	})

	info, err := f.Find(context.Background())
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if info.ConnectPort != 9002 {
		t.Errorf("connect port = %d, want 9002", info.ConnectPort)
	}
	if !slices.Equal(probed, []int{9001, 9002}) {
		t.Errorf("probed = %v, want [9001 9002]", probed)
	}
}

// Three real TLS listeners; only the middle one answers with JSON and the
// highest must never be contacted.
func TestFind_realProbeDeterminism(t *testing.T) {
	var mu sync.Mutex
	hits := map[int]int{}
	roles := map[int]string{}

	handler := func(w http.ResponseWriter, r *http.Request) {
		_, portStr, _ := net.SplitHostPort(r.Host)
		port, _ := strconv.Atoi(portStr)
		mu.Lock()
		hits[port]++
		role := roles[port]
		mu.Unlock()
		if r.Header.Get("X-Codeium-Csrf-Token") != "beef" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		switch role {
		case "ok":
			w.Write([]byte(`{}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}

	var ports []int
	for range 3 {
		srv := httptest.NewTLSServer(http.HandlerFunc(handler))
		defer srv.Close()
		u, _ := url.Parse(srv.URL)
		p, _ := strconv.Atoi(u.Port())
		ports = append(ports, p)
	}
	slices.Sort(ports)
	mu.Lock()
	roles[ports[0]] = "fail"
	roles[ports[1]] = "ok"
	roles[ports[2]] = "ok"
	mu.Unlock()

	table := &fakeTable{
		procs: []Process{{PID: 99, Name: linuxName, CmdLine: "ls --extension_server_port=1 --csrf_token=beef"}},
		ports: map[int][]int{99: {ports[2], ports[0], ports[1]}},
	}
	f := NewFinder(table, time.Second, zerolog.Nop())
	f.ProcessName = linuxName

	for range 3 {
		info, err := f.Find(context.Background())
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		if info.ConnectPort != ports[1] {
			t.Fatalf("connect port = %d, want %d", info.ConnectPort, ports[1])
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if hits[ports[2]] != 0 {
		t.Errorf("highest port probed %d times, want 0", hits[ports[2]])
	}
}

func TestFind_notFound(t *testing.T) {
	tests := []struct {
		name  string
		table *fakeTable
		probe bool
	}{
		{"no process", &fakeTable{}, true},
		{"no token", &fakeTable{procs: []Process{{PID: 1, Name: linuxName, CmdLine: "x --extension_server_port=3"}}}, true},
		{"no ports", &fakeTable{procs: []Process{{PID: 1, Name: linuxName, CmdLine: "x --csrf_token=ab --extension_server_port=3"}}}, true},
		{"no port answers", &fakeTable{
			procs: []Process{{PID: 1, Name: linuxName, CmdLine: "x --csrf_token=ab --extension_server_port=3"}},
			ports: map[int][]int{1: {10, 11}},
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestFinder(tt.table, func(context.Context, api.Endpoint) bool { return tt.probe })
			if _, err := f.Find(context.Background()); !errors.Is(err, api.ErrNotFound) {
				t.Errorf("err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestSameExecutable(t *testing.T) {
	if !sameExecutable(`C:\Program Files\Antigravity\LANGUAGE_SERVER_WINDOWS_X64.EXE`, "language_server_windows_x64.exe") {
		t.Error("windows names should compare case-insensitively")
	}
	if sameExecutable("/usr/bin/Language_Server_Linux_X64", linuxName) {
		t.Error("unix names are case-sensitive")
	}
}
