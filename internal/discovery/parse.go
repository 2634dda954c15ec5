package discovery

import (
	"bufio"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

var (
	extensionPortRe = regexp.MustCompile(`(?i)--extension_server_port[=\s]+(\d+)`)
	csrfTokenRe     = regexp.MustCompile(`(?i)--csrf_token[=\s]+([a-f0-9\-]+)`)
	lsofListenRe    = regexp.MustCompile(`(?i)(?:TCP|UDP)\s+(?:\*|[\d.]+|\[[\da-f:]+\]):(\d+)\s+\(LISTEN\)`)
)

// ParseCommandLine extracts the advertised extension port and the CSRF
// token. ok is false when there is no token; the port is 0 when absent.
func ParseCommandLine(cmdline string) (port int, token string, ok bool) {
	m := csrfTokenRe.FindStringSubmatch(cmdline)
	if m == nil || m[1] == "" {
		return 0, "", false
	}
	token = m[1]
	if pm := extensionPortRe.FindStringSubmatch(cmdline); pm != nil {
		port, _ = strconv.Atoi(pm[1])
	}
	return port, token, true
}

func isAntigravity(cmdline string) bool {
	lower := strings.ToLower(cmdline)
	return strings.Contains(lower, "--extension_server_port") || strings.Contains(lower, "antigravity")
}

// parsePS reads `ps -axww -o pid= -o command=` output. The executable is
// everything before the first flag, so paths containing spaces survive.
func parsePS(out string) []Process {
	var procs []Process
	sc := bufio.NewScanner(strings.NewReader(out))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		pidStr, cmd, found := strings.Cut(line, " ")
		if !found {
			continue
		}
		pid, err := strconv.Atoi(pidStr)
		if err != nil {
			continue
		}
		cmd = strings.TrimSpace(cmd)
		exe := cmd
		if i := strings.Index(cmd, " -"); i >= 0 {
			exe = cmd[:i]
		}
		procs = append(procs, Process{PID: pid, Name: baseName(exe), CmdLine: cmd})
	}
	return procs
}

// parseLsof reads `lsof -nP -a -iTCP -sTCP:LISTEN -p PID` output.
func parseLsof(out string) []int {
	var ports []int
	for _, m := range lsofListenRe.FindAllStringSubmatch(out, -1) {
		if p, err := strconv.Atoi(m[1]); err == nil {
			ports = append(ports, p)
		}
	}
	return ports
}

type cimProcess struct {
	ProcessID   int    `json:"ProcessId"`
	Name        string `json:"Name"`
	CommandLine string `json:"CommandLine"`
}

// parseCIMProcesses reads Win32_Process rows from ConvertTo-Json, which
// emits a bare object instead of an array for a single result.
func parseCIMProcesses(out []byte) ([]Process, error) {
	var rows []cimProcess
	if err := unmarshalOneOrMany(out, &rows); err != nil {
		return nil, err
	}
	procs := make([]Process, 0, len(rows))
	for _, r := range rows {
		procs = append(procs, Process{PID: r.ProcessID, Name: r.Name, CmdLine: r.CommandLine})
	}
	return procs, nil
}

// parsePortList reads `Get-NetTCPConnection ... LocalPort | ConvertTo-Json`.
func parsePortList(out []byte) ([]int, error) {
	var ports []int
	if err := unmarshalOneOrMany(out, &ports); err != nil {
		return nil, err
	}
	return ports, nil
}

func unmarshalOneOrMany[T any](out []byte, dst *[]T) error {
	trimmed := strings.TrimSpace(string(out))
	switch {
	case trimmed == "":
		return nil
	case strings.HasPrefix(trimmed, "["):
		return json.Unmarshal([]byte(trimmed), dst)
	default:
		var one T
		if err := json.Unmarshal([]byte(trimmed), &one); err != nil {
			return err
		}
		*dst = []T{one}
		return nil
	}
}
