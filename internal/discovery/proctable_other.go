//go:build !linux

package discovery

import (
	"context"
	"errors"
	"os/exec"
	"runtime"
	"strconv"
)

type execTable struct {
	windows bool
}

// SystemTable shells out to ps and lsof, or PowerShell on Windows.
func SystemTable() (Table, error) {
	return &execTable{windows: runtime.GOOS == "windows"}, nil
}

func (t *execTable) Processes(ctx context.Context) ([]Process, error) {
	if t.windows {
		out, err := powershell(ctx, "Get-CimInstance Win32_Process | Select-Object ProcessId,Name,CommandLine | ConvertTo-Json")
		if err != nil {
			return nil, err
		}
		return parseCIMProcesses(out)
	}
	out, err := exec.CommandContext(ctx, "ps", "-axww", "-o", "pid=", "-o", "command=").Output()
	if err != nil {
		return nil, err
	}
	return parsePS(string(out)), nil
}

func (t *execTable) ListeningPorts(ctx context.Context, pid int) ([]int, error) {
	if t.windows {
		out, err := powershell(ctx, "Get-NetTCPConnection -OwningProcess "+strconv.Itoa(pid)+
			" -State Listen | Select-Object -ExpandProperty LocalPort | ConvertTo-Json")
		if err != nil {
			return nil, err
		}
		return parsePortList(out)
	}
	out, err := exec.CommandContext(ctx, "lsof", "-nP", "-a", "-iTCP", "-sTCP:LISTEN", "-p", strconv.Itoa(pid)).Output()
	if err != nil {
		// lsof exits 1 when nothing matched.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		return nil, err
	}
	return parseLsof(string(out)), nil
}

func powershell(ctx context.Context, script string) ([]byte, error) {
	return exec.CommandContext(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command", script).Output()
}
