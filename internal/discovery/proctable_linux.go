//go:build linux

package discovery

import (
	"context"
	"strconv"
	"strings"

	"github.com/prometheus/procfs"
)

const tcpListen = 0x0A

type procTable struct {
	fs procfs.FS
}

// SystemTable reads the process table from /proc.
func SystemTable() (Table, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, err
	}
	return &procTable{fs: fs}, nil
}

func (t *procTable) Processes(ctx context.Context) ([]Process, error) {
	all, err := t.fs.AllProcs()
	if err != nil {
		return nil, err
	}
	var procs []Process
	for _, p := range all {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		args, err := p.CmdLine()
		if err != nil || len(args) == 0 {
			continue
		}
		name := baseName(args[0])
		if exe, err := p.Executable(); err == nil && exe != "" {
			name = baseName(exe)
		}
		procs = append(procs, Process{PID: p.PID, Name: name, CmdLine: strings.Join(args, " ")})
	}
	return procs, nil
}

// ListeningPorts matches the process's socket descriptors against the
// LISTEN entries of /proc/net/tcp and /proc/net/tcp6 by inode.
func (t *procTable) ListeningPorts(ctx context.Context, pid int) ([]int, error) {
	p, err := t.fs.Proc(pid)
	if err != nil {
		return nil, err
	}
	targets, err := p.FileDescriptorTargets()
	if err != nil {
		return nil, err
	}
	inodes := socketInodes(targets)
	if len(inodes) == 0 {
		return nil, nil
	}

	var ports []int
	collect := func(lines procfs.NetTCP) {
		for _, l := range lines {
			if l.St == tcpListen && inodes[l.Inode] {
				ports = append(ports, int(l.LocalPort))
			}
		}
	}
	tcp, err := t.fs.NetTCP()
	if err != nil {
		return nil, err
	}
	collect(tcp)
	// tcp6 is absent on hosts without IPv6.
	if tcp6, err := t.fs.NetTCP6(); err == nil {
		collect(tcp6)
	}
	return ports, ctx.Err()
}

// socketInodes picks the inode out of "socket:[12345]" descriptor targets.
func socketInodes(targets []string) map[uint64]bool {
	inodes := make(map[uint64]bool)
	for _, target := range targets {
		rest, ok := strings.CutPrefix(target, "socket:[")
		if !ok {
			continue
		}
		if n, err := strconv.ParseUint(strings.TrimSuffix(rest, "]"), 10, 64); err == nil {
			inodes[n] = true
		}
	}
	return inodes
}
