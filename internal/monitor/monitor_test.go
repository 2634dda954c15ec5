package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tnunamak/gravmeter/internal/alert"
	"github.com/tnunamak/gravmeter/internal/api"
)

type fetchFunc func(ctx context.Context) (*api.Record, error)

func (f fetchFunc) FetchUsage(ctx context.Context) (*api.Record, error) { return f(ctx) }

type recordingSink struct {
	mu      sync.Mutex
	loading int
	updates []Snapshot
	alerts  []alert.Alert
	updated chan Snapshot
}

func newRecordingSink() *recordingSink {
	return &recordingSink{updated: make(chan Snapshot, 64)}
}

func (s *recordingSink) Loading() {
	s.mu.Lock()
	s.loading++
	s.mu.Unlock()
}

func (s *recordingSink) Update(snap Snapshot) {
	s.mu.Lock()
	s.updates = append(s.updates, snap)
	s.mu.Unlock()
	s.updated <- snap
}

func (s *recordingSink) Alert(a alert.Alert) {
	s.mu.Lock()
	s.alerts = append(s.alerts, a)
	s.mu.Unlock()
}

func (s *recordingSink) alertLevels() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int
	for _, a := range s.alerts {
		out = append(out, a.Threshold)
	}
	return out
}

func rec(used, total int64) *api.Record {
	r := api.NewRecord(used, total)
	return &r
}

// staticConnector hands out connections wrapping fetch and counts calls.
func staticConnector(calls *atomic.Int32, fetch fetchFunc) Connector {
	return ConnectorFunc(func(context.Context) (*Connection, error) {
		n := calls.Add(1)
		return &Connection{ID: fmt.Sprintf("conn-%d", n), Source: SourceLocal, Fetcher: fetch}, nil
	})
}

func newTestMonitor(c Connector, sink Sink) *Monitor {
	return New(c, sink, Options{Interval: time.Hour, Notifications: true, Logger: zerolog.Nop()})
}

func TestPoll_publishesAndCachesConnection(t *testing.T) {
	var connects atomic.Int32
	sink := newRecordingSink()
	m := newTestMonitor(staticConnector(&connects, func(context.Context) (*api.Record, error) {
		return rec(100, 1000), nil
	}), sink)

	for range 2 {
		s, err := m.Poll(context.Background())
		if err != nil {
			t.Fatalf("Poll: %v", err)
		}
		if s.Record.Percentage != 10 || s.Stale || s.Source != SourceLocal {
			t.Errorf("snapshot = %+v", s)
		}
	}
	if connects.Load() != 1 {
		t.Errorf("connector called %d times, want 1", connects.Load())
	}
	if got, ok := m.Snapshot(); !ok || got.ConnID != "conn-1" {
		t.Errorf("Snapshot() = %+v, %v", got, ok)
	}
	if len(sink.updates) != 2 {
		t.Errorf("updates = %d, want 2", len(sink.updates))
	}
}

func TestPoll_failureKeepsStaleRecord(t *testing.T) {
	var connects atomic.Int32
	var (
		mu      sync.Mutex
		failErr error
	)
	m := newTestMonitor(staticConnector(&connects, func(context.Context) (*api.Record, error) {
		mu.Lock()
		err := failErr
		mu.Unlock()
		if err != nil {
			return nil, err
		}
		return rec(300, 1000), nil
	}), newRecordingSink())

	if _, err := m.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	tests := []struct {
		err       error
		kind      api.Kind
		keepsConn bool
	}{
		{fmt.Errorf("%w: deadline", api.ErrTimeout), api.KindTimeout, true},
		{fmt.Errorf("%w: html", api.ErrMalformedResponse), api.KindMalformed, true},
		{fmt.Errorf("%w: HTTP 401", api.ErrUnauthorized), api.KindUnauthorized, false},
		{fmt.Errorf("%w: refused", api.ErrTransport), api.KindTransport, false},
		{fmt.Errorf("%w: HTTP 404", api.ErrNotFound), api.KindNotFound, false},
	}
	for _, tt := range tests {
		mu.Lock()
		failErr = tt.err
		mu.Unlock()
		s, err := m.Poll(context.Background())
		if !errors.Is(err, tt.err) {
			t.Errorf("%s: err = %v", tt.kind, err)
		}
		if !s.Stale || s.Record == nil || s.Record.Used != 300 {
			t.Errorf("%s: want stale last record, got %+v", tt.kind, s)
		}
		if s.ErrKind != tt.kind || s.Err == "" {
			t.Errorf("%s: snapshot error = %q (%s)", tt.kind, s.Err, s.ErrKind)
		}
		if got := m.Connection() != nil; got != tt.keepsConn {
			t.Errorf("%s: connection kept = %v, want %v", tt.kind, got, tt.keepsConn)
		}
	}
}

func TestPoll_connectFailureWithoutHistory(t *testing.T) {
	m := newTestMonitor(ConnectorFunc(func(context.Context) (*Connection, error) {
		return nil, fmt.Errorf("%w: no process", api.ErrNotFound)
	}), newRecordingSink())

	s, err := m.Poll(context.Background())
	if !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
	if s.Record != nil || s.Stale || s.Err != "Antigravity not found" {
		t.Errorf("snapshot = %+v", s)
	}
}

func TestPoll_cancelledByCaller(t *testing.T) {
	var connects atomic.Int32
	sink := newRecordingSink()
	m := newTestMonitor(staticConnector(&connects, func(ctx context.Context) (*api.Record, error) {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", api.ErrTransport, err)
		}
		return rec(200, 1000), nil
	}), sink)

	if _, err := m.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Poll(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if m.Connection() == nil {
		t.Error("cancelled poll dropped the connection")
	}
	if s, _ := m.Snapshot(); s.Stale || s.Err != "" {
		t.Errorf("cancelled poll published %+v", s)
	}
	if len(sink.updates) != 1 {
		t.Errorf("updates = %d, want 1", len(sink.updates))
	}
}

func TestPoll_inFlightGuard(t *testing.T) {
	var connects, fetches atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	m := newTestMonitor(staticConnector(&connects, func(context.Context) (*api.Record, error) {
		fetches.Add(1)
		close(started)
		<-release
		return rec(1, 10), nil
	}), newRecordingSink())

	done := make(chan error, 1)
	go func() {
		_, err := m.Poll(context.Background())
		done <- err
	}()
	<-started

	if _, err := m.Poll(context.Background()); !errors.Is(err, ErrPollInFlight) {
		t.Errorf("overlapping poll err = %v, want ErrPollInFlight", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Errorf("first poll: %v", err)
	}
	if fetches.Load() != 1 {
		t.Errorf("fetches = %d, want 1", fetches.Load())
	}
}

func TestReconnect_discardsSupersededResult(t *testing.T) {
	var connects atomic.Int32
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	var block atomic.Bool
	block.Store(true)

	sink := newRecordingSink()
	m := newTestMonitor(staticConnector(&connects, func(context.Context) (*api.Record, error) {
		if block.Load() {
			started <- struct{}{}
			<-release
			return rec(999, 1000), nil
		}
		return rec(10, 1000), nil
	}), sink)

	done := make(chan error, 1)
	go func() {
		_, err := m.Poll(context.Background())
		done <- err
	}()
	<-started
	m.Reconnect()
	block.Store(false)
	close(release)

	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("superseded poll err = %v", err)
	}
	if _, ok := m.Snapshot(); ok {
		t.Error("superseded result was published")
	}
	if len(sink.alertLevels()) != 0 {
		t.Error("superseded result raised alerts")
	}

	s, err := m.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll after reconnect: %v", err)
	}
	if s.Record.Used != 10 || s.ConnID != "conn-2" || s.Generation != 1 {
		t.Errorf("snapshot = %+v", s)
	}
}

func TestPoll_alerts(t *testing.T) {
	var connects atomic.Int32
	var used atomic.Int64
	sink := newRecordingSink()
	m := newTestMonitor(staticConnector(&connects, func(context.Context) (*api.Record, error) {
		return rec(used.Load(), 1000), nil
	}), sink)

	poll := func(u int64) {
		t.Helper()
		used.Store(u)
		if _, err := m.Poll(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	poll(850)
	poll(860)
	if got := sink.alertLevels(); len(got) != 1 || got[0] != 80 {
		t.Fatalf("alerts = %v, want [80]", got)
	}

	m.SetNotifications(false)
	poll(100)
	poll(990)
	if got := sink.alertLevels(); len(got) != 1 {
		t.Fatalf("alerts while disabled = %v", got)
	}
	if !m.Alerts().Eighty {
		t.Error("latches changed while notifications were off")
	}

	m.SetNotifications(true)
	poll(990)
	if got := sink.alertLevels(); len(got) != 4 || got[3] != 99 {
		t.Errorf("alerts = %v, want [80 90 95 99]", got)
	}
}

func TestRun_lifecycle(t *testing.T) {
	var connects atomic.Int32
	sink := newRecordingSink()
	m := newTestMonitor(staticConnector(&connects, func(context.Context) (*api.Record, error) {
		return rec(5, 10), nil
	}), sink)
	if m.State() != Open {
		t.Fatalf("state = %s, want open", m.State())
	}

	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background()) }()

	wait := func() Snapshot {
		t.Helper()
		select {
		case s := <-sink.updated:
			return s
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for a poll")
			return Snapshot{}
		}
	}
	wait()
	if m.State() != Active {
		t.Errorf("state = %s, want active", m.State())
	}
	if err := m.Run(context.Background()); !errors.Is(err, ErrRunning) {
		t.Errorf("second Run err = %v", err)
	}

	m.Refresh()
	wait()
	m.Reconnect()
	if s := wait(); s.Generation != 1 {
		t.Errorf("generation after reconnect = %d", s.Generation)
	}
	m.SetInterval(2 * time.Hour)
	if m.Interval() != 2*time.Hour {
		t.Errorf("interval = %v", m.Interval())
	}

	m.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after Close")
	}
	if m.State() != Closed {
		t.Errorf("state = %s, want closed", m.State())
	}
	if _, err := m.Poll(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Poll after close err = %v", err)
	}
	if err := m.Run(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Run after close err = %v", err)
	}
	if connects.Load() != 2 {
		t.Errorf("connects = %d, want 2", connects.Load())
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.loading != 2 {
		t.Errorf("loading = %d, want 2 (start and reconnect)", sink.loading)
	}
}

func TestNextDelay_cappedAtInterval(t *testing.T) {
	m := New(nil, nil, Options{Interval: 8 * time.Second, Logger: zerolog.Nop()})
	failure := fmt.Errorf("%w: refused", api.ErrTransport)
	for i := range 10 {
		if d := m.nextDelay(failure); d <= 0 || d > 8*time.Second {
			t.Fatalf("attempt %d: delay %v outside (0, 8s]", i, d)
		}
	}
	if d := m.nextDelay(nil); d != 8*time.Second {
		t.Errorf("after success delay = %v, want the interval", d)
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeAuto, "auto": ModeAuto, "local": ModeLocal, "remote": ModeRemote} {
		if got, err := ParseMode(in); err != nil || got != want {
			t.Errorf("ParseMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseMode("cloud"); err == nil {
		t.Error("ParseMode accepted an unknown mode")
	}
}
