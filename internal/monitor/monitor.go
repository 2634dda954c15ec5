// Package monitor owns the polling loop: it keeps the current connection,
// polls it on a timer, publishes snapshots to sinks and raises alerts.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/tnunamak/gravmeter/internal/alert"
	"github.com/tnunamak/gravmeter/internal/api"
)

const DefaultInterval = 5 * time.Minute

var (
	ErrPollInFlight = errors.New("poll already in flight")
	ErrSuperseded   = errors.New("poll superseded by reconnect")
	ErrClosed       = errors.New("monitor closed")
	ErrRunning      = errors.New("monitor already running")
)

type Lifecycle int32

const (
	Open Lifecycle = iota
	Active
	Closed
)

func (l Lifecycle) String() string {
	switch l {
	case Open:
		return "open"
	case Active:
		return "active"
	default:
		return "closed"
	}
}

type Options struct {
	Interval      time.Duration
	Notifications bool
	Logger        zerolog.Logger
	Now           func() time.Time
}

// Monitor is the connection context. Everything that outlives a single
// poll lives here.
type Monitor struct {
	connector Connector
	sink      Sink
	logger    zerolog.Logger
	now       func() time.Time

	mu       sync.Mutex
	state    Lifecycle
	conn     *Connection
	alerts   alert.State
	interval time.Duration
	backoff  *backoff.ExponentialBackOff
	cancel   context.CancelFunc

	gen      atomic.Uint64
	inFlight atomic.Bool
	notify   atomic.Bool
	snap     atomic.Pointer[Snapshot]

	wake       chan struct{}
	reschedule chan struct{}
}

func New(connector Connector, sink Sink, opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if sink == nil {
		sink = Sinks(nil)
	}
	m := &Monitor{
		connector:  connector,
		sink:       sink,
		logger:     opts.Logger,
		now:        opts.Now,
		interval:   opts.Interval,
		backoff:    newBackoff(opts.Interval),
		wake:       make(chan struct{}, 1),
		reschedule: make(chan struct{}, 1),
	}
	m.notify.Store(opts.Notifications)
	return m
}

func newBackoff(ceiling time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = min(5*time.Second, ceiling)
	b.MaxInterval = ceiling
	b.MaxElapsedTime = 0
	return b
}

func (m *Monitor) State() Lifecycle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns the last published snapshot, if any.
func (m *Monitor) Snapshot() (Snapshot, bool) {
	s := m.snap.Load()
	if s == nil {
		return Snapshot{}, false
	}
	return *s, true
}

// Connection returns the cached connection, or nil when the next poll will
// reconnect.
func (m *Monitor) Connection() *Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

func (m *Monitor) Interval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval
}

// Run polls immediately and then every interval until ctx is done or Close
// is called.
func (m *Monitor) Run(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case Active:
		m.mu.Unlock()
		return ErrRunning
	case Closed:
		m.mu.Unlock()
		return ErrClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	m.state = Active
	m.cancel = cancel
	m.mu.Unlock()
	defer m.Close()

	m.sink.Loading()
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.reschedule:
			timer.Reset(m.Interval())
			continue
		case <-m.wake:
		case <-timer.C:
		}
		_, err := m.Poll(ctx)
		if ctx.Err() != nil {
			return nil
		}
		timer.Reset(m.nextDelay(err))
	}
}

func (m *Monitor) nextDelay(err error) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil || errors.Is(err, ErrPollInFlight) || errors.Is(err, ErrSuperseded) {
		m.backoff.Reset()
		return m.interval
	}
	d := m.backoff.NextBackOff()
	if d == backoff.Stop || d > m.interval {
		d = m.interval
	}
	m.logger.Debug().Dur("retry_in", d).Msg("poll failed, backing off")
	return d
}

// Refresh asks the loop for an immediate poll.
func (m *Monitor) Refresh() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Reconnect forgets the current connection. A poll already in flight
// finishes but its result is discarded.
func (m *Monitor) Reconnect() {
	gen := m.gen.Add(1)
	m.mu.Lock()
	m.conn = nil
	m.backoff.Reset()
	m.mu.Unlock()
	m.logger.Info().Uint64("generation", gen).Msg("reconnecting")
	m.sink.Loading()
	m.Refresh()
}

// SetInterval changes the poll interval and restarts the timer.
func (m *Monitor) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	m.interval = d
	m.backoff = newBackoff(d)
	m.mu.Unlock()
	select {
	case m.reschedule <- struct{}{}:
	default:
	}
}

// SetNotifications turns alert evaluation on or off. While off, the latches
// are left as they are.
func (m *Monitor) SetNotifications(on bool) {
	m.notify.Store(on)
}

// Close stops the loop and discards any poll still in flight.
func (m *Monitor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Closed {
		return nil
	}
	m.state = Closed
	m.gen.Add(1)
	m.conn = nil
	if m.cancel != nil {
		m.cancel()
	}
	return nil
}

// Poll runs one cycle: connect if needed, fetch, publish. It is safe to call
// from any goroutine; a call overlapping another returns ErrPollInFlight.
func (m *Monitor) Poll(ctx context.Context) (Snapshot, error) {
	if m.State() == Closed {
		return Snapshot{}, ErrClosed
	}
	if !m.inFlight.CompareAndSwap(false, true) {
		return Snapshot{}, ErrPollInFlight
	}
	defer m.inFlight.Store(false)

	gen := m.gen.Load()
	conn, err := m.connection(ctx, gen)
	if err != nil {
		if cancelled(ctx) {
			return Snapshot{}, fmt.Errorf("poll: %w", ctx.Err())
		}
		return m.fail(gen, nil, err)
	}
	rec, err := conn.Fetcher.FetchUsage(ctx)
	if m.gen.Load() != gen {
		m.logger.Debug().Str("conn", conn.ID).Msg("discarding superseded poll result")
		return Snapshot{}, ErrSuperseded
	}
	if err != nil {
		if cancelled(ctx) {
			return Snapshot{}, fmt.Errorf("poll: %w", ctx.Err())
		}
		return m.fail(gen, conn, err)
	}

	s := Snapshot{
		Record:     rec,
		FetchedAt:  m.now(),
		Source:     conn.Source,
		ConnID:     conn.ID,
		Generation: gen,
	}
	m.publish(s)
	m.evaluate(rec)
	return s, nil
}

func (m *Monitor) connection(ctx context.Context, gen uint64) (*Connection, error) {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn != nil {
		return conn, nil
	}

	conn, err := m.connector.Connect(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	if m.gen.Load() == gen && m.state != Closed {
		m.conn = conn
	}
	m.mu.Unlock()
	return conn, nil
}

// cancelled reports whether the caller gave up on the poll. Such a failure
// says nothing about the connection and is not published.
func cancelled(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.Canceled)
}

// fail keeps the last record, marks it stale and surfaces a terse error.
func (m *Monitor) fail(gen uint64, conn *Connection, err error) (Snapshot, error) {
	kind := api.Classify(err)
	ev := m.logger.Warn().Err(err).Str("kind", string(kind))
	if conn != nil {
		ev = ev.Str("conn", conn.ID)
	}
	ev.Msg("poll failed")

	switch kind {
	case api.KindNotFound, api.KindUnauthorized, api.KindTransport:
		m.mu.Lock()
		if m.gen.Load() == gen {
			m.conn = nil
		}
		m.mu.Unlock()
	}

	s := Snapshot{Err: Describe(kind), ErrKind: kind, Generation: gen}
	if prev := m.snap.Load(); prev != nil && prev.Record != nil {
		s.Record = prev.Record
		s.Stale = true
		s.FetchedAt = prev.FetchedAt
		s.Source = prev.Source
		s.ConnID = prev.ConnID
	}
	if m.gen.Load() != gen {
		return Snapshot{}, ErrSuperseded
	}
	m.publish(s)
	return s, fmt.Errorf("poll: %w", err)
}

func (m *Monitor) publish(s Snapshot) {
	m.snap.Store(&s)
	m.sink.Update(s)
}

func (m *Monitor) evaluate(rec *api.Record) {
	if !m.notify.Load() {
		return
	}
	m.mu.Lock()
	next, fired := alert.Evaluate(rec, m.alerts)
	m.alerts = next
	m.mu.Unlock()
	for _, a := range fired {
		m.logger.Info().Int("threshold", a.Threshold).Msg("usage threshold crossed")
		m.sink.Alert(a)
	}
}

// Alerts returns the current latch state.
func (m *Monitor) Alerts() alert.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alerts
}

// Describe is the short, user-facing text for an error kind.
func Describe(kind api.Kind) string {
	switch kind {
	case api.KindNone:
		return ""
	case api.KindNotFound:
		return "Antigravity not found"
	case api.KindUnauthorized:
		return "Session expired"
	case api.KindTimeout:
		return "Request timed out"
	case api.KindMalformed:
		return "Unexpected response"
	default:
		return "Connection failed"
	}
}
