package monitor

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/tnunamak/gravmeter/internal/alert"
	"github.com/tnunamak/gravmeter/internal/api"
)

// Snapshot is the monitor's view after a poll. It is replaced wholesale,
// never edited in place.
type Snapshot struct {
	Record     *api.Record `json:"record"`
	Stale      bool        `json:"stale"`
	Err        string      `json:"error,omitempty"`
	ErrKind    api.Kind    `json:"error_kind,omitempty"`
	FetchedAt  time.Time   `json:"fetched_at,omitzero"`
	Source     string      `json:"source,omitempty"`
	ConnID     string      `json:"connection_id,omitempty"`
	Generation uint64      `json:"generation"`
}

// Sink receives everything the monitor has to show.
type Sink interface {
	Loading()
	Update(Snapshot)
	Alert(alert.Alert)
}

// Sinks fans out to several sinks in order.
type Sinks []Sink

func (s Sinks) Loading() {
	for _, sink := range s {
		sink.Loading()
	}
}

func (s Sinks) Update(snap Snapshot) {
	for _, sink := range s {
		sink.Update(snap)
	}
}

func (s Sinks) Alert(a alert.Alert) {
	for _, sink := range s {
		sink.Alert(a)
	}
}

// LogSink writes snapshots and alerts to a logger.
type LogSink struct {
	Logger zerolog.Logger
}

func (l LogSink) Loading() {
	l.Logger.Debug().Msg("loading usage")
}

func (l LogSink) Update(s Snapshot) {
	if s.Err != "" {
		l.Logger.Warn().Str("kind", string(s.ErrKind)).Bool("stale", s.Stale).Msg(s.Err)
		return
	}
	if s.Record != nil {
		l.Logger.Info().Str("source", s.Source).Str("usage", s.Record.Summary()).Msg("usage updated")
	}
}

func (l LogSink) Alert(a alert.Alert) {
	l.Logger.Warn().Int("threshold", a.Threshold).Str("severity", string(a.Severity)).Msg(a.Message)
}
