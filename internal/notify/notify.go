// Package notify turns threshold alerts into desktop notifications.
package notify

import (
	"github.com/gen2brain/beeep"
	"github.com/rs/zerolog"

	"github.com/tnunamak/gravmeter/internal/alert"
	"github.com/tnunamak/gravmeter/internal/monitor"
)

const detailsHint = "Run `gravmeter report --open` for details."

// Sink sends one desktop notification per alert. Snapshots are ignored.
type Sink struct {
	Logger zerolog.Logger
	Icon   string

	// Send delivers the notification; nil means beeep. Critical alerts ask
	// for an attention-grabbing notification where the platform has one.
	Send func(title, message, icon string, critical bool) error
}

func New(logger zerolog.Logger) *Sink {
	return &Sink{Logger: logger}
}

func (s *Sink) Loading() {}

func (s *Sink) Update(monitor.Snapshot) {}

func (s *Sink) Alert(a alert.Alert) {
	send := s.Send
	if send == nil {
		send = desktop
	}
	msg := a.Message + "\n" + detailsHint
	if err := send(a.Title, msg, s.Icon, a.Severity == alert.Critical); err != nil {
		s.Logger.Warn().Err(err).Int("threshold", a.Threshold).Msg("desktop notification failed")
	}
}

func desktop(title, message, icon string, critical bool) error {
	if critical {
		return beeep.Alert(title, message, icon)
	}
	return beeep.Notify(title, message, icon)
}
