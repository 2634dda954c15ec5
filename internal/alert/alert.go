// Package alert decides when a usage record crosses a notification
// threshold. Each threshold fires once and stays latched until usage falls
// back under the reset level.
package alert

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/tnunamak/gravmeter/internal/api"
)

type Severity string

const (
	Warning  Severity = "warning"
	Critical Severity = "critical"
)

// ResetBelow clears every latch once usage drops under it.
const ResetBelow = 50.0

type Alert struct {
	Threshold int
	Severity  Severity
	Title     string
	Message   string
}

// State is one latch per threshold.
type State struct {
	Eighty     bool `json:"eighty"`
	Ninety     bool `json:"ninety"`
	NinetyFive bool `json:"ninety_five"`
	NinetyNine bool `json:"ninety_nine"`
}

type threshold struct {
	level    int
	severity Severity
	latch    func(*State) *bool
	message  string
}

var thresholds = []threshold{
	{80, Warning, func(s *State) *bool { return &s.Eighty }, "%d%% of your quota used. %s credits left."},
	{90, Warning, func(s *State) *bool { return &s.Ninety }, "%d%% of your quota used. Only %s credits left."},
	{95, Critical, func(s *State) *bool { return &s.NinetyFive }, "%d%% of your quota used. Only %s credits left!"},
	{99, Critical, func(s *State) *bool { return &s.NinetyNine }, "%d%% of your quota used. %s credits left, you are about to run out!"},
}

// Evaluate returns the updated latches and the alerts rec newly triggers,
// lowest threshold first. It does not mutate state.
func Evaluate(rec *api.Record, state State) (State, []Alert) {
	if rec == nil {
		return state, nil
	}
	if rec.Percentage < ResetBelow {
		return State{}, nil
	}
	var fired []Alert
	for _, t := range thresholds {
		latch := t.latch(&state)
		if rec.Percentage < float64(t.level) || *latch {
			continue
		}
		*latch = true
		fired = append(fired, Alert{
			Threshold: t.level,
			Severity:  t.severity,
			Title:     title(t.severity),
			Message:   fmt.Sprintf(t.message, t.level, humanize.Comma(rec.Remaining)),
		})
	}
	return state, fired
}

func title(s Severity) string {
	if s == Critical {
		return "Antigravity quota critical"
	}
	return "Antigravity quota warning"
}
