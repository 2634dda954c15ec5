package api

import (
	"fmt"
	"time"
)

type Plan string

const (
	PlanFree  Plan = "free"
	PlanPro   Plan = "pro"
	PlanUltra Plan = "ultra"
)

// PlanFor infers the plan from the credit allowance. The server does not
// report it in every schema, so this is a guess.
func PlanFor(total int64) Plan {
	switch {
	case total > 5000:
		return PlanUltra
	case total > 500:
		return PlanPro
	default:
		return PlanFree
	}
}

type ModelQuota struct {
	Name             string    `json:"name"`
	RemainingPercent float64   `json:"remaining_percent"`
	ResetTime        time.Time `json:"reset_time,omitzero"`
}

type Record struct {
	Used        int64        `json:"used"`
	Total       int64        `json:"total"`
	Remaining   int64        `json:"remaining"`
	Percentage  float64      `json:"percentage"`
	ResetTime   time.Time    `json:"reset_time"`
	Plan        Plan         `json:"plan"`
	ModelQuotas []ModelQuota `json:"model_quotas"`

	// Window is the length of the reset cadence when the response reveals
	// it, zero otherwise.
	Window time.Duration `json:"window,omitempty"`
}

// NewRecord derives remaining, percentage and plan from used and total.
func NewRecord(used, total int64) Record {
	r := Record{
		Used:        used,
		Total:       total,
		Remaining:   max(0, total-used),
		Plan:        PlanFor(total),
		ModelQuotas: []ModelQuota{},
	}
	if total > 0 {
		r.Percentage = float64(used) / float64(total) * 100
	}
	return r
}

// Summary renders the figures the status indicator shows.
func (r *Record) Summary() string {
	return fmt.Sprintf("%d/%d (%.2f%%)", r.Used, r.Total, r.Percentage)
}
