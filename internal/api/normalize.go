package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	defaultResetIn = 5 * time.Hour
	week           = 7 * 24 * time.Hour
)

// Synonyms for the same quantity, in precedence order.
var (
	usedKeys      = []string{"used", "tokens_used", "tokensUsed", "used_tokens", "usedCredits", "used_credits"}
	totalKeys     = []string{"total", "limit", "tokens_limit", "tokensLimit", "total_credits", "totalCredits", "monthly_limit"}
	remainingKeys = []string{"remaining", "available", "tokens_remaining", "remaining_credits"}
	resetKeys     = []string{"reset_time", "resetTime", "resets_at", "resetsAt", "reset_at"}
	cadenceKeys   = []string{"period", "reset_period", "resetPeriod", "cadence"}
	modelKeys     = []string{"models", "model_quotas", "modelQuotas"}
)

// rawUsage is what an extractor pulls out of a response before the record
// invariants are applied.
type rawUsage struct {
	used   int64
	total  int64
	reset  time.Time
	weekly bool
	models []ModelQuota
}

type extractor struct {
	name    string
	extract func(obj map[string]any) (rawUsage, bool)
}

// extractors are tried in order; the first one that recognizes the
// response wins.
var extractors = []extractor{
	{"user_status", fromUserStatus},
	{"usage", fromNested("usage")},
	{"quota", fromNested("quota")},
	{"flat", fromFields},
}

// Normalize maps a usage response onto a Record. now anchors the default
// reset times.
func Normalize(body []byte, now time.Time) (*Record, error) {
	rec, _, err := normalize(body, now)
	return rec, err
}

// normalize also reports which extractor matched.
func normalize(body []byte, now time.Time) (*Record, string, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if data, ok := obj["data"].(map[string]any); ok {
		obj = data
	}
	for _, ex := range extractors {
		if raw, ok := ex.extract(obj); ok {
			return raw.record(now), ex.name, nil
		}
	}
	return nil, "", fmt.Errorf("%w: no usage fields", ErrMalformedResponse)
}

func (u rawUsage) record(now time.Time) *Record {
	r := NewRecord(u.used, u.total)
	r.ResetTime, r.Window = u.resetTime(now)
	if len(u.models) > 0 {
		r.ModelQuotas = u.models
	}
	return &r
}

// resetTime picks the first model entry carrying a reset time, then the
// declared reset, then the declared cadence, then five hours from now.
func (u rawUsage) resetTime(now time.Time) (time.Time, time.Duration) {
	for _, m := range u.models {
		if !m.ResetTime.IsZero() {
			return m.ResetTime, 0
		}
	}
	var window time.Duration
	if u.weekly {
		window = week
	}
	if !u.reset.IsZero() {
		return u.reset, window
	}
	if u.weekly {
		return NextSunday(now), week
	}
	return now.Add(defaultResetIn), defaultResetIn
}

// NextSunday returns the next Sunday 00:00 in now's location. On a Sunday
// it returns the following week's.
func NextSunday(now time.Time) time.Time {
	days := (7 - int(now.Weekday())) % 7
	if days == 0 {
		days = 7
	}
	y, m, d := now.Date()
	return time.Date(y, m, d+days, 0, 0, 0, 0, now.Location())
}

func fromUserStatus(obj map[string]any) (rawUsage, bool) {
	us, ok := obj["userStatus"].(map[string]any)
	if !ok {
		return rawUsage{}, false
	}
	monthly, _ := toInt(dig(us, "planStatus", "planInfo", "monthlyPromptCredits"))
	available, _ := toInt(dig(us, "planStatus", "availablePromptCredits"))
	return rawUsage{
		used:   max(0, monthly-available),
		total:  monthly,
		models: clientModelConfigs(dig(us, "cascadeModelConfigData", "clientModelConfigs")),
	}, true
}

// clientModelConfigs reads the per-model quota list. Entries without
// quotaInfo carry no quota and are skipped; a missing remainingFraction is
// a zero value omitted by the server, i.e. exhausted.
func clientModelConfigs(v any) []ModelQuota {
	list, _ := v.([]any)
	var out []ModelQuota
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		qi, ok := m["quotaInfo"].(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["label"].(string)
		if name == "" {
			name, _ = dig(m, "modelOrAlias", "model").(string)
		}
		q := ModelQuota{Name: name}
		if f, ok := toFloat(qi["remainingFraction"]); ok {
			q.RemainingPercent = clampPercent(f * 100)
		}
		q.ResetTime, _ = toTime(qi["resetTime"])
		out = append(out, q)
	}
	return out
}

func fromNested(key string) func(map[string]any) (rawUsage, bool) {
	return func(obj map[string]any) (rawUsage, bool) {
		inner, ok := obj[key].(map[string]any)
		if !ok {
			return rawUsage{}, false
		}
		u, ok := fromFields(inner)
		if !ok {
			return rawUsage{}, false
		}
		// Reset, cadence and model list sometimes sit beside the nested
		// object rather than inside it.
		if u.reset.IsZero() {
			u.reset, _ = firstTime(obj, resetKeys)
		}
		if !u.weekly {
			u.weekly = isWeekly(obj)
		}
		if len(u.models) == 0 {
			u.models = modelList(obj)
		}
		return u, true
	}
}

func fromFields(obj map[string]any) (rawUsage, bool) {
	used, hasUsed := firstInt(obj, usedKeys)
	total, hasTotal := firstInt(obj, totalKeys)
	remaining, hasRemaining := firstInt(obj, remainingKeys)
	switch {
	case hasUsed && hasTotal:
	case hasTotal && hasRemaining:
		used = max(0, total-remaining)
	case hasUsed && hasRemaining:
		total = used + remaining
	default:
		return rawUsage{}, false
	}
	u := rawUsage{used: used, total: total}
	u.reset, _ = firstTime(obj, resetKeys)
	u.weekly = isWeekly(obj)
	u.models = modelList(obj)
	return u, true
}

func modelList(obj map[string]any) []ModelQuota {
	var list []any
	for _, k := range modelKeys {
		if l, ok := obj[k].([]any); ok {
			list = l
			break
		}
	}
	var out []ModelQuota
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		q := ModelQuota{Name: firstString(m, []string{"name", "model", "label"})}
		if pct, ok := firstFloat(m, []string{"remaining_percent", "remainingPercent"}); ok {
			q.RemainingPercent = clampPercent(pct)
		} else if frac, ok := firstFloat(m, []string{"remainingFraction", "remaining_fraction"}); ok {
			q.RemainingPercent = clampPercent(frac * 100)
		}
		q.ResetTime, _ = firstTime(m, resetKeys)
		out = append(out, q)
	}
	return out
}

func isWeekly(obj map[string]any) bool {
	return strings.Contains(strings.ToLower(firstString(obj, cadenceKeys)), "week")
}

func dig(m map[string]any, path ...string) any {
	var cur any = m
	for _, p := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[p]
	}
	return cur
}

func firstInt(obj map[string]any, keys []string) (int64, bool) {
	for _, k := range keys {
		if n, ok := toInt(obj[k]); ok {
			return n, true
		}
	}
	return 0, false
}

func firstFloat(obj map[string]any, keys []string) (float64, bool) {
	for _, k := range keys {
		if f, ok := toFloat(obj[k]); ok {
			return f, true
		}
	}
	return 0, false
}

func firstString(obj map[string]any, keys []string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func firstTime(obj map[string]any, keys []string) (time.Time, bool) {
	for _, k := range keys {
		if t, ok := toTime(obj[k]); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// maxCount bounds counts to the range a float64 holds exactly, so sums of
// two counts cannot overflow.
const maxCount = 1 << 53

// toInt accepts JSON numbers and numeric strings holding a count in
// [0, maxCount]. Fractions are truncated; anything else is absent.
func toInt(v any) (int64, bool) {
	f, ok := toFloat(v)
	if !ok || f < 0 || f > maxCount {
		return 0, false
	}
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return i, true
		}
	}
	if s, ok := v.(string); ok {
		if i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return i, true
		}
	}
	return int64(f), true
}

// toFloat rejects NaN and infinities.
func toFloat(v any) (float64, bool) {
	var (
		f   float64
		err error
	)
	switch x := v.(type) {
	case json.Number:
		f, err = x.Float64()
	case float64:
		f = x
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(x), 64)
	default:
		return 0, false
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func clampPercent(p float64) float64 {
	return min(max(p, 0), 100)
}

// toTime accepts RFC 3339 strings and unix timestamps in seconds or
// milliseconds.
func toTime(v any) (time.Time, bool) {
	if s, ok := v.(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t, true
		}
	}
	n, ok := toInt(v)
	if !ok || n <= 0 {
		return time.Time{}, false
	}
	if n > 1e12 {
		return time.UnixMilli(n), true
	}
	return time.Unix(n, 0), true
}
