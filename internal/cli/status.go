// Package cli renders one-shot usage output for the terminal.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/tnunamak/gravmeter/internal/api"
	"github.com/tnunamak/gravmeter/internal/cache"
	"github.com/tnunamak/gravmeter/internal/forecast"
	"github.com/tnunamak/gravmeter/internal/monitor"
	"github.com/tnunamak/gravmeter/internal/present"
)

const barWidth = 20

type Format string

const (
	FormatAuto  Format = ""
	FormatColor Format = "color"
	FormatPlain Format = "plain"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatAuto, FormatColor, FormatPlain, FormatJSON, FormatYAML:
		return f, nil
	case "auto":
		return FormatAuto, nil
	default:
		return "", fmt.Errorf("unknown output format %q", s)
	}
}

func isTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Result is what `status` prints.
type Result struct {
	Usage     *api.Record `json:"usage" yaml:"usage"`
	Source    string      `json:"source" yaml:"source"`
	FetchedAt time.Time   `json:"fetched_at" yaml:"fetched_at"`
	Cached    bool        `json:"cached" yaml:"cached"`
	Stale     bool        `json:"stale" yaml:"stale"`
	Error     string      `json:"error,omitempty" yaml:"error,omitempty"`
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		return "now"
	}
	d = d.Round(time.Minute)
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd%dh", days, hours)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh%02dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}

var levelColors = map[present.Level]*color.Color{
	present.LevelOK:       color.New(color.FgGreen),
	present.LevelInfo:     color.New(color.FgYellow),
	present.LevelWarning:  color.New(color.FgHiRed),
	present.LevelCritical: color.New(color.FgRed, color.Bold),
}

var dim = color.New(color.Faint)

func bar(pct float64) string {
	filled := int(math.Round(pct / 100 * barWidth))
	filled = min(max(filled, 0), barWidth)
	return strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
}

func PrintColor(w io.Writer, res Result, now time.Time) {
	rec := res.Usage
	c := levelColors[present.LevelFor(rec.Percentage)]

	fmt.Fprintf(w, "gravmeter  %s %s  %s / %s credits",
		c.Sprint(bar(rec.Percentage)), c.Sprintf("%3.0f%%", rec.Percentage),
		humanize.Comma(rec.Used), humanize.Comma(rec.Total))
	if !rec.ResetTime.IsZero() {
		fmt.Fprintf(w, "  resets %s", formatDuration(rec.ResetTime.Sub(now)))
	}
	fmt.Fprintln(w)

	line := strings.ToUpper(string(rec.Plan)) + " plan"
	if p, ok := forecast.ForRecord(rec, now); ok {
		line += "  " + p.ColorIndicator()
	}
	fmt.Fprintf(w, "           %s\n", line)

	for _, q := range rec.ModelQuotas {
		mc := levelColors[present.ModelLevel(q)]
		fmt.Fprintf(w, "  %-24s %s\n", q.Name, mc.Sprintf("%3.0f%% left", q.RemainingPercent))
	}
	if res.Stale {
		fmt.Fprintln(w, dim.Sprintf("  %s, showing usage from %s", res.Error, humanize.RelTime(res.FetchedAt, now, "ago", "from now")))
	}
}

func PrintPlain(w io.Writer, res Result, now time.Time) {
	rec := res.Usage
	fmt.Fprintf(w, "AG: %.0f%% (%s/%s credits", rec.Percentage, humanize.Comma(rec.Used), humanize.Comma(rec.Total))
	if !rec.ResetTime.IsZero() {
		fmt.Fprintf(w, ", resets %s", formatDuration(rec.ResetTime.Sub(now)))
	}
	fmt.Fprint(w, ")")
	if res.Stale {
		fmt.Fprint(w, " [stale]")
	}
	fmt.Fprintln(w)
}

func PrintJSON(w io.Writer, res Result) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func PrintYAML(w io.Writer, res Result) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(res); err != nil {
		return err
	}
	return enc.Close()
}

// Print writes res in format; FormatAuto picks color on a terminal.
func Print(w io.Writer, format Format, res Result, now time.Time) error {
	switch format {
	case FormatJSON:
		return PrintJSON(w, res)
	case FormatYAML:
		return PrintYAML(w, res)
	case FormatPlain:
		PrintPlain(w, res, now)
	case FormatColor:
		PrintColor(w, res, now)
	default:
		if isTTY() {
			PrintColor(w, res, now)
		} else {
			PrintPlain(w, res, now)
		}
	}
	return nil
}

// StatusOptions wires a one-shot status call.
type StatusOptions struct {
	Format  Format
	NoCache bool
	Cache   *cache.Store
	Poll    func(ctx context.Context) (monitor.Snapshot, error)
	Out     io.Writer
	Err     io.Writer
	Now     func() time.Time
}

// Status prints current usage and returns the process exit code: 0 on
// success, 1 when only stale data could be shown or nothing could be
// fetched, 2 when Antigravity or its session was not found.
func Status(ctx context.Context, opts StatusOptions) int {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	var entry *cache.Entry
	if opts.Cache != nil {
		entry, _ = opts.Cache.Read()
	}
	if entry != nil && !opts.NoCache && opts.Cache.Fresh(entry) {
		res := Result{Usage: entry.Record, Source: entry.Source, FetchedAt: entry.FetchedAt, Cached: true}
		return printed(opts, res, now(), 0)
	}

	snap, err := opts.Poll(ctx)
	if err == nil && snap.Record != nil {
		if opts.Cache != nil {
			if werr := opts.Cache.Write(snap.Record, snap.Source); werr != nil {
				fmt.Fprintf(opts.Err, "gravmeter: cache: %v\n", werr)
			}
		}
		res := Result{Usage: snap.Record, Source: snap.Source, FetchedAt: snap.FetchedAt}
		return printed(opts, res, now(), 0)
	}

	msg := monitor.Describe(api.Classify(err))
	if err != nil && !errors.Is(err, monitor.ErrClosed) {
		fmt.Fprintf(opts.Err, "gravmeter: %v\n", err)
	}
	if entry != nil {
		res := Result{Usage: entry.Record, Source: entry.Source, FetchedAt: entry.FetchedAt, Cached: true, Stale: true, Error: msg}
		return printed(opts, res, now(), 1)
	}

	fmt.Fprintf(opts.Err, "gravmeter: %s\n", msg)
	switch api.Classify(err) {
	case api.KindNotFound, api.KindUnauthorized:
		return 2
	default:
		return 1
	}
}

func printed(opts StatusOptions, res Result, now time.Time, code int) int {
	if err := Print(opts.Out, opts.Format, res, now); err != nil {
		fmt.Fprintf(opts.Err, "gravmeter: %v\n", err)
		return 1
	}
	return code
}
