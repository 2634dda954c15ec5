package present

import (
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/browser"

	"github.com/tnunamak/gravmeter/internal/api"
)

//go:embed report.html.tmpl
var reportSource string

const ringRadius = 90

var reportTmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"comma": humanize.Comma,
	"upper": func(p api.Plan) string { return strings.ToUpper(string(p)) },
}).Parse(reportSource))

type reportModel struct {
	Record        *api.Record
	Color         string
	Circumference float64
	Offset        float64
	Remaining     string
	ResetAt       string
	Models        []reportModelRow
	Stale         bool
	Error         string
	GeneratedAt   string
}

type reportModelRow struct {
	Name      string
	Remaining float64
	Color     string
	ResetAt   string
}

// ReportOptions carries the parts of a snapshot the report shows besides
// the record itself.
type ReportOptions struct {
	Now   time.Time
	Stale bool
	Error string
}

// RenderReport writes a standalone HTML page with the usage gauge, figures,
// plan badge, per-model quotas and next reset.
func RenderReport(w io.Writer, rec *api.Record, opts ReportOptions) error {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	circ := 2 * math.Pi * ringRadius
	m := reportModel{
		Record:        rec,
		Color:         LevelFor(rec.Percentage).Hex(),
		Circumference: circ,
		Offset:        circ - rec.Percentage/100*circ,
		Remaining:     FormatTimeRemaining(rec.ResetTime, opts.Now),
		ResetAt:       rec.ResetTime.Local().Format("Mon Jan 2 2006 15:04"),
		Stale:         opts.Stale,
		Error:         opts.Error,
		GeneratedAt:   opts.Now.Local().Format(time.DateTime),
	}
	for _, q := range rec.ModelQuotas {
		row := reportModelRow{
			Name:      q.Name,
			Remaining: math.Round(q.RemainingPercent),
			Color:     ModelLevel(q).Hex(),
		}
		if !q.ResetTime.IsZero() {
			row.ResetAt = q.ResetTime.Local().Format("15:04")
		}
		m.Models = append(m.Models, row)
	}
	return reportTmpl.Execute(w, m)
}

// WriteReportFile renders the report to path.
func WriteReportFile(path string, rec *api.Record, opts ReportOptions) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := RenderReport(f, rec, opts); err != nil {
		f.Close()
		return fmt.Errorf("render report: %w", err)
	}
	return f.Close()
}

// OpenReport writes the report to the temp directory and opens it in the
// default browser. It returns the file's path.
func OpenReport(rec *api.Record, opts ReportOptions) (string, error) {
	path := filepath.Join(os.TempDir(), "gravmeter-report.html")
	if err := WriteReportFile(path, rec, opts); err != nil {
		return "", err
	}
	return path, browser.OpenFile(path)
}
