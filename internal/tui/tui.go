// Package tui is the full-screen terminal view behind `gravmeter watch`.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/tnunamak/gravmeter/internal/alert"
	"github.com/tnunamak/gravmeter/internal/forecast"
	"github.com/tnunamak/gravmeter/internal/monitor"
	"github.com/tnunamak/gravmeter/internal/present"
)

// messages

type snapshotMsg monitor.Snapshot

type loadingMsg struct{}

type alertMsg alert.Alert

// styles

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99"))

	labelStyle = lipgloss.NewStyle().
			Width(12).
			Foreground(lipgloss.Color("252"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	staleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Italic(true)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("99")).
			Padding(0, 2)
)

// Controller is what the keys drive.
type Controller interface {
	Refresh()
	Reconnect()
}

type Model struct {
	ctrl Controller
	now  func() time.Time

	snap    monitor.Snapshot
	hasSnap bool
	loading bool
	alert   *alert.Alert

	bar     progress.Model
	spinner spinner.Model
	width   int
}

func New(ctrl Controller) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("99"))

	return Model{
		ctrl:    ctrl,
		now:     time.Now,
		loading: true,
		bar: progress.New(
			progress.WithWidth(30),
			progress.WithoutPercentage(),
		),
		spinner: s,
	}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			m.loading = true
			return m, tea.Batch(m.spinner.Tick, func() tea.Msg { m.ctrl.Refresh(); return nil })
		case "c":
			m.loading = true
			return m, tea.Batch(m.spinner.Tick, func() tea.Msg { m.ctrl.Reconnect(); return nil })
		}

	case loadingMsg:
		m.loading = true
		return m, m.spinner.Tick

	case snapshotMsg:
		m.snap = monitor.Snapshot(msg)
		m.hasSnap = true
		m.loading = false

	case alertMsg:
		a := alert.Alert(msg)
		m.alert = &a

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(8, min(msg.Width-30, 40))

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	title := titleStyle.Render("gravmeter")
	switch {
	case m.loading:
		title += "  " + m.spinner.View()
	case m.snap.Stale:
		title += "  " + staleStyle.Render("stale")
	}
	b.WriteString(title + "\n")

	rec := m.snap.Record
	if !m.hasSnap || rec == nil {
		if m.snap.Err != "" {
			b.WriteString(errorStyle.Render(m.snap.Err) + "\n")
		} else {
			b.WriteString(staleStyle.Render("Looking for Antigravity...") + "\n")
		}
		b.WriteString(m.footer())
		return borderStyle.Render(b.String())
	}

	now := m.now()
	level := present.LevelFor(rec.Percentage)
	pct := lipgloss.NewStyle().Foreground(lipgloss.Color(level.Hex())).Render(fmt.Sprintf("%5.1f%%", rec.Percentage))
	b.WriteString(labelStyle.Render("Usage") + m.coloredBar(rec.Percentage, level) + " " + pct + "\n")
	b.WriteString(labelStyle.Render("Credits") + fmt.Sprintf("%s / %s used, %s left\n",
		humanize.Comma(rec.Used), humanize.Comma(rec.Total), humanize.Comma(rec.Remaining)))
	b.WriteString(labelStyle.Render("Plan") + strings.ToUpper(string(rec.Plan)) + "\n")
	if !rec.ResetTime.IsZero() {
		b.WriteString(labelStyle.Render("Resets in") + present.FormatTimeRemaining(rec.ResetTime, now) + "\n")
	}
	if p, ok := forecast.ForRecord(rec, now); ok {
		b.WriteString(labelStyle.Render("Forecast") + fmt.Sprintf("%.0f%% at reset, %s\n", p.ProjectedPct, p.Indicator()))
	}

	if len(rec.ModelQuotas) > 0 {
		b.WriteString("\n")
		for _, q := range rec.ModelQuotas {
			used := 100 - q.RemainingPercent
			b.WriteString(labelStyle.Render(truncate(q.Name, 11)) + m.coloredBar(used, present.ModelLevel(q)) +
				fmt.Sprintf(" %5.1f%% left\n", q.RemainingPercent))
		}
	}

	if m.snap.Err != "" {
		b.WriteString("\n" + staleStyle.Render(m.snap.Err+", showing last known usage") + "\n")
	}
	if m.alert != nil {
		b.WriteString("\n" + errorStyle.Render(m.alert.Title+": "+m.alert.Message) + "\n")
	}
	if !m.snap.FetchedAt.IsZero() {
		b.WriteString(footerStyle.Render("updated "+m.snap.FetchedAt.Local().Format("15:04")+" via "+m.snap.Source) + "\n")
	}
	b.WriteString(m.footer())
	return borderStyle.Render(b.String())
}

func (m Model) coloredBar(pct float64, level present.Level) string {
	bar := m.bar
	bar.FullColor = level.Hex()
	return bar.ViewAs(min(max(pct, 0), 100) / 100)
}

func (m Model) footer() string {
	return footerStyle.Render("[r] refresh  [c] reconnect  [q] quit")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// Sink forwards monitor output into a running program.
type Sink struct {
	Program *tea.Program
}

func (s Sink) Loading() { s.Program.Send(loadingMsg{}) }

func (s Sink) Update(snap monitor.Snapshot) { s.Program.Send(snapshotMsg(snap)) }

func (s Sink) Alert(a alert.Alert) { s.Program.Send(alertMsg(a)) }
