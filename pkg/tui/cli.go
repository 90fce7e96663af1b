// Package tui renders simlog's terminal output: headers, per-replicate
// progress and result tables.
package tui

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/schollz/progressbar/v3"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
)

// Printer writes styled output. The zero value writes to stdout.
type Printer struct {
	Out   io.Writer
	Quiet bool
}

func (p *Printer) out() io.Writer {
	if p.Out == nil {
		return os.Stdout
	}
	return p.Out
}

func (p *Printer) println(a ...interface{}) {
	if !p.Quiet {
		fmt.Fprintln(p.out(), a...)
	}
}

// Header prints the program banner.
func (p *Printer) Header(version string) {
	p.println()
	p.println(titleStyle.Render("  SIMLOG") + mutedStyle.Render(" "+version))
	p.println(mutedStyle.Render("  Budget-constrained process tree simulation"))
	p.println()
}

// Section prints a section title.
func (p *Printer) Section(title string) {
	p.println()
	p.println(accentStyle.Render("▸ " + title))
}

// KeyValue prints one labelled value.
func (p *Printer) KeyValue(key string, value interface{}) {
	p.println(fmt.Sprintf("  %s %s", mutedStyle.Render(key+":"), titleStyle.Render(fmt.Sprint(value))))
}

// Rule prints a separator line.
func (p *Printer) Rule() {
	p.println(mutedStyle.Render("  ─────────────────────────────────────"))
}

// Failure prints an error line.
func (p *Printer) Failure(msg string) {
	p.println(accentStyle.Render("  ✗ " + msg))
}

// ReplicateLine summarizes one finished replicate.
type ReplicateLine struct {
	Input     string
	Replicate int
	Traces    int
	Events    int
	Dropped   int
	Duration  time.Duration
	Skipped   bool
}

// Replicate prints a one-line replicate summary.
func (p *Printer) Replicate(l ReplicateLine) {
	if l.Skipped {
		p.println(fmt.Sprintf("  %s %s #%d %s", mutedStyle.Render("↷"), l.Input, l.Replicate, mutedStyle.Render("(checkpoint complete)")))
		return
	}
	p.println(fmt.Sprintf("  %s %s #%d  %s traces  %s events  %s",
		successStyle.Render("✓"),
		l.Input, l.Replicate,
		titleStyle.Render(FormatNumber(int64(l.Traces))),
		titleStyle.Render(FormatNumber(int64(l.Events))),
		mutedStyle.Render(fmt.Sprintf("(%d silent dropped, %s)", l.Dropped, FormatDuration(l.Duration)))))
}

// Done prints the completion line.
func (p *Printer) Done(what string, elapsed time.Duration) {
	p.println()
	p.println(successStyle.Render("  ✓ "+what) + mutedStyle.Render(" in "+FormatDuration(elapsed)))
	p.println()
}

// Tabular is a header plus string records.
type Tabular interface {
	Header() []string
	Records() [][]string
}

// Table prints t as a bordered table.
func (p *Printer) Table(t Tabular) {
	p.println(RenderTable(t))
}

// RenderTable renders t with lipgloss.
func RenderTable(t Tabular) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(t.Header()...).
		Rows(t.Records()...).
		String()
}

// Progress creates a progress bar for a known number of steps. It renders
// nothing when quiet.
func (p *Printer) Progress(total int64, description string) *progressbar.ProgressBar {
	if p.Quiet {
		return progressbar.DefaultSilent(total, description)
	}
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(p.out()),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

// FormatNumber abbreviates large counts.
func FormatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}
