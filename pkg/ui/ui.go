// Package ui provides CLI user interface utilities
package ui

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mattn/go-isatty"
)

// Colors for terminal output
const (
	Reset = "\033[0m"
	Bold  = "\033[1m"
	Dim   = "\033[2m"

	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
	White  = "\033[37m"
	Gray   = "\033[90m"

	BrightRed   = "\033[91m"
	BrightGreen = "\033[92m"
	BrightCyan  = "\033[96m"
)

// Icons for various UI elements
const (
	IconSuccess = "✓"
	IconError   = "✗"
	IconWarning = "⚠"
	IconInfo    = "ℹ"
	IconArrow   = "→"
	IconBell    = "🔔"
	IconUp      = "▲"
	IconDown    = "▼"
)

// Printer handles formatted output
type Printer struct {
	Out     io.Writer
	NoColor bool
}

// NewPrinter creates a printer on stdout. Color is off when NO_COLOR is
// set or stdout is not a terminal.
func NewPrinter() *Printer {
	noColor := os.Getenv("NO_COLOR") != "" || !isatty.IsTerminal(os.Stdout.Fd())
	return &Printer{Out: os.Stdout, NoColor: noColor}
}

// color applies color if enabled
func (p *Printer) color(c, text string) string {
	if p.NoColor {
		return text
	}
	return c + text + Reset
}

func (p *Printer) println(s string) {
	fmt.Fprintln(p.Out, s)
}

// Success prints a success message
func (p *Printer) Success(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	p.println(p.color(Green, IconSuccess+" "+msg))
}

// Error prints an error message
func (p *Printer) Error(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	p.println(p.color(Red, IconError+" "+msg))
}

// Warning prints a warning message
func (p *Printer) Warning(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	p.println(p.color(Yellow, IconWarning+" "+msg))
}

// Info prints an info message
func (p *Printer) Info(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	p.println(p.color(Blue, IconInfo+" "+msg))
}

// Dim prints dimmed text
func (p *Printer) Dim(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	p.println(p.color(Gray, msg))
}

// Title prints a title
func (p *Printer) Title(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	p.println("")
	p.println(p.color(Bold+BrightCyan, msg))
	p.println(p.color(Dim, strings.Repeat("─", utf8.RuneCountInString(msg))))
}

// Section prints a section header
func (p *Printer) Section(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	p.println("")
	p.println(p.color(Bold+White, msg))
}

// Field prints an aligned "label: value" line
func (p *Printer) Field(label, value string) {
	fmt.Fprintf(p.Out, "  %-14s %s\n", label+":", value)
}

// Divider prints a divider line
func (p *Printer) Divider() {
	p.println(p.color(Dim, strings.Repeat("─", 50)))
}

// NewLine prints a new line
func (p *Printer) NewLine() {
	p.println("")
}

var ansi = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// visibleWidth is the printed width of s without color codes
func visibleWidth(s string) int {
	return utf8.RuneCountInString(ansi.ReplaceAllString(s, ""))
}

// Table prints rows under headers with columns padded to the widest
// visible cell. Cells may carry color codes.
func (p *Printer) Table(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = visibleWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && visibleWidth(cell) > widths[i] {
				widths[i] = visibleWidth(cell)
			}
		}
	}

	line := func(cells []string) string {
		var b strings.Builder
		for i, cell := range cells {
			if i >= len(widths) {
				break
			}
			b.WriteString(cell)
			if i < len(cells)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-visibleWidth(cell)+2))
			}
		}
		return "  " + b.String()
	}

	header := make([]string, len(headers))
	total := 0
	for i, h := range headers {
		header[i] = p.color(Bold, h)
		total += widths[i] + 2
	}
	p.println(line(header))
	p.println("  " + p.color(Dim, strings.Repeat("─", total-2)))
	for _, row := range rows {
		p.println(line(row))
	}
}

// progressBar creates a progress bar
func (p *Printer) progressBar(pct, width int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := pct * width / 100
	empty := width - filled

	bar := strings.Repeat("█", filled) + strings.Repeat("░", empty)

	color := Red
	if pct >= 70 {
		color = Green
	} else if pct >= 30 {
		color = Yellow
	}

	return p.color(color, bar)
}

// formatAge formats a time as a human-readable age
func formatAge(t time.Time, now time.Time) string {
	d := now.Sub(t)

	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}

// formatDuration formats a duration in human-readable format
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0f seconds", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.0f minutes", d.Minutes())
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%.1f hours", d.Hours())
	}
	return fmt.Sprintf("%.1f days", d.Hours()/24)
}
