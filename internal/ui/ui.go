package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/sokinpui/sitepatch/model"
)

var (
	HeaderColor  = color.New(color.FgBlue, color.Bold)
	InfoColor    = color.New(color.FgCyan)
	SuccessColor = color.New(color.FgGreen)
	WarningColor = color.New(color.FgYellow)
	ErrorColor   = color.New(color.FgRed)
	PathColor    = color.New(color.FgYellow)
)

func Header(format string, a ...interface{}) {
	HeaderColor.Fprintf(os.Stderr, format+"\n", a...)
}

func Info(format string, a ...interface{}) {
	InfoColor.Fprintf(os.Stderr, format+"\n", a...)
}

func Success(format string, a ...interface{}) {
	SuccessColor.Fprintf(os.Stderr, format+"\n", a...)
}

func Warning(format string, a ...interface{}) {
	WarningColor.Fprintf(os.Stderr, format+"\n", a...)
}

func Error(format string, a ...interface{}) {
	ErrorColor.Fprintf(os.Stderr, format+"\n", a...)
}

func Path(format string, a ...interface{}) {
	PathColor.Fprintf(os.Stderr, "  "+format+"\n", a...)
}

// --- Summaries ---

// PrintSummary writes the outcome of a turn, undo or redo to stderr. The chat
// message goes to stdout so it can be piped on.
func PrintSummary(s model.Summary) {
	if s.Message != "" {
		fmt.Fprintln(os.Stdout, s.Message)
	}

	Header("\n--- %s ---", summaryTitle(s))
	if s.Model != "" {
		Info("Model: %s", s.Model)
	}
	if s.Tokens > 0 {
		Info("Tokens: %d", s.Tokens)
	}
	if s.Aborted {
		Warning("Turn ended early; changes received so far were kept.")
	}

	if len(s.Created) == 0 && len(s.Modified) == 0 && len(s.Failed) == 0 {
		Info("No files were updated.")
		return
	}
	printPaths(SuccessColor, "Created %d new file(s):", s.Created)
	printPaths(SuccessColor, "Modified %d file(s):", s.Modified)
	printPaths(ErrorColor, "Failed to process %d file(s):", s.Failed)
}

func summaryTitle(s model.Summary) string {
	if s.ProjectTitle != "" {
		return s.ProjectTitle
	}
	return "Update Summary"
}

func printPaths(c *color.Color, format string, paths []string) {
	if len(paths) == 0 {
		return
	}
	c.Fprintf(os.Stderr, format+"\n", len(paths))
	for _, p := range paths {
		Path("- %s", p)
	}
}

// --- Progress Bar ---

// ProgressBar draws editor sync progress on a single terminal line.
type ProgressBar struct {
	out     io.Writer
	total   int
	prefix  string
	current int
}

func NewProgressBar(total int, prefix string) *ProgressBar {
	return &ProgressBar{out: os.Stderr, total: total, prefix: prefix}
}

// Set moves the bar to current out of total, finishing the line once the
// bar is full.
func (p *ProgressBar) Set(current, total int) {
	p.current, p.total = current, total
	p.draw()
	if total > 0 && current >= total {
		p.Finish()
	}
}

func (p *ProgressBar) Finish() {
	fmt.Fprintln(p.out)
}

func (p *ProgressBar) draw() {
	if p.total == 0 {
		return
	}
	const barLength = 40
	percent := float64(p.current) / float64(p.total)
	filledLength := int(percent * barLength)
	bar := strings.Repeat("█", filledLength) + strings.Repeat("-", barLength-filledLength)

	percentStr := fmt.Sprintf("%.1f%%", percent*100)
	countStr := fmt.Sprintf("[%d/%d]", p.current, p.total)

	fmt.Fprintf(p.out, "\r%s |%s| %s %s", p.prefix, bar, countStr, percentStr)
}
