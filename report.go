package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
)

const dividerWidth = 60

// printer writes the human readable progress of a run
type printer struct {
	stdout io.Writer
	stderr io.Writer
	color  bool
}

func newPrinter(stdout, stderr io.Writer, noColor bool) *printer {
	return &printer{stdout: stdout, stderr: stderr, color: !noColor}
}

func (p *printer) paint(colors text.Colors, s string) string {
	if !p.color {
		return s
	}
	return colors.Sprint(s)
}

func (p *printer) banner(w io.Writer, colors text.Colors, msg string) {
	divider := strings.Repeat("=", dividerWidth)
	fmt.Fprintln(w, p.paint(colors, divider))
	fmt.Fprintln(w, p.paint(colors, msg))
	fmt.Fprintln(w, p.paint(colors, divider))
}

// step announces a workflow step that is about to run
func (p *printer) step(format string, args ...any) {
	fmt.Fprintln(p.stdout, p.paint(text.Colors{text.FgCyan}, "==> "+fmt.Sprintf(format, args...)))
}

// success reports a completed milestone
func (p *printer) success(format string, args ...any) {
	p.banner(p.stdout, text.Colors{text.FgGreen, text.Bold}, fmt.Sprintf(format, args...))
}

// notice reports a short-circuit
func (p *printer) notice(format string, args ...any) {
	p.banner(p.stdout, text.Colors{text.FgYellow, text.Bold}, fmt.Sprintf(format, args...))
}

// fatal reports the error that stopped the run
func (p *printer) fatal(err error) {
	p.banner(p.stderr, text.Colors{text.FgRed, text.Bold}, fmt.Sprintf("error (%s): %v", kindOf(err), err))
}

// result prints the final result of a run
func (p *printer) result(res *RunResult) {
	switch res.Outcome {
	case OutcomeDone:
		p.success("%s", res.Summary)
	default:
		p.notice("%s", res.Summary)
	}
}
