package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/ochairo/carbonrepo/internal/domain/entities"
	"github.com/ochairo/carbonrepo/internal/domain/services"
)

// styles renders command output. Colours are dropped when the output is
// not a terminal.
type styles struct {
	ok      lipgloss.Style
	warn    lipgloss.Style
	fail    lipgloss.Style
	dim     lipgloss.Style
	heading lipgloss.Style
	added   lipgloss.Style
	removed lipgloss.Style
	hunk    lipgloss.Style
	meta    lipgloss.Style
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	if !isTerminal(w) || os.Getenv("NO_COLOR") != "" {
		return styles{
			ok: r.NewStyle(), warn: r.NewStyle(), fail: r.NewStyle(), dim: r.NewStyle(),
			heading: r.NewStyle(), added: r.NewStyle(), removed: r.NewStyle(),
			hunk: r.NewStyle(), meta: r.NewStyle(),
		}
	}
	return styles{
		ok:      r.NewStyle().Foreground(lipgloss.Color("2")),
		warn:    r.NewStyle().Foreground(lipgloss.Color("3")),
		fail:    r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		dim:     r.NewStyle().Faint(true),
		heading: r.NewStyle().Bold(true),
		added:   r.NewStyle().Foreground(lipgloss.Color("2")),
		removed: r.NewStyle().Foreground(lipgloss.Color("1")),
		hunk:    r.NewStyle().Foreground(lipgloss.Color("6")),
		meta:    r.NewStyle().Foreground(lipgloss.Color("5")),
	}
}

// line renders one change report line by its diff class
func (s styles) line(text string) string {
	switch services.ClassifyLine(text) {
	case services.LineAdded:
		return s.added.Render(text)
	case services.LineRemoved:
		return s.removed.Render(text)
	case services.LineHunk:
		return s.hunk.Render(text)
	case services.LineMeta:
		return s.meta.Render(text)
	default:
		return text
	}
}

// status renders a reconciliation status label
func (s styles) status(status entities.CheckStatus) string {
	switch status {
	case entities.StatusUpToDate:
		return s.ok.Render("up to date")
	case entities.StatusOutdated:
		return s.warn.Render("outdated")
	case entities.StatusCheckError:
		return s.fail.Render("error")
	default:
		return s.dim.Render("unchecked")
	}
}

// writeSummary prints a change summary with diff colouring
func writeSummary(w io.Writer, s styles, summary *entities.ChangeSummary) {
	fmt.Fprintln(w, s.heading.Render(fmt.Sprintf("%s (%s)", summary.Coordinate, summary.Kind)))
	for _, line := range summary.Lines {
		fmt.Fprintln(w, s.line(line))
	}
	if summary.Err != nil {
		fmt.Fprintln(w, s.fail.Render("Error: "+summary.Err.Error()))
	}
}

// writeVerifications prints one line per verified asset
func writeVerifications(w io.Writer, s styles, verifications []entities.AssetVerification) {
	for _, v := range verifications {
		var state string
		switch {
		case v.Failed():
			state = s.fail.Render("failed: " + v.Error)
		case v.Mismatched():
			state = s.fail.Render("MISMATCH")
		case v.Matched != nil:
			state = s.ok.Render("ok")
		default:
			state = s.dim.Render("recorded")
		}
		line := fmt.Sprintf("  %s %s %s", v.Name, s.dim.Render(services.ShortSHA(v.Observed())), state)
		if v.SignatureVerified != nil {
			if *v.SignatureVerified {
				line += " " + s.ok.Render("signature ok")
			} else {
				line += " " + s.fail.Render("signature: "+v.SignatureError)
			}
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
}
