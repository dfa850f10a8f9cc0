package entities

import "strings"

// SummaryKind tags how much of a change report could be produced
type SummaryKind int

const (
	// SummaryFailed means no report could be produced
	SummaryFailed SummaryKind = iota
	// SummaryDetailed is a full commit-range comparison
	SummaryDetailed
	// SummarySummary is the degraded per-commit report used when the
	// comparison is unavailable upstream
	SummarySummary
)

func (k SummaryKind) String() string {
	switch k {
	case SummaryDetailed:
		return "detailed"
	case SummarySummary:
		return "summary"
	default:
		return "failed"
	}
}

// ChangeSummary is a human-readable report of what changed between two commits
type ChangeSummary struct {
	Kind       SummaryKind
	Coordinate string
	OldSHA     string
	NewSHA     string
	// Lines is the rendered report. On the degraded path it holds whatever
	// was assembled before a follow-up request failed.
	Lines []string
	// CompareURL is set on the degraded path
	CompareURL string
	Err        error
}

// Text joins the rendered lines
func (s ChangeSummary) Text() string {
	return strings.Join(s.Lines, "\n")
}
