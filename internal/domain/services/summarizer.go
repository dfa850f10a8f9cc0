package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/ochairo/carbonrepo/internal/domain/entities"
	domainerrors "github.com/ochairo/carbonrepo/internal/domain/errors"
	"github.com/ochairo/carbonrepo/internal/domain/interfaces/gateways"
)

// minCompareSHALength is the shortest identifier accepted for a comparison request
const minCompareSHALength = 7

// Summarizer builds change reports between two commits of a tracked item
type Summarizer struct {
	source  gateways.ComparisonSource
	webBase string
}

// NewSummarizer creates a summarizer. webBase is the site root used to build
// external comparison links, e.g. "https://github.com".
func NewSummarizer(source gateways.ComparisonSource, webBase string) *Summarizer {
	return &Summarizer{source: source, webBase: strings.TrimRight(webBase, "/")}
}

// Summarize tries the commit-range comparison first and degrades to a
// per-commit summary when the comparison is not found upstream
func (s *Summarizer) Summarize(ctx context.Context, coordinate, oldSHA, newSHA string) entities.ChangeSummary {
	summary := entities.ChangeSummary{
		Kind:       entities.SummaryFailed,
		Coordinate: coordinate,
		OldSHA:     oldSHA,
		NewSHA:     newSHA,
	}

	if len(oldSHA) < minCompareSHALength || len(newSHA) < minCompareSHALength {
		summary.Err = domainerrors.InvalidRange(oldSHA, newSHA)
		return summary
	}

	cmp, err := s.source.CompareCommits(ctx, coordinate, oldSHA, newSHA)
	switch {
	case err == nil:
		summary.Kind = entities.SummaryDetailed
		summary.Lines = renderComparison(oldSHA, newSHA, cmp)
		return summary
	case domainerrors.IsNotFound(err):
		return s.fallback(ctx, summary)
	default:
		summary.Err = err
		return summary
	}
}

func (s *Summarizer) fallback(ctx context.Context, summary entities.ChangeSummary) entities.ChangeSummary {
	summary.Kind = entities.SummarySummary
	summary.CompareURL = fmt.Sprintf("%s/%s/compare/%s...%s", s.webBase, summary.Coordinate, summary.OldSHA, summary.NewSHA)
	summary.Lines = []string{
		fmt.Sprintf("Changes between %s and %s", ShortSHA(summary.OldSHA), ShortSHA(summary.NewSHA)),
		"Note: Direct comparison not available. Showing summary information.",
		"",
	}

	for _, c := range []struct{ label, sha string }{
		{"OLD COMMIT", summary.OldSHA},
		{"NEW COMMIT", summary.NewSHA},
	} {
		commit, err := s.source.GetCommit(ctx, summary.Coordinate, c.sha)
		if err != nil {
			summary.Err = fmt.Errorf("fetch %s: %w", strings.ToLower(c.label), err)
			return summary
		}
		date := commit.Date
		if date == "" {
			date = "unknown date"
		}
		summary.Lines = append(summary.Lines,
			fmt.Sprintf("%s: %s (%s)", c.label, ShortSHA(c.sha), date),
			"Message: "+commit.Headline(),
			"",
		)
	}

	summary.Lines = append(summary.Lines,
		"To see detailed changes, visit:",
		summary.CompareURL,
		"",
		"Or clone the repository and use:",
		fmt.Sprintf("git diff %s %s", summary.OldSHA, summary.NewSHA),
	)
	return summary
}

func renderComparison(oldSHA, newSHA string, cmp *entities.Comparison) []string {
	lines := []string{
		fmt.Sprintf("Comparing %s to %s - %s (ahead %d, behind %d)",
			ShortSHA(oldSHA), ShortSHA(newSHA), cmp.Status, cmp.AheadBy, cmp.BehindBy),
		fmt.Sprintf("Total changes: %d commit(s)", cmp.TotalCommits),
		fmt.Sprintf("Files changed: %d", len(cmp.Files)),
		"",
	}

	if len(cmp.Commits) > 0 {
		lines = append(lines, "COMMITS:")
		for _, c := range cmp.Commits {
			lines = append(lines, fmt.Sprintf("%s %s %s: %s", ShortSHA(c.SHA), c.Date, c.Author, c.Headline()))
		}
		lines = append(lines, "")
	}

	if len(cmp.Files) > 0 {
		lines = append(lines, "CHANGED FILES:")
		for _, f := range cmp.Files {
			lines = append(lines, fmt.Sprintf("%s: %s (+%d -%d)", f.Status, f.Filename, f.Additions, f.Deletions))
		}

		lines = append(lines, "", "DIFF DETAILS:")
		for _, f := range cmp.Files {
			if f.Patch == "" {
				continue
			}
			lines = append(lines, "", "--- "+f.Filename, "+++ "+f.Filename)
			lines = append(lines, strings.Split(f.Patch, "\n")...)
		}
	}

	return lines
}
