package orchestrators

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ochairo/carbonrepo/internal/domain/entities"
	domainerrors "github.com/ochairo/carbonrepo/internal/domain/errors"
	"github.com/ochairo/carbonrepo/internal/domain/interfaces/gateways"
	"github.com/ochairo/carbonrepo/internal/domain/services"
)

const defaultDescription = "No description available."

// IconExtractor finds the social preview image URL of a repository page
type IconExtractor func(page string) string

// BatchVerifierConfig holds configuration for the batch verifier
type BatchVerifierConfig struct {
	Fanout           int
	ContributorLimit int
	Icon             IconExtractor
	Sink             entities.EventSink
	Logger           zerolog.Logger
}

// BatchVerifier builds the verification report of every tracked item
type BatchVerifier struct {
	source           gateways.SourceGateway
	verifier         AssetVerifier
	fanout           int
	contributorLimit int
	icon             IconExtractor
	sink             entities.EventSink
	log              zerolog.Logger
}

// NewBatchVerifier creates a new batch verifier
func NewBatchVerifier(source gateways.SourceGateway, verifier AssetVerifier, config BatchVerifierConfig) *BatchVerifier {
	fanout := config.Fanout
	if fanout <= 0 {
		fanout = 1
	}
	limit := config.ContributorLimit
	if limit <= 0 {
		limit = 30
	}
	icon := config.Icon
	if icon == nil {
		icon = func(string) string { return "" }
	}

	return &BatchVerifier{
		source:           source,
		verifier:         verifier,
		fanout:           fanout,
		contributorLimit: limit,
		icon:             icon,
		sink:             config.Sink,
		log:              config.Logger,
	}
}

// Run processes every item. Items that fail are counted and left out of the
// reports; the remaining reports keep store order.
func (b *BatchVerifier) Run(ctx context.Context, items []entities.TrackedItem) *entities.BatchSummary {
	start := time.Now()
	reports := make([]*entities.RepoReport, len(items))

	var g errgroup.Group
	g.SetLimit(b.fanout)
	for i, item := range items {
		g.Go(func() error {
			report, err := b.process(ctx, item)
			if err != nil {
				b.log.Error().Err(err).Str("coordinate", item.Coordinate).
					Int("status", domainerrors.StatusCode(err)).Msg("Failed to process repository")
			}
			reports[i] = report
			b.emit(entities.Event{Kind: entities.EventItemVerified, Coordinate: item.Coordinate, Err: err})
			return nil
		})
	}
	//nolint:errcheck // Failures are recorded per item
	g.Wait()

	summary := &entities.BatchSummary{
		Mismatches: map[string][]string{},
		Reports:    []entities.RepoReport{},
	}
	for _, report := range reports {
		if report == nil {
			summary.Failed++
			continue
		}
		summary.Processed++
		summary.Stars += report.Stars
		summary.Downloads += report.TotalDownloads
		if len(report.MismatchedAssets) > 0 {
			summary.Mismatches[report.FullName] = report.MismatchedAssets
		}
		summary.Reports = append(summary.Reports, *report)
	}

	b.log.Info().
		Int("processed", summary.Processed).
		Int("failed", summary.Failed).
		Int("mismatches", summary.MismatchCount()).
		Dur("elapsed", time.Since(start)).
		Msg("Verification finished")
	b.emit(entities.Event{
		Kind:    entities.EventVerifyFinished,
		Message: fmt.Sprintf("%d processed, %d failed, %d mismatches", summary.Processed, summary.Failed, summary.MismatchCount()),
	})
	return summary
}

// process builds the report of one item
func (b *BatchVerifier) process(ctx context.Context, item entities.TrackedItem) (*entities.RepoReport, error) {
	log := b.log.With().Str("coordinate", item.Coordinate).Logger()

	repo, err := b.source.GetRepository(ctx, item.Coordinate)
	if err != nil {
		return nil, err
	}

	release, others, err := b.releases(ctx, item.Coordinate)
	if err != nil {
		return nil, err
	}

	report := &entities.RepoReport{
		Name:             services.FormatRepoName(repo.Name),
		FullName:         repo.FullName,
		URL:              repo.HTMLURL,
		Description:      repo.Description,
		Stars:            repo.Stars,
		Assets:           []entities.AssetVerification{},
		Contributors:     []string{},
		MismatchedAssets: []string{},
	}
	if report.Name == "" {
		report.Name = services.FormatRepoName(item.Name())
	}
	if report.FullName == "" {
		report.FullName = item.Coordinate
	}
	if report.Description == "" {
		report.Description = defaultDescription
	}

	if release != nil {
		report.Assets = b.verifier.VerifyAll(ctx, release.Assets, item.Assets)
		for _, asset := range release.Assets {
			report.TotalDownloads += asset.DownloadCount
		}
	}
	for _, rel := range others {
		for _, asset := range rel.Assets {
			report.TotalDownloads += asset.DownloadCount
		}
	}

	for i := range report.Assets {
		v := &report.Assets[i]
		b.emit(entities.Event{Kind: entities.EventAssetVerified, Coordinate: item.Coordinate, Asset: v})
		if v.ExpectedDigest != nil && v.Mismatched() {
			log.Warn().Str("asset", v.Name).Str("expected", *v.ExpectedDigest).
				Str("actual", v.Observed()).Msg("Hash mismatch")
			report.MismatchedAssets = append(report.MismatchedAssets, v.Name)
		}
	}

	contributors, err := b.source.ListContributors(ctx, item.Coordinate, b.contributorLimit)
	if err != nil {
		return nil, err
	}
	for _, c := range contributors {
		if c.Type == "User" {
			report.Contributors = append(report.Contributors, c.Login)
		}
	}

	page, err := b.source.FetchPage(ctx, item.Coordinate)
	if err != nil {
		log.Warn().Err(err).Msg("Repository page unavailable")
	} else if icon := b.icon(page); icon != "" {
		report.Icon = &icon
	}

	return report, nil
}

// releases returns the latest release plus, when the latest endpoint is
// unavailable and the full listing is used instead, the remaining releases
// whose download counters are added to the total
func (b *BatchVerifier) releases(ctx context.Context, coordinate string) (*entities.Release, []entities.Release, error) {
	latest, err := b.source.GetLatestRelease(ctx, coordinate)
	if err == nil && latest != nil {
		return latest, nil, nil
	}
	if err != nil {
		b.log.Warn().Err(err).Str("coordinate", coordinate).Msg("No latest release, falling back to all releases")
	}

	all, err := b.source.ListReleases(ctx, coordinate)
	if err != nil {
		return nil, nil, err
	}
	if len(all) == 0 {
		return nil, nil, nil
	}
	return &all[0], all[1:], nil
}

// WriteReports writes the reports as an indented JSON array
func WriteReports(path string, reports []entities.RepoReport) error {
	if reports == nil {
		reports = []entities.RepoReport{}
	}
	data, err := json.MarshalIndent(reports, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode reports: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil { //nolint:gosec // G306: report is public data
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func (b *BatchVerifier) emit(ev entities.Event) {
	if b.sink == nil {
		return
	}
	ev.Time = time.Now()
	b.sink(ev)
}
