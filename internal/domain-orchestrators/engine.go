// Package orchestrators coordinates complex workflows across multiple domain services.
package orchestrators

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ochairo/carbonrepo/internal/domain/entities"
	domainerrors "github.com/ochairo/carbonrepo/internal/domain/errors"
	"github.com/ochairo/carbonrepo/internal/domain/interfaces/gateways"
	"github.com/ochairo/carbonrepo/internal/domain/interfaces/repositories"
	"github.com/ochairo/carbonrepo/internal/domain/services"
)

// AssetVerifier hashes release assets against recorded digests
type AssetVerifier interface {
	VerifyAll(ctx context.Context, assets []entities.Asset, expected map[string]*string) []entities.AssetVerification
}

// EngineConfig holds configuration for the engine
type EngineConfig struct {
	// Fanout bounds how many items UpdateAll processes at once
	Fanout int
	// CheckPace is slept after each item of a reconciliation pass
	CheckPace time.Duration
	// Sink receives progress events. It may be called from several
	// goroutines at once during UpdateAll and must not call back into the
	// Engine.
	Sink   entities.EventSink
	Logger zerolog.Logger
}

// Engine owns the tracked item collection and the drift set of the latest
// reconciliation pass. Front ends hold a reference to one Engine and
// subscribe to its events.
type Engine struct {
	store      repositories.FingerprintStore
	source     gateways.SourceGateway
	verifier   AssetVerifier
	reconciler *services.Reconciler
	summarizer *services.Summarizer
	fanout     int
	sink       entities.EventSink
	log        zerolog.Logger

	mu    sync.Mutex
	items []entities.TrackedItem
	drift map[string]entities.DriftRecord
}

// NewEngine creates an engine. Call Load before any other operation.
func NewEngine(
	store repositories.FingerprintStore,
	source gateways.SourceGateway,
	verifier AssetVerifier,
	summarizer *services.Summarizer,
	config EngineConfig,
) *Engine {
	fanout := config.Fanout
	if fanout <= 0 {
		fanout = 1
	}

	return &Engine{
		store:      store,
		source:     source,
		verifier:   verifier,
		reconciler: services.NewReconciler(source, config.CheckPace),
		summarizer: summarizer,
		fanout:     fanout,
		sink:       config.Sink,
		log:        config.Logger,
		drift:      map[string]entities.DriftRecord{},
	}
}

// UpdateResult is the outcome of refreshing one tracked item
type UpdateResult struct {
	Item          entities.TrackedItem
	Verifications []entities.AssetVerification
	// Summary is set when the stored commit moved
	Summary *entities.ChangeSummary
}

// Mismatches returns the names of assets whose digest no longer matches
func (r *UpdateResult) Mismatches() []string {
	var names []string
	for _, v := range r.Verifications {
		if v.ExpectedDigest != nil && v.Mismatched() {
			names = append(names, v.Name)
		}
	}
	return names
}

// UpdateAllResult counts the outcome of UpdateAll
type UpdateAllResult struct {
	Updated int
	Failed  int
	Errors  map[string]error
}

// Load reads the store and clears the drift set
func (e *Engine) Load() error {
	items, err := e.store.Load()
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.items = items
	e.drift = map[string]entities.DriftRecord{}
	e.log.Debug().Int("items", len(items)).Str("path", e.store.Path()).Msg("Store loaded")
	return nil
}

// Items returns a copy of the tracked items in store order
func (e *Engine) Items() []entities.TrackedItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]entities.TrackedItem, len(e.items))
	for i, item := range e.items {
		out[i] = item.Clone()
	}
	return out
}

// Drift returns the drift records of the latest pass in store order
func (e *Engine) Drift() []entities.DriftRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []entities.DriftRecord
	for _, item := range e.items {
		if d, ok := e.drift[item.Coordinate]; ok {
			out = append(out, d)
		}
	}
	return out
}

// IsOutdated reports whether the latest pass found drift for coordinate
func (e *Engine) IsOutdated(coordinate string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.drift[coordinate]
	return ok
}

// Add starts tracking a repository given as "owner/name" or URL. An existing
// entry with the same coordinate is replaced and moved to the end.
func (e *Engine) Add(ctx context.Context, input string) (*UpdateResult, error) {
	coordinate, err := services.ParseRepoInput(input)
	if err != nil {
		return nil, err
	}
	log := e.log.With().Str("coordinate", coordinate).Logger()
	e.emit(entities.Event{Kind: entities.EventUpdateStarted, Coordinate: coordinate, Message: "adding"})

	item, verifications, err := e.fetch(ctx, coordinate, entities.TrackedItem{})
	if err != nil {
		log.Error().Err(err).Int("status", domainerrors.StatusCode(err)).Msg("Failed to add repository")
		e.emit(entities.Event{Kind: entities.EventItemFailed, Coordinate: coordinate, Err: err})
		return nil, err
	}

	e.mu.Lock()
	kept := e.items[:0:0]
	for _, existing := range e.items {
		if existing.Coordinate != coordinate {
			kept = append(kept, existing)
		}
	}
	e.items = append(kept, item)
	delete(e.drift, coordinate)
	err = e.saveLocked()
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	log.Info().Int("assets", len(item.Assets)).Msg("Repository added")
	e.emit(entities.Event{Kind: entities.EventItemUpdated, Coordinate: coordinate, Message: item.DisplayAnnotation()})
	return &UpdateResult{Item: item.Clone(), Verifications: verifications}, nil
}

// Remove stops tracking coordinate
func (e *Engine) Remove(coordinate string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.indexLocked(coordinate)
	if idx < 0 {
		return domainerrors.Newf(domainerrors.ErrNotTracked, "%s is not tracked", coordinate)
	}
	e.items = append(e.items[:idx:idx], e.items[idx+1:]...)
	delete(e.drift, coordinate)

	if err := e.saveLocked(); err != nil {
		return err
	}
	e.log.Info().Str("coordinate", coordinate).Msg("Repository removed")
	return nil
}

// Check runs a reconciliation pass over every item and replaces the drift set
func (e *Engine) Check(ctx context.Context) *entities.CheckReport {
	items := e.Items()
	e.emit(entities.Event{Kind: entities.EventCheckStarted, Message: fmt.Sprintf("checking %d repositories", len(items))})

	report := e.reconciler.Run(ctx, items, func(outcome entities.CheckOutcome) {
		ev := entities.Event{
			Kind:       entities.EventItemChecked,
			Coordinate: outcome.Coordinate,
			Status:     outcome.Status,
			Err:        outcome.Err,
		}
		switch outcome.Status {
		case entities.StatusOutdated:
			ev.Message = fmt.Sprintf("%s -> %s", services.ShortSHA(outcome.Drift.OldSHA), services.ShortSHA(outcome.Drift.NewSHA))
			e.log.Info().Str("coordinate", outcome.Coordinate).
				Str("old", outcome.Drift.OldSHA).Str("new", outcome.Drift.NewSHA).Msg("Repository outdated")
		case entities.StatusCheckError:
			e.log.Error().Err(outcome.Err).Str("coordinate", outcome.Coordinate).
				Int("status", domainerrors.StatusCode(outcome.Err)).Msg("Check failed")
		default:
			e.log.Debug().Str("coordinate", outcome.Coordinate).Msg("Repository up to date")
		}
		e.emit(ev)
	})

	drift := make(map[string]entities.DriftRecord, len(report.Drift))
	for _, d := range report.Drift {
		drift[d.Coordinate] = d
	}
	e.mu.Lock()
	e.drift = drift
	e.mu.Unlock()

	e.emit(entities.Event{
		Kind:    entities.EventCheckFinished,
		Message: fmt.Sprintf("%d outdated, %d up to date, %d errors", report.Outdated, report.UpToDate, report.Errors),
	})
	return report
}

// Update refreshes one tracked item in place and persists the store. When
// the stored commit moved, a change summary is attached.
func (e *Engine) Update(ctx context.Context, coordinate string) (*UpdateResult, error) {
	result, err := e.update(ctx, coordinate, true)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	err = e.saveLocked()
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateAll refreshes every tracked item, bounded by the configured fanout,
// and saves the store once at the end. Per-item failures are counted and
// never stop the batch; only a failed save is returned as an error.
func (e *Engine) UpdateAll(ctx context.Context) (*UpdateAllResult, error) {
	items := e.Items()
	result := &UpdateAllResult{Errors: map[string]error{}}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(e.fanout)
	for _, item := range items {
		g.Go(func() error {
			_, err := e.update(ctx, item.Coordinate, false)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				result.Errors[item.Coordinate] = err
				return nil
			}
			result.Updated++
			return nil
		})
	}
	//nolint:errcheck // Per-item errors are collected in result
	g.Wait()

	e.mu.Lock()
	err := e.saveLocked()
	e.mu.Unlock()
	if err != nil {
		return result, err
	}

	e.log.Info().Int("updated", result.Updated).Int("failed", result.Failed).Msg("Update all finished")
	return result, nil
}

// Diff summarizes the changes between the stored commit and the upstream
// tip. It returns nil when the item is up to date.
func (e *Engine) Diff(ctx context.Context, coordinate string) (*entities.ChangeSummary, error) {
	e.mu.Lock()
	idx := e.indexLocked(coordinate)
	var item entities.TrackedItem
	if idx >= 0 {
		item = e.items[idx].Clone()
	}
	record, drifted := e.drift[coordinate]
	e.mu.Unlock()

	if idx < 0 {
		return nil, domainerrors.Newf(domainerrors.ErrNotTracked, "%s is not tracked", coordinate)
	}

	if !drifted {
		outcome := e.reconciler.CheckItem(ctx, item)
		switch outcome.Status {
		case entities.StatusCheckError:
			return nil, outcome.Err
		case entities.StatusUpToDate:
			return nil, nil
		}
		record = *outcome.Drift
		e.mu.Lock()
		e.drift[coordinate] = record
		e.mu.Unlock()
	}

	summary := e.summarizer.Summarize(ctx, coordinate, record.OldSHA, record.NewSHA)
	e.emit(entities.Event{Kind: entities.EventSummaryReady, Coordinate: coordinate, Summary: &summary, Err: summary.Err})
	if summary.Kind == entities.SummaryFailed {
		return &summary, summary.Err
	}
	return &summary, nil
}

// update refreshes one item in memory. The caller persists.
func (e *Engine) update(ctx context.Context, coordinate string, summarize bool) (*UpdateResult, error) {
	log := e.log.With().Str("coordinate", coordinate).Logger()

	e.mu.Lock()
	idx := e.indexLocked(coordinate)
	var previous entities.TrackedItem
	if idx >= 0 {
		previous = e.items[idx].Clone()
	}
	e.mu.Unlock()
	if idx < 0 {
		return nil, domainerrors.Newf(domainerrors.ErrNotTracked, "%s is not tracked", coordinate)
	}

	e.emit(entities.Event{Kind: entities.EventUpdateStarted, Coordinate: coordinate})
	item, verifications, err := e.fetch(ctx, coordinate, previous)
	if err != nil {
		log.Error().Err(err).Int("status", domainerrors.StatusCode(err)).Msg("Update failed")
		e.emit(entities.Event{Kind: entities.EventItemFailed, Coordinate: coordinate, Err: err})
		return nil, err
	}

	result := &UpdateResult{Item: item.Clone(), Verifications: verifications}
	for _, name := range result.Mismatches() {
		log.Warn().Str("asset", name).Msg("Recorded digest no longer matches the published asset")
	}

	oldSHA := services.StoredSHA(previous)
	if summarize && oldSHA != "" && !services.IsSameCommit(oldSHA, item.Commit.SHA) {
		summary := e.summarizer.Summarize(ctx, coordinate, oldSHA, item.Commit.SHA)
		result.Summary = &summary
		if summary.Err != nil {
			log.Warn().Err(summary.Err).Str("kind", summary.Kind.String()).Msg("Change summary incomplete")
		}
		e.emit(entities.Event{Kind: entities.EventSummaryReady, Coordinate: coordinate, Summary: &summary, Err: summary.Err})
	}

	e.mu.Lock()
	// The item may have been removed while fetching
	if i := e.indexLocked(coordinate); i >= 0 {
		e.items[i] = item
	}
	delete(e.drift, coordinate)
	e.mu.Unlock()

	log.Info().Str("sha", services.ShortSHA(item.Commit.SHA)).Msg("Repository updated")
	e.emit(entities.Event{Kind: entities.EventItemUpdated, Coordinate: coordinate, Message: item.DisplayAnnotation()})
	return result, nil
}

// fetch reads metadata, the branch tip and the latest release of coordinate
// and hashes every release asset. Digests that could not be computed keep
// the previously recorded value, or stay nil for a new item. Without a
// published release the recorded digests are kept as they are.
func (e *Engine) fetch(ctx context.Context, coordinate string, previous entities.TrackedItem) (entities.TrackedItem, []entities.AssetVerification, error) {
	repo, err := e.source.GetRepository(ctx, coordinate)
	if err != nil {
		return entities.TrackedItem{}, nil, err
	}
	tip, err := e.source.GetLatestCommit(ctx, coordinate, repo.DefaultBranch)
	if err != nil {
		return entities.TrackedItem{}, nil, err
	}
	release, err := e.source.GetLatestRelease(ctx, coordinate)
	if err != nil {
		return entities.TrackedItem{}, nil, err
	}

	item := entities.TrackedItem{
		Coordinate: coordinate,
		Commit: entities.CommitState{
			Branch: repo.DefaultBranch,
			SHA:    tip.SHA,
			Date:   tip.Date,
		},
		Assets: map[string]*string{},
	}
	item.Annotation = item.Commit.Display()

	if release == nil {
		if len(previous.Assets) > 0 {
			item.Assets = previous.Clone().Assets
			e.log.Warn().Str("coordinate", coordinate).Int("assets", len(item.Assets)).
				Msg("No published release, keeping recorded digests")
		} else {
			e.log.Debug().Str("coordinate", coordinate).Msg("No published release")
		}
		return item, nil, nil
	}

	verifications := e.verifier.VerifyAll(ctx, release.Assets, previous.Assets)
	for _, v := range verifications {
		e.emit(entities.Event{Kind: entities.EventAssetVerified, Coordinate: coordinate, Asset: &v})
		if v.Failed() {
			if old, ok := previous.ExpectedDigest(v.Name); ok {
				item.Assets[v.Name] = entities.Digest(old)
				continue
			}
		}
		item.Assets[v.Name] = v.ObservedDigest
	}
	return item, verifications, nil
}

// saveLocked persists the collection. e.mu must be held.
func (e *Engine) saveLocked() error {
	if err := e.store.Save(e.items); err != nil {
		e.log.Error().Err(err).Str("path", e.store.Path()).Msg("Failed to save store")
		return err
	}
	e.emit(entities.Event{Kind: entities.EventStoreSaved, Message: e.store.Path()})
	return nil
}

func (e *Engine) indexLocked(coordinate string) int {
	for i, item := range e.items {
		if item.Coordinate == coordinate {
			return i
		}
	}
	return -1
}

func (e *Engine) emit(ev entities.Event) {
	if e.sink == nil {
		return
	}
	ev.Time = time.Now()
	e.sink(ev)
}
