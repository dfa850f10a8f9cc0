package services

import (
	"context"
	"time"

	"github.com/ochairo/carbonrepo/internal/domain/entities"
	domainerrors "github.com/ochairo/carbonrepo/internal/domain/errors"
	"github.com/ochairo/carbonrepo/internal/domain/interfaces/gateways"
)

// Reconciler classifies tracked items against the upstream branch tip
type Reconciler struct {
	source gateways.CommitSource
	// pace is slept after each item so an interactive front end can redraw
	pace time.Duration
}

// NewReconciler creates a reconciler. A zero pace disables the inter-item delay.
func NewReconciler(source gateways.CommitSource, pace time.Duration) *Reconciler {
	return &Reconciler{source: source, pace: pace}
}

// StoredSHA returns the last recorded sha of an item, recovering it from the
// annotation when no structured commit state is present
func StoredSHA(item entities.TrackedItem) string {
	if item.Commit.SHA != "" {
		return item.Commit.SHA
	}
	return ExtractSHA(item.Annotation)
}

// CheckItem evaluates one item. It never returns StatusUnchecked.
func (r *Reconciler) CheckItem(ctx context.Context, item entities.TrackedItem) entities.CheckOutcome {
	outcome := entities.CheckOutcome{Coordinate: item.Coordinate}

	oldSHA := StoredSHA(item)
	if oldSHA == "" {
		outcome.Status = entities.StatusCheckError
		outcome.Err = domainerrors.Check(item.Coordinate, domainerrors.Parse("annotation", nil))
		return outcome
	}

	repo, err := r.source.GetRepository(ctx, item.Coordinate)
	if err != nil {
		outcome.Status = entities.StatusCheckError
		outcome.Err = domainerrors.Check(item.Coordinate, err)
		return outcome
	}

	tip, err := r.source.GetLatestCommit(ctx, item.Coordinate, repo.DefaultBranch)
	if err != nil {
		outcome.Status = entities.StatusCheckError
		outcome.Err = domainerrors.Check(item.Coordinate, err)
		return outcome
	}
	if tip.SHA == "" {
		outcome.Status = entities.StatusCheckError
		outcome.Err = domainerrors.Check(item.Coordinate, domainerrors.New(domainerrors.ErrUpstream, "branch tip has no sha"))
		return outcome
	}

	if IsSameCommit(oldSHA, tip.SHA) {
		outcome.Status = entities.StatusUpToDate
		return outcome
	}

	outcome.Status = entities.StatusOutdated
	outcome.Drift = &entities.DriftRecord{
		Coordinate:    item.Coordinate,
		OldSHA:        oldSHA,
		NewSHA:        tip.SHA,
		CommitDate:    tip.Date,
		CommitMessage: tip.Message,
	}
	return outcome
}

// Run checks every item in order and returns a fresh report. Failures are
// recorded per item and never stop the pass. onItem, when set, is called
// after each item.
func (r *Reconciler) Run(ctx context.Context, items []entities.TrackedItem, onItem func(entities.CheckOutcome)) *entities.CheckReport {
	report := &entities.CheckReport{
		Outcomes: make([]entities.CheckOutcome, 0, len(items)),
		Drift:    []entities.DriftRecord{},
	}

	for _, item := range items {
		var outcome entities.CheckOutcome
		if err := ctx.Err(); err != nil {
			outcome = entities.CheckOutcome{
				Coordinate: item.Coordinate,
				Status:     entities.StatusCheckError,
				Err:        domainerrors.Check(item.Coordinate, err),
			}
		} else {
			outcome = r.CheckItem(ctx, item)
		}

		report.Outcomes = append(report.Outcomes, outcome)
		switch outcome.Status {
		case entities.StatusUpToDate:
			report.UpToDate++
		case entities.StatusOutdated:
			report.Outdated++
			report.Drift = append(report.Drift, *outcome.Drift)
		default:
			report.Errors++
		}

		if onItem != nil {
			onItem(outcome)
		}
		r.sleep(ctx)
	}

	return report
}

func (r *Reconciler) sleep(ctx context.Context) {
	if r.pace <= 0 {
		return
	}
	t := time.NewTimer(r.pace)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
