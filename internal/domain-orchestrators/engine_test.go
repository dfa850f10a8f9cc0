package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ochairo/carbonrepo/internal/domain/entities"
	domainerrors "github.com/ochairo/carbonrepo/internal/domain/errors"
	"github.com/ochairo/carbonrepo/internal/domain/services"
)

type engineFixture struct {
	engine   *Engine
	source   *mockSource
	store    *mockStore
	verifier *mockVerifier
	events   *eventLog
}

func newEngineFixture(t *testing.T, items ...entities.TrackedItem) *engineFixture {
	t.Helper()
	f := &engineFixture{
		source:   newMockSource(),
		store:    &mockStore{items: items},
		verifier: &mockVerifier{digests: map[string]string{}, fail: map[string]bool{}},
		events:   &eventLog{},
	}
	f.engine = NewEngine(f.store, f.source, f.verifier,
		services.NewSummarizer(f.source, "https://github.com"),
		EngineConfig{Fanout: 4, Sink: f.events.sink, Logger: zerolog.Nop()})
	require.NoError(t, f.engine.Load())
	return f
}

func TestEngine_Check(t *testing.T) {
	f := newEngineFixture(t,
		stored("foo/bar", "aaaa111", nil),
		stored("foo/same", "cccc333", nil),
		stored("foo/gone", "dddd444", nil),
	)
	f.source.addRepo("foo/bar", "bbbb222")
	f.source.addRepo("foo/same", "CCCC3330000000")

	report := f.engine.Check(context.Background())

	assert.Equal(t, 1, report.Outdated)
	assert.Equal(t, 1, report.UpToDate)
	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, 3, report.Total())

	drift := f.engine.Drift()
	require.Len(t, drift, 1)
	assert.Equal(t, "aaaa111", drift[0].OldSHA)
	assert.Equal(t, "bbbb222", drift[0].NewSHA)
	assert.True(t, f.engine.IsOutdated("foo/bar"))
	assert.False(t, f.engine.IsOutdated("foo/same"))

	assert.Len(t, f.events.kinds(entities.EventCheckStarted), 1)
	assert.Len(t, f.events.kinds(entities.EventItemChecked), 3)
	assert.Len(t, f.events.kinds(entities.EventCheckFinished), 1)
	assert.Zero(t, f.store.saves, "a check pass never writes the store")
}

func TestEngine_Check_ReplacesDriftSet(t *testing.T) {
	f := newEngineFixture(t, stored("foo/bar", "aaaa111", nil))
	f.source.addRepo("foo/bar", "bbbb222")

	f.engine.Check(context.Background())
	require.True(t, f.engine.IsOutdated("foo/bar"))

	f.source.tips["foo/bar"].SHA = "aaaa111"
	report := f.engine.Check(context.Background())
	assert.Equal(t, 1, report.UpToDate)
	assert.Empty(t, f.engine.Drift())
}

func TestEngine_Add(t *testing.T) {
	f := newEngineFixture(t,
		stored("foo/new", "0000000", nil),
		stored("foo/other", "1111111", nil),
	)
	f.source.addRepo("foo/new", "abcdef0123",
		entities.Asset{Name: "mod.dll", DownloadURL: "https://example.com/mod.dll"},
		entities.Asset{Name: "broken.zip", DownloadURL: "https://example.com/broken.zip"},
	)
	f.verifier.digests["mod.dll"] = "deadbeef"
	f.verifier.fail["broken.zip"] = true

	result, err := f.engine.Add(context.Background(), "https://github.com/foo/new.git")
	require.NoError(t, err)

	assert.Equal(t, "foo/new", result.Item.Coordinate)
	assert.Equal(t, entities.CommitState{Branch: "main", SHA: "abcdef0123", Date: "2024-02-02T00:00:00Z"}, result.Item.Commit)
	assert.Equal(t, "Last commit on main: abcdef0123 @ 2024-02-02T00:00:00Z", result.Item.Annotation)
	require.Contains(t, result.Item.Assets, "broken.zip")
	assert.Nil(t, result.Item.Assets["broken.zip"])
	digest, ok := result.Item.ExpectedDigest("mod.dll")
	assert.True(t, ok)
	assert.Equal(t, "deadbeef", digest)

	assert.Equal(t, []string{"foo/other", "foo/new"}, f.store.coordinates(), "re-added entry moves to the end")
	assert.Equal(t, 1, f.store.saves)
	assert.Len(t, f.events.kinds(entities.EventAssetVerified), 2)
}

func TestEngine_Add_NoRelease(t *testing.T) {
	f := newEngineFixture(t)
	f.source.addRepo("foo/bare", "abcdef0123")

	result, err := f.engine.Add(context.Background(), "foo/bare")
	require.NoError(t, err)
	assert.Empty(t, result.Item.Assets)
	assert.Empty(t, result.Verifications)
}

func TestEngine_Update_ReleaseWithdrawnKeepsDigests(t *testing.T) {
	f := newEngineFixture(t, stored("foo/bar", "aaaa111", map[string]*string{
		"mod.dll":    entities.Digest("deadbeef"),
		"broken.zip": nil,
	}))
	f.source.addRepo("foo/bar", "aaaa111")

	result, err := f.engine.Update(context.Background(), "foo/bar")
	require.NoError(t, err)
	assert.Empty(t, result.Verifications)

	items := f.engine.Items()
	require.Len(t, items, 1)
	d, ok := items[0].ExpectedDigest("mod.dll")
	assert.True(t, ok)
	assert.Equal(t, "deadbeef", d)
	assert.Contains(t, items[0].Assets, "broken.zip")
	assert.Equal(t, 1, f.store.saves)
}

func TestEngine_Add_Errors(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.Add(context.Background(), "not a repo")
	assert.True(t, domainerrors.Is(err, domainerrors.ErrInvalidInput))

	_, err = f.engine.Add(context.Background(), "foo/missing")
	assert.True(t, domainerrors.IsNotFound(err))
	assert.Len(t, f.events.kinds(entities.EventItemFailed), 1)
	assert.Zero(t, f.store.saves)
}

func TestEngine_Remove(t *testing.T) {
	f := newEngineFixture(t, stored("foo/a", "1111111", nil), stored("foo/b", "2222222", nil))

	err := f.engine.Remove("foo/zzz")
	assert.True(t, domainerrors.Is(err, domainerrors.ErrNotTracked))

	require.NoError(t, f.engine.Remove("foo/a"))
	assert.Equal(t, []string{"foo/b"}, f.store.coordinates())
	assert.Len(t, f.engine.Items(), 1)
}

func TestEngine_Update(t *testing.T) {
	f := newEngineFixture(t, stored("foo/bar", "aaaa111", map[string]*string{
		"mod.dll":    entities.Digest("deadbeef"),
		"broken.zip": entities.Digest("cafebabe"),
	}))
	f.source.addRepo("foo/bar", "bbbb222",
		entities.Asset{Name: "mod.dll"},
		entities.Asset{Name: "broken.zip"},
	)
	f.source.comparisons["aaaa111...bbbb222"] = &entities.Comparison{Status: "ahead", AheadBy: 1, TotalCommits: 1}
	f.verifier.digests["mod.dll"] = "feedface"
	f.verifier.fail["broken.zip"] = true

	f.engine.Check(context.Background())
	require.True(t, f.engine.IsOutdated("foo/bar"))

	result, err := f.engine.Update(context.Background(), "foo/bar")
	require.NoError(t, err)

	require.NotNil(t, result.Summary)
	assert.Equal(t, entities.SummaryDetailed, result.Summary.Kind)
	assert.ElementsMatch(t, []string{"mod.dll", "broken.zip"}, result.Mismatches())

	items := f.engine.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "bbbb222", items[0].Commit.SHA)
	d, _ := items[0].ExpectedDigest("mod.dll")
	assert.Equal(t, "feedface", d)
	d, _ = items[0].ExpectedDigest("broken.zip")
	assert.Equal(t, "cafebabe", d, "a failed download keeps the recorded digest")

	assert.False(t, f.engine.IsOutdated("foo/bar"))
	assert.Equal(t, 1, f.store.saves)
	assert.Len(t, f.events.kinds(entities.EventSummaryReady), 1)
}

func TestEngine_Update_SameCommitHasNoSummary(t *testing.T) {
	f := newEngineFixture(t, stored("foo/bar", "aaaa111", nil))
	f.source.addRepo("foo/bar", "AAAA1112222")

	result, err := f.engine.Update(context.Background(), "foo/bar")
	require.NoError(t, err)
	assert.Nil(t, result.Summary)
	assert.Zero(t, f.source.callCount("compare"))
}

func TestEngine_Update_NotTracked(t *testing.T) {
	f := newEngineFixture(t)
	_, err := f.engine.Update(context.Background(), "foo/bar")
	assert.True(t, domainerrors.Is(err, domainerrors.ErrNotTracked))
}

func TestEngine_UpdateAll(t *testing.T) {
	var items []entities.TrackedItem
	for i := 0; i < 6; i++ {
		items = append(items, stored(fmt.Sprintf("foo/r%d", i), "aaaa111", nil))
	}
	f := newEngineFixture(t, items...)
	for i := 0; i < 6; i++ {
		f.source.addRepo(fmt.Sprintf("foo/r%d", i), "bbbb222")
	}
	f.source.repoErrs["foo/r3"] = domainerrors.Upstream("get repository", "u", 500, "boom")

	result, err := f.engine.UpdateAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, result.Updated)
	assert.Equal(t, 1, result.Failed)
	assert.Contains(t, result.Errors, "foo/r3")
	assert.Equal(t, 1, f.store.saves, "one save at the end")
	assert.Zero(t, f.source.callCount("compare"), "update all does not summarize")

	for _, item := range f.engine.Items() {
		if item.Coordinate == "foo/r3" {
			assert.Equal(t, "aaaa111", item.Commit.SHA)
			continue
		}
		assert.Equal(t, "bbbb222", item.Commit.SHA)
	}
	assert.Equal(t, []string{"foo/r0", "foo/r1", "foo/r2", "foo/r3", "foo/r4", "foo/r5"}, f.store.coordinates())
}

func TestEngine_UpdateAll_SaveFailure(t *testing.T) {
	f := newEngineFixture(t, stored("foo/a", "aaaa111", nil))
	f.source.addRepo("foo/a", "bbbb222")
	f.store.saveErr = domainerrors.Store("config.json", errors.New("read-only file system"))

	_, err := f.engine.UpdateAll(context.Background())
	assert.True(t, domainerrors.Is(err, domainerrors.ErrStore))
}

func TestEngine_Diff(t *testing.T) {
	t.Run("uses the drift record", func(t *testing.T) {
		f := newEngineFixture(t, stored("foo/bar", "aaaa111", nil))
		f.source.addRepo("foo/bar", "bbbb222")
		f.source.commits["aaaa111"] = &entities.Commit{SHA: "aaaa111", Date: "2024-01-01", Message: "old"}
		f.source.commits["bbbb222"] = &entities.Commit{SHA: "bbbb222", Date: "2024-02-02", Message: "new\n\nbody"}
		f.engine.Check(context.Background())
		tipCalls := f.source.callCount("tip")

		summary, err := f.engine.Diff(context.Background(), "foo/bar")
		require.NoError(t, err)
		assert.Equal(t, entities.SummarySummary, summary.Kind)
		assert.Equal(t, "https://github.com/foo/bar/compare/aaaa111...bbbb222", summary.CompareURL)
		assert.Contains(t, summary.Lines, "Message: new")
		assert.Equal(t, tipCalls, f.source.callCount("tip"))
	})

	t.Run("up to date", func(t *testing.T) {
		f := newEngineFixture(t, stored("foo/bar", "aaaa111", nil))
		f.source.addRepo("foo/bar", "aaaa111")

		summary, err := f.engine.Diff(context.Background(), "foo/bar")
		require.NoError(t, err)
		assert.Nil(t, summary)
	})

	t.Run("records new drift", func(t *testing.T) {
		f := newEngineFixture(t, stored("foo/bar", "aaaa111", nil))
		f.source.addRepo("foo/bar", "bbbb222")
		f.source.compareErr = domainerrors.Upstream("compare commits", "u", 500, "server error")

		summary, err := f.engine.Diff(context.Background(), "foo/bar")
		require.Error(t, err)
		assert.Equal(t, entities.SummaryFailed, summary.Kind)
		assert.True(t, f.engine.IsOutdated("foo/bar"))
	})

	t.Run("not tracked", func(t *testing.T) {
		f := newEngineFixture(t)
		_, err := f.engine.Diff(context.Background(), "foo/bar")
		assert.True(t, domainerrors.Is(err, domainerrors.ErrNotTracked))
	})
}
