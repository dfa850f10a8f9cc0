package orchestrators

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/ochairo/carbonrepo/internal/domain/entities"
	domainerrors "github.com/ochairo/carbonrepo/internal/domain/errors"
)

// mockSource is an in-memory upstream keyed by coordinate
type mockSource struct {
	mu           sync.Mutex
	repos        map[string]*entities.RepoMetadata
	repoErrs     map[string]error
	tips         map[string]*entities.Commit
	latest       map[string]*entities.Release
	latestErrs   map[string]error
	releases     map[string][]entities.Release
	comparisons  map[string]*entities.Comparison
	compareErr   error
	commits      map[string]*entities.Commit
	contributors map[string][]entities.Contributor
	pages        map[string]string
	calls        []string
}

func newMockSource() *mockSource {
	return &mockSource{
		repos:        map[string]*entities.RepoMetadata{},
		repoErrs:     map[string]error{},
		tips:         map[string]*entities.Commit{},
		latest:       map[string]*entities.Release{},
		latestErrs:   map[string]error{},
		releases:     map[string][]entities.Release{},
		comparisons:  map[string]*entities.Comparison{},
		commits:      map[string]*entities.Commit{},
		contributors: map[string][]entities.Contributor{},
		pages:        map[string]string{},
	}
}

// addRepo registers a repository whose main branch tip is sha
func (m *mockSource) addRepo(coordinate, sha string, assets ...entities.Asset) {
	_, name, _ := strings.Cut(coordinate, "/")
	m.repos[coordinate] = &entities.RepoMetadata{
		Name:          name,
		FullName:      coordinate,
		DefaultBranch: "main",
		HTMLURL:       "https://github.com/" + coordinate,
	}
	m.tips[coordinate] = &entities.Commit{SHA: sha, Date: "2024-02-02T00:00:00Z", Message: "tip commit"}
	if len(assets) > 0 {
		m.latest[coordinate] = &entities.Release{TagName: "v1", Assets: assets}
	}
}

func (m *mockSource) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockSource) callCount(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func notFound(op string) error {
	return domainerrors.Upstream(op, "https://api.github.com/x", 404, `{"message":"Not Found"}`)
}

func (m *mockSource) GetRepository(_ context.Context, coordinate string) (*entities.RepoMetadata, error) {
	m.record("repo " + coordinate)
	if err := m.repoErrs[coordinate]; err != nil {
		return nil, err
	}
	repo, ok := m.repos[coordinate]
	if !ok {
		return nil, notFound("get repository")
	}
	r := *repo
	return &r, nil
}

func (m *mockSource) GetLatestCommit(_ context.Context, coordinate, _ string) (*entities.Commit, error) {
	m.record("tip " + coordinate)
	tip, ok := m.tips[coordinate]
	if !ok {
		return nil, notFound("get branch")
	}
	c := *tip
	return &c, nil
}

func (m *mockSource) GetLatestRelease(_ context.Context, coordinate string) (*entities.Release, error) {
	m.record("latest " + coordinate)
	if err := m.latestErrs[coordinate]; err != nil {
		return nil, err
	}
	return m.latest[coordinate], nil
}

func (m *mockSource) ListReleases(_ context.Context, coordinate string) ([]entities.Release, error) {
	m.record("releases " + coordinate)
	return m.releases[coordinate], nil
}

func (m *mockSource) StreamAsset(_ context.Context, _ string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

func (m *mockSource) CompareCommits(_ context.Context, coordinate, base, head string) (*entities.Comparison, error) {
	m.record("compare " + coordinate)
	if m.compareErr != nil {
		return nil, m.compareErr
	}
	if cmp, ok := m.comparisons[base+"..."+head]; ok {
		return cmp, nil
	}
	return nil, notFound("compare commits")
}

func (m *mockSource) GetCommit(_ context.Context, _ string, sha string) (*entities.Commit, error) {
	if c, ok := m.commits[sha]; ok {
		return c, nil
	}
	return nil, notFound("get commit")
}

func (m *mockSource) ListContributors(_ context.Context, coordinate string, _ int) ([]entities.Contributor, error) {
	return m.contributors[coordinate], nil
}

func (m *mockSource) FetchPage(_ context.Context, coordinate string) (string, error) {
	return m.pages[coordinate], nil
}

// mockStore keeps the saved document in memory
type mockStore struct {
	mu      sync.Mutex
	items   []entities.TrackedItem
	saves   int
	saveErr error
}

func (m *mockStore) Load() ([]entities.TrackedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]entities.TrackedItem, len(m.items))
	for i, item := range m.items {
		out[i] = item.Clone()
	}
	return out, nil
}

func (m *mockStore) Save(items []entities.TrackedItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.items = make([]entities.TrackedItem, len(items))
	for i, item := range items {
		m.items[i] = item.Clone()
	}
	return nil
}

func (m *mockStore) Path() string {
	return "memory"
}

func (m *mockStore) coordinates() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, item := range m.items {
		out = append(out, item.Coordinate)
	}
	return out
}

// mockVerifier reports a fixed digest per asset name; names in fail are
// reported as download failures
type mockVerifier struct {
	digests map[string]string
	fail    map[string]bool
}

func (m *mockVerifier) VerifyAll(_ context.Context, assets []entities.Asset, expected map[string]*string) []entities.AssetVerification {
	out := make([]entities.AssetVerification, len(assets))
	for i, a := range assets {
		v := entities.AssetVerification{Name: a.Name, SourceURL: a.DownloadURL, ExpectedDigest: expected[a.Name]}
		if m.fail[a.Name] {
			v.Matched = entities.Bool(false)
			v.Error = "download failed"
			out[i] = v
			continue
		}
		v.ObservedDigest = entities.Digest(m.digests[a.Name])
		if v.ExpectedDigest != nil {
			v.Matched = entities.Bool(*v.ExpectedDigest == m.digests[a.Name])
		}
		out[i] = v
	}
	return out
}

// eventLog collects events from concurrent emitters
type eventLog struct {
	mu     sync.Mutex
	events []entities.Event
}

func (l *eventLog) sink(ev entities.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) kinds(kind entities.EventKind) []entities.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []entities.Event
	for _, ev := range l.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func stored(coordinate, sha string, assets map[string]*string) entities.TrackedItem {
	commit := entities.CommitState{Branch: "main", SHA: sha, Date: "2024-01-01"}
	return entities.TrackedItem{
		Coordinate: coordinate,
		Commit:     commit,
		Annotation: commit.Display(),
		Assets:     assets,
	}
}
