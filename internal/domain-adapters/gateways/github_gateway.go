package gateways

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/ochairo/carbonrepo/internal/domain-adapters/limiter"
	"github.com/ochairo/carbonrepo/internal/domain/entities"
	domainerrors "github.com/ochairo/carbonrepo/internal/domain/errors"
)

const (
	// DefaultAPIBase is the GitHub REST API root
	DefaultAPIBase = "https://api.github.com"
	// DefaultWebBase is the GitHub site root
	DefaultWebBase = "https://github.com"
	// DefaultUserAgent identifies the client to GitHub
	DefaultUserAgent = "carbonrepo/1.0"

	// rateLimitWarnAt is the remaining-request count below which a warning is logged
	rateLimitWarnAt = 10
	// maxErrorBody bounds how much of a failed response is kept as diagnostic text
	maxErrorBody = 64 * 1024
)

// GatewayOptions configures HTTPGitHubGateway
type GatewayOptions struct {
	APIBase   string
	WebBase   string
	Token     string
	UserAgent string
	// Timeout bounds each API call including its body. For asset downloads
	// it only bounds the wait for response headers.
	Timeout time.Duration
	// MaxConns caps the connection pool. Ignored when Client is set.
	MaxConns int
	Limiter  *limiter.Limiter
	Client   *http.Client
	Logger   zerolog.Logger
}

// HTTPGitHubGateway implements SourceGateway over the GitHub REST API.
// It performs no retries; callers decide what to do with a failure.
type HTTPGitHubGateway struct {
	client    *http.Client
	apiBase   string
	webBase   string
	token     *oauth2.Token
	userAgent string
	timeout   time.Duration
	limiter   *limiter.Limiter
	log       zerolog.Logger
}

// NewHTTPGitHubGateway creates a new GitHub gateway
func NewHTTPGitHubGateway(opts GatewayOptions) *HTTPGitHubGateway {
	if opts.APIBase == "" {
		opts.APIBase = DefaultAPIBase
	}
	if opts.WebBase == "" {
		opts.WebBase = DefaultWebBase
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.Limiter == nil {
		opts.Limiter = limiter.New(limiter.DefaultCapacity)
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Transport: limiter.NewTransport(opts.MaxConns)}
	}

	g := &HTTPGitHubGateway{
		client:    client,
		apiBase:   strings.TrimRight(opts.APIBase, "/"),
		webBase:   strings.TrimRight(opts.WebBase, "/"),
		userAgent: opts.UserAgent,
		timeout:   opts.Timeout,
		limiter:   opts.Limiter,
		log:       opts.Logger,
	}
	if opts.Token != "" {
		// Fetching a static token never fails
		g.token, _ = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token}).Token()
	}
	return g
}

// Authenticated reports whether a credential is attached to requests
func (g *HTTPGitHubGateway) Authenticated() bool {
	return g.token != nil
}

// WebBase returns the site root used for repository pages
func (g *HTTPGitHubGateway) WebBase() string {
	return g.webBase
}

func (g *HTTPGitHubGateway) newRequest(ctx context.Context, rawURL, accept string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Cache-Control", "no-cache, no-store")
	req.Header.Set("Pragma", "no-cache")
	// Set per request rather than via oauth2.Transport so the header is
	// dropped when a download redirects to another host.
	if g.token != nil {
		g.token.SetAuthHeader(req)
	}
	return req, nil
}

// do issues a GET while holding one admission unit. On success the caller
// owns the response body and must call release after closing it. Time spent
// waiting for the unit does not count against the timeout. When stream is
// set the timeout stops once headers arrive, so large downloads are bounded
// only by ctx.
func (g *HTTPGitHubGateway) do(ctx context.Context, op, rawURL, accept string, stream bool) (*http.Response, func(), error) {
	unit, err := g.limiter.Acquire(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	var (
		reqCtx      context.Context
		cancel      context.CancelFunc
		headerTimer *time.Timer
	)
	if stream {
		reqCtx, cancel = context.WithCancel(ctx)
		headerTimer = time.AfterFunc(g.timeout, cancel)
	} else {
		reqCtx, cancel = context.WithTimeout(ctx, g.timeout)
	}
	release := func() {
		cancel()
		unit()
	}

	req, err := g.newRequest(reqCtx, rawURL, accept)
	if err != nil {
		release()
		return nil, nil, err
	}

	resp, err := g.client.Do(req)
	if headerTimer != nil {
		headerTimer.Stop()
	}
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	g.observeRateLimit(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		//nolint:errcheck // Best effort close on error response
		resp.Body.Close()
		release()
		text := strings.TrimSpace(string(body))
		if readErr != nil {
			text = "failed to read response"
		}
		g.log.Debug().Str("op", op).Str("url", rawURL).Int("status", resp.StatusCode).Msg("upstream request failed")
		return nil, nil, domainerrors.Upstream(op, rawURL, resp.StatusCode, text)
	}

	return resp, release, nil
}

func (g *HTTPGitHubGateway) getJSON(ctx context.Context, op, rawURL string, v interface{}) error {
	resp, release, err := g.do(ctx, op, rawURL, "application/vnd.github+json", false)
	if err != nil {
		return err
	}
	defer release()
	//nolint:errcheck // Defer close on HTTP response body
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return domainerrors.Parse(op+" response", err)
	}
	return nil
}

// observeRateLimit logs when the remaining request quota is low. It never
// waits or fails the request.
func (g *HTTPGitHubGateway) observeRateLimit(resp *http.Response) {
	remaining := resp.Header.Get("X-RateLimit-Remaining")
	if remaining == "" {
		return
	}
	n, err := strconv.Atoi(remaining)
	if err != nil || n > rateLimitWarnAt {
		return
	}

	ev := g.log.Warn().Int("remaining", n)
	if reset, err := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64); err == nil {
		ev = ev.Time("resets_at", time.Unix(reset, 0))
	}
	ev.Msg("GitHub API rate limit low")
}

func (g *HTTPGitHubGateway) repoURL(coordinate string, parts ...string) string {
	u := g.apiBase + "/repos/" + coordinate
	if len(parts) > 0 {
		u += "/" + strings.Join(parts, "/")
	}
	return u
}

// githubRepo represents the GitHub API repository format
type githubRepo struct {
	Name            string  `json:"name"`
	FullName        string  `json:"full_name"`
	DefaultBranch   string  `json:"default_branch"`
	HTMLURL         string  `json:"html_url"`
	Description     *string `json:"description"`
	StargazersCount int     `json:"stargazers_count"`
}

// githubCommit represents a commit as embedded in branch, commit and compare responses
type githubCommit struct {
	SHA    string `json:"sha"`
	Commit struct {
		Message string `json:"message"`
		Author  struct {
			Name string `json:"name"`
			Date string `json:"date"`
		} `json:"author"`
	} `json:"commit"`
}

func (c githubCommit) toEntity() entities.Commit {
	return entities.Commit{
		SHA:     c.SHA,
		Date:    c.Commit.Author.Date,
		Author:  c.Commit.Author.Name,
		Message: c.Commit.Message,
	}
}

// githubBranch represents the GitHub API branch format
type githubBranch struct {
	Name   string       `json:"name"`
	Commit githubCommit `json:"commit"`
}

// githubRelease represents the GitHub API release format
type githubRelease struct {
	TagName string        `json:"tag_name"`
	Name    string        `json:"name"`
	Draft   bool          `json:"draft"`
	Assets  []githubAsset `json:"assets"`
}

func (r githubRelease) toEntity() entities.Release {
	rel := entities.Release{
		TagName: r.TagName,
		Name:    r.Name,
		Draft:   r.Draft,
		Assets:  make([]entities.Asset, len(r.Assets)),
	}
	for i, a := range r.Assets {
		rel.Assets[i] = entities.Asset{
			Name:          a.Name,
			Size:          a.Size,
			DownloadURL:   a.BrowserDownloadURL,
			DownloadCount: a.DownloadCount,
		}
	}
	return rel
}

// githubAsset represents a GitHub release asset
type githubAsset struct {
	Name               string `json:"name"`
	Size               int64  `json:"size"`
	DownloadCount      int    `json:"download_count"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// githubComparison represents the GitHub API compare format
type githubComparison struct {
	Status       string         `json:"status"`
	AheadBy      int            `json:"ahead_by"`
	BehindBy     int            `json:"behind_by"`
	TotalCommits int            `json:"total_commits"`
	Commits      []githubCommit `json:"commits"`
	Files        []struct {
		Filename  string `json:"filename"`
		Status    string `json:"status"`
		Additions int    `json:"additions"`
		Deletions int    `json:"deletions"`
		Patch     string `json:"patch"`
	} `json:"files"`
}

// githubContributor represents one contributor list entry
type githubContributor struct {
	Login string `json:"login"`
	Type  string `json:"type"`
}

// GetRepository retrieves repository metadata
func (g *HTTPGitHubGateway) GetRepository(ctx context.Context, coordinate string) (*entities.RepoMetadata, error) {
	var repo githubRepo
	if err := g.getJSON(ctx, "get repository", g.repoURL(coordinate), &repo); err != nil {
		return nil, err
	}

	meta := &entities.RepoMetadata{
		Name:          repo.Name,
		FullName:      repo.FullName,
		DefaultBranch: repo.DefaultBranch,
		HTMLURL:       repo.HTMLURL,
		Stars:         repo.StargazersCount,
	}
	if meta.DefaultBranch == "" {
		meta.DefaultBranch = "main"
	}
	if repo.Description != nil {
		meta.Description = *repo.Description
	}
	return meta, nil
}

// GetLatestCommit resolves the tip of branch
func (g *HTTPGitHubGateway) GetLatestCommit(ctx context.Context, coordinate, branch string) (*entities.Commit, error) {
	var br githubBranch
	if err := g.getJSON(ctx, "get branch", g.repoURL(coordinate, "branches", url.PathEscape(branch)), &br); err != nil {
		return nil, err
	}
	c := br.Commit.toEntity()
	return &c, nil
}

// GetCommit retrieves one commit
func (g *HTTPGitHubGateway) GetCommit(ctx context.Context, coordinate, sha string) (*entities.Commit, error) {
	var gc githubCommit
	if err := g.getJSON(ctx, "get commit", g.repoURL(coordinate, "commits", url.PathEscape(sha)), &gc); err != nil {
		return nil, err
	}
	c := gc.toEntity()
	return &c, nil
}

// GetLatestRelease retrieves the latest published release. A repository
// without releases yields nil and no error.
func (g *HTTPGitHubGateway) GetLatestRelease(ctx context.Context, coordinate string) (*entities.Release, error) {
	var rel githubRelease
	if err := g.getJSON(ctx, "get latest release", g.repoURL(coordinate, "releases", "latest"), &rel); err != nil {
		if domainerrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	r := rel.toEntity()
	return &r, nil
}

// ListReleases lists all releases in a repository
func (g *HTTPGitHubGateway) ListReleases(ctx context.Context, coordinate string) ([]entities.Release, error) {
	var apiReleases []githubRelease
	if err := g.getJSON(ctx, "list releases", g.repoURL(coordinate, "releases")+"?per_page=100", &apiReleases); err != nil {
		return nil, err
	}

	releases := make([]entities.Release, len(apiReleases))
	for i, r := range apiReleases {
		releases[i] = r.toEntity()
	}
	return releases, nil
}

// CompareCommits compares base...head
func (g *HTTPGitHubGateway) CompareCommits(ctx context.Context, coordinate, base, head string) (*entities.Comparison, error) {
	var gc githubComparison
	rangeSpec := url.PathEscape(base) + "..." + url.PathEscape(head)
	if err := g.getJSON(ctx, "compare commits", g.repoURL(coordinate, "compare", rangeSpec), &gc); err != nil {
		return nil, err
	}

	cmp := &entities.Comparison{
		Status:       gc.Status,
		AheadBy:      gc.AheadBy,
		BehindBy:     gc.BehindBy,
		TotalCommits: gc.TotalCommits,
		Commits:      make([]entities.Commit, len(gc.Commits)),
		Files:        make([]entities.FileChange, len(gc.Files)),
	}
	for i, c := range gc.Commits {
		cmp.Commits[i] = c.toEntity()
	}
	for i, f := range gc.Files {
		cmp.Files[i] = entities.FileChange{
			Filename:  f.Filename,
			Status:    f.Status,
			Additions: f.Additions,
			Deletions: f.Deletions,
			Patch:     f.Patch,
		}
	}
	return cmp, nil
}

// ListContributors returns up to limit contributors
func (g *HTTPGitHubGateway) ListContributors(ctx context.Context, coordinate string, limit int) ([]entities.Contributor, error) {
	if limit <= 0 {
		limit = 30
	}
	var list []githubContributor
	u := fmt.Sprintf("%s?per_page=%d", g.repoURL(coordinate, "contributors"), limit)
	if err := g.getJSON(ctx, "list contributors", u, &list); err != nil {
		return nil, err
	}

	out := make([]entities.Contributor, len(list))
	for i, c := range list {
		out[i] = entities.Contributor{Login: c.Login, Type: c.Type}
	}
	return out, nil
}

// FetchPage returns the repository's HTML page. A non-2xx page is reported
// as an empty string, not an error.
func (g *HTTPGitHubGateway) FetchPage(ctx context.Context, coordinate string) (string, error) {
	resp, release, err := g.do(ctx, "fetch page", g.webBase+"/"+coordinate, "text/html", false)
	if err != nil {
		if domainerrors.StatusCode(err) != 0 {
			return "", nil
		}
		return "", err
	}
	defer release()
	//nolint:errcheck // Defer close on HTTP response body
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("fetch page: %w", err)
	}
	return string(body), nil
}

// StreamAsset opens an asset download. The admission unit is held until the
// returned reader is closed.
func (g *HTTPGitHubGateway) StreamAsset(ctx context.Context, downloadURL string) (io.ReadCloser, error) {
	resp, release, err := g.do(ctx, "download asset", downloadURL, "application/octet-stream", true)
	if err != nil {
		return nil, err
	}
	return &releasingBody{ReadCloser: resp.Body, release: release}, nil
}

// releasingBody frees its admission unit when closed
type releasingBody struct {
	io.ReadCloser
	release func()
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	b.release()
	return err
}
