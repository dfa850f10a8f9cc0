package gateways

import (
	"context"
	"io"

	"github.com/ochairo/carbonrepo/internal/domain/entities"
)

// CommitSource resolves the current tip of a tracked item's default branch
type CommitSource interface {
	// GetRepository returns repository metadata
	GetRepository(ctx context.Context, coordinate string) (*entities.RepoMetadata, error)

	// GetLatestCommit resolves the tip commit of branch
	GetLatestCommit(ctx context.Context, coordinate, branch string) (*entities.Commit, error)
}

// ReleaseSource lists releases and streams their assets
type ReleaseSource interface {
	// GetLatestRelease returns the latest published release, or nil with no
	// error when the repository has none
	GetLatestRelease(ctx context.Context, coordinate string) (*entities.Release, error)

	// ListReleases lists every release of the repository
	ListReleases(ctx context.Context, coordinate string) ([]entities.Release, error)

	// StreamAsset opens the asset body. The caller must Close the reader.
	StreamAsset(ctx context.Context, downloadURL string) (io.ReadCloser, error)
}

// ComparisonSource exposes commit-range comparison and single-commit lookup
type ComparisonSource interface {
	// CompareCommits compares base...head
	CompareCommits(ctx context.Context, coordinate, base, head string) (*entities.Comparison, error)

	// GetCommit returns one commit by sha
	GetCommit(ctx context.Context, coordinate, sha string) (*entities.Commit, error)
}

// ProfileSource exposes the repository details shown in verification reports
type ProfileSource interface {
	// ListContributors returns up to limit contributors
	ListContributors(ctx context.Context, coordinate string, limit int) ([]entities.Contributor, error)

	// FetchPage returns the repository's HTML page, or an empty string when
	// it is not available
	FetchPage(ctx context.Context, coordinate string) (string, error)
}

// SourceGateway is the full read-only accessor for the upstream source host
type SourceGateway interface {
	CommitSource
	ReleaseSource
	ComparisonSource
	ProfileSource
}

// SignatureChecker verifies detached signatures over streamed content
type SignatureChecker interface {
	// CheckDetached reads signed to EOF and verifies it against sig
	CheckDetached(signed io.Reader, sig []byte) error
}
