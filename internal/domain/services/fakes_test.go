package services

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/ochairo/carbonrepo/internal/domain/entities"
	domainerrors "github.com/ochairo/carbonrepo/internal/domain/errors"
)

// fakeSource serves canned repositories, tips, comparisons and commits
type fakeSource struct {
	mu sync.Mutex

	branches    map[string]string
	tips        map[string]entities.Commit
	repoErrs    map[string]error
	comparisons map[string]*entities.Comparison
	compareErr  error
	commits     map[string]entities.Commit
	commitErrs  map[string]error
	calls       []string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		branches:    map[string]string{},
		tips:        map[string]entities.Commit{},
		repoErrs:    map[string]error{},
		comparisons: map[string]*entities.Comparison{},
		commits:     map[string]entities.Commit{},
		commitErrs:  map[string]error{},
	}
}

func (f *fakeSource) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeSource) GetRepository(_ context.Context, coordinate string) (*entities.RepoMetadata, error) {
	f.record("repo " + coordinate)
	if err := f.repoErrs[coordinate]; err != nil {
		return nil, err
	}
	branch, ok := f.branches[coordinate]
	if !ok {
		branch = "main"
	}
	return &entities.RepoMetadata{FullName: coordinate, DefaultBranch: branch}, nil
}

func (f *fakeSource) GetLatestCommit(_ context.Context, coordinate, branch string) (*entities.Commit, error) {
	f.record("tip " + coordinate + "@" + branch)
	tip, ok := f.tips[coordinate]
	if !ok {
		return nil, domainerrors.Upstream("get branch", coordinate, http.StatusNotFound, `{"message":"Branch not found"}`)
	}
	return &tip, nil
}

func (f *fakeSource) CompareCommits(_ context.Context, coordinate, base, head string) (*entities.Comparison, error) {
	f.record(fmt.Sprintf("compare %s %s...%s", coordinate, base, head))
	if f.compareErr != nil {
		return nil, f.compareErr
	}
	return f.comparisons[base+"..."+head], nil
}

func (f *fakeSource) GetCommit(_ context.Context, coordinate, sha string) (*entities.Commit, error) {
	f.record("commit " + coordinate + " " + sha)
	if err := f.commitErrs[sha]; err != nil {
		return nil, err
	}
	c, ok := f.commits[sha]
	if !ok {
		return nil, domainerrors.Upstream("get commit", sha, http.StatusNotFound, "missing")
	}
	return &c, nil
}
