package entities

// RepoMetadata is the repository resource as seen by the engine
type RepoMetadata struct {
	Name          string
	FullName      string
	DefaultBranch string
	HTMLURL       string
	Description   string
	Stars         int
}

// Commit is one commit on the upstream source
type Commit struct {
	SHA     string
	Date    string
	Author  string
	Message string
}

// Headline returns the first line of the commit message
func (c Commit) Headline() string {
	return FirstLine(c.Message)
}

// Release is a published release and its downloadable assets
type Release struct {
	TagName string
	Name    string
	Draft   bool
	Assets  []Asset
}

// Asset is a downloadable release asset
type Asset struct {
	Name          string
	Size          int64
	DownloadURL   string
	DownloadCount int
}

// FileChange is a per-file entry of a commit-range comparison
type FileChange struct {
	Filename  string
	Status    string
	Additions int
	Deletions int
	Patch     string
}

// Comparison is the commit-range comparison resource
type Comparison struct {
	Status       string
	AheadBy      int
	BehindBy     int
	TotalCommits int
	Commits      []Commit
	Files        []FileChange
}

// Contributor is one entry of a repository's contributor list
type Contributor struct {
	Login string
	Type  string
}

// FirstLine returns s up to the first newline
func FirstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' || s[i] == '\r' {
			return s[:i]
		}
	}
	return s
}
