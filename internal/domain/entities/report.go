package entities

// RepoReport is the batch verification output for one tracked item
type RepoReport struct {
	Name             string              `json:"name"`
	FullName         string              `json:"full_name"`
	URL              string              `json:"url"`
	Description      string              `json:"description"`
	Assets           []AssetVerification `json:"downloads"`
	TotalDownloads   int                 `json:"total_downloads"`
	Stars            int                 `json:"stars"`
	Contributors     []string            `json:"contributors"`
	Icon             *string             `json:"icon"`
	MismatchedAssets []string            `json:"mismatched_hashes"`
}

// BatchSummary aggregates a batch verification run
type BatchSummary struct {
	Processed  int
	Failed     int
	Stars      int
	Downloads  int
	Mismatches map[string][]string
	Reports    []RepoReport
}

// MismatchCount returns the total number of mismatched assets
func (b *BatchSummary) MismatchCount() int {
	n := 0
	for _, names := range b.Mismatches {
		n += len(names)
	}
	return n
}

// OK reports whether the run finished without failures or mismatches
func (b *BatchSummary) OK() bool {
	return b.Failed == 0 && b.MismatchCount() == 0
}
