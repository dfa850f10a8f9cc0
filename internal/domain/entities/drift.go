package entities

// CheckStatus is the per-item state of a reconciliation pass
type CheckStatus string

// Reconciliation states. Unchecked is the only non-terminal state.
const (
	StatusUnchecked  CheckStatus = "unchecked"
	StatusUpToDate   CheckStatus = "up_to_date"
	StatusOutdated   CheckStatus = "outdated"
	StatusCheckError CheckStatus = "check_error"
)

// DriftRecord describes a tracked item whose upstream tip moved past the
// stored commit. Not persisted.
type DriftRecord struct {
	Coordinate    string `json:"coordinate"`
	OldSHA        string `json:"old_sha"`
	NewSHA        string `json:"new_sha"`
	CommitDate    string `json:"commit_date"`
	CommitMessage string `json:"commit_message"`
}

// CheckOutcome is the terminal state of one item in a pass
type CheckOutcome struct {
	Coordinate string
	Status     CheckStatus
	Drift      *DriftRecord
	Err        error
}

// CheckReport is the result of one full reconciliation pass
type CheckReport struct {
	Outcomes []CheckOutcome
	// Drift holds one record per outdated item, in store order.
	Drift    []DriftRecord
	UpToDate int
	Outdated int
	Errors   int
}

// Total returns the number of items evaluated
func (r *CheckReport) Total() int {
	return r.UpToDate + r.Outdated + r.Errors
}

// DriftFor returns the drift record for a coordinate, if present
func (r *CheckReport) DriftFor(coordinate string) (DriftRecord, bool) {
	for _, d := range r.Drift {
		if d.Coordinate == coordinate {
			return d, true
		}
	}
	return DriftRecord{}, false
}
