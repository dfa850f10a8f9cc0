package entities

// AssetVerification is the result of downloading and hashing one release asset
type AssetVerification struct {
	Name           string  `json:"name"`
	SourceURL      string  `json:"url"`
	ObservedDigest *string `json:"currentHash"`
	ExpectedDigest *string `json:"validHash"`
	// Matched is nil when there was no expected digest to compare against.
	Matched *bool  `json:"hashMatch"`
	Error   string `json:"error,omitempty"`

	SignatureVerified *bool  `json:"signatureVerified,omitempty"`
	SignatureError    string `json:"signatureError,omitempty"`
}

// Mismatched reports whether the asset was compared and did not match
func (v AssetVerification) Mismatched() bool {
	return v.Matched != nil && !*v.Matched
}

// Failed reports whether the asset could not be hashed
func (v AssetVerification) Failed() bool {
	return v.Error != ""
}

// Observed returns the observed digest or an empty string
func (v AssetVerification) Observed() string {
	if v.ObservedDigest == nil {
		return ""
	}
	return *v.ObservedDigest
}

// Bool returns a pointer to b
func Bool(b bool) *bool {
	return &b
}
