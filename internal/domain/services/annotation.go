package services

import (
	"strings"

	"github.com/ochairo/carbonrepo/internal/domain/entities"
)

// fallbackSHAToken is the whitespace token holding the sha in
// "Last commit on <branch>: <sha> @ <date>"
const fallbackSHAToken = 4

// minSHALength is the shortest abbreviation git accepts
const minSHALength = 4

// ExtractSHA returns the commit sha embedded in an annotation, or an empty
// string when none can be recovered. It never panics on malformed input.
func ExtractSHA(annotation string) string {
	if sha := primarySHA(annotation); sha != "" {
		return sha
	}
	return fallbackSHA(annotation)
}

// ParseAnnotation recovers the structured commit state from an annotation.
// The boolean is false when no sha could be extracted.
func ParseAnnotation(annotation string) (entities.CommitState, bool) {
	sha := ExtractSHA(annotation)
	if sha == "" {
		return entities.CommitState{}, false
	}

	state := entities.CommitState{SHA: sha}
	if head, _, ok := strings.Cut(annotation, ":"); ok {
		if fields := strings.Fields(head); len(fields) > 0 {
			state.Branch = fields[len(fields)-1]
		}
	}
	if _, date, ok := strings.Cut(annotation, " @"); ok {
		state.Date = strings.TrimSpace(date)
	}
	return state, true
}

// primarySHA splits on the first ':' and then on " @"
func primarySHA(annotation string) string {
	_, rest, ok := strings.Cut(annotation, ":")
	if !ok {
		return ""
	}
	sha, _, _ := strings.Cut(strings.TrimSpace(rest), " @")
	sha = strings.TrimSpace(sha)
	if !isCommitID(sha) {
		return ""
	}
	return sha
}

func fallbackSHA(annotation string) string {
	fields := strings.Fields(annotation)
	if len(fields) <= fallbackSHAToken || !isCommitID(fields[fallbackSHAToken]) {
		return ""
	}
	return fields[fallbackSHAToken]
}

// isCommitID reports whether s looks like a full or abbreviated hex sha
func isCommitID(s string) bool {
	if len(s) < minSHALength {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// IsSameCommit reports whether two commit identifiers name the same commit.
// Identifiers match when equal ignoring case or when one is a prefix of the
// other, so abbreviated and full-length hashes compare equal. Empty
// identifiers never match.
func IsSameCommit(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	a, b = strings.ToLower(a), strings.ToLower(b)
	return a == b || strings.HasPrefix(a, b) || strings.HasPrefix(b, a)
}

// ShortSHA abbreviates a sha for display
func ShortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
