package services

import (
	"regexp"
	"strings"
	"unicode"

	domainerrors "github.com/ochairo/carbonrepo/internal/domain/errors"
)

var (
	repoURLPattern    = regexp.MustCompile(`^https?://github\.com/([^/]+/[^/]+)`)
	coordinatePattern = regexp.MustCompile(`^[\w.-]+/[\w.-]+$`)
	apiPattern        = regexp.MustCompile(`\bA P I\b`)
)

// ParseRepoInput accepts "owner/name" or a github.com repository URL and
// returns the coordinate
func ParseRepoInput(text string) (string, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "http") {
		m := repoURLPattern.FindStringSubmatch(text)
		if m == nil {
			return "", domainerrors.Newf(domainerrors.ErrInvalidInput, "not a repository URL: %q", text)
		}
		return strings.TrimSuffix(m[1], ".git"), nil
	}
	if coordinatePattern.MatchString(text) {
		return text, nil
	}
	return "", domainerrors.Newf(domainerrors.ErrInvalidInput, "expected owner/name or repository URL, got %q", text)
}

// FormatRepoName turns a repository name into a display title, e.g.
// "SM-BetterChat_api" becomes "Better Chat Api" and "SMPublicAPI" becomes
// "Public API".
func FormatRepoName(name string) string {
	name = strings.TrimPrefix(name, "SM-")
	name = strings.TrimPrefix(name, "SM")
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	name = splitCapitals(name)
	name = titleCase(name)
	name = apiPattern.ReplaceAllString(name, "API")
	return strings.Join(strings.Fields(name), " ")
}

// splitCapitals inserts a space before every upper-case letter except the first rune
func splitCapitals(s string) string {
	var b strings.Builder
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// titleCase upper-cases the first letter of every letter run and lower-cases the rest
func titleCase(s string) string {
	var b strings.Builder
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				r = unicode.ToLower(r)
			} else {
				r = unicode.ToUpper(r)
			}
			prevLetter = true
		} else {
			prevLetter = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
