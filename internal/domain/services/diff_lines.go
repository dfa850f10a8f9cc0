package services

import "strings"

// LineClass is the display class of one line of a change report
type LineClass int

// Line classes
const (
	LinePlain LineClass = iota
	LineAdded
	LineRemoved
	LineHunk
	LineMeta
)

// ClassifyLine returns the display class of a report line by its leading characters
func ClassifyLine(line string) LineClass {
	switch {
	case strings.HasPrefix(line, "diff --git"),
		strings.HasPrefix(line, "index "),
		strings.HasPrefix(line, "--- "),
		strings.HasPrefix(line, "+++ "):
		return LineMeta
	case strings.HasPrefix(line, "@@"):
		return LineHunk
	case strings.HasPrefix(line, "+"):
		return LineAdded
	case strings.HasPrefix(line, "-"):
		return LineRemoved
	default:
		return LinePlain
	}
}
