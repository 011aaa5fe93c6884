package parser

import "strings"

// Sentinels emitted by the model. They must match the generator prompt byte
// for byte.
const (
	StartFileContent = "=== START_FILE_CONTENT"
	EndFileContent   = "=== END_FILE_CONTENT"
	StartProjectName = "=== START_PROJECT_NAME"
	EndProjectName   = "=== END_PROJECT_NAME"
	SearchStart      = "=== SEARCH"
	Divider          = "======="
	ReplaceEnd       = "=== REPLACE"
)

// openers are checked in this order when stripping a half-typed marker from
// the message tail.
var openers = []string{StartFileContent, StartProjectName, SearchStart}

// PartialSuffixLen returns the length of the longest proper prefix of marker
// that text ends with, or 0. Prefixes shorter than half the marker (and never
// shorter than 3) are ignored so common short substrings are not eaten.
func PartialSuffixLen(text, marker string) int {
	minLen := max(3, len(marker)/2)
	for n := len(marker) - 1; n >= minLen; n-- {
		if strings.HasSuffix(text, marker[:n]) {
			return n
		}
	}
	return 0
}

// ValidateFilename trims name and reports whether it carries an extension.
// Dotfiles such as ".gitignore" are accepted; "README" and "index." are not.
func ValidateFilename(name string) (string, bool) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", false
	}
	dot := strings.LastIndex(trimmed, ".")
	if dot == -1 || dot == len(trimmed)-1 {
		return "", false
	}
	return trimmed, true
}

// splitFirstLine separates the path line that follows an opening sentinel
// from the rest of the block. terminated is false when no newline has been
// received yet.
func splitFirstLine(block string) (first, rest string, terminated bool) {
	if i := strings.IndexByte(block, '\n'); i != -1 {
		return block[:i], block[i+1:], true
	}
	return block, "", false
}
