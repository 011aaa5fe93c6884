package parser

import "strings"

// ExtractMessageContent returns the prose part of a (possibly incomplete)
// buffer: every recognized block is removed, an unterminated block hides
// everything from its opener onward, and a half-typed opener at the very end
// is dropped.
func ExtractMessageContent(buffer string) string {
	result := stripBlocks(buffer, StartFileContent, EndFileContent)
	result = stripBlocks(result, StartProjectName, EndProjectName)
	result = stripBlocks(result, SearchStart, ReplaceEnd)

	for _, marker := range openers {
		if n := PartialSuffixLen(result, marker); n > 0 {
			result = result[:len(result)-n]
			break
		}
	}
	return strings.TrimSpace(result)
}

// stripBlocks removes every complete open...close span (shortest match, left
// to right) and then truncates at an opener that is still unterminated.
func stripBlocks(text, open, close string) string {
	var b strings.Builder
	rest := text
	for {
		i := strings.Index(rest, open)
		if i == -1 {
			break
		}
		j := strings.Index(rest[i+len(open):], close)
		if j == -1 {
			break
		}
		b.WriteString(rest[:i])
		rest = rest[i+len(open)+j+len(close):]
	}
	b.WriteString(rest)

	out := b.String()
	if i := strings.Index(out, open); i != -1 {
		out = out[:i]
	}
	return out
}

// ExtractProjectTitle returns the trimmed text between the first
// START_PROJECT_NAME and the first END_PROJECT_NAME. While the closing marker
// is still streaming in, any partial prefix of it is stripped from the title.
func ExtractProjectTitle(buffer string) string {
	sections := strings.Split(buffer, StartProjectName)
	if len(sections) < 2 {
		return ""
	}
	title, _, _ := strings.Cut(sections[1], EndProjectName)
	title = strings.TrimSpace(title)

	if title == "" || strings.Contains(buffer, EndProjectName) {
		return title
	}
	for n := len(EndProjectName) - 1; n > 0; n-- {
		if partial := EndProjectName[:n]; strings.HasSuffix(title, partial) {
			return strings.TrimSpace(title[:len(title)-n])
		}
	}
	return title
}
