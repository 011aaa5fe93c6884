package parser

import "strings"

const fence = "```"

// ExtractFence returns the trimmed content of the first fenced code block in
// region. A block whose closing fence has not arrived yet yields everything
// after the opening fence, minus a trailing partial closing fence of one or
// two backticks. ok is false when region holds no opening fence at all.
func ExtractFence(region string) (content string, ok bool) {
	start := strings.Index(region, fence)
	if start == -1 {
		return "", false
	}
	rest := region[start+len(fence):]

	// Optional language tag made of word characters, then an optional newline.
	n := 0
	for n < len(rest) && isWordByte(rest[n]) {
		n++
	}
	rest = strings.TrimPrefix(rest[n:], "\n")

	if end := strings.Index(rest, fence); end != -1 {
		return strings.TrimSpace(rest[:end]), true
	}
	rest = strings.TrimRight(rest, " \t\r\n")
	for _, partial := range []string{"``", "`"} {
		if strings.HasSuffix(rest, partial) {
			rest = rest[:len(rest)-len(partial)]
			break
		}
	}
	return strings.TrimSpace(rest), true
}

func isWordByte(c byte) bool {
	return c == '_' ||
		('a' <= c && c <= 'z') ||
		('A' <= c && c <= 'Z') ||
		('0' <= c && c <= '9')
}
