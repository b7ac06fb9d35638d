package judge

import (
	"strings"
	"unicode/utf8"
)

// Compare reports whether a program's output matches the expected output.
// Trailing whitespace on each line and trailing newlines are ignored; any
// other difference is a mismatch.
func Compare(actual, expected string) bool {
	return normalize(actual) == normalize(expected)
}

func normalize(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r\f\v")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

// TrimOutput bounds stored program output to maxLines lines of at most
// maxWidth bytes each. The result is always valid UTF-8 without NUL bytes, so
// it can be stored in a text column whatever the program printed.
func TrimOutput(s string, maxLines, maxWidth int) string {
	if s == "" {
		return ""
	}
	s = strings.ToValidUTF8(strings.ReplaceAll(s, "\x00", ""), "\uFFFD")
	lines := strings.Split(s, "\n")
	truncated := false
	if len(lines) > maxLines {
		lines = lines[:maxLines]
		truncated = true
	}
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		if len(line) > maxWidth {
			cut := maxWidth
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			b.WriteString(line[:cut])
			b.WriteString("[...]")
		} else {
			b.WriteString(line)
		}
	}
	if truncated {
		b.WriteString("\n[...]")
	}
	return b.String()
}
