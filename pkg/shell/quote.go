package shell

import "strings"

// quoteEscape replaces a single quote inside a single-quoted word. The
// quoted region is closed, a literal quote is emitted inside double quotes
// and the single-quoted region is reopened.
const quoteEscape = `'"'"'`

// Quote returns a shell-escaped version of s that a POSIX shell parses back
// into exactly one argument with the original content.
//
// Input that starts and ends with the same quote character is taken to be
// quoted already and is returned unchanged. Its inner quoting is not checked,
// so a value such as 'a'b' passes through and fails to split later. Callers
// passing pre-quoted text are responsible for its validity.
func Quote(s string) string {
	if s == "" {
		return "''"
	}

	if isQuoted(s) || isSafe(s) {
		return s
	}

	return "'" + strings.ReplaceAll(s, "'", quoteEscape) + "'"
}

// Join quotes every argument and joins them with single spaces.
func Join(args ...string) string {
	var b strings.Builder
	for i, arg := range args {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(Quote(arg))
	}
	return b.String()
}

// isQuoted reports whether s is already enclosed in a matching pair of
// single or double quotes. The enclosed text may not span lines.
func isQuoted(s string) bool {
	if len(s) < 2 {
		return false
	}

	first, last := s[0], s[len(s)-1]
	if first != last || (first != '\'' && first != '"') {
		return false
	}

	return !strings.ContainsRune(s[1:len(s)-1], '\n')
}

// isSafe reports whether every byte of s may appear unquoted in a
// whitespace-delimited word.
func isSafe(s string) bool {
	for i := 0; i < len(s); i++ {
		if !safeChar(s[i]) {
			return false
		}
	}
	return true
}

func safeChar(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("_@&%+=:,.;<>/-()[]|*~", c) >= 0
}
