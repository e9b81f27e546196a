package shell

import (
	"strings"
	"unicode/utf8"
)

// SplitOptions configures the lexer used by Split.
type SplitOptions struct {
	// POSIX enables quote removal, backslash escapes and the
	// concatenation of adjacent quoted and unquoted fragments.
	POSIX bool
	// Whitespace separates tokens outside of quoted regions.
	Whitespace string
	// Quotes open and close quoted regions.
	Quotes string
	// Escape characters escape the following character in POSIX mode.
	Escape string
	// EscapedQuotes are the quotes inside which Escape is honored.
	EscapedQuotes string
	// Commenters start a comment that runs to the end of the line.
	Commenters string
}

// SplitOption applies a lexer override.
type SplitOption func(options *SplitOptions)

// Apply applies the option functions to the current set of options.
func (o *SplitOptions) Apply(options ...SplitOption) *SplitOptions {
	for _, option := range options {
		option(o)
	}
	return o
}

// DefaultSplitOptions returns the POSIX lexer configuration.
func DefaultSplitOptions() *SplitOptions {
	return &SplitOptions{
		POSIX:         true,
		Whitespace:    " \t\r\n",
		Quotes:        `'"`,
		Escape:        `\`,
		EscapedQuotes: `"`,
		Commenters:    "#",
	}
}

// WithPOSIX toggles POSIX mode.
func WithPOSIX(posix bool) SplitOption {
	return func(options *SplitOptions) {
		options.POSIX = posix
	}
}

// WithWhitespace overrides the token separators.
func WithWhitespace(chars string) SplitOption {
	return func(options *SplitOptions) {
		options.Whitespace = chars
	}
}

// WithQuotes overrides the quote characters.
func WithQuotes(chars string) SplitOption {
	return func(options *SplitOptions) {
		options.Quotes = chars
	}
}

// WithEscape overrides the escape characters.
func WithEscape(chars string) SplitOption {
	return func(options *SplitOptions) {
		options.Escape = chars
	}
}

// WithEscapedQuotes overrides the quotes inside which escapes are honored.
func WithEscapedQuotes(chars string) SplitOption {
	return func(options *SplitOptions) {
		options.EscapedQuotes = chars
	}
}

// WithCommenters overrides the comment characters. Pass an empty
// string to disable comments.
func WithCommenters(chars string) SplitOption {
	return func(options *SplitOptions) {
		options.Commenters = chars
	}
}

type lexState int

const (
	stateSpace lexState = iota
	stateWord
	stateQuote
	stateEscape
)

// Split parses a command line into its arguments.
func Split(s string, options ...SplitOption) (Command, error) {
	l := &lexer{
		SplitOptions: DefaultSplitOptions().Apply(options...),
		input:        s,
	}
	if err := l.lex(); err != nil {
		return Command{}, err
	}
	return Command{args: l.tokens}, nil
}

type lexer struct {
	*SplitOptions

	input  string
	tokens []string
	token  strings.Builder
	// quoted is set once the current token contained a quoted
	// region, so that an empty quoted region still yields a token.
	quoted bool
}

func (l *lexer) lex() error {
	var (
		state      = stateSpace
		resume     = stateWord
		quote      rune
		escape     rune
		quoteStart int
	)

	for i := 0; i < len(l.input); {
		r, size := utf8.DecodeRuneInString(l.input[i:])
		next := i + size

		switch state {
		case stateSpace, stateWord:
			switch {
			case l.in(l.Whitespace, r):
				if state == stateWord {
					l.emit()
					state = stateSpace
				}
			case l.in(l.Commenters, r):
				if state == stateWord {
					l.emit()
					state = stateSpace
				}
				next = l.lineEnd(next)
			case l.in(l.Quotes, r) && (l.POSIX || state == stateSpace):
				quote, quoteStart, state = r, i, stateQuote
				l.quoted = true
				if !l.POSIX {
					l.token.WriteRune(r)
				}
			case l.POSIX && l.in(l.Escape, r):
				escape, resume, state = r, stateWord, stateEscape
			default:
				l.token.WriteString(l.input[i:next])
				state = stateWord
			}

		case stateQuote:
			switch {
			case r == quote:
				if l.POSIX {
					state = stateWord
					break
				}
				l.token.WriteRune(r)
				l.emit()
				state = stateSpace
			case l.POSIX && l.in(l.Escape, r) && l.in(l.EscapedQuotes, quote):
				escape, resume, state = r, stateQuote, stateEscape
			default:
				l.token.WriteString(l.input[i:next])
			}

		case stateEscape:
			// Inside quotes only the quote and the escape itself
			// can be escaped, anything else keeps the backslash.
			if resume == stateQuote && r != quote && r != escape {
				l.token.WriteRune(escape)
			}
			l.token.WriteString(l.input[i:next])
			state = resume
		}

		i = next
	}

	switch state {
	case stateQuote:
		return &SyntaxError{Input: l.input, Offset: quoteStart, Reason: "no closing quotation"}
	case stateEscape:
		return &SyntaxError{Input: l.input, Offset: len(l.input), Reason: "no escaped character"}
	}

	l.emit()
	return nil
}

func (l *lexer) emit() {
	if l.token.Len() > 0 || (l.POSIX && l.quoted) {
		l.tokens = append(l.tokens, l.token.String())
	}
	l.token.Reset()
	l.quoted = false
}

// lineEnd returns the offset just past the newline that ends the line
// containing offset i.
func (l *lexer) lineEnd(i int) int {
	if n := strings.IndexByte(l.input[i:], '\n'); n >= 0 {
		return i + n + 1
	}
	return len(l.input)
}

func (l *lexer) in(set string, r rune) bool {
	return strings.ContainsRune(set, r)
}
