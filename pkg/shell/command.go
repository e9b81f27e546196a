// Package shell builds, quotes and parses the command lines that are
// handed to a local or remote shell.
//
// A Command is an immutable list of arguments. Its string form quotes
// every argument so that a POSIX shell splits it back into exactly the
// same arguments, which Split does as well:
//
//	cmd := shell.Args("echo", "hello world")
//	cmd.String() // echo 'hello world'
package shell

import (
	"errors"
	"fmt"
	"iter"
	"reflect"
	"slices"
	"strings"
)

var (
	// ErrTypeMismatch is returned when a value cannot be turned into a Command.
	ErrTypeMismatch = errors.New("unsupported command type")
	// ErrMalformedCommand is returned when a command line cannot be split.
	ErrMalformedCommand = errors.New("malformed command")
)

// SyntaxError describes where and why a command line could not be split.
type SyntaxError struct {
	Input  string
	Offset int
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s: %s at offset %d: %q", ErrMalformedCommand, e.Reason, e.Offset, e.Input)
}

func (e *SyntaxError) Unwrap() error {
	return ErrMalformedCommand
}

// Command is an ordered list of arguments. The zero value is an
// empty command. Operations never modify a Command in place.
type Command struct {
	args []string
}

// Args returns a command made of the given arguments, which are
// taken verbatim.
func Args(args ...string) Command {
	return Command{args: slices.Clone(args)}
}

// NewCommand converts v into a Command. A Command is returned as is,
// a string or a named string type is parsed with Split using the given
// options, and a slice, array or iter.Seq contributes one argument per
// element in its string form.
func NewCommand(v any, options ...SplitOption) (Command, error) {
	switch v := v.(type) {
	case Command:
		return v, nil
	case *Command:
		if v != nil {
			return *v, nil
		}
	case string:
		return Split(v, options...)
	case []string:
		return Args(v...), nil
	case iter.Seq[string]:
		return Command{args: slices.Collect(v)}, nil
	default:
		rv := reflect.ValueOf(v)
		switch {
		case rv.Kind() == reflect.String:
			return Split(rv.String(), options...)
		case rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array:
			args := make([]string, 0, rv.Len())
			for i := 0; i < rv.Len(); i++ {
				args = append(args, fmt.Sprint(rv.Index(i).Interface()))
			}
			return Command{args: args}, nil
		case rv.Kind() == reflect.Func && rv.Type().CanSeq():
			var args []string
			for elem := range rv.Seq() {
				args = append(args, fmt.Sprint(elem.Interface()))
			}
			return Command{args: args}, nil
		}
	}

	return Command{}, fmt.Errorf("%w: %T", ErrTypeMismatch, v)
}

// String returns the quoted command line.
func (c Command) String() string {
	return Join(c.args...)
}

// GoString implements fmt.GoStringer.
func (c Command) GoString() string {
	return fmt.Sprintf("shell.Command(%q)", c.String())
}

// Args returns a copy of the arguments.
func (c Command) Args() []string {
	return slices.Clone(c.args)
}

// Len returns the number of arguments.
func (c Command) Len() int {
	return len(c.args)
}

// Equal reports whether both commands have the same arguments in the
// same order.
func (c Command) Equal(other Command) bool {
	return slices.Equal(c.args, other.args)
}

// Concat returns a new command with the arguments of other appended.
// Other is converted with NewCommand, so a string is split first.
func (c Command) Concat(other any) (Command, error) {
	tail, err := NewCommand(other)
	if err != nil {
		return Command{}, err
	}

	args := make([]string, 0, len(c.args)+len(tail.args))
	args = append(args, c.args...)
	args = append(args, tail.args...)

	return Command{args: args}, nil
}

// Contains reports whether sub occurs in the quoted command line. The
// match includes quoting added by String: Args("a b").Contains("'a")
// is true. Use HasArg to match a single argument.
func (c Command) Contains(sub string) bool {
	return strings.Contains(c.String(), sub)
}

// HasArg reports whether arg is one of the arguments.
func (c Command) HasArg(arg string) bool {
	return slices.Contains(c.args, arg)
}

// Fields splits the quoted command line on single spaces. Arguments
// that were quoted because they contain spaces are split as well, use
// Args to get the original arguments.
func (c Command) Fields() []string {
	return strings.Split(c.String(), " ")
}
