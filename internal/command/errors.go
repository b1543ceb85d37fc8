package command

import (
	"errors"
	"fmt"
	"strings"
)

// Command errors. Typed errors below unwrap to these sentinels.
var (
	// ErrParse is returned when input text cannot be read as commands.
	ErrParse = errors.New("parse error")

	// ErrValidation is returned when a command field is missing, ill-typed or
	// refers to something that does not exist.
	ErrValidation = errors.New("validation error")

	// ErrUnknownAction is returned for an action kind that is not registered.
	ErrUnknownAction = errors.New("unknown action")
)

// LineError describes one unreadable piece of input.
type LineError struct {
	Line   int   // 1-based
	Offset int64 // byte offset of the line start
	Err    error
}

func (e LineError) String() string {
	return fmt.Sprintf("line %d (offset %d): %v", e.Line, e.Offset, e.Err)
}

// ParseError reports malformed input. Commands that could be read are
// returned alongside it.
type ParseError struct {
	Msg   string
	Lines []LineError
}

func (e *ParseError) Error() string {
	if len(e.Lines) == 0 {
		return "parse error: " + e.Msg
	}
	parts := make([]string, len(e.Lines))
	for i, l := range e.Lines {
		parts[i] = l.String()
	}
	msg := e.Msg
	if msg == "" {
		msg = fmt.Sprintf("%d malformed line(s)", len(e.Lines))
	}
	return "parse error: " + msg + ": " + strings.Join(parts, "; ")
}

func (e *ParseError) Unwrap() error { return ErrParse }

// ValidationError names the command and field that failed a check.
type ValidationError struct {
	Index       int
	Action      Action
	Field       string
	Reason      string
	Suggestions []string
	Err         error // optional cause, e.g. layout.ErrTabNotFound
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "command %d", e.Index)
	if e.Action != "" {
		fmt.Fprintf(&b, " (%s)", e.Action)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, ": field %q", e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if len(e.Suggestions) > 0 {
		fmt.Fprintf(&b, " (did you mean %s?)", quoteJoin(e.Suggestions))
	}
	return b.String()
}

func (e *ValidationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrValidation, e.Err}
	}
	return []error{ErrValidation}
}

// UnknownActionError is returned for an unregistered action kind.
type UnknownActionError struct {
	Index       int
	Action      string
	Suggestions []string
}

func (e *UnknownActionError) Error() string {
	msg := fmt.Sprintf("command %d: unknown action %q", e.Index, e.Action)
	if len(e.Suggestions) > 0 {
		msg += fmt.Sprintf(" (did you mean %s?)", quoteJoin(e.Suggestions))
	}
	return msg
}

func (e *UnknownActionError) Unwrap() error { return ErrUnknownAction }

func quoteJoin(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return strings.Join(quoted, " or ")
}
