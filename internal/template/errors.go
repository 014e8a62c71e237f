package template

import "fmt"

// Error is a template failure tied to a source position. Syntax problems
// have no Err; render failures wrap the Starlark error.
type Error struct {
	Pos Position
	Msg string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Pos, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func errorf(pos Position, format string, args ...any) *Error {
	return &Error{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func wrapError(pos Position, err error, msg string) *Error {
	return &Error{Pos: pos, Msg: msg, Err: err}
}
