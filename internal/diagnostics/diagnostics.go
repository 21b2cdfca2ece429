package diagnostics

import (
	"errors"
	"fmt"
	"strings"

	"github.com/funvibe/kiln/internal/token"
)

// Kind classifies where an error originated.
type Kind int

const (
	Compile Kind = iota
	Runtime
	Host
)

func (k Kind) String() string {
	switch k {
	case Compile:
		return "compile error"
	case Host:
		return "host error"
	default:
		return "runtime error"
	}
}

// Pos is a source location.
type Pos struct {
	Path   string
	Line   int
	Column int
}

func (p Pos) String() string {
	path := p.Path
	if path == "" {
		path = "<script>"
	}
	if p.Line == 0 {
		return path
	}
	return fmt.Sprintf("%s:%d:%d", path, p.Line, p.Column)
}

// Error is the single structured diagnostic shared by the lexer, compiler,
// VM and native functions.
type Error struct {
	Kind        Kind
	Code        ErrorCode
	Pos         Pos
	Message     string
	Explanation string
	Example     string
	// Trace lists one line per unwound frame, innermost first.
	Trace []string
	// More is set while further trace context is still being attached.
	More bool
}

// Clone returns a copy of e that shares no trace storage with it.
func (e *Error) Clone() *Error {
	c := *e
	c.Trace = append([]string(nil), e.Trace...)
	return &c
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s [%s]: %s", e.Pos, e.Kind, e.Code, e.Message)
	for _, line := range e.Trace {
		b.WriteString("\n  at ")
		b.WriteString(line)
	}
	return b.String()
}

// NewError builds an error for code at tok's position.
func NewError(code ErrorCode, tok token.Token, args ...interface{}) *Error {
	return NewErrorAt(code, Pos{Path: tok.Path, Line: tok.Line, Column: tok.Column}, args...)
}

// NewErrorAt builds an error for code at pos. The message template of the
// code is formatted with args.
func NewErrorAt(code ErrorCode, pos Pos, args ...interface{}) *Error {
	info := lookup(code)
	msg := info.Template
	if len(args) > 0 {
		msg = fmt.Sprintf(info.Template, args...)
	}
	return &Error{
		Kind:        info.Kind,
		Code:        code,
		Pos:         pos,
		Message:     msg,
		Explanation: info.Explanation,
		Example:     info.Example,
	}
}

// AsError converts any error into a *Error, keeping existing diagnostics.
func AsError(err error, pos Pos) *Error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return NewErrorAt(ErrH001, pos, err.Error())
}
