package util

import (
	"fmt"

	"github.com/Zeeeepa/lynlang-sub004/pkg/token"
)

type ErrorKind int

const (
	ErrSyntax ErrorKind = iota
	ErrType
	ErrTypeMismatch
	ErrUnsupportedRaiseTarget
	ErrUnresolvedGenericType
	ErrInternal
)

var errorKindNames = map[ErrorKind]string{
	ErrSyntax:                 "SyntaxError",
	ErrType:                   "TypeError",
	ErrTypeMismatch:           "TypeMismatch",
	ErrUnsupportedRaiseTarget: "UnsupportedRaiseTarget",
	ErrUnresolvedGenericType:  "UnresolvedGenericType",
	ErrInternal:               "InternalError",
}

func (k ErrorKind) String() string {
	if s, ok := errorKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// CompileError is the single error type produced by every compiler stage.
type CompileError struct {
	Kind ErrorKind
	Tok  token.Token
	Msg  string
	Err  error
}

func Errorf(kind ErrorKind, tok token.Token, format string, args ...any) *CompileError {
	return &CompileError{Kind: kind, Tok: tok, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a location and kind to an error raised below the code generator.
func Wrap(kind ErrorKind, tok token.Token, err error) *CompileError {
	return &CompileError{Kind: kind, Tok: tok, Msg: err.Error(), Err: err}
}

func (e *CompileError) Message() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *CompileError) Error() string {
	filename, line, col := findFileAndLine(e.Tok)
	return fmt.Sprintf("%s:%d:%d: %s", filename, line, col, e.Message())
}

func (e *CompileError) Unwrap() error { return e.Err }

// KindOf reports the kind of a compile error, and false for any other error.
func KindOf(err error) (ErrorKind, bool) {
	ce, ok := err.(*CompileError)
	if !ok {
		if u, isWrapper := err.(interface{ Unwrap() error }); isWrapper && u.Unwrap() != nil {
			return KindOf(u.Unwrap())
		}
		return 0, false
	}
	return ce.Kind, true
}
