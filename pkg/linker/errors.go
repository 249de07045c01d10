package linker

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformedObject       = errors.New("malformed object")
	ErrIncompatibleInputs    = errors.New("incompatible inputs")
	ErrUndefinedSymbol       = errors.New("undefined symbol")
	ErrDuplicateSymbol       = errors.New("duplicate symbol")
	ErrUnsupportedRelocation = errors.New("unsupported relocation")
	ErrRelocationOverflow    = errors.New("relocation overflow")
	ErrMissingEntryPoint     = errors.New("missing entry point")
	ErrOutputWriteFailure    = errors.New("output write failure")
	ErrInvalidOption         = errors.New("invalid option")
)

// LinkError is the error returned by every phase. Kind is one of the
// Err* sentinels above; the remaining fields say which input caused it.
type LinkError struct {
	Kind   error
	File   string
	Symbol string
	Detail string
	Err    error
}

func (e *LinkError) Error() string {
	var sb strings.Builder
	if e.File != "" {
		sb.WriteString(e.File)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Kind.Error())
	if e.Symbol != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Symbol)
	}
	if e.Detail != "" {
		sb.WriteString(" (")
		sb.WriteString(e.Detail)
		sb.WriteString(")")
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *LinkError) Is(target error) bool {
	return target == e.Kind
}

func (e *LinkError) Unwrap() error {
	return e.Err
}

func malformed(file string, format string, args ...any) error {
	return &LinkError{Kind: ErrMalformedObject, File: file, Detail: fmt.Sprintf(format, args...)}
}

func truncated(file, what string, err error) error {
	return &LinkError{Kind: ErrMalformedObject, File: file, Detail: "truncated " + what, Err: err}
}

func incompatible(file string, format string, args ...any) error {
	return &LinkError{Kind: ErrIncompatibleInputs, File: file, Detail: fmt.Sprintf(format, args...)}
}

func undefinedSymbol(file, name string) error {
	return &LinkError{Kind: ErrUndefinedSymbol, File: file, Symbol: name}
}

func duplicateSymbol(first, second, name string) error {
	return &LinkError{
		Kind:   ErrDuplicateSymbol,
		File:   second,
		Symbol: name,
		Detail: "first defined in " + first,
	}
}

func outputFailure(path string, err error) error {
	return &LinkError{Kind: ErrOutputWriteFailure, File: path, Err: err}
}
