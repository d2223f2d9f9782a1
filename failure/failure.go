// Package failure classifies pipeline errors so callers can branch on the
// kind of failure instead of matching error strings.
package failure

import (
	"errors"
	"fmt"
)

type Kind string

const (
	// KindInput: the source locator is malformed or unrecognized.
	KindInput Kind = "input_error"
	// KindUpstream: a collaborator (transcript source, audio download,
	// speech-to-text, language model) could not deliver.
	KindUpstream Kind = "upstream_unavailable"
	// KindParse: the model response is not valid structured data.
	KindParse Kind = "parse_error"
	// KindValidation: the parsed content breaks the exercise contract.
	KindValidation Kind = "validation_error"
	// KindPartial: a single segment failed, siblings carry on.
	KindPartial Kind = "partial_failure"
)

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost *Error in err's chain, or the
// empty Kind when err was never classified.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
