package narrative

import (
	"errors"
	"fmt"
)

// Kind classifies why a narrative could not be produced.
type Kind string

const (
	KindTimeout       Kind = "timeout"
	KindQuota         Kind = "quota"
	KindMalformed     Kind = "malformed"
	KindUnavailable   Kind = "unavailable"
	KindNotConfigured Kind = "not_configured"
)

// Error is returned by every Generator failure. Callers keep the score
// report and drop only the narrative.
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("narrative %s", e.Kind)
	}
	return fmt.Sprintf("narrative %s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// KindOf returns the kind of a narrative failure, or KindUnavailable for
// errors that did not come from this package.
func KindOf(err error) Kind {
	var nerr *Error
	if errors.As(err, &nerr) {
		return nerr.Kind
	}
	return KindUnavailable
}

var ErrNotConfigured = &Error{Kind: KindNotConfigured, Cause: errors.New("no narrative provider configured")}
