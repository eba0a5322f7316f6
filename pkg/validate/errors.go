package validate

import "fmt"

// Error codes reported to callers. Each one is terminal for a request.
const (
	CodeParse    = "PARSE_ERROR"
	CodeSchema   = "SCHEMA_ERROR"
	CodeTooLarge = "PAYLOAD_TOO_LARGE"
)

// ParseError reports a decoded payload that is not a well-formed document.
// It usually means the collector ran on a host it does not support.
type ParseError struct {
	Cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("[%s] malformed snapshot document: %v", CodeParse, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

func (e *ParseError) Code() string { return CodeParse }

// SchemaError reports a well-formed document missing a required field or
// carrying the wrong kind of value for one.
type SchemaError struct {
	Path   string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", CodeSchema, e.Path, e.Reason)
}

func (e *SchemaError) Code() string { return CodeSchema }

type TooLargeError struct {
	Size  int
	Limit int
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("[%s] payload is %d bytes, limit is %d", CodeTooLarge, e.Size, e.Limit)
}

func (e *TooLargeError) Code() string { return CodeTooLarge }

// Coded is implemented by every terminal pipeline error.
type Coded interface {
	error
	Code() string
}
