package factoid

import (
	"errors"
	"fmt"
)

// ErrorKind distinguishes structural parse failures
type ErrorKind string

const (
	KindMissingActivity          ErrorKind = "missing_activity"
	KindMissingDatetimeOne       ErrorKind = "missing_datetime_one"
	KindMissingDatetimeTwo       ErrorKind = "missing_datetime_two"
	KindMissingSeparatorActivity ErrorKind = "missing_separator_activity"
)

// ParseError is a structural parse failure. Errors of the same kind match
// each other with errors.Is.
type ParseError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is matches parse errors by kind
func (e *ParseError) Is(target error) bool {
	t, ok := target.(*ParseError)
	return ok && t.Kind == e.Kind
}

var (
	ErrMissingActivity          = &ParseError{Kind: KindMissingActivity, Message: "expected to find an activity name"}
	ErrMissingDatetimeOne       = &ParseError{Kind: KindMissingDatetimeOne, Message: "expected to find a datetime"}
	ErrMissingDatetimeTwo       = &ParseError{Kind: KindMissingDatetimeTwo, Message: "expected to find the two datetimes"}
	ErrMissingSeparatorActivity = &ParseError{Kind: KindMissingSeparatorActivity, Message: `expected to find an "@" indicating the activity`}
)

func newParseError(sentinel *ParseError, message string, cause error) *ParseError {
	if message == "" {
		message = sentinel.Message
	}
	return &ParseError{Kind: sentinel.Kind, Message: message, Err: cause}
}

// KindOf returns the kind of a parse error anywhere in err's chain
func KindOf(err error) (ErrorKind, bool) {
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return parseErr.Kind, true
	}
	return "", false
}
