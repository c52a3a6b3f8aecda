package qcode

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes the errors returned by the compilers and executors
type ErrorKind string

const (
	KindInvalidIdentifier ErrorKind = "invalid_identifier"
	KindNoValidColumns    ErrorKind = "no_valid_columns"
	KindNoPrimaryKey      ErrorKind = "no_primary_key"
	KindNoRelationship    ErrorKind = "no_relationship"
	KindMissingFilter     ErrorKind = "missing_filter"
	KindUnknownTable      ErrorKind = "unknown_table"
	KindNotFound          ErrorKind = "not_found"
	KindInvalidGraph      ErrorKind = "invalid_graph"
)

// Error is a structured error carrying its kind. All kinds are client errors,
// none of them are worth retrying.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is lets errors.Is match on kind alone
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err or an empty kind if err is not a *Error
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err (or anything it wraps) is of the given kind
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
