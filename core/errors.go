package core

import (
	"github.com/dosco/restjin/core/internal/qcode"
)

// Error is the structured error returned for every client side failure
type Error = qcode.Error

type ErrorKind = qcode.ErrorKind

const (
	KindInvalidIdentifier = qcode.KindInvalidIdentifier
	KindNoValidColumns    = qcode.KindNoValidColumns
	KindNoPrimaryKey      = qcode.KindNoPrimaryKey
	KindNoRelationship    = qcode.KindNoRelationship
	KindMissingFilter     = qcode.KindMissingFilter
	KindUnknownTable      = qcode.KindUnknownTable
	KindNotFound          = qcode.KindNotFound
	KindInvalidGraph      = qcode.KindInvalidGraph
)

// IsKind reports whether err (or anything it wraps) is of the given kind
func IsKind(err error, kind ErrorKind) bool {
	return qcode.IsKind(err, kind)
}

// KindOf returns the kind of err or an empty kind for errors that did not
// come from the engine, such as database failures
func KindOf(err error) ErrorKind {
	return qcode.KindOf(err)
}

func errUnknownConnection(name string) error {
	return qcode.NewError(qcode.KindUnknownTable, "unknown connection: %s", name)
}

func errNotFound(table string, id interface{}) error {
	return qcode.NewError(qcode.KindNotFound, "no row in '%s' with id %v", table, id)
}

// NewError returns an engine error of the given kind
func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return qcode.NewError(kind, format, args...)
}
