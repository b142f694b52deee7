package dbal

import (
	"errors"
	"fmt"
)

// Caller-programming errors. They are returned before any SQL is executed.
var (
	ErrInvalidOperator   = errors.New("dbal: invalid operator")
	ErrInvalidArgument   = errors.New("dbal: invalid argument")
	ErrEmptyValueSet     = errors.New("dbal: values cannot be empty for an IN clause")
	ErrEmptyInsert       = errors.New("dbal: insert data cannot be empty")
	ErrEmptyUpdate       = errors.New("dbal: update data cannot be empty")
	ErrUnsafeWrite       = errors.New("dbal: update and delete require at least one WHERE clause")
	ErrTableNotSet       = errors.New("dbal: table not set")
	ErrUnsupportedDriver = errors.New("dbal: unsupported database driver")
)

// ErrKind categorises a driver error without exposing driver-specific codes.
type ErrKind int

const (
	ErrKindUnknown    ErrKind = iota
	ErrKindQuery              // SQL syntax or runtime execution error
	ErrKindConflict           // unique or foreign key violation
	ErrKindConnection         // could not reach or authenticate to the DB
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindQuery:
		return "query_failed"
	case ErrKindConflict:
		return "conflict"
	case ErrKindConnection:
		return "connection_failed"
	default:
		return "unknown"
	}
}

// ConnectionError is returned when the handle cannot be opened or verified.
type ConnectionError struct {
	Driver string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("dbal: %s connection failed: %v", e.Driver, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// QueryExecutionError wraps a driver failure. SQL holds the rendered
// statement with its named placeholders; bound values are never included.
type QueryExecutionError struct {
	SQL  string
	Kind ErrKind
	Err  error
}

func (e *QueryExecutionError) Error() string {
	return fmt.Sprintf("dbal: query execution failed [%s]: %v | SQL: %s", e.Kind, e.Err, e.SQL)
}

func (e *QueryExecutionError) Unwrap() error { return e.Err }

// IsConflict reports whether err is a unique or foreign key violation.
func IsConflict(err error) bool {
	var qe *QueryExecutionError
	return errors.As(err, &qe) && qe.Kind == ErrKindConflict
}

// IsConnectionFailed reports whether err is a connectivity failure.
func IsConnectionFailed(err error) bool {
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return true
	}
	var qe *QueryExecutionError
	return errors.As(err, &qe) && qe.Kind == ErrKindConnection
}
