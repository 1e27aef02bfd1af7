package dal

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

var (
	// ErrConnection is the class of connect and checkout failures.
	ErrConnection = errors.New("connection error")
	// ErrNotConnected is returned for calls on a session that was never connected.
	ErrNotConnected = fmt.Errorf("%w: session is not connected", ErrConnection)
	// ErrAlreadyConnected is returned by a second Connect.
	ErrAlreadyConnected = fmt.Errorf("%w: session is already connected", ErrConnection)
	// ErrSessionClosed is returned for any call after Close.
	ErrSessionClosed = errors.New("session closed")
	// ErrTransaction is the class of invalid transaction transitions and
	// rejected commits or rollbacks.
	ErrTransaction = errors.New("transaction error")
	// ErrTransactionClosed is returned when a committed or rolled back
	// transaction is used again.
	ErrTransactionClosed = errors.New("transaction closed")
	// ErrStatement is the class of statement failures, whether reported by
	// the driver or caught before reaching it.
	ErrStatement = errors.New("statement error")
	// ErrUnsupportedDeleteShape is returned when a soft delete cannot be
	// rewritten because the command is not a plain DELETE ... WHERE.
	ErrUnsupportedDeleteShape = errors.New("unsupported delete shape")
)

// ConnectionError wraps a failure to open, ping or check out a connection.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() []error { return []error{ErrConnection, e.Err} }

// TransactionError wraps a rejected begin, commit or rollback.
type TransactionError struct {
	Op   string
	TxID string
	Err  error
}

func (e *TransactionError) Error() string {
	if e.TxID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s tx %s: %v", e.Op, e.TxID, e.Err)
}

func (e *TransactionError) Unwrap() []error { return []error{ErrTransaction, e.Err} }

// StatementError carries the driver's diagnostic for a failed statement.
// Code, Detail and Constraint are filled in when the driver reports a
// PostgreSQL error (lib/pq or pgx).
type StatementError struct {
	Verb       string
	Command    string
	Code       string
	Message    string
	Detail     string
	Constraint string
	Err        error
}

func (e *StatementError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != "" {
		return fmt.Sprintf("%s failed: %s (SQLSTATE %s)", e.Verb, msg, e.Code)
	}
	return fmt.Sprintf("%s failed: %s", e.Verb, msg)
}

func (e *StatementError) Unwrap() []error { return []error{ErrStatement, e.Err} }

func newStatementError(verb, command string, err error) *StatementError {
	se := &StatementError{Verb: verb, Command: command, Err: err}

	var pqErr *pq.Error
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pqErr):
		se.Code = string(pqErr.Code)
		se.Message = pqErr.Message
		se.Detail = pqErr.Detail
		se.Constraint = pqErr.Constraint
	case errors.As(err, &pgErr):
		se.Code = pgErr.Code
		se.Message = pgErr.Message
		se.Detail = pgErr.Detail
		se.Constraint = pgErr.ConstraintName
	}
	return se
}

// IsUniqueViolation reports whether err is a PostgreSQL unique_violation.
func IsUniqueViolation(err error) bool {
	return sqlState(err) == "23505"
}

// IsForeignKeyViolation reports whether err is a PostgreSQL foreign_key_violation.
func IsForeignKeyViolation(err error) bool {
	return sqlState(err) == "23503"
}

func sqlState(err error) string {
	var se *StatementError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
