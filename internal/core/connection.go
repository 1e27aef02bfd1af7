// File: internal/core/connection.go
package core

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
)

// Querier is the statement surface shared by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Conn)(nil)
	_ Querier = (*sql.Tx)(nil)
)

// Acquire checks out one connection from the pool. Every successful
// Acquire must be paired with exactly one Release.
func Acquire(ctx context.Context, db *sql.DB) (*sql.Conn, error) {
	return db.Conn(ctx)
}

// Release returns conn to the pool, or discards it when discard is set.
// A discarded connection is closed at the driver level and never reused.
func Release(conn *sql.Conn, discard bool) error {
	if discard {
		// Returning ErrBadConn from Raw makes database/sql drop the
		// underlying driver connection instead of pooling it.
		_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	}
	err := conn.Close()
	if errors.Is(err, sql.ErrConnDone) {
		return nil
	}
	return err
}

// Unusable reports whether a statement failure leaves the connection in an
// undefined state: the caller abandoned the call before the driver replied.
func Unusable(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn)
}
