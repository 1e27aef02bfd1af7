package dal

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/TechXTT/dal/internal/codec"
	"github.com/TechXTT/dal/internal/core"
)

// Statement is a command with its positional values. When Tx is set the
// statement runs on that transaction's connection.
type Statement struct {
	Command string
	Values  []any
	Tx      *Tx
}

// Stmt builds a Statement outside any transaction.
func Stmt(command string, values ...any) Statement {
	return Statement{Command: command, Values: values}
}

// In returns a copy of st bound to tx.
func (st Statement) In(tx *Tx) Statement {
	st.Tx = tx
	return st
}

// InsertResult reports an insert. ID is nil unless the statement has a
// RETURNING clause and exactly one row came back.
type InsertResult struct {
	RowsInserted int64
	ID           any
}

type UpdateResult struct {
	RowsUpdated int64
}

type DeleteResult struct {
	RowsDeleted int64
}

// runFunc performs one round-trip on q and reports the affected row count.
type runFunc func(ctx context.Context, q core.Querier, args []any) (int64, error)

// Exec runs a statement that returns no rows (DDL, or DML without RETURNING).
func (s *Session) Exec(ctx context.Context, st Statement) error {
	return s.run(ctx, "exec", st, func(ctx context.Context, q core.Querier, args []any) (int64, error) {
		r, err := q.ExecContext(ctx, st.Command, args...)
		if err != nil {
			return 0, err
		}
		n, _ := r.RowsAffected()
		return n, nil
	})
}

// Insert runs an INSERT. With RETURNING the statement is issued as a query
// and every returned row counts as inserted.
func (s *Session) Insert(ctx context.Context, st Statement) (InsertResult, error) {
	var res InsertResult
	returning := codec.HasReturning(st.Command)

	err := s.run(ctx, "insert", st, func(ctx context.Context, q core.Querier, args []any) (int64, error) {
		if !returning {
			n, err := execAffected(ctx, q, st.Command, args)
			res.RowsInserted = n
			return n, err
		}
		rows, err := q.QueryContext(ctx, st.Command, args...)
		if err != nil {
			return 0, err
		}
		defer rows.Close()

		out, err := codec.DecodeRows(rows)
		if err != nil {
			return 0, err
		}
		res.RowsInserted = int64(len(out))
		if len(out) == 1 {
			res.ID = insertedID(out[0])
		}
		return res.RowsInserted, nil
	})
	if err != nil {
		return InsertResult{}, err
	}
	return res, nil
}

// insertedID picks the generated key from a RETURNING row: its only column,
// or the column named id.
func insertedID(row Row) any {
	if len(row) == 1 {
		for _, v := range row {
			return v
		}
	}
	return row["id"]
}

// QueryRow returns the first row of the result. ok is false when nothing
// matched; that is not an error.
func (s *Session) QueryRow(ctx context.Context, st Statement) (row Row, ok bool, err error) {
	err = s.run(ctx, "queryRow", st, func(ctx context.Context, q core.Querier, args []any) (int64, error) {
		rows, err := q.QueryContext(ctx, st.Command, args...)
		if err != nil {
			return 0, err
		}
		defer rows.Close()

		row, ok, err = codec.DecodeFirst(rows)
		if ok {
			return 1, err
		}
		return 0, err
	})
	if err != nil {
		return nil, false, err
	}
	return row, ok, nil
}

// QueryRows returns every row of the result, or an empty slice.
func (s *Session) QueryRows(ctx context.Context, st Statement) ([]Row, error) {
	var out []Row
	err := s.run(ctx, "queryRows", st, func(ctx context.Context, q core.Querier, args []any) (int64, error) {
		rows, err := q.QueryContext(ctx, st.Command, args...)
		if err != nil {
			return 0, err
		}
		defer rows.Close()

		out, err = codec.DecodeRows(rows)
		return int64(len(out)), err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Session) Update(ctx context.Context, st Statement) (UpdateResult, error) {
	var n int64
	err := s.run(ctx, "update", st, func(ctx context.Context, q core.Querier, args []any) (int64, error) {
		var err error
		n, err = execAffected(ctx, q, st.Command, args)
		return n, err
	})
	if err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{RowsUpdated: n}, nil
}

// Delete removes rows, or marks them deleted when soft delete applies: the
// per-call option wins over the session default. See DeleteOptions.
func (s *Session) Delete(ctx context.Context, st Statement, opts DeleteOptions) (DeleteResult, error) {
	if _, err := s.ready(); err != nil {
		return DeleteResult{}, err
	}
	soft := s.SoftDelete()
	if opts.SoftDelete != nil {
		soft = *opts.SoftDelete
	}
	if soft {
		if err := s.validate("delete", st); err != nil {
			return DeleteResult{}, err
		}
		rewritten, err := s.rewriteSoftDelete(st, opts)
		if err != nil {
			return DeleteResult{}, err
		}
		st = rewritten
	}

	var n int64
	err := s.run(ctx, "delete", st, func(ctx context.Context, q core.Querier, args []any) (int64, error) {
		var err error
		n, err = execAffected(ctx, q, st.Command, args)
		return n, err
	})
	if err != nil {
		return DeleteResult{}, err
	}
	return DeleteResult{RowsDeleted: n}, nil
}

func execAffected(ctx context.Context, q core.Querier, query string, args []any) (int64, error) {
	r, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return r.RowsAffected()
}

// validate rejects a statement before it reaches the driver.
func (s *Session) validate(verb string, st Statement) error {
	if strings.TrimSpace(st.Command) == "" {
		return newStatementError(verb, st.Command, errors.New("empty command"))
	}
	if err := codec.CheckPlaceholders(st.Command, s.style, len(st.Values)); err != nil {
		return newStatementError(verb, st.Command, err)
	}
	return nil
}

// run validates and binds st, then executes fn on the transaction's pinned
// connection or on a connection checked out for this call only.
func (s *Session) run(ctx context.Context, verb string, st Statement, fn runFunc) error {
	db, err := s.ready()
	if err != nil {
		return err
	}
	var txID string
	if st.Tx != nil {
		if err := s.owns(st.Tx); err != nil {
			return err
		}
		txID = st.Tx.id
	}

	ctx, ev := s.begin(ctx, verb, st.Command, st.Values, txID)
	var rows int64
	err = func() error {
		if err := s.validate(verb, st); err != nil {
			return err
		}
		args, err := codec.Bind(st.Values)
		if err != nil {
			return newStatementError(verb, st.Command, err)
		}
		call := func(ctx context.Context, q core.Querier) error {
			n, err := fn(ctx, q, args)
			rows = n
			if err != nil {
				return newStatementError(verb, st.Command, err)
			}
			return nil
		}
		if st.Tx != nil {
			return st.Tx.query(ctx, call)
		}
		return s.standalone(ctx, db, call)
	}()
	s.finish(ctx, ev, rows, err)
	return err
}

// standalone checks out a connection for one call and always checks it back
// in. A connection whose call was abandoned is discarded.
func (s *Session) standalone(ctx context.Context, db *sql.DB, fn func(ctx context.Context, q core.Querier) error) error {
	conn, err := core.Acquire(ctx, db)
	if err != nil {
		return &ConnectionError{Op: "acquire", Err: err}
	}
	err = fn(ctx, conn)

	discard := core.Unusable(ctx, err)
	if discard {
		s.logger.Warn("discarding connection after abandoned statement", zap.Error(err))
	}
	if rerr := core.Release(conn, discard); rerr != nil && err == nil {
		err = &ConnectionError{Op: "release", Err: rerr}
	}
	return err
}
