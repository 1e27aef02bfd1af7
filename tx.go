package dal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TechXTT/dal/internal/core"
)

// TxState is the lifecycle state of a Tx.
type TxState int32

const (
	TxOpen TxState = iota
	TxCommitted
	TxRolledBack
)

func (s TxState) String() string {
	switch s {
	case TxCommitted:
		return "committed"
	case TxRolledBack:
		return "rolled back"
	default:
		return "open"
	}
}

// Tx is a unit of work pinned to one pooled connection until Commit or
// Rollback. Statements on the same Tx are serialized.
type Tx struct {
	id      string
	session *Session

	mu      sync.Mutex // guards everything below and serializes statements
	state   TxState
	broken  bool
	conn    *sql.Conn
	tx      *sql.Tx
	started time.Time
}

func (t *Tx) ID() string { return t.id }

func (t *Tx) State() TxState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// StartTransaction begins a transaction with the driver's default options.
func (s *Session) StartTransaction(ctx context.Context) (*Tx, error) {
	return s.StartTransactionWith(ctx, nil)
}

// StartTransactionWith checks out a dedicated connection and begins a
// transaction on it. A session holds at most one open transaction.
func (s *Session) StartTransactionWith(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	t := &Tx{id: uuid.NewString(), session: s}
	t.mu.Lock()
	defer t.mu.Unlock()

	s.mu.Lock()
	db, err := s.readyLocked()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if s.tx != nil {
		open := s.tx.id
		s.mu.Unlock()
		return nil, &TransactionError{Op: "begin", TxID: open, Err: errors.New("session already has an open transaction")}
	}
	s.tx = t
	s.mu.Unlock()

	ctx, ev := s.begin(ctx, "begin", "BEGIN", nil, t.id)
	err = t.open(ctx, db, opts)
	s.finish(ctx, ev, 0, err)
	if err != nil {
		s.detach(t)
		t.state = TxRolledBack
		var ce *ConnectionError
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, &TransactionError{Op: "begin", TxID: t.id, Err: err}
	}

	t.started = time.Now()
	s.logger.Debug("transaction started", zap.String("tx", t.id))
	return t, nil
}

func (t *Tx) open(ctx context.Context, db *sql.DB, opts *sql.TxOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, err := core.Acquire(ctx, db)
	if err != nil {
		return &ConnectionError{Op: "acquire", Err: err}
	}
	// The transaction outlives the context that began it; cancellation is
	// handled per statement.
	tx, err := conn.BeginTx(context.WithoutCancel(ctx), opts)
	if err != nil {
		_ = core.Release(conn, core.Unusable(ctx, err))
		return err
	}
	t.conn, t.tx = conn, tx
	return nil
}

// Commit makes the transaction's work durable and releases its connection.
// When the database rejects the commit the transaction stays open and the
// caller must Rollback.
func (s *Session) Commit(ctx context.Context, t *Tx) error {
	if err := s.owns(t); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != TxOpen {
		return fmt.Errorf("%w: commit tx %s (%s)", ErrTransactionClosed, t.id, t.state)
	}
	if t.broken {
		return &TransactionError{Op: "commit", TxID: t.id, Err: errors.New("connection was abandoned by a cancelled statement; roll back")}
	}

	ctx, ev := s.begin(ctx, "commit", "COMMIT", nil, t.id)
	err := t.tx.Commit()
	s.finish(ctx, ev, 0, err)
	if err != nil {
		s.logger.Warn("commit rejected", zap.String("tx", t.id), zap.Error(err))
		return &TransactionError{Op: "commit", TxID: t.id, Err: err}
	}

	t.state = TxCommitted
	s.detach(t)
	s.logger.Debug("transaction committed", zap.String("tx", t.id), zap.Duration("elapsed", time.Since(t.started)))
	return core.Release(t.conn, false)
}

// Rollback discards the transaction's work and releases its connection. It
// is valid after a failed statement and after a rejected commit.
func (s *Session) Rollback(ctx context.Context, t *Tx) error {
	if err := s.owns(t); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != TxOpen {
		return fmt.Errorf("%w: rollback tx %s (%s)", ErrTransactionClosed, t.id, t.state)
	}

	ctx, ev := s.begin(ctx, "rollback", "ROLLBACK", nil, t.id)
	err := t.rollbackLocked()
	s.finish(ctx, ev, 0, err)
	if err != nil {
		return &TransactionError{Op: "rollback", TxID: t.id, Err: err}
	}
	s.logger.Debug("transaction rolled back", zap.String("tx", t.id))
	return nil
}

// rollbackLocked ends the transaction and releases the connection whatever
// the driver answers; the state is terminal afterwards.
func (t *Tx) rollbackLocked() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		err = nil
	}
	t.state = TxRolledBack
	t.session.detach(t)

	discard := t.broken || err != nil
	if discard {
		t.session.logger.Warn("discarding transaction connection", zap.String("tx", t.id))
	}
	if rerr := core.Release(t.conn, discard); err == nil {
		err = rerr
	}
	return err
}

// abort rolls back t during Session.Close.
func (t *Tx) abort(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TxOpen || t.tx == nil {
		t.state = TxRolledBack
		return nil
	}
	ctx, ev := t.session.begin(ctx, "rollback", "ROLLBACK", nil, t.id)
	err := t.rollbackLocked()
	t.session.finish(ctx, ev, 0, err)
	if err != nil {
		return &TransactionError{Op: "rollback", TxID: t.id, Err: err}
	}
	return nil
}

// InTransaction runs fn inside a new transaction. It commits when fn returns
// nil and rolls back when fn fails or panics.
func (s *Session) InTransaction(ctx context.Context, fn func(tx *Tx) error) (err error) {
	tx, err := s.StartTransaction(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = s.Rollback(ctx, tx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := s.Rollback(ctx, tx); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	if err := s.Commit(ctx, tx); err != nil {
		if rbErr := s.Rollback(ctx, tx); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return nil
}

// owns rejects a nil Tx or one started by another session.
func (s *Session) owns(t *Tx) error {
	if t == nil {
		return &TransactionError{Op: "use", Err: errors.New("nil transaction")}
	}
	if t.session != s {
		return &TransactionError{Op: "use", TxID: t.id, Err: errors.New("transaction belongs to another session")}
	}
	return nil
}

// detach clears the session's current transaction if it is t.
func (s *Session) detach(t *Tx) {
	s.mu.Lock()
	if s.tx == t {
		s.tx = nil
	}
	s.mu.Unlock()
}

// query runs fn on the pinned connection. A statement abandoned by its
// caller leaves the transaction broken.
func (t *Tx) query(ctx context.Context, fn func(ctx context.Context, q core.Querier) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != TxOpen {
		return fmt.Errorf("%w: tx %s (%s)", ErrTransactionClosed, t.id, t.state)
	}
	if t.broken {
		return &TransactionError{Op: "statement", TxID: t.id, Err: errors.New("connection was abandoned by a cancelled statement; roll back")}
	}
	err := fn(ctx, t.tx)
	if core.Unusable(ctx, err) {
		t.broken = true
		t.session.logger.Warn("transaction connection marked unusable", zap.String("tx", t.id), zap.Error(err))
	}
	return err
}
