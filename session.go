package dal

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/TechXTT/dal/internal/codec"
	"github.com/TechXTT/dal/internal/plugin"
	"github.com/TechXTT/dal/pkg/config"
	"github.com/TechXTT/dal/pkg/runtime"
)

// State is the connectivity state of a Session.
type State int32

const (
	StateDisconnected State = iota
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "disconnected"
	}
}

// Session holds a DB pool and provides the statement verbs. It is safe for
// concurrent use; at most one transaction is open on it at a time.
type Session struct {
	cfg  config.DatabaseConfig
	open Opener

	mu    sync.Mutex // guards state, db, owned, tx
	state State
	db    *sql.DB
	owned bool
	tx    *Tx

	softDelete atomic.Bool
	columns    SoftDeleteColumns
	style      codec.Placeholder
	hooks      plugin.Chain
	logger     *zap.Logger
	now        func() time.Time
}

// New returns a disconnected session that opens its own pool from cfg on
// Connect and closes it on Close. Options win over the placeholder style
// in cfg.
func New(cfg config.DatabaseConfig, opts ...Option) *Session {
	base := []Option{}
	if p, err := codec.ParsePlaceholder(cfg.Placeholder); err == nil && cfg.Placeholder != "" {
		base = append(base, WithPlaceholder(p))
	}
	s := newSession(append(base, opts...))
	s.cfg = cfg
	return s
}

// NewSession creates a session over an existing pool. Close leaves the pool
// open, so several sessions may share one.
func NewSession(db *sql.DB, opts ...Option) *Session {
	s := newSession(opts)
	s.db = db
	return s
}

func newSession(opts []Option) *Session {
	s := &Session{
		open:    runtime.Connect,
		columns: DefaultSoftDeleteColumns(),
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open builds an owned session from a loaded config, logs its statements
// with the configured slow threshold and connects.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Session, error) {
	base := []Option{FromConfig(cfg)}
	s := New(cfg.Database, append(base, opts...)...)
	s.hooks = append(plugin.Chain{plugin.NewLogging(s.logger, cfg.Database.SlowThreshold)}, s.hooks...)
	if err := s.Connect(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Connect opens the pool (for sessions built with New) and verifies it
// with a ping.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateClosed:
		return ErrSessionClosed
	case StateConnected:
		return ErrAlreadyConnected
	}

	opened := false
	if s.db == nil {
		db, err := s.open(s.cfg)
		if err != nil {
			return &ConnectionError{Op: "connect", Err: err}
		}
		s.db, s.owned, opened = db, true, true
	}
	if err := s.db.PingContext(ctx); err != nil {
		if opened {
			_ = s.db.Close()
			s.db, s.owned = nil, false
		}
		return &ConnectionError{Op: "ping", Err: err}
	}

	s.state = StateConnected
	s.logger.Info("session connected", zap.String("driver", s.cfg.Driver), zap.Bool("owned_pool", s.owned))
	return nil
}

// Close rolls back a transaction that is still open, releases its
// connection and closes the pool if the session opened it. Calling Close
// twice returns ErrSessionClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.state = StateClosed
	tx, db, owned := s.tx, s.db, s.owned
	s.tx = nil
	s.mu.Unlock()

	var errs []error
	if tx != nil {
		s.logger.Warn("closing session with an open transaction; rolling back", zap.String("tx", tx.id))
		if err := tx.abort(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}
	if owned && db != nil {
		if err := db.Close(); err != nil {
			errs = append(errs, &ConnectionError{Op: "close", Err: err})
		}
	}
	s.logger.Info("session closed")
	return errors.Join(errs...)
}

// State reports the connectivity state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetSoftDelete changes the default for subsequent Delete calls.
func (s *Session) SetSoftDelete(enabled bool) {
	s.softDelete.Store(enabled)
}

func (s *Session) SoftDelete() bool {
	return s.softDelete.Load()
}

// Transaction returns the open transaction, or nil.
func (s *Session) Transaction() *Tx {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx
}

// Ping checks that the pool can still reach the database.
func (s *Session) Ping(ctx context.Context) error {
	db, err := s.ready()
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		return &ConnectionError{Op: "ping", Err: err}
	}
	return nil
}

// Stats exposes the pool statistics; zero before Connect.
func (s *Session) Stats() sql.DBStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return sql.DBStats{}
	}
	return s.db.Stats()
}

// ready returns the pool when statements may be issued.
func (s *Session) ready() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readyLocked()
}

func (s *Session) readyLocked() (*sql.DB, error) {
	switch s.state {
	case StateClosed:
		return nil, ErrSessionClosed
	case StateDisconnected:
		return nil, ErrNotConnected
	}
	return s.db, nil
}

// begin starts an event and runs the before hooks.
func (s *Session) begin(ctx context.Context, verb, command string, args []any, txID string) (context.Context, *plugin.Event) {
	ev := &plugin.Event{Verb: verb, Command: command, Args: args, TxID: txID, Start: time.Now()}
	return s.hooks.BeforeStatement(ctx, ev), ev
}

// finish completes ev and runs the after hooks.
func (s *Session) finish(ctx context.Context, ev *plugin.Event, rows int64, err error) {
	ev.Rows = rows
	ev.Err = err
	ev.Elapsed = time.Since(ev.Start)
	s.hooks.AfterStatement(ctx, ev)
}
