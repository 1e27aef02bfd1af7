package dal

import (
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/TechXTT/dal/internal/codec"
	"github.com/TechXTT/dal/internal/plugin"
	"github.com/TechXTT/dal/pkg/config"
)

type (
	// Row maps column names to values. See codec.Row.
	Row = codec.Row
	// Placeholder selects $N or ? parameters.
	Placeholder = codec.Placeholder
	// Hooks observes every statement and transaction step.
	Hooks = plugin.Hooks
	// Event is what Hooks receive.
	Event = plugin.Event
)

const (
	PlaceholderDollar   = codec.Dollar
	PlaceholderQuestion = codec.Question
)

// SoftDeleteColumns names the columns written by a soft delete. Empty
// audit column names disable the corresponding assignment.
type SoftDeleteColumns struct {
	DeletedAt     string
	DeletedByID   string
	DeletedByName string
}

// DefaultSoftDeleteColumns returns deleted_at, deleted_by_id, deleted_by_name.
func DefaultSoftDeleteColumns() SoftDeleteColumns {
	return SoftDeleteColumns{
		DeletedAt:     "deleted_at",
		DeletedByID:   "deleted_by_id",
		DeletedByName: "deleted_by_name",
	}
}

// Opener builds the pool for an owned session.
type Opener func(cfg config.DatabaseConfig) (*sql.DB, error)

// Option configures a Session.
type Option func(*Session)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHooks appends statement hooks. They run in the order given.
func WithHooks(hooks ...Hooks) Option {
	return func(s *Session) {
		s.hooks = append(s.hooks, hooks...)
	}
}

// WithSoftDelete sets the session-wide soft-delete default.
func WithSoftDelete(enabled bool) Option {
	return func(s *Session) { s.softDelete.Store(enabled) }
}

func WithSoftDeleteColumns(cols SoftDeleteColumns) Option {
	return func(s *Session) {
		if cols.DeletedAt != "" {
			s.columns = cols
		}
	}
}

func WithPlaceholder(p Placeholder) Option {
	return func(s *Session) { s.style = p }
}

// WithClock replaces time.Now for soft-delete timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithOpener replaces the pool constructor used by Connect.
func WithOpener(open Opener) Option {
	return func(s *Session) {
		if open != nil {
			s.open = open
		}
	}
}

// FromConfig applies the soft-delete and placeholder settings of cfg.
func FromConfig(cfg *config.Config) Option {
	return func(s *Session) {
		if p, err := codec.ParsePlaceholder(cfg.Database.Placeholder); err == nil {
			s.style = p
		}
		s.softDelete.Store(cfg.SoftDelete.Enabled)
		if cfg.SoftDelete.DeletedAtColumn != "" {
			s.columns = SoftDeleteColumns{
				DeletedAt:     cfg.SoftDelete.DeletedAtColumn,
				DeletedByID:   cfg.SoftDelete.DeletedByIDColumn,
				DeletedByName: cfg.SoftDelete.DeletedByNameColumn,
			}
		}
	}
}
