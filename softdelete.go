package dal

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/TechXTT/dal/internal/codec"
	"github.com/TechXTT/dal/internal/core"
)

// DeleteOptions controls a Delete call. SoftDelete overrides the session
// default when non-nil. UserID and UserName are recorded in the audit
// columns of a soft delete and ignored otherwise.
type DeleteOptions struct {
	SoftDelete *bool
	UserID     any
	UserName   string
}

// Soft returns a *bool for DeleteOptions.SoftDelete.
func Soft(enabled bool) *bool { return &enabled }

const identPattern = `(?:[A-Za-z_][A-Za-z0-9_$]*|"(?:[^"]|"")+")`

var (
	deleteShape = regexp.MustCompile(`(?is)^\s*DELETE\s+FROM\s+(` + identPattern + `(?:\s*\.\s*` + identPattern + `)?)\s+WHERE\s+(.*?)\s*;?\s*$`)
	currentOf   = regexp.MustCompile(`(?is)^\s*CURRENT\s+OF\b`)
)

// rewriteSoftDelete turns DELETE FROM <table> WHERE <predicate> into an
// UPDATE of the soft-delete columns over the same predicate. The original
// values keep their positions. Any other shape is refused.
func (s *Session) rewriteSoftDelete(st Statement, opts DeleteOptions) (Statement, error) {
	m := deleteShape.FindStringSubmatchIndex(codec.MaskLiterals(st.Command))
	if m == nil {
		return st, fmt.Errorf("%w: expected DELETE FROM <table> WHERE <predicate>", ErrUnsupportedDeleteShape)
	}
	table := st.Command[m[2]:m[3]]
	predicate := strings.TrimSpace(st.Command[m[4]:m[5]])
	masked := codec.Mask(st.Command)[m[4]:m[5]]

	switch {
	case predicate == "":
		return st, fmt.Errorf("%w: empty predicate", ErrUnsupportedDeleteShape)
	case strings.Contains(masked, ";"):
		return st, fmt.Errorf("%w: multiple statements", ErrUnsupportedDeleteShape)
	case codec.HasReturning(st.Command):
		return st, fmt.Errorf("%w: RETURNING is not supported", ErrUnsupportedDeleteShape)
	case currentOf.MatchString(masked):
		return st, fmt.Errorf("%w: WHERE CURRENT OF is not supported", ErrUnsupportedDeleteShape)
	}

	cols := s.columns
	ub := core.NewUpdateBuilder(table).
		Placeholder(s.style).
		Set(cols.DeletedAt, s.now().UTC())
	if opts.UserID != nil && cols.DeletedByID != "" {
		ub.Set(cols.DeletedByID, opts.UserID)
	}
	if opts.UserName != "" && cols.DeletedByName != "" {
		ub.Set(cols.DeletedByName, opts.UserName)
	}
	query, args := ub.Where(predicate, st.Values...).Build()

	return Statement{Command: query, Values: args, Tx: st.Tx}, nil
}
