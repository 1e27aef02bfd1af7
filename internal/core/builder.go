// File: internal/core/builder.go
package core

import (
	"fmt"
	"strings"

	"github.com/TechXTT/dal/internal/codec"
)

// UpdateBuilder assembles an UPDATE statement around a predicate that was
// written by someone else. The predicate's own placeholders keep their
// positions; SET values are numbered after them.
type UpdateBuilder struct {
	table     string
	setCols   []string
	setArgs   []any
	where     string
	whereArgs []any
	style     codec.Placeholder
}

func NewUpdateBuilder(table string) *UpdateBuilder {
	return &UpdateBuilder{table: table}
}

// Placeholder selects the parameter syntax of the generated text.
func (ub *UpdateBuilder) Placeholder(p codec.Placeholder) *UpdateBuilder {
	ub.style = p
	return ub
}

// Set adds a "col = <param>" assignment
func (ub *UpdateBuilder) Set(col string, val any) *UpdateBuilder {
	ub.setCols = append(ub.setCols, col)
	ub.setArgs = append(ub.setArgs, val)
	return ub
}

// Where sets the predicate verbatim along with the values it references
func (ub *UpdateBuilder) Where(predicate string, args ...any) *UpdateBuilder {
	ub.where = predicate
	ub.whereArgs = args
	return ub
}

// Build assembles the SQL text and returns it with args in binding order
func (ub *UpdateBuilder) Build() (string, []any) {
	assigns := make([]string, len(ub.setCols))
	for i, col := range ub.setCols {
		assigns[i] = fmt.Sprintf("%s = %s", col, ub.style.Format(len(ub.whereArgs)+i+1))
	}
	parts := []string{"UPDATE", ub.table, "SET", strings.Join(assigns, ", ")}
	if ub.where != "" {
		parts = append(parts, "WHERE", ub.where)
	}
	query := strings.Join(parts, " ")

	args := make([]any, 0, len(ub.setArgs)+len(ub.whereArgs))
	if ub.style == codec.Question {
		// ? parameters bind left to right, and SET precedes WHERE.
		args = append(args, ub.setArgs...)
		args = append(args, ub.whereArgs...)
	} else {
		args = append(args, ub.whereArgs...)
		args = append(args, ub.setArgs...)
	}
	return query, args
}
