package storage

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNotFound is returned when no live row matches a lookup
var ErrNotFound = errors.New("not found")

// ErrConflict is matched by every *ConflictError
var ErrConflict = errors.New("already exists")

// ConflictError reports a uniqueness violation among live rows
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// Is reports whether target is ErrConflict
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// Conflictf builds a ConflictError with a formatted message
func Conflictf(format string, args ...interface{}) error {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// InvalidError reports input a store refuses before touching the database
type InvalidError struct {
	Message string
}

func (e *InvalidError) Error() string {
	return e.Message
}

// Invalidf builds an InvalidError with a formatted message
func Invalidf(format string, args ...interface{}) error {
	return &InvalidError{Message: fmt.Sprintf(format, args...)}
}

// Scope accumulates WHERE conditions for a single query. A scope excludes
// soft-deleted rows unless WithDeleted is called.
type Scope struct {
	alias       string
	conds       []string
	args        []interface{}
	withDeleted bool
}

// Live starts a scope that filters out soft-deleted rows
func Live() *Scope {
	return &Scope{}
}

// LiveOn starts a live scope for a table referenced by alias
func LiveOn(alias string) *Scope {
	return &Scope{alias: alias}
}

// Where adds a condition. '?' placeholders are numbered when SQL is rendered.
func (s *Scope) Where(cond string, args ...interface{}) *Scope {
	s.conds = append(s.conds, cond)
	s.args = append(s.args, args...)
	return s
}

// WhereIf adds the condition only when ok is true
func (s *Scope) WhereIf(ok bool, cond string, args ...interface{}) *Scope {
	if !ok {
		return s
	}
	return s.Where(cond, args...)
}

// WithDeleted disables the soft-delete filter for this scope
func (s *Scope) WithDeleted() *Scope {
	s.withDeleted = true
	return s
}

// SQL renders the WHERE clause (with a leading space) and its arguments
func (s *Scope) SQL() (string, []interface{}) {
	return s.SQLFrom(1)
}

// SQLFrom renders the clause numbering placeholders from start, for queries
// that already bind arguments before the WHERE clause
func (s *Scope) SQLFrom(start int) (string, []interface{}) {
	conds := make([]string, 0, len(s.conds)+1)
	if !s.withDeleted {
		column := "deleted_at"
		if s.alias != "" {
			column = s.alias + ".deleted_at"
		}
		conds = append(conds, column+" IS NULL")
	}
	conds = append(conds, s.conds...)
	if len(conds) == 0 {
		return "", nil
	}

	clause := " WHERE " + strings.Join(conds, " AND ")
	return numberPlaceholders(clause, start), s.args
}

// numberPlaceholders rewrites each '?' to $n
func numberPlaceholders(query string, start int) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := start
	for _, r := range query {
		if r == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Placeholders renders "$start, $start+1, ..." for an IN list of n items
func Placeholders(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "$" + strconv.Itoa(start+i)
	}
	return strings.Join(parts, ", ")
}
