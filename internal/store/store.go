package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Errors returned for business rule violations. Handlers map them to HTTP
// statuses with errors.Is.
var (
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrInsufficientQuantity = errors.New("insufficient quantity")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrValidation           = errors.New("validation failed")
	ErrLastAdmin            = errors.New("cannot delete the last admin")
	ErrCommanderTaken       = errors.New("base already has a commander assigned")
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// now returns the current time in UTC. Tests may replace it.
var now = func() time.Time { return time.Now().UTC() }

// constraintError translates SQLite constraint failures into store errors.
// Other errors are wrapped with the given context.
func constraintError(err error, doing string) error {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%s: %w: duplicate value", doing, ErrConflict)
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%s: %w: record is referenced or missing", doing, ErrConflict)
		case sqlite3.SQLITE_CONSTRAINT_CHECK, sqlite3.SQLITE_CONSTRAINT_NOTNULL:
			return fmt.Errorf("%s: %w: %s", doing, ErrValidation, se.Error())
		case sqlite3.SQLITE_CONSTRAINT:
			return fmt.Errorf("%s: %w: %s", doing, ErrConflict, se.Error())
		}
	}
	return fmt.Errorf("%s: %w", doing, err)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullID maps the zero ID to NULL for optional user references.
func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id > 0}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

// inClause returns "(?, ?, ...)" for n placeholders and the ids as args.
func inClause(ids []int64) (string, []any) {
	if len(ids) == 0 {
		return "(NULL)", nil
	}
	s := "("
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			s += ", "
		}
		s += "?"
		args[i] = id
	}
	return s + ")", args
}
