package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// StoreFailure is the Postgres side of a failed statement, read from either
// driver.
type StoreFailure struct {
	SQLState   string
	Constraint string
	Table      string
	Column     string
}

// Trace is the structured part of a failure's log line: error types and the
// Postgres constraint involved, never message text.
type Trace struct {
	Code  Code
	Chain []string
	Store *StoreFailure
}

func TraceOf(err error) Trace {
	var t Trace
	if err == nil {
		return t
	}
	t.Code = As(err).Code()
	for e := err; e != nil; e = errors.Unwrap(e) {
		step := fmt.Sprintf("%T", e)
		if typed, ok := e.(*Error); ok {
			step += "(" + string(typed.code) + ")"
		}
		t.Chain = append(t.Chain, step)
	}
	t.Store = storeFailure(err)
	return t
}

func storeFailure(err error) *StoreFailure {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return &StoreFailure{
			SQLState:   pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &StoreFailure{
			SQLState:   string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
		}
	}
	return nil
}

// Fields flattens t into log fields.
func (t Trace) Fields() map[string]any {
	fields := map[string]any{
		"error_code":  t.Code,
		"error_chain": t.Chain,
	}
	if s := t.Store; s != nil {
		fields["pg_code"] = s.SQLState
		fields["pg_constraint"] = s.Constraint
		fields["pg_table"] = s.Table
		fields["pg_column"] = s.Column
	}
	return fields
}
