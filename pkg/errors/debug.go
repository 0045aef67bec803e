package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// SQLSTATE classes surfaced in logs. Anything else is reported by raw code.
var sqlStateClasses = map[string]string{
	"23505": "unique_violation",
	"23514": "check_violation",
	"23503": "foreign_key_violation",
	"40001": "serialization_failure",
	"40P01": "deadlock_detected",
	"55P03": "lock_not_available",
	"57014": "query_canceled",
}

// Diagnostics is the log-only view of an error. It is never rendered to
// clients.
type Diagnostics struct {
	Message   string
	Code      Code
	Retryable bool
	Chain     []string

	SQLState   string
	SQLClass   string
	Constraint string
	Table      string
	Detail     string
}

// Diagnose walks the chain of err, lifting the typed code and any database
// driver details it finds. Both pgx and lib/pq errors are recognised; sqlite
// failures are classified from their message text.
func Diagnose(err error) Diagnostics {
	if err == nil {
		return Diagnostics{}
	}
	d := Diagnostics{Message: err.Error()}
	if typed := As(err); typed != nil {
		d.Code = typed.Code()
		d.Retryable = MetadataFor(d.Code).Retryable
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgxErr):
		d.SQLState = pgxErr.Code
		d.Constraint = pgxErr.ConstraintName
		d.Table = pgxErr.TableName
		d.Detail = pgxErr.Detail
	case errors.As(err, &pqErr):
		d.SQLState = string(pqErr.Code)
		d.Constraint = pqErr.Constraint
		d.Table = pqErr.Table
		d.Detail = pqErr.Detail
	case strings.Contains(d.Message, "UNIQUE constraint failed"):
		d.SQLState = "23505"
	case strings.Contains(d.Message, "CHECK constraint failed"):
		d.SQLState = "23514"
	}
	d.SQLClass = sqlStateClasses[d.SQLState]
	return d
}

// Fields flattens the diagnostics for structured logging, omitting empty
// driver details.
func (d Diagnostics) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.Message,
		"error_chain": d.Chain,
	}
	if d.Code != "" {
		fields["error_code"] = d.Code
		fields["retryable"] = d.Retryable
	}
	if d.SQLState == "" {
		return fields
	}
	fields["sql_state"] = d.SQLState
	if d.SQLClass != "" {
		fields["sql_class"] = d.SQLClass
	}
	for key, val := range map[string]string{
		"sql_constraint": d.Constraint,
		"sql_table":      d.Table,
		"sql_detail":     d.Detail,
	} {
		if val != "" {
			fields[key] = val
		}
	}
	return fields
}
