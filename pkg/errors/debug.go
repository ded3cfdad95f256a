package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresDetail carries the server-side fields of a pgconn.PgError.
type PostgresDetail struct {
	Code       string `json:"pg_code"`
	Constraint string `json:"pg_constraint,omitempty"`
	Table      string `json:"pg_table,omitempty"`
	Column     string `json:"pg_column,omitempty"`
	Detail     string `json:"pg_detail,omitempty"`
	Message    string `json:"pg_message,omitempty"`
}

type ErrorDump struct {
	TopMessage string          `json:"top_message"`
	Code       Code            `json:"code,omitempty"`
	Codes      []Code          `json:"codes,omitempty"`
	Chain      []string        `json:"chain,omitempty"`
	Postgres   *PostgresDetail `json:"postgres,omitempty"`
}

// Dump flattens an error chain for structured logs. Codes lists every coded
// layer outermost first; Postgres is set only on the postgres driver.
func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
		if typed, ok := e.(*Error); ok && typed != nil {
			d.Codes = append(d.Codes, typed.code)
		}
	}
	if len(d.Codes) > 0 {
		d.Code = d.Codes[0]
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		d.Postgres = &PostgresDetail{
			Code:       pgErr.Code,
			Constraint: pgErr.ConstraintName,
			Table:      pgErr.TableName,
			Column:     pgErr.ColumnName,
			Detail:     pgErr.Detail,
			Message:    pgErr.Message,
		}
	}
	return d
}

// Fields renders the dump as flat log fields.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.TopMessage,
		"error_code":  d.Code,
		"error_chain": d.Chain,
	}
	if len(d.Codes) > 1 {
		fields["error_codes"] = d.Codes
	}
	if pg := d.Postgres; pg != nil {
		fields["pg_code"] = pg.Code
		fields["pg_table"] = pg.Table
		fields["pg_constraint"] = pg.Constraint
		fields["pg_message"] = pg.Message
	}
	return fields
}
