package db

import (
	"fmt"

	"github.com/jackc/pgx/v5"
)

type Column struct {
	Name string
	// OID is the column's PostgreSQL type OID, used to pick a textual rendering.
	OID uint32
}

// Row holds one value per Result column, in column order.
type Row []any

// Result is the outcome of a single statement. Statements that describe result columns
// carry Rows; all others carry only RowsAffected.
type Result struct {
	Columns      []Column
	Rows         []Row
	RowsAffected int64
}

// ReturnsRows reports whether the statement produced a result set.
func (r *Result) ReturnsRows() bool {
	return len(r.Columns) > 0
}

func (r *Result) Count() int {
	return len(r.Rows)
}

// CollectRows drains and closes rows. Whether the statement returned rows is decided from
// the result's field descriptions, never from the SQL text.
func CollectRows(rows pgx.Rows) (*Result, error) {
	defer rows.Close()

	res := &Result{}
	for _, fd := range rows.FieldDescriptions() {
		res.Columns = append(res.Columns, Column{Name: fd.Name, OID: fd.DataTypeOID})
	}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}
		res.Rows = append(res.Rows, Row(values))
	}

	// The command tag is only available once the rows are closed.
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if !res.ReturnsRows() {
		res.RowsAffected = rows.CommandTag().RowsAffected()
	}
	return res, nil
}
