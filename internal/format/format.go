// Package format renders catalog and query results as the plain text returned by the tools.
package format

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/malbeclabs/pg-mcp/internal/db"
	"github.com/malbeclabs/pg-mcp/internal/inspect"
)

func Tables(tables []string) string {
	if len(tables) == 0 {
		return "No tables found in the database."
	}
	lines := make([]string, 0, len(tables)+1)
	lines = append(lines, "Available tables:")
	for _, t := range tables {
		lines = append(lines, "- "+t)
	}
	return strings.Join(lines, "\n")
}

func TableInfo(desc *inspect.TableDescriptor) string {
	lines := []string{
		"Table: " + desc.Name,
		"\nColumns:",
	}
	for _, col := range desc.Columns {
		lines = append(lines,
			"- "+col.Name,
			"  Type: "+col.Type,
		)
		if col.MaxLength != nil && *col.MaxLength != 0 {
			lines = append(lines, fmt.Sprintf("  Max Length: %d", *col.MaxLength))
		}
		lines = append(lines, "  Nullable: "+strconv.FormatBool(col.Nullable))
		if col.Default != nil && *col.Default != "" {
			lines = append(lines, "  Default: "+*col.Default)
		}
	}
	lines = append(lines,
		"\nPrimary Keys: "+strings.Join(desc.PrimaryKeys, ", "),
		fmt.Sprintf("Total Rows: %d", desc.RowCount),
	)
	return strings.Join(lines, "\n")
}

func TableData(table string, res *db.Result) string {
	if res.Count() == 0 {
		return "No data found in table " + table
	}
	lines := []string{fmt.Sprintf("Data from %s (showing %d rows):", table, res.Count())}
	return strings.Join(appendRows(lines, res), "\n")
}

func QueryResult(res *db.Result) string {
	if !res.ReturnsRows() {
		return fmt.Sprintf("Query executed successfully. %d rows affected.", res.RowsAffected)
	}
	return strings.Join(appendRows([]string{"Query results:"}, res), "\n")
}

func appendRows(lines []string, res *db.Result) []string {
	for _, row := range res.Rows {
		lines = append(lines, "\nRow:")
		for i, col := range res.Columns {
			var v any
			if i < len(row) {
				v = row[i]
			}
			lines = append(lines, fmt.Sprintf("  %s: %s", col.Name, Value(v, col.OID)))
		}
	}
	return lines
}
