package inspect

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/malbeclabs/pg-mcp/internal/db"
)

// DefaultLimit is the number of rows FetchRows returns when the caller gives no limit.
const DefaultLimit = 5

const listTablesQuery = `
	SELECT table_name::text
	FROM information_schema.tables
	WHERE table_schema = 'public'
`

// The column and primary key lookups resolve the table through to_regclass, the same way
// the row count statement resolves it, so both agree on case folding and schema
// qualification. An unknown table yields no rows here and fails at the row count.
const describeColumnsQuery = `
	SELECT c.column_name::text, c.data_type::text, c.character_maximum_length::int4, c.column_default::text, c.is_nullable::text
	FROM information_schema.columns c
	JOIN pg_class cl ON cl.relname = c.table_name
	JOIN pg_namespace n ON n.oid = cl.relnamespace AND n.nspname = c.table_schema
	WHERE cl.oid = to_regclass($1::text)
	ORDER BY c.ordinal_position
`

const primaryKeysQuery = `
	SELECT a.attname::text
	FROM pg_index i
	JOIN pg_attribute a ON a.attrelid = i.indrelid
		AND a.attnum = ANY(i.indkey)
	WHERE i.indrelid = to_regclass($1::text)
	AND i.indisprimary
	ORDER BY a.attnum
`

type ColumnDescriptor struct {
	Name      string
	Type      string
	MaxLength *int32
	Default   *string
	Nullable  bool
}

type TableDescriptor struct {
	Name        string
	Columns     []ColumnDescriptor
	PrimaryKeys []string
	RowCount    int64
}

type Config struct {
	Logger         *slog.Logger
	IdentifierMode IdentifierMode
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if cfg.IdentifierMode == "" {
		cfg.IdentifierMode = IdentifierModeQuote
	}
	if _, err := ParseIdentifierMode(string(cfg.IdentifierMode)); err != nil {
		return err
	}
	return nil
}

// Inspector answers catalog questions and fetches sample rows. It holds no connection;
// callers pass the shared one in.
type Inspector struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Inspector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate inspector config: %w", err)
	}
	return &Inspector{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

// ListTables returns the tables of the public schema in catalog order.
func (i *Inspector) ListTables(ctx context.Context, conn db.Conn) ([]string, error) {
	rows, err := conn.Query(ctx, listTablesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	tables, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to read tables: %w", err)
	}
	i.log.Debug("inspect: listed tables", "count", len(tables))
	return tables, nil
}

// DescribeTable runs the column, row count and primary key lookups in that order.
func (i *Inspector) DescribeTable(ctx context.Context, conn db.Conn, table string) (*TableDescriptor, error) {
	columns, err := i.columns(ctx, conn, table)
	if err != nil {
		return nil, err
	}

	count, err := i.rowCount(ctx, conn, table)
	if err != nil {
		return nil, err
	}

	primaryKeys, err := i.primaryKeys(ctx, conn, table)
	if err != nil {
		return nil, err
	}

	return &TableDescriptor{
		Name:        table,
		Columns:     columns,
		PrimaryKeys: primaryKeys,
		RowCount:    count,
	}, nil
}

func (i *Inspector) columns(ctx context.Context, conn db.Conn, table string) ([]ColumnDescriptor, error) {
	rows, err := conn.Query(ctx, describeColumnsQuery, i.cfg.IdentifierMode.Render(table))
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	columns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ColumnDescriptor, error) {
		var col ColumnDescriptor
		var nullable string
		if err := row.Scan(&col.Name, &col.Type, &col.MaxLength, &col.Default, &nullable); err != nil {
			return ColumnDescriptor{}, err
		}
		col.Nullable = nullable == "YES"
		return col, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	return columns, nil
}

func (i *Inspector) rowCount(ctx context.Context, conn db.Conn, table string) (int64, error) {
	rows, err := conn.Query(ctx, "SELECT COUNT(*) FROM "+i.cfg.IdentifierMode.Render(table))
	if err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	count, err := pgx.CollectOneRow(rows, pgx.RowTo[int64])
	if err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return count, nil
}

func (i *Inspector) primaryKeys(ctx context.Context, conn db.Conn, table string) ([]string, error) {
	rows, err := conn.Query(ctx, primaryKeysQuery, i.cfg.IdentifierMode.Render(table))
	if err != nil {
		return nil, fmt.Errorf("failed to query primary keys: %w", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to read primary keys: %w", err)
	}
	return keys, nil
}

// FetchRows returns at most limit rows of table in the database's natural order.
func (i *Inspector) FetchRows(ctx context.Context, conn db.Conn, table string, limit int) (*db.Result, error) {
	sql := fmt.Sprintf("SELECT * FROM %s LIMIT %d", i.cfg.IdentifierMode.Render(table), limit)
	i.log.Debug("inspect: fetching rows", "table", table, "limit", limit)

	rows, err := conn.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	return db.CollectRows(rows)
}
