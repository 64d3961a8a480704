package query

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/jackc/pgx/v5"

	"github.com/malbeclabs/pg-mcp/internal/db"
)

type Config struct {
	Logger *slog.Logger
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	return nil
}

// Executor runs caller-supplied SQL with bound parameters, one transaction per statement.
type Executor struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate executor config: %w", err)
	}
	return &Executor{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

// Execute runs sql inside its own transaction. Statements that produce a result set
// return their rows; anything else returns the affected-row count. The transaction is
// committed on success and rolled back on any failure, leaving conn usable.
func (e *Executor) Execute(ctx context.Context, conn db.Conn, sql string, params []any) (*db.Result, error) {
	e.log.Debug("query: executing", "sql", sql, "params", len(params))

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	res, err := run(ctx, tx, sql, params)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			e.log.Warn("query: failed to rollback transaction", "error", rbErr)
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	e.log.Debug("query: executed", "rows", res.Count(), "rowsAffected", res.RowsAffected)
	return res, nil
}

func run(ctx context.Context, tx pgx.Tx, sql string, params []any) (*db.Result, error) {
	rows, err := tx.Query(ctx, sql, queryArgs(params)...)
	if err != nil {
		return nil, err
	}
	return db.CollectRows(rows)
}

// queryArgs binds params through the extended protocol. Without params the statement is
// sent with the simple protocol, which accepts several semicolon-separated statements.
// The result set and affected-row count are those of the first statement.
func queryArgs(params []any) []any {
	if len(params) == 0 {
		return []any{pgx.QueryExecModeSimpleProtocol}
	}
	return NormalizeParams(params)
}

// NormalizeParams converts whole JSON numbers to int64 so they bind to integer columns.
// Everything else passes through unchanged.
func NormalizeParams(params []any) []any {
	if len(params) == 0 {
		return nil
	}
	out := make([]any, len(params))
	for i, p := range params {
		out[i] = normalizeParam(p)
	}
	return out
}

func normalizeParam(p any) any {
	f, ok := p.(float64)
	if !ok {
		return p
	}
	if f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < 1<<53 {
		return int64(f)
	}
	return f
}
