package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/malbeclabs/pg-mcp/internal/db"
	"github.com/malbeclabs/pg-mcp/internal/format"
	"github.com/malbeclabs/pg-mcp/internal/inspect"
	"github.com/malbeclabs/pg-mcp/internal/server/metrics"
)

type ListTablesInput struct{}

type TableInfoInput struct {
	Table string `json:"table,omitempty" jsonschema:"Name of the table to get information about"`
}

type QueryTableInput struct {
	Table string `json:"table,omitempty" jsonschema:"Name of the table to query"`
	Limit *int   `json:"limit,omitempty" jsonschema:"Maximum number of rows to return (default: 5)"`
}

type ExecuteQueryInput struct {
	Query  string `json:"query,omitempty" jsonschema:"SQL query to execute, using $1, $2, ... placeholders for parameters"`
	Params []any  `json:"params,omitempty" jsonschema:"Optional positional parameters bound to the query placeholders"`
}

type toolHandler[In any] func(ctx context.Context, in In) (string, error)

func (s *Server) registerTools() error {
	if err := addTool(s, opListTables, "List all tables in the public schema of the database.", s.listTables); err != nil {
		return err
	}
	if err := addTool(s, opTableInfo, "Get detailed information about a specific table: columns, primary keys and row count.", s.tableInfo); err != nil {
		return err
	}
	if err := addTool(s, opQueryTable, "Query data from a specific table, returning at most limit rows (default 5).", s.queryTable); err != nil {
		return err
	}
	if err := addTool(s, opExecuteQuery, "Execute a custom SQL query with optional positional parameters. Writes are committed.", s.executeQuery); err != nil {
		return err
	}
	return nil
}

func addTool[In any](s *Server, name, description string, handle toolHandler[In]) error {
	schema, err := jsonschema.For[In](nil)
	if err != nil {
		return fmt.Errorf("failed to create %s input schema: %w", name, err)
	}

	// Arguments are decoded by the handler so that malformed input is reported as tool
	// error text instead of a protocol error.
	s.mcp.AddTool(&mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: schema,
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return s.callTool(ctx, name, func(ctx context.Context) (string, error) {
			var in In
			if err := decodeArguments(req.Params.Arguments, &in); err != nil {
				return "", invalidArgumentsError(name, err)
			}
			return handle(ctx, in)
		}), nil
	})
	return nil
}

func decodeArguments(raw json.RawMessage, in any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	return json.Unmarshal(raw, in)
}

// callTool runs one tool invocation and always produces a single text result.
func (s *Server) callTool(ctx context.Context, name string, fn func(ctx context.Context) (string, error)) (res *mcp.CallToolResult) {
	start := s.clock.Now()
	status := "success"
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("mcp/tool: panic", "tool", name, "panic", r)
			status = "panic"
			res = errorResult(fmt.Sprintf("Error: %v", r))
		}
		metrics.ToolCallsTotal.WithLabelValues(name, status).Inc()
		metrics.ToolCallDuration.WithLabelValues(name).Observe(s.clock.Since(start).Seconds())
	}()

	text, err := fn(ctx)
	if err != nil {
		te := classify(name, "", err)
		status = te.Kind.String()
		s.log.Debug("mcp/tool: call failed", "tool", name, "kind", te.Kind.String(), "error", err)
		return errorResult(te.Text())
	}
	s.log.Debug("mcp/tool: call succeeded", "tool", name, "duration", s.clock.Since(start))
	return textResult(text)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}

func (s *Server) listTables(ctx context.Context, _ ListTablesInput) (string, error) {
	var tables []string
	err := s.db.Do(ctx, func(conn db.Conn) error {
		var err error
		tables, err = s.inspector.ListTables(ctx, conn)
		return err
	})
	if err != nil {
		return "", classify(opListTables, "", err)
	}
	return format.Tables(tables), nil
}

func (s *Server) tableInfo(ctx context.Context, in TableInfoInput) (string, error) {
	if in.Table == "" {
		return "", argumentError(opTableInfo, argTable)
	}
	var desc *inspect.TableDescriptor
	err := s.db.Do(ctx, func(conn db.Conn) error {
		var err error
		desc, err = s.inspector.DescribeTable(ctx, conn, in.Table)
		return err
	})
	if err != nil {
		return "", classify(opTableInfo, in.Table, err)
	}
	return format.TableInfo(desc), nil
}

func (s *Server) queryTable(ctx context.Context, in QueryTableInput) (string, error) {
	if in.Table == "" {
		return "", argumentError(opQueryTable, argTable)
	}
	limit := inspect.DefaultLimit
	if in.Limit != nil {
		limit = *in.Limit
	}
	var res *db.Result
	err := s.db.Do(ctx, func(conn db.Conn) error {
		var err error
		res, err = s.inspector.FetchRows(ctx, conn, in.Table, limit)
		return err
	})
	if err != nil {
		return "", classify(opQueryTable, in.Table, err)
	}
	return format.TableData(in.Table, res), nil
}

func (s *Server) executeQuery(ctx context.Context, in ExecuteQueryInput) (string, error) {
	if in.Query == "" {
		return "", argumentError(opExecuteQuery, argQuery)
	}
	var res *db.Result
	err := s.db.Do(ctx, func(conn db.Conn) error {
		var err error
		res, err = s.executor.Execute(ctx, conn, in.Query, in.Params)
		return err
	})
	if err != nil {
		return "", classify(opExecuteQuery, "", err)
	}
	return format.QueryResult(res), nil
}
