package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/malbeclabs/pg-mcp/internal/db"
)

// ErrorKind is the closed set of failures a tool call can report.
type ErrorKind int

const (
	ErrorKindConnection ErrorKind = iota + 1
	ErrorKindArgument
	ErrorKindExecution
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindConnection:
		return "connection"
	case ErrorKindArgument:
		return "argument"
	case ErrorKindExecution:
		return "execution"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// ToolError is a failed tool call. It is turned into text only when the result is built.
type ToolError struct {
	Kind ErrorKind
	// Op is the failing operation, one of the op* constants.
	Op string
	// Subject is the table name for table-scoped operations, or the missing argument.
	Subject string
	Err     error
}

const (
	opListTables    = "list_tables"
	opTableInfo     = "get_table_info"
	opQueryTable    = "query_table"
	opExecuteQuery  = "execute_query"
	argTable        = "table name"
	argQuery        = "query"
	connectionError = "Error: Could not connect to database"
)

func (e *ToolError) Error() string {
	return e.Text()
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Text is the message returned to the caller.
func (e *ToolError) Text() string {
	switch e.Kind {
	case ErrorKindConnection:
		return connectionError
	case ErrorKindArgument:
		if e.Err != nil {
			return "Error: " + e.Err.Error()
		}
		return fmt.Sprintf("Error: %s is required", e.Subject)
	}

	msg := "<nil>"
	if e.Err != nil {
		msg = e.Err.Error()
	}
	switch e.Op {
	case opListTables:
		return "Error listing tables: " + msg
	case opTableInfo:
		return fmt.Sprintf("Error getting table info for %s: %s", e.Subject, msg)
	case opQueryTable:
		return fmt.Sprintf("Error querying table %s: %s", e.Subject, msg)
	case opExecuteQuery:
		return "Error executing query: " + msg
	default:
		return "Error: " + msg
	}
}

func argumentError(op, arg string) *ToolError {
	return &ToolError{Kind: ErrorKindArgument, Op: op, Subject: arg}
}

// invalidArgumentsError reports arguments that could not be decoded into the tool's input.
func invalidArgumentsError(op string, err error) *ToolError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		err = fmt.Errorf("invalid value for %s: expected %s, got %s", typeErr.Field, jsonTypeName(typeErr.Type), typeErr.Value)
	} else {
		err = fmt.Errorf("invalid arguments: %w", err)
	}
	return &ToolError{Kind: ErrorKindArgument, Op: op, Err: err}
}

func jsonTypeName(t reflect.Type) string {
	if t == nil {
		return "value"
	}
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	default:
		return t.String()
	}
}

// classify turns a handler error into a ToolError. Connection failures are reported as
// such regardless of the operation.
func classify(op, subject string, err error) *ToolError {
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	if errors.Is(err, db.ErrNotConnected) {
		return &ToolError{Kind: ErrorKindConnection, Op: op, Subject: subject, Err: err}
	}
	return &ToolError{Kind: ErrorKindExecution, Op: op, Subject: subject, Err: err}
}
