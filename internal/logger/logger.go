package logger

import (
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
)

const (
	// maxSQLAttrLen bounds how much of a caller's SQL text ends up in a log line.
	maxSQLAttrLen = 200

	redacted = "[redacted]"
)

// New returns a tint handler logger writing to w. Debug records are kept only when
// verbose is set.
func New(w io.Writer, verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:       logLevel,
		NoColor:     true,
		ReplaceAttr: replaceAttr,
	}))
}

func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	switch a.Key {
	case slog.TimeKey:
		a.Value = slog.StringValue(formatRFC3339Millis(a.Value.Time()))
		return a
	case "password":
		return slog.String(a.Key, redacted)
	}
	s, ok := a.Value.Any().(string)
	if !ok {
		return a
	}
	if s == "" {
		return slog.Attr{}
	}
	if a.Key == "sql" && len(s) > maxSQLAttrLen {
		return slog.String(a.Key, s[:maxSQLAttrLen]+"...")
	}
	return a
}

func formatRFC3339Millis(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
