package inspect

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// IdentifierMode controls how caller-supplied table names are written into the
// row-count and row-fetch statements, which cannot use parameter binding.
type IdentifierMode string

const (
	// IdentifierModeQuote quotes each dot-separated part of the name.
	IdentifierModeQuote IdentifierMode = "quote"
	// IdentifierModeRaw writes the name verbatim. Names are then parsed as SQL, so mixed
	// case folds and anything else the caller sends is executed.
	IdentifierModeRaw IdentifierMode = "raw"
)

func ParseIdentifierMode(s string) (IdentifierMode, error) {
	switch mode := IdentifierMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case IdentifierModeQuote, IdentifierModeRaw:
		return mode, nil
	case "":
		return IdentifierModeQuote, nil
	default:
		return "", fmt.Errorf("unknown identifier mode %q (want %q or %q)", s, IdentifierModeQuote, IdentifierModeRaw)
	}
}

func (m IdentifierMode) Render(name string) string {
	if m == IdentifierModeRaw {
		return name
	}
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}
