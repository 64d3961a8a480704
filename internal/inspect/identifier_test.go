package inspect

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPGMCP_Inspect_ParseIdentifierMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    IdentifierMode
		wantErr bool
	}{
		{in: "", want: IdentifierModeQuote},
		{in: "quote", want: IdentifierModeQuote},
		{in: " RAW ", want: IdentifierModeRaw},
		{in: "escape", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseIdentifierMode(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				require.Contains(t, err.Error(), "unknown identifier mode")
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestPGMCP_Inspect_IdentifierMode_Render(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		mode  IdentifierMode
		table string
		want  string
	}{
		{name: "quote simple", mode: IdentifierModeQuote, table: "users", want: `"users"`},
		{name: "quote qualified", mode: IdentifierModeQuote, table: "public.users", want: `"public"."users"`},
		{name: "quote embedded quote", mode: IdentifierModeQuote, table: `we"ird`, want: `"we""ird"`},
		{name: "quote injection attempt", mode: IdentifierModeQuote, table: "users; DROP TABLE users", want: `"users; DROP TABLE users"`},
		{name: "raw", mode: IdentifierModeRaw, table: "Users", want: "Users"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, tt.mode.Render(tt.table))
		})
	}
}
