package format

import (
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const (
	dateLayout        = "2006-01-02"
	timestampLayout   = "2006-01-02T15:04:05.999999"
	timestamptzLayout = "2006-01-02T15:04:05.999999-07:00"
)

// Value renders one decoded column value. oid is the column's type OID and only affects
// time values.
func Value(v any, oid uint32) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int16:
		return strconv.FormatInt(int64(v), 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case float32:
		return formatFloat(float64(v), 32)
	case float64:
		return formatFloat(v, 64)
	case pgtype.Numeric:
		return numeric(v)
	case time.Time:
		return timestamp(v, oid)
	case [16]byte:
		return uuid.UUID(v).String()
	case []byte:
		return `\x` + hex.EncodeToString(v)
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	case fmt.Stringer:
		return v.String()
	case driver.Valuer:
		dv, err := v.Value()
		if err != nil {
			return fmt.Sprint(v)
		}
		if _, ok := dv.(driver.Valuer); ok {
			return fmt.Sprint(dv)
		}
		return Value(dv, oid)
	default:
		return fmt.Sprint(v)
	}
}

// formatFloat uses plain decimal notation in the usual magnitude range and exponent
// notation outside it.
func formatFloat(f float64, bitSize int) string {
	abs := math.Abs(f)
	if abs == 0 || (abs >= 1e-4 && abs < 1e16) {
		return strconv.FormatFloat(f, 'f', -1, bitSize)
	}
	return strconv.FormatFloat(f, 'g', -1, bitSize)
}

// numeric renders through float64. Precision beyond float64 is lost.
func numeric(n pgtype.Numeric) string {
	if !n.Valid {
		return "NULL"
	}
	f, err := n.Float64Value()
	if err != nil || !f.Valid {
		if b, err := n.MarshalJSON(); err == nil {
			return string(b)
		}
		return fmt.Sprint(n)
	}
	return formatFloat(f.Float64, 64)
}

func timestamp(t time.Time, oid uint32) string {
	switch oid {
	case pgtype.DateOID:
		return t.Format(dateLayout)
	case pgtype.TimestampOID:
		return t.Format(timestampLayout)
	default:
		return t.Format(timestamptzLayout)
	}
}
