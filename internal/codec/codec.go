// Package codec converts between the access layer's generic values and
// driver-native ones: positional parameter binding on the way in, row
// mappings on the way out.
package codec

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Row maps column names to decoded values. When a result carries the same
// column name twice, the right-most column wins.
type Row map[string]any

// Bind converts caller values into values database/sql hands to the driver.
// Slices are bound as PostgreSQL arrays and maps as JSON documents.
func Bind(values []any) ([]any, error) {
	out := make([]any, len(values))
	for i, v := range values {
		bv, err := bindValue(v)
		if err != nil {
			return nil, fmt.Errorf("bind value $%d: %w", i+1, err)
		}
		out[i] = bv
	}
	return out, nil
}

func bindValue(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case driver.Valuer:
		return x, nil
	case string, bool, int64, float64, time.Time:
		return x, nil
	case []byte:
		return x, nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint:
		return uintValue(uint64(x))
	case uint64:
		return uintValue(x)
	case float32:
		return float64(x), nil
	case []string, []int64, []int32, []float64, []float32, []bool, [][]byte:
		return pq.Array(x), nil
	case []int:
		ints := make([]int64, len(x))
		for i, n := range x {
			ints[i] = int64(n)
		}
		return pq.Array(ints), nil
	case json.RawMessage:
		return []byte(x), nil
	case map[string]any:
		return json.Marshal(x)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		return bindValue(rv.Elem().Interface())
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return uintValue(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return rv.Bytes(), nil
		}
		return pq.GenericArray{A: v}, nil
	case reflect.Array:
		return pq.GenericArray{A: v}, nil
	case reflect.Map, reflect.Struct:
		return json.Marshal(v)
	}
	return nil, fmt.Errorf("unsupported parameter type %T", v)
}

func uintValue(u uint64) (any, error) {
	if u > math.MaxInt64 {
		return nil, fmt.Errorf("unsigned value %d overflows int64", u)
	}
	return int64(u), nil
}

// DecodeRows reads every remaining row of rows. It never returns a nil
// slice on success. The caller still owns rows and must close it.
func DecodeRows(rows *sql.Rows) ([]Row, error) {
	return decode(rows, -1)
}

// DecodeFirst reads at most one row. ok is false when the result is empty.
func DecodeFirst(rows *sql.Rows) (Row, bool, error) {
	out, err := decode(rows, 1)
	if err != nil || len(out) == 0 {
		return nil, false, err
	}
	return out[0], true, nil
}

func decode(rows *sql.Rows, limit int) ([]Row, error) {
	cols, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}
	names := make([]string, len(cols))
	types := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name()
		types[i] = CanonicalType(c.DatabaseTypeName())
	}

	result := []Row{}
	for (limit < 0 || len(result) < limit) && rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(Row, len(cols))
		for i, name := range names {
			v, err := DecodeValue(types[i], raw[i])
			if err != nil {
				return nil, fmt.Errorf("decode column %s: %w", name, err)
			}
			row[name] = v
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return result, nil
}

// DecodeValue turns a scanned driver value into its generic form, given the
// column's canonical type (see CanonicalType).
func DecodeValue(canonical string, v any) (any, error) {
	var text []byte
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		text = x
	case string:
		if !strings.HasPrefix(canonical, "_") && canonical != "JSON" {
			return x, nil
		}
		text = []byte(x)
	default:
		return v, nil
	}

	switch {
	case canonical == "BYTEA":
		return append([]byte(nil), text...), nil
	case canonical == "JSON":
		var doc any
		if err := json.Unmarshal(text, &doc); err != nil {
			return nil, err
		}
		return doc, nil
	case strings.HasPrefix(canonical, "_"):
		return decodeArray(canonical[1:], text)
	default:
		return string(text), nil
	}
}

func decodeArray(elem string, text []byte) (any, error) {
	switch elem {
	case "INTEGER":
		var a pq.Int64Array
		err := a.Scan(text)
		return []int64(a), err
	case "REAL":
		var a pq.Float64Array
		err := a.Scan(text)
		return []float64(a), err
	case "BOOLEAN":
		var a pq.BoolArray
		err := a.Scan(text)
		return []bool(a), err
	case "BYTEA":
		var a pq.ByteaArray
		err := a.Scan(text)
		return [][]byte(a), err
	default:
		var a pq.StringArray
		err := a.Scan(text)
		return []string(a), err
	}
}

// CanonicalType normalizes driver type names so decoding can branch on a
// small set of families. Array types keep their leading underscore.
func CanonicalType(typ string) string {
	t := strings.ToUpper(strings.TrimSpace(typ))
	if strings.HasPrefix(t, "_") {
		return "_" + CanonicalType(t[1:])
	}
	switch t {
	case "INT2", "INT4", "INT8", "INTEGER", "SMALLINT", "BIGINT", "SERIAL", "BIGSERIAL":
		return "INTEGER"
	case "BOOL", "BOOLEAN":
		return "BOOLEAN"
	case "TEXT", "VARCHAR", "BPCHAR", "CHAR", "NAME", "CITEXT":
		return "TEXT"
	case "REAL", "FLOAT4", "FLOAT8", "DOUBLE PRECISION":
		return "REAL"
	case "NUMERIC", "DECIMAL", "MONEY":
		return "NUMERIC"
	case "TIMESTAMP", "TIMESTAMPTZ", "DATE", "TIME", "TIMETZ":
		return "TIMESTAMP"
	case "JSON", "JSONB":
		return "JSON"
	case "UUID":
		return "UUID"
	case "BYTEA":
		return "BYTEA"
	default:
		return t
	}
}
