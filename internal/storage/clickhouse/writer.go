package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"market-data-pipeline/internal/schema"
	"market-data-pipeline/internal/storage"
)

// Writer implements storage.HotWriter using one multi-row INSERT per
// flush. The statement covers the union of configured columns with NULL
// where a row lacks a value, so one flush is one round trip.
type Writer struct {
	conn *Conn
}

// NewWriter creates a bulk writer on the given connection.
func NewWriter(conn *Conn) *Writer {
	return &Writer{conn: conn}
}

// Compile-time interface check.
var _ storage.HotWriter = (*Writer)(nil)

// InsertRows inserts cleaned rows into table as a single statement.
// Fails atomically from the caller's perspective: any error covers the
// whole batch and triggers the coordinator's requeue path.
func (w *Writer) InsertRows(ctx context.Context, table string, rows []map[string]any) error {
	if len(rows) == 0 {
		return nil
	}

	tbl, ok := schema.ForTableName(table)
	if !ok {
		return fmt.Errorf("unknown table %q", table)
	}

	stmt, err := buildInsert(tbl, rows)
	if err != nil {
		return fmt.Errorf("build insert for %s: %w", table, err)
	}

	if err := w.conn.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("bulk insert %d rows into %s: %w", len(rows), table, err)
	}
	return nil
}

// buildInsert renders the multi-row INSERT. Column order follows the
// schema; only columns present in at least one row are included.
func buildInsert(tbl schema.Table, rows []map[string]any) (string, error) {
	var columns []string
	for _, name := range tbl.ColumnNames() {
		for _, row := range rows {
			if _, ok := row[name]; ok {
				columns = append(columns, name)
				break
			}
		}
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("no mapped columns in batch")
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(tbl.Name)
	sb.WriteString(" (")
	sb.WriteString(strings.Join(columns, ", "))
	sb.WriteString(") VALUES ")

	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j, col := range columns {
			if j > 0 {
				sb.WriteString(", ")
			}
			v, ok := row[col]
			if !ok {
				sb.WriteString("NULL")
				continue
			}
			lit, err := encodeValue(v)
			if err != nil {
				return "", fmt.Errorf("encode column %s: %w", col, err)
			}
			sb.WriteString(lit)
		}
		sb.WriteString(")")
	}

	return sb.String(), nil
}

// encodeValue renders one value as a SQL literal: strings quoted and
// escaped, booleans as 0/1, composites as serialized JSON text.
func encodeValue(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "NULL", nil
	case string:
		return quoteString(val), nil
	case bool:
		if val {
			return "1", nil
		}
		return "0", nil
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32), nil
	case int:
		return strconv.Itoa(val), nil
	case int32:
		return strconv.FormatInt(int64(val), 10), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case uint64:
		return strconv.FormatUint(val, 10), nil
	case json.Number:
		return val.String(), nil
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return "", err
		}
		return quoteString(string(b)), nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return "", fmt.Errorf("unsupported value type %T", v)
		}
		return quoteString(string(b)), nil
	}
}

// quoteString escapes backslashes and single quotes for ClickHouse.
func quoteString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}
