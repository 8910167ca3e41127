package clickhouse

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-data-pipeline/internal/schema"
)

func TestEncodeValue(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, "NULL"},
		{"buy", "'buy'"},
		{"O'Brien", `'O\'Brien'`},
		{`a\b`, `'a\\b'`},
		{true, "1"},
		{false, "0"},
		{float64(50000.5), "50000.5"},
		{int(7), "7"},
		{int64(-3), "-3"},
		{uint64(12), "12"},
		{json.Number("1754446633123"), "1754446633123"},
	}
	for _, tc := range cases {
		got, err := encodeValue(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "value %v", tc.in)
	}
}

func TestEncodeValue_CompositesSerializeAsJSON(t *testing.T) {
	got, err := encodeValue([]any{[]any{"50000.5", "0.25"}})
	require.NoError(t, err)
	assert.Equal(t, `'[["50000.5","0.25"]]'`, got)

	got, err = encodeValue(map[string]any{"a": 1.0})
	require.NoError(t, err)
	assert.Equal(t, `'{"a":1}'`, got)
}

func TestBuildInsert_SingleRow(t *testing.T) {
	tbl, ok := schema.ForTableName("trades")
	require.True(t, ok)

	stmt, err := buildInsert(tbl, []map[string]any{{
		"exchange":  "binance",
		"symbol":    "BTCUSDT",
		"timestamp": "2025-08-06 02:17:13",
		"price":     50000.5,
	}})
	require.NoError(t, err)

	assert.Equal(t,
		"INSERT INTO trades (exchange, symbol, timestamp, price) VALUES "+
			"('binance', 'BTCUSDT', '2025-08-06 02:17:13', 50000.5)",
		stmt)
}

func TestBuildInsert_ColumnUnionWithNulls(t *testing.T) {
	tbl, ok := schema.ForTableName("trades")
	require.True(t, ok)

	// Second row lacks price, first lacks side: the statement covers the
	// union and fills the gaps with NULL.
	stmt, err := buildInsert(tbl, []map[string]any{
		{"exchange": "binance", "symbol": "BTCUSDT", "timestamp": "2025-08-06 02:17:13", "price": 1.0},
		{"exchange": "binance", "symbol": "BTCUSDT", "timestamp": "2025-08-06 02:17:14", "side": "sell"},
	})
	require.NoError(t, err)

	assert.Contains(t, stmt, "(exchange, symbol, timestamp, price, side)")
	assert.Contains(t, stmt, "('binance', 'BTCUSDT', '2025-08-06 02:17:13', 1, NULL)")
	assert.Contains(t, stmt, "('binance', 'BTCUSDT', '2025-08-06 02:17:14', NULL, 'sell')")
}

func TestBuildInsert_ColumnOrderFollowsSchema(t *testing.T) {
	tbl, ok := schema.ForTableName("trades")
	require.True(t, ok)

	// Map iteration order must not leak into the statement.
	stmt, err := buildInsert(tbl, []map[string]any{{
		"side":      "buy",
		"price":     2.0,
		"timestamp": "2025-08-06 02:17:13",
		"exchange":  "binance",
		"symbol":    "BTCUSDT",
		"trade_id":  "t-1",
	}})
	require.NoError(t, err)
	assert.Contains(t, stmt, "(exchange, symbol, timestamp, trade_id, price, side)")
}

func TestBuildInsert_NoMappedColumns(t *testing.T) {
	tbl, ok := schema.ForTableName("trades")
	require.True(t, ok)

	_, err := buildInsert(tbl, []map[string]any{{"bogus": 1.0}})
	assert.Error(t, err)
}
