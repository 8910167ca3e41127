package schema

import "market-data-pipeline/internal/domain"

// resolver is one column-value resolution strategy. Strategies are
// evaluated in order; the first hit wins.
type resolver func(rec *domain.Record, col Column) (any, bool)

// resolution order: payload field by column name, payload field by
// alias, record envelope (exchange/symbol/timestamp), configured default.
var resolvers = []resolver{
	resolveField,
	resolveAlias,
	resolveEnvelope,
	resolveDefault,
}

func resolveField(rec *domain.Record, col Column) (any, bool) {
	v, ok := rec.Fields[col.Name]
	return v, ok
}

func resolveAlias(rec *domain.Record, col Column) (any, bool) {
	for _, alias := range col.Aliases {
		if v, ok := rec.Fields[alias]; ok {
			return v, true
		}
	}
	return nil, false
}

func resolveEnvelope(rec *domain.Record, col Column) (any, bool) {
	switch col.Name {
	case "exchange":
		if rec.Exchange != "" {
			return rec.Exchange, true
		}
	case "symbol":
		if rec.Symbol != "" {
			return rec.Symbol, true
		}
	case "timestamp":
		if rec.Timestamp != "" {
			return rec.Timestamp, true
		}
	}
	return nil, false
}

func resolveDefault(_ *domain.Record, col Column) (any, bool) {
	if col.Default != nil {
		return col.Default, true
	}
	return nil, false
}

// MapRecord converts a raw record into the table's column->value map.
// Columns that resolve nowhere are omitted; a record that yields zero
// columns, or no value for its table's time column, returns nil and is
// dropped by the caller. Time-like values are canonicalized here, never
// earlier, so a failed insert requeues the original untouched record.
func MapRecord(rec *domain.Record, tbl Table) map[string]any {
	if rec == nil {
		return nil
	}

	row := make(map[string]any, len(tbl.Columns))
	for _, col := range tbl.Columns {
		for _, resolve := range resolvers {
			v, ok := resolve(rec, col)
			if !ok {
				continue
			}
			if col.TimeField || IsTimeLikeField(col.Name) {
				v = NormalizeTimeValue(v)
			}
			row[col.Name] = v
			break
		}
	}

	if len(row) == 0 {
		return nil
	}
	// The time column is non-Nullable in the stores: a record that
	// cannot produce one would fail its whole batch, so it is a
	// per-record mapping error instead.
	if tbl.TimeColumn != "" {
		if _, ok := row[tbl.TimeColumn]; !ok {
			return nil
		}
	}
	return row
}
