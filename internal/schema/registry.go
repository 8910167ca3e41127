// Package schema is the static table registry: it maps each data type to
// its hot/cold table, the ordered column set, per-column defaults and
// aliases, and owns record-to-row mapping.
package schema

import "market-data-pipeline/internal/domain"

// Column describes one target column of a table.
type Column struct {
	Name string
	// Aliases are alternative payload field names checked when the
	// column name itself is absent from the record.
	Aliases []string
	// Default is used when neither the column name nor any alias
	// resolves. A nil Default means the column is omitted instead.
	Default any
	// TimeField marks columns whose values pass through timestamp
	// canonicalization.
	TimeField bool
}

// Table describes one logical table shared by the hot and cold stores.
type Table struct {
	Name string
	// TimeColumn is the column replication windows are computed over.
	TimeColumn string
	Columns    []Column
}

// ColumnNames returns the ordered column names.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// common columns shared by every table. The source tag defaults to
// "unknown" rather than failing the record.
func commonColumns() []Column {
	return []Column{
		{Name: "exchange", Default: "unknown"},
		{Name: "symbol", Default: ""},
		{Name: "timestamp", Aliases: []string{"ts", "time"}, TimeField: true},
	}
}

func table(name string, extra ...Column) Table {
	return Table{
		Name:       name,
		TimeColumn: "timestamp",
		Columns:    append(commonColumns(), extra...),
	}
}

// registry maps data type to table schema. Configuration expressed as
// code; immutable at runtime.
var registry = map[domain.DataType]Table{
	domain.TypeOrderbook: table("orderbooks",
		Column{Name: "best_bid_price", Aliases: []string{"bid_price"}},
		Column{Name: "best_bid_qty", Aliases: []string{"bid_qty"}},
		Column{Name: "best_ask_price", Aliases: []string{"ask_price"}},
		Column{Name: "best_ask_qty", Aliases: []string{"ask_qty"}},
		Column{Name: "bids"},
		Column{Name: "asks"},
	),
	domain.TypeTrade: table("trades",
		Column{Name: "trade_id", Aliases: []string{"id"}},
		Column{Name: "price"},
		Column{Name: "quantity", Aliases: []string{"qty", "amount"}},
		Column{Name: "side"},
		Column{Name: "is_buyer_maker", Aliases: []string{"buyer_maker"}, Default: false},
	),
	domain.TypeFundingRate: table("funding_rates",
		Column{Name: "funding_rate", Aliases: []string{"rate"}},
		Column{Name: "next_funding_time", TimeField: true},
		Column{Name: "mark_price"},
		Column{Name: "index_price"},
	),
	domain.TypeOpenInterest: table("open_interests",
		Column{Name: "open_interest", Aliases: []string{"oi"}},
		Column{Name: "open_interest_value", Aliases: []string{"oi_value"}},
	),
	domain.TypeLiquidation: table("liquidations",
		Column{Name: "price"},
		Column{Name: "quantity", Aliases: []string{"qty", "amount"}},
		Column{Name: "side"},
		Column{Name: "order_type", Default: "unknown"},
	),
	domain.TypeLSRTopPosition: table("lsr_top_positions",
		Column{Name: "long_short_ratio", Aliases: []string{"ratio"}},
		Column{Name: "long_position", Aliases: []string{"long"}},
		Column{Name: "short_position", Aliases: []string{"short"}},
	),
	domain.TypeLSRAllAccount: table("lsr_all_accounts",
		Column{Name: "long_short_ratio", Aliases: []string{"ratio"}},
		Column{Name: "long_account", Aliases: []string{"long"}},
		Column{Name: "short_account", Aliases: []string{"short"}},
	),
	domain.TypeVolatilityIndex: table("volatility_indices",
		Column{Name: "volatility_index", Aliases: []string{"vol_index", "value"}},
		Column{Name: "underlying"},
	),
}

// ForTableName returns the table schema by table name.
func ForTableName(name string) (Table, bool) {
	for _, tbl := range registry {
		if tbl.Name == name {
			return tbl, true
		}
	}
	return Table{}, false
}

// ForType returns the table schema for a data type.
func ForType(t domain.DataType) (Table, bool) {
	tbl, ok := registry[t]
	return tbl, ok
}

// Tables returns all table schemas in data-type order.
func Tables() []Table {
	types := domain.AllDataTypes()
	tables := make([]Table, 0, len(types))
	for _, t := range types {
		tables = append(tables, registry[t])
	}
	return tables
}

// TableNames returns all table names in data-type order.
func TableNames() []string {
	tables := Tables()
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.Name
	}
	return names
}
