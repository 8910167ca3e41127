package domain

// DataType identifies a class of market data. Each type maps to one hot
// table and one batch policy.
type DataType string

const (
	TypeOrderbook       DataType = "orderbook"
	TypeTrade           DataType = "trade"
	TypeFundingRate     DataType = "funding_rate"
	TypeOpenInterest    DataType = "open_interest"
	TypeLiquidation     DataType = "liquidation"
	TypeLSRTopPosition  DataType = "lsr_top_position"
	TypeLSRAllAccount   DataType = "lsr_all_account"
	TypeVolatilityIndex DataType = "volatility_index"
)

// AllDataTypes returns every known data type in a stable order.
func AllDataTypes() []DataType {
	return []DataType{
		TypeOrderbook,
		TypeTrade,
		TypeFundingRate,
		TypeOpenInterest,
		TypeLiquidation,
		TypeLSRTopPosition,
		TypeLSRAllAccount,
		TypeVolatilityIndex,
	}
}

// Valid reports whether t is a known data type.
func (t DataType) Valid() bool {
	switch t {
	case TypeOrderbook, TypeTrade, TypeFundingRate, TypeOpenInterest,
		TypeLiquidation, TypeLSRTopPosition, TypeLSRAllAccount, TypeVolatilityIndex:
		return true
	}
	return false
}

// Record is one typed market-data event as produced by the upstream
// normalization layer. Immutable once enqueued: the flush path either
// inserts it or pushes the same pointer back to the queue head.
type Record struct {
	Type     DataType
	Exchange string
	Symbol   string
	// Timestamp is the raw textual timestamp as received. Canonicalized
	// by the schema mapper at flush time, not at ingestion time.
	Timestamp string
	// Fields holds the decoded payload, including type-specific fields.
	Fields map[string]any
}
