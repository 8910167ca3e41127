// Package router subscribes to the bus, classifies inbound messages to
// a data type, decodes them, and enqueues them for batching.
package router

import (
	"strings"

	"market-data-pipeline/internal/domain"
)

// subject family tokens. A subject like "trade-data.binance.BTCUSDT"
// classifies by its leading token; lsr subjects carry a sub-token
// distinguishing top-position from all-account ratios.
const (
	tokenOrderbook       = "orderbook-data"
	tokenTrade           = "trade-data"
	tokenFundingRate     = "funding-rate-data"
	tokenOpenInterest    = "open-interest-data"
	tokenLiquidation     = "liquidation-data"
	tokenLSR             = "lsr-data"
	tokenVolatilityIndex = "volatility-index-data"

	tokenTopPosition = "top-position"
	tokenAllAccount  = "all-account"
)

// SubjectPatterns returns the wildcard patterns covering every data
// type family, one subscription per family.
func SubjectPatterns() []string {
	return []string{
		tokenOrderbook + ".>",
		tokenTrade + ".>",
		tokenFundingRate + ".>",
		tokenOpenInterest + ".>",
		tokenLiquidation + ".>",
		tokenLSR + ".>",
		tokenVolatilityIndex + ".>",
	}
}

// Classify maps a subject to a data type. Unrecognized subjects return
// false and are silently ignored by the router.
func Classify(subject string) (domain.DataType, bool) {
	switch {
	case strings.HasPrefix(subject, tokenOrderbook):
		return domain.TypeOrderbook, true
	case strings.HasPrefix(subject, tokenTrade):
		return domain.TypeTrade, true
	case strings.HasPrefix(subject, tokenFundingRate):
		return domain.TypeFundingRate, true
	case strings.HasPrefix(subject, tokenOpenInterest):
		return domain.TypeOpenInterest, true
	case strings.HasPrefix(subject, tokenLiquidation):
		return domain.TypeLiquidation, true
	case strings.HasPrefix(subject, tokenVolatilityIndex):
		return domain.TypeVolatilityIndex, true
	case strings.HasPrefix(subject, tokenLSR):
		if strings.Contains(subject, tokenTopPosition) {
			return domain.TypeLSRTopPosition, true
		}
		if strings.Contains(subject, tokenAllAccount) {
			return domain.TypeLSRAllAccount, true
		}
		return "", false
	}
	return "", false
}
