// Package arbitrage turns an asking price and a marketplace quote into a
// profit figure.
package arbitrage

import (
	"github.com/bryan-buckman/dealscout/internal/model"
	"github.com/shopspring/decimal"
)

// Evaluate compares the asking price with the fee-adjusted sold median.
// The quote's median is already net of fees; the reported fee is
// resale * feeRate. It returns false when either price is missing or not
// positive. The opportunity is returned regardless of the profit's sign.
func Evaluate(p model.ExtractedProduct, q model.MarketQuote, feeRate decimal.Decimal) (model.Opportunity, bool) {
	if !p.AskingPrice.IsPositive() {
		return model.Opportunity{}, false
	}
	if !q.SoldMedianPrice.Valid || !q.SoldMedianPrice.Decimal.IsPositive() {
		return model.Opportunity{}, false
	}
	net := q.SoldMedianPrice.Decimal

	return model.Opportunity{
		ProductName: p.Name,
		AskingPrice: p.AskingPrice,
		ResalePrice: net,
		Profit:      net.Sub(p.AskingPrice),
		FeeAmount:   net.Mul(feeRate).Round(2),
		BundleSize:  p.BundleSize,
	}, true
}

// Qualifies reports whether the profit strictly exceeds threshold.
func Qualifies(o model.Opportunity, threshold decimal.Decimal) bool {
	return o.Profit.GreaterThan(threshold)
}
