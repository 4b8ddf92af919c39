// Package valuation derives investment metrics for holdings. Every result is
// three-valued: a decimal, or nil when an operand is missing. Nil means
// "unknown", which callers must keep distinct from zero — a position without
// a price is not a worthless position.
package valuation

import (
	"github.com/shopspring/decimal"

	"github.com/finwerk/portfolio-engine/internal/model"
)

// TotalInvestment returns quantity × average purchase price, or nil when the
// holding has no recorded cost basis.
func TotalInvestment(h *model.Holding) *decimal.Decimal {
	if h.AvgPurchasePrice == nil {
		return nil
	}
	v := h.Quantity.Mul(*h.AvgPurchasePrice)
	return &v
}

// CurrentMarketValue returns quantity × the asset's cached price, or nil when
// the asset has no price observation yet.
func CurrentMarketValue(h *model.Holding, a *model.Asset) *decimal.Decimal {
	if a == nil || a.CurrentPrice == nil {
		return nil
	}
	v := h.Quantity.Mul(*a.CurrentPrice)
	return &v
}

// ProfitLoss returns market value − invested, or nil when either side is
// unknown.
func ProfitLoss(h *model.Holding, a *model.Asset) *decimal.Decimal {
	market := CurrentMarketValue(h, a)
	invested := TotalInvestment(h)
	if market == nil || invested == nil {
		return nil
	}
	v := market.Sub(*invested)
	return &v
}
