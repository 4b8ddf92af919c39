// Package allocation aggregates holdings into portfolio-level totals and
// weights. Pure read-side derivation over the holdings/assets join.
package allocation

import (
	"github.com/shopspring/decimal"

	"github.com/finwerk/portfolio-engine/internal/model"
	"github.com/finwerk/portfolio-engine/internal/valuation"
)

// Summary aggregates all positions. Totals sum only defined operands; the
// Unpriced/Uncosted counters tell the caller how incomplete the totals are,
// so a partial sum is never mistaken for a full valuation.
type Summary struct {
	Positions        int             `json:"positions"`
	Unpriced         int             `json:"unpriced"` // holdings whose asset has no cached price
	Uncosted         int             `json:"uncosted"` // holdings without a cost basis
	TotalInvestment  decimal.Decimal `json:"total_investment"`
	TotalMarketValue decimal.Decimal `json:"total_market_value"`
	TotalProfitLoss  decimal.Decimal `json:"total_profit_loss"`

	// Weights are percentages of total market value, over priced positions.
	WeightByCategory map[model.Category]decimal.Decimal   `json:"weight_by_category"`
	WeightByClass    map[model.AssetClass]decimal.Decimal `json:"weight_by_class"`
}

var hundred = decimal.NewFromInt(100)

// Summarize rolls up holdings against their assets. Assets is keyed by ISIN;
// a holding whose asset is missing from the map counts as unpriced.
func Summarize(holdings []model.Holding, assets map[string]model.Asset) Summary {
	s := Summary{
		Positions:        len(holdings),
		WeightByCategory: make(map[model.Category]decimal.Decimal),
		WeightByClass:    make(map[model.AssetClass]decimal.Decimal),
	}

	marketByCategory := make(map[model.Category]decimal.Decimal)
	marketByClass := make(map[model.AssetClass]decimal.Decimal)

	for i := range holdings {
		h := &holdings[i]

		var asset *model.Asset
		if a, ok := assets[h.ISIN]; ok {
			asset = &a
		}

		invested := valuation.TotalInvestment(h)
		if invested == nil {
			s.Uncosted++
		} else {
			s.TotalInvestment = s.TotalInvestment.Add(*invested)
		}

		market := valuation.CurrentMarketValue(h, asset)
		if market == nil {
			s.Unpriced++
			continue
		}
		s.TotalMarketValue = s.TotalMarketValue.Add(*market)
		marketByCategory[h.Category] = marketByCategory[h.Category].Add(*market)
		marketByClass[asset.Class] = marketByClass[asset.Class].Add(*market)

		if pnl := valuation.ProfitLoss(h, asset); pnl != nil {
			s.TotalProfitLoss = s.TotalProfitLoss.Add(*pnl)
		}
	}

	if s.TotalMarketValue.IsPositive() {
		for cat, v := range marketByCategory {
			s.WeightByCategory[cat] = v.Div(s.TotalMarketValue).Mul(hundred).Round(2)
		}
		for class, v := range marketByClass {
			s.WeightByClass[class] = v.Div(s.TotalMarketValue).Mul(hundred).Round(2)
		}
	}

	return s
}
