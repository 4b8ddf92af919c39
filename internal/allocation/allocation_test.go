package allocation_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finwerk/portfolio-engine/internal/allocation"
	"github.com/finwerk/portfolio-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func dp(f float64) *decimal.Decimal {
	v := decimal.NewFromFloat(f)
	return &v
}

func pricedAsset(isin string, class model.AssetClass, price float64) model.Asset {
	ts := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	return model.Asset{
		ISIN:           isin,
		Class:          class,
		Currency:       "EUR",
		CurrentPrice:   dp(price),
		CurrentPriceAt: &ts,
	}
}

func TestSummarize_Empty(t *testing.T) {
	s := allocation.Summarize(nil, nil)

	assert.Equal(t, 0, s.Positions)
	assert.True(t, s.TotalMarketValue.IsZero())
	assert.Empty(t, s.WeightByCategory)
	assert.Empty(t, s.WeightByClass)
}

func TestSummarize_Totals(t *testing.T) {
	assets := map[string]model.Asset{
		"US0378331005": pricedAsset("US0378331005", model.ClassStock, 55),
		"IE00B4L5Y983": pricedAsset("IE00B4L5Y983", model.ClassETF, 100),
	}
	holdings := []model.Holding{
		{ISIN: "US0378331005", Quantity: d(10), AvgPurchasePrice: dp(50), Category: model.CategoryUSTech},
		{ISIN: "IE00B4L5Y983", Quantity: d(5), AvgPurchasePrice: dp(90), Category: model.CategoryBasis},
	}

	s := allocation.Summarize(holdings, assets)

	assert.Equal(t, 2, s.Positions)
	assert.Equal(t, 0, s.Unpriced)
	assert.Equal(t, 0, s.Uncosted)
	assert.True(t, s.TotalInvestment.Equal(d(950)), "10*50 + 5*90, got %s", s.TotalInvestment)
	assert.True(t, s.TotalMarketValue.Equal(d(1050)), "10*55 + 5*100, got %s", s.TotalMarketValue)
	assert.True(t, s.TotalProfitLoss.Equal(d(100)), "got %s", s.TotalProfitLoss)
}

func TestSummarize_PartialData(t *testing.T) {
	assets := map[string]model.Asset{
		"US0378331005": pricedAsset("US0378331005", model.ClassStock, 55),
		// DE0007164600 registered but never priced.
		"DE0007164600": {ISIN: "DE0007164600", Class: model.ClassStock, Currency: "EUR"},
	}
	holdings := []model.Holding{
		{ISIN: "US0378331005", Quantity: d(10), AvgPurchasePrice: dp(50), Category: model.CategoryUSTech},
		{ISIN: "DE0007164600", Quantity: d(4), Category: model.CategoryEurope},
	}

	s := allocation.Summarize(holdings, assets)

	assert.Equal(t, 2, s.Positions)
	assert.Equal(t, 1, s.Unpriced, "the unpriced asset is counted, not zero-valued")
	assert.Equal(t, 1, s.Uncosted, "missing cost basis is counted, not zero-valued")
	assert.True(t, s.TotalInvestment.Equal(d(500)))
	assert.True(t, s.TotalMarketValue.Equal(d(550)))
}

func TestSummarize_Weights(t *testing.T) {
	assets := map[string]model.Asset{
		"US0378331005": pricedAsset("US0378331005", model.ClassStock, 75),
		"IE00B4L5Y983": pricedAsset("IE00B4L5Y983", model.ClassETF, 25),
	}
	holdings := []model.Holding{
		{ISIN: "US0378331005", Quantity: d(1), Category: model.CategoryUSTech},
		{ISIN: "IE00B4L5Y983", Quantity: d(1), Category: model.CategoryBasis},
	}

	s := allocation.Summarize(holdings, assets)

	require.Contains(t, s.WeightByCategory, model.CategoryUSTech)
	require.Contains(t, s.WeightByClass, model.ClassETF)
	assert.True(t, s.WeightByCategory[model.CategoryUSTech].Equal(d(75)),
		"got %s", s.WeightByCategory[model.CategoryUSTech])
	assert.True(t, s.WeightByClass[model.ClassETF].Equal(d(25)),
		"got %s", s.WeightByClass[model.ClassETF])
}

func TestSummarize_MissingAssetCountsAsUnpriced(t *testing.T) {
	holdings := []model.Holding{
		{ISIN: "US0378331005", Quantity: d(10), Category: model.CategoryOther},
	}

	s := allocation.Summarize(holdings, map[string]model.Asset{})

	assert.Equal(t, 1, s.Unpriced)
	assert.True(t, s.TotalMarketValue.IsZero())
}
