package valuation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finwerk/portfolio-engine/internal/model"
)

func dp(f float64) *decimal.Decimal {
	v := decimal.NewFromFloat(f)
	return &v
}

func TestTotalInvestment(t *testing.T) {
	tests := []struct {
		name    string
		holding model.Holding
		want    *decimal.Decimal
	}{
		{
			name: "quantity times cost basis",
			holding: model.Holding{
				Quantity:         decimal.NewFromInt(2),
				AvgPurchasePrice: dp(100.00),
			},
			want: dp(200.00),
		},
		{
			name: "fractional quantity",
			holding: model.Holding{
				Quantity:         decimal.RequireFromString("0.5"),
				AvgPurchasePrice: dp(80.00),
			},
			want: dp(40.00),
		},
		{
			name: "no cost basis means undefined, not zero",
			holding: model.Holding{
				Quantity: decimal.NewFromInt(2),
			},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TotalInvestment(&tt.holding)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, got.Equal(*tt.want), "expected %s, got %s", tt.want, got)
		})
	}
}

func TestCurrentMarketValue(t *testing.T) {
	holding := model.Holding{Quantity: decimal.NewFromInt(10)}

	t.Run("no cached price means undefined", func(t *testing.T) {
		asset := model.Asset{ISIN: "US0378331005"}
		assert.Nil(t, CurrentMarketValue(&holding, &asset))
	})

	t.Run("nil asset means undefined", func(t *testing.T) {
		assert.Nil(t, CurrentMarketValue(&holding, nil))
	})

	t.Run("quantity times cached price", func(t *testing.T) {
		asset := model.Asset{ISIN: "US0378331005", CurrentPrice: dp(55.00)}
		got := CurrentMarketValue(&holding, &asset)
		require.NotNil(t, got)
		assert.True(t, got.Equal(decimal.NewFromInt(550)), "got %s", got)
	})
}

func TestProfitLoss(t *testing.T) {
	priced := model.Asset{ISIN: "US0378331005", CurrentPrice: dp(55.00)}
	unpriced := model.Asset{ISIN: "US0378331005"}

	t.Run("defined when both operands are defined", func(t *testing.T) {
		holding := model.Holding{
			Quantity:         decimal.NewFromInt(10),
			AvgPurchasePrice: dp(50.00),
		}
		got := ProfitLoss(&holding, &priced)
		require.NotNil(t, got)
		assert.True(t, got.Equal(decimal.NewFromInt(50)), "got %s", got)
	})

	t.Run("undefined without cost basis", func(t *testing.T) {
		holding := model.Holding{Quantity: decimal.NewFromInt(10)}
		assert.Nil(t, ProfitLoss(&holding, &priced))
	})

	t.Run("undefined without cached price", func(t *testing.T) {
		holding := model.Holding{
			Quantity:         decimal.NewFromInt(10),
			AvgPurchasePrice: dp(50.00),
		}
		assert.Nil(t, ProfitLoss(&holding, &unpriced))
	})

	t.Run("a loss is negative, not clamped", func(t *testing.T) {
		holding := model.Holding{
			Quantity:         decimal.NewFromInt(10),
			AvgPurchasePrice: dp(60.00),
		}
		got := ProfitLoss(&holding, &priced)
		require.NotNil(t, got)
		assert.True(t, got.Equal(decimal.NewFromInt(-50)), "got %s", got)
	})
}
