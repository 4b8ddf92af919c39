package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finwerk/portfolio-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func day(n int) time.Time {
	return time.Date(2024, 1, n, 0, 0, 0, 0, time.UTC)
}

func seedAsset(t *testing.T, ms *MemoryStore, isin, wkn string, class model.AssetClass) *model.Asset {
	t.Helper()
	now := time.Now().UTC()
	a := &model.Asset{
		ISIN:      isin,
		WKN:       wkn,
		Name:      "Test " + isin,
		Class:     class,
		Currency:  "EUR",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := ms.CreateAsset(context.Background(), a); err != nil {
		t.Fatalf("failed to seed asset: %v", err)
	}
	return a
}

func record(t *testing.T, ms *MemoryStore, isin string, ts time.Time, amount decimal.Decimal) {
	t.Helper()
	ctx := context.Background()
	err := ms.InsertPrice(ctx, &model.Price{
		ID:        uuid.New().String(),
		ISIN:      isin,
		Timestamp: ts,
		Amount:    amount,
	})
	if err != nil {
		t.Fatalf("insert price: %v", err)
	}
	latest, err := ms.GetLatestPrice(ctx, isin)
	if err != nil {
		t.Fatalf("latest price: %v", err)
	}
	if _, err := ms.ApplyPriceCache(ctx, isin, latest.Amount, latest.Timestamp); err != nil {
		t.Fatalf("apply cache: %v", err)
	}
}

// --- Asset registry ---

func TestCreateAsset_DuplicateISIN(t *testing.T) {
	ms := NewMemoryStore()
	seedAsset(t, ms, "US0378331005", "", model.ClassStock)

	err := ms.CreateAsset(context.Background(), &model.Asset{ISIN: "US0378331005", Name: "dup"})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestCreateAsset_DuplicateWKN(t *testing.T) {
	ms := NewMemoryStore()
	seedAsset(t, ms, "DE0007164600", "716460", model.ClassStock)

	err := ms.CreateAsset(context.Background(), &model.Asset{
		ISIN: "US0378331005", WKN: "716460", Name: "dup wkn",
	})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestUpdateAsset_CachePairPreserved(t *testing.T) {
	ms := NewMemoryStore()
	a := seedAsset(t, ms, "US0378331005", "", model.ClassStock)
	record(t, ms, a.ISIN, day(1), d(50))

	a.Name = "Renamed"
	if err := ms.UpdateAsset(context.Background(), a); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, _ := ms.GetAsset(context.Background(), a.ISIN)
	if got.Name != "Renamed" {
		t.Errorf("expected renamed asset, got %s", got.Name)
	}
	if got.CurrentPrice == nil || !got.CurrentPrice.Equal(d(50)) {
		t.Errorf("cache pair should survive asset updates, got %v", got.CurrentPrice)
	}
}

func TestDeleteAsset_Cascades(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	a := seedAsset(t, ms, "US0378331005", "", model.ClassStock)
	record(t, ms, a.ISIN, day(1), d(50))

	h := &model.Holding{
		ID: uuid.New().String(), ISIN: a.ISIN,
		Quantity: d(10), Category: model.CategoryOther,
	}
	if err := ms.CreateHolding(ctx, h); err != nil {
		t.Fatalf("create holding: %v", err)
	}

	if err := ms.DeleteAsset(ctx, a.ISIN); err != nil {
		t.Fatalf("delete asset: %v", err)
	}

	if _, err := ms.GetLatestPrice(ctx, a.ISIN); !errors.Is(err, ErrNotFound) {
		t.Errorf("prices should cascade, got %v", err)
	}
	if _, err := ms.GetHolding(ctx, h.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("holdings should cascade, got %v", err)
	}
}

// --- Price ledger + propagation ---

func TestPriceCache_TracksIncreasingTimestamps(t *testing.T) {
	ms := NewMemoryStore()
	a := seedAsset(t, ms, "US0378331005", "", model.ClassStock)

	for i, amount := range []decimal.Decimal{d(50), d(55), d(57.5)} {
		record(t, ms, a.ISIN, day(i+1), amount)

		got, _ := ms.GetAsset(context.Background(), a.ISIN)
		if got.CurrentPrice == nil || !got.CurrentPrice.Equal(amount) {
			t.Fatalf("after insert %d: expected cache %s, got %v", i, amount, got.CurrentPrice)
		}
		if got.CurrentPriceAt == nil || !got.CurrentPriceAt.Equal(day(i+1)) {
			t.Fatalf("after insert %d: expected cache ts %v, got %v", i, day(i+1), got.CurrentPriceAt)
		}
	}
}

func TestPriceCache_BackfillDoesNotRegress(t *testing.T) {
	ms := NewMemoryStore()
	a := seedAsset(t, ms, "US0378331005", "", model.ClassStock)

	record(t, ms, a.ISIN, day(2), d(55))
	// Backfill an older observation after the newer one is cached.
	record(t, ms, a.ISIN, day(1), d(40))

	got, _ := ms.GetAsset(context.Background(), a.ISIN)
	if !got.CurrentPrice.Equal(d(55)) {
		t.Errorf("backfill must not regress cache, got %s", got.CurrentPrice)
	}
	if !got.CurrentPriceAt.Equal(day(2)) {
		t.Errorf("expected cache ts %v, got %v", day(2), got.CurrentPriceAt)
	}
}

func TestApplyPriceCache_EqualTimestampIsIdempotent(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	a := seedAsset(t, ms, "US0378331005", "", model.ClassStock)
	record(t, ms, a.ISIN, day(1), d(50))

	// Re-applying the cached maximum succeeds and changes nothing.
	applied, err := ms.ApplyPriceCache(ctx, a.ISIN, d(50), day(1))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !applied {
		t.Error("re-applying the maximum timestamp should report applied")
	}

	got, _ := ms.GetAsset(ctx, a.ISIN)
	if !got.CurrentPrice.Equal(d(50)) || !got.CurrentPriceAt.Equal(day(1)) {
		t.Errorf("cache changed: %v @ %v", got.CurrentPrice, got.CurrentPriceAt)
	}
}

func TestApplyPriceCache_StaleReturnsFalse(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	a := seedAsset(t, ms, "US0378331005", "", model.ClassStock)
	record(t, ms, a.ISIN, day(5), d(60))

	applied, err := ms.ApplyPriceCache(ctx, a.ISIN, d(40), day(1))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if applied {
		t.Error("stale observation must not be applied")
	}
}

func TestApplyPriceCache_MissingAsset(t *testing.T) {
	ms := NewMemoryStore()
	_, err := ms.ApplyPriceCache(context.Background(), "XX0000000000", d(1), day(1))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertPrice_DuplicateTimestamp(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	a := seedAsset(t, ms, "US0378331005", "", model.ClassStock)
	record(t, ms, a.ISIN, day(1), d(50))

	err := ms.InsertPrice(ctx, &model.Price{
		ID: uuid.New().String(), ISIN: a.ISIN, Timestamp: day(1), Amount: d(51),
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	// Cache unchanged by the failed insert.
	got, _ := ms.GetAsset(ctx, a.ISIN)
	if !got.CurrentPrice.Equal(d(50)) {
		t.Errorf("cache must be unchanged after conflict, got %s", got.CurrentPrice)
	}
}

func TestInsertPrice_MissingAsset(t *testing.T) {
	ms := NewMemoryStore()
	err := ms.InsertPrice(context.Background(), &model.Price{
		ID: uuid.New().String(), ISIN: "XX0000000000", Timestamp: day(1), Amount: d(1),
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListPrices_NewestFirst(t *testing.T) {
	ms := NewMemoryStore()
	a := seedAsset(t, ms, "US0378331005", "", model.ClassStock)
	record(t, ms, a.ISIN, day(1), d(50))
	record(t, ms, a.ISIN, day(3), d(57))
	record(t, ms, a.ISIN, day(2), d(55))

	prices, err := ms.ListPrices(context.Background(), a.ISIN)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(prices) != 3 {
		t.Fatalf("expected 3 prices, got %d", len(prices))
	}
	for i := 1; i < len(prices); i++ {
		if prices[i].Timestamp.After(prices[i-1].Timestamp) {
			t.Errorf("prices out of order at %d", i)
		}
	}
}

// --- Holdings ---

func TestCreateHolding_OnePerAsset(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	a := seedAsset(t, ms, "US0378331005", "", model.ClassStock)

	first := &model.Holding{
		ID: uuid.New().String(), ISIN: a.ISIN,
		Quantity: d(10), Category: model.CategoryOther,
	}
	if err := ms.CreateHolding(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}

	second := &model.Holding{
		ID: uuid.New().String(), ISIN: a.ISIN,
		Quantity: d(5), Category: model.CategoryOther,
	}
	if err := ms.CreateHolding(ctx, second); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict for second holding, got %v", err)
	}
}

func TestListHoldings_Filters(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	stock := seedAsset(t, ms, "US0378331005", "", model.ClassStock)
	etf := seedAsset(t, ms, "IE00B4L5Y983", "", model.ClassETF)

	ms.CreateHolding(ctx, &model.Holding{
		ID: uuid.New().String(), ISIN: stock.ISIN,
		Quantity: d(10), Category: model.CategoryUSTech,
	})
	ms.CreateHolding(ctx, &model.Holding{
		ID: uuid.New().String(), ISIN: etf.ISIN,
		Quantity: d(20), Category: model.CategoryBasis,
	})

	all, _ := ms.ListHoldings(ctx, HoldingFilter{})
	if len(all) != 2 {
		t.Fatalf("expected 2 holdings, got %d", len(all))
	}
	// Ordered by quantity descending.
	if !all[0].Quantity.Equal(d(20)) {
		t.Errorf("expected largest position first, got %s", all[0].Quantity)
	}

	byCategory, _ := ms.ListHoldings(ctx, HoldingFilter{Category: model.CategoryUSTech})
	if len(byCategory) != 1 || byCategory[0].ISIN != stock.ISIN {
		t.Errorf("category filter failed: %+v", byCategory)
	}

	byClass, _ := ms.ListHoldings(ctx, HoldingFilter{Class: model.ClassETF})
	if len(byClass) != 1 || byClass[0].ISIN != etf.ISIN {
		t.Errorf("class filter failed: %+v", byClass)
	}
}
