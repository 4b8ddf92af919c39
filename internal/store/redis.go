package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/finwerk/portfolio-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for asset and price-history reads. Writes go to the primary store
// and invalidate the cache; reads check Redis first then fall back.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

func assetKey(isin string) string  { return "asset:" + isin }
func pricesKey(isin string) string { return "prices:" + isin }

const assetListKey = "assets:all"

func (s *CachedStore) invalidateAsset(ctx context.Context, isin string) {
	s.rdb.Del(ctx, assetKey(isin), assetListKey)
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateAsset(ctx context.Context, a *model.Asset) error {
	if err := s.primary.CreateAsset(ctx, a); err != nil {
		return err
	}
	s.invalidateAsset(ctx, a.ISIN)
	return nil
}

func (s *CachedStore) UpdateAsset(ctx context.Context, a *model.Asset) error {
	if err := s.primary.UpdateAsset(ctx, a); err != nil {
		return err
	}
	s.invalidateAsset(ctx, a.ISIN)
	return nil
}

func (s *CachedStore) DeleteAsset(ctx context.Context, isin string) error {
	if err := s.primary.DeleteAsset(ctx, isin); err != nil {
		return err
	}
	s.rdb.Del(ctx, assetKey(isin), assetListKey, pricesKey(isin))
	return nil
}

func (s *CachedStore) InsertPrice(ctx context.Context, p *model.Price) error {
	if err := s.primary.InsertPrice(ctx, p); err != nil {
		return err
	}
	s.rdb.Del(ctx, pricesKey(p.ISIN))
	return nil
}

func (s *CachedStore) ApplyPriceCache(ctx context.Context, isin string, amount decimal.Decimal, ts time.Time) (bool, error) {
	applied, err := s.primary.ApplyPriceCache(ctx, isin, amount, ts)
	if err != nil {
		return false, err
	}
	if applied {
		// The cached asset now carries a stale cache pair.
		s.invalidateAsset(ctx, isin)
	}
	return applied, nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetAsset(ctx context.Context, isin string) (*model.Asset, error) {
	data, err := s.rdb.Get(ctx, assetKey(isin)).Bytes()
	if err == nil {
		var a model.Asset
		if json.Unmarshal(data, &a) == nil {
			return &a, nil
		}
	}

	a, err := s.primary.GetAsset(ctx, isin)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(a); err == nil {
		s.rdb.Set(ctx, assetKey(isin), data, s.ttl)
	}
	return a, nil
}

func (s *CachedStore) ListAssets(ctx context.Context) ([]model.Asset, error) {
	data, err := s.rdb.Get(ctx, assetListKey).Bytes()
	if err == nil {
		var assets []model.Asset
		if json.Unmarshal(data, &assets) == nil {
			return assets, nil
		}
	}

	assets, err := s.primary.ListAssets(ctx)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(assets); err == nil {
		s.rdb.Set(ctx, assetListKey, data, s.ttl)
	}
	return assets, nil
}

func (s *CachedStore) ListPrices(ctx context.Context, isin string) ([]model.Price, error) {
	data, err := s.rdb.Get(ctx, pricesKey(isin)).Bytes()
	if err == nil {
		var prices []model.Price
		if json.Unmarshal(data, &prices) == nil {
			return prices, nil
		}
	}

	prices, err := s.primary.ListPrices(ctx, isin)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(prices); err == nil {
		s.rdb.Set(ctx, pricesKey(isin), data, s.ttl)
	}
	return prices, nil
}

// GetLatestPrice always hits the primary: it feeds the propagation step and
// must not observe a stale ledger.
func (s *CachedStore) GetLatestPrice(ctx context.Context, isin string) (*model.Price, error) {
	return s.primary.GetLatestPrice(ctx, isin)
}

// --- Holdings pass through uncached: they are low-volume operator data ---

func (s *CachedStore) CreateHolding(ctx context.Context, h *model.Holding) error {
	return s.primary.CreateHolding(ctx, h)
}

func (s *CachedStore) GetHolding(ctx context.Context, id string) (*model.Holding, error) {
	return s.primary.GetHolding(ctx, id)
}

func (s *CachedStore) ListHoldings(ctx context.Context, f HoldingFilter) ([]model.Holding, error) {
	return s.primary.ListHoldings(ctx, f)
}

func (s *CachedStore) UpdateHolding(ctx context.Context, h *model.Holding) error {
	return s.primary.UpdateHolding(ctx, h)
}

func (s *CachedStore) DeleteHolding(ctx context.Context, id string) error {
	return s.primary.DeleteHolding(ctx, id)
}

func (s *CachedStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return s.primary.Ping(ctx)
}
