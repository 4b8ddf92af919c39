package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finwerk/portfolio-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu       sync.RWMutex
	assets   map[string]*model.Asset   // isin → asset
	prices   []model.Price             // append-only ledger
	holdings map[string]*model.Holding // id → holding
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assets:   make(map[string]*model.Asset),
		holdings: make(map[string]*model.Holding),
	}
}

func copyAsset(a *model.Asset) *model.Asset {
	c := *a
	if a.CurrentPrice != nil {
		p := *a.CurrentPrice
		c.CurrentPrice = &p
	}
	if a.CurrentPriceAt != nil {
		t := *a.CurrentPriceAt
		c.CurrentPriceAt = &t
	}
	return &c
}

func copyHolding(h *model.Holding) *model.Holding {
	c := *h
	if h.AvgPurchasePrice != nil {
		p := *h.AvgPurchasePrice
		c.AvgPurchasePrice = &p
	}
	return &c
}

// --- Asset registry ---

func (s *MemoryStore) CreateAsset(_ context.Context, a *model.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.assets[a.ISIN]; ok {
		return fmt.Errorf("%w: asset %s already exists", ErrConflict, a.ISIN)
	}
	if a.WKN != "" {
		for _, existing := range s.assets {
			if existing.WKN == a.WKN {
				return fmt.Errorf("%w: wkn %s already in use", ErrConflict, a.WKN)
			}
		}
	}
	s.assets[a.ISIN] = copyAsset(a)
	return nil
}

func (s *MemoryStore) GetAsset(_ context.Context, isin string) (*model.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assets[isin]
	if !ok {
		return nil, fmt.Errorf("%w: asset %s", ErrNotFound, isin)
	}
	return copyAsset(a), nil
}

func (s *MemoryStore) ListAssets(_ context.Context) ([]model.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	assets := make([]model.Asset, 0, len(s.assets))
	for _, a := range s.assets {
		assets = append(assets, *copyAsset(a))
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].Name < assets[j].Name })
	return assets, nil
}

func (s *MemoryStore) UpdateAsset(_ context.Context, a *model.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.assets[a.ISIN]
	if !ok {
		return fmt.Errorf("%w: asset %s", ErrNotFound, a.ISIN)
	}
	if a.WKN != "" {
		for isin, other := range s.assets {
			if isin != a.ISIN && other.WKN == a.WKN {
				return fmt.Errorf("%w: wkn %s already in use", ErrConflict, a.WKN)
			}
		}
	}

	updated := copyAsset(a)
	// The cache pair belongs to the price ledger, not the caller.
	updated.CurrentPrice = existing.CurrentPrice
	updated.CurrentPriceAt = existing.CurrentPriceAt
	updated.CreatedAt = existing.CreatedAt
	s.assets[a.ISIN] = updated
	return nil
}

func (s *MemoryStore) DeleteAsset(_ context.Context, isin string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.assets[isin]; !ok {
		return fmt.Errorf("%w: asset %s", ErrNotFound, isin)
	}
	delete(s.assets, isin)

	// Cascade: prices and holdings are owned by the asset.
	kept := s.prices[:0]
	for _, p := range s.prices {
		if p.ISIN != isin {
			kept = append(kept, p)
		}
	}
	s.prices = kept

	for id, h := range s.holdings {
		if h.ISIN == isin {
			delete(s.holdings, id)
		}
	}
	return nil
}

// --- Price ledger ---

func (s *MemoryStore) InsertPrice(_ context.Context, p *model.Price) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.assets[p.ISIN]; !ok {
		return fmt.Errorf("%w: asset %s", ErrNotFound, p.ISIN)
	}
	for _, existing := range s.prices {
		if existing.ISIN == p.ISIN && existing.Timestamp.Equal(p.Timestamp) {
			return fmt.Errorf("%w: price for %s at %s already recorded",
				ErrConflict, p.ISIN, p.Timestamp.Format(time.RFC3339))
		}
	}
	s.prices = append(s.prices, *p)
	return nil
}

func (s *MemoryStore) ListPrices(_ context.Context, isin string) ([]model.Price, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Price
	for _, p := range s.prices {
		if p.ISIN == isin {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Timestamp.After(result[j].Timestamp) })
	return result, nil
}

func (s *MemoryStore) GetLatestPrice(_ context.Context, isin string) (*model.Price, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *model.Price
	for i := range s.prices {
		p := &s.prices[i]
		if p.ISIN != isin {
			continue
		}
		if latest == nil || p.Timestamp.After(latest.Timestamp) {
			latest = p
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: no prices for asset %s", ErrNotFound, isin)
	}
	c := *latest
	return &c, nil
}

func (s *MemoryStore) ApplyPriceCache(_ context.Context, isin string, amount decimal.Decimal, ts time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.assets[isin]
	if !ok {
		return false, fmt.Errorf("%w: asset %s", ErrNotFound, isin)
	}
	// >= comparison: re-applying the cached maximum is an idempotent no-op,
	// while anything older than the cache is skipped.
	if a.CurrentPriceAt != nil && ts.Before(*a.CurrentPriceAt) {
		return false, nil
	}
	a.CurrentPrice = &amount
	a.CurrentPriceAt = &ts
	a.UpdatedAt = time.Now().UTC()
	return true, nil
}

// --- Holdings ledger ---

func (s *MemoryStore) CreateHolding(_ context.Context, h *model.Holding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.assets[h.ISIN]; !ok {
		return fmt.Errorf("%w: asset %s", ErrNotFound, h.ISIN)
	}
	for _, existing := range s.holdings {
		if existing.ISIN == h.ISIN {
			return fmt.Errorf("%w: holding for asset %s already exists", ErrConflict, h.ISIN)
		}
	}
	s.holdings[h.ID] = copyHolding(h)
	return nil
}

func (s *MemoryStore) GetHolding(_ context.Context, id string) (*model.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.holdings[id]
	if !ok {
		return nil, fmt.Errorf("%w: holding %s", ErrNotFound, id)
	}
	return copyHolding(h), nil
}

func (s *MemoryStore) ListHoldings(_ context.Context, f HoldingFilter) ([]model.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Holding
	for _, h := range s.holdings {
		if f.Category != "" && h.Category != f.Category {
			continue
		}
		if f.Class != "" {
			a, ok := s.assets[h.ISIN]
			if !ok || a.Class != f.Class {
				continue
			}
		}
		result = append(result, *copyHolding(h))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Quantity.GreaterThan(result[j].Quantity) })
	return result, nil
}

func (s *MemoryStore) UpdateHolding(_ context.Context, h *model.Holding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.holdings[h.ID]
	if !ok {
		return fmt.Errorf("%w: holding %s", ErrNotFound, h.ID)
	}
	updated := copyHolding(h)
	updated.ISIN = existing.ISIN // a holding never moves between assets
	updated.CreatedAt = existing.CreatedAt
	s.holdings[h.ID] = updated
	return nil
}

func (s *MemoryStore) DeleteHolding(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.holdings[id]; !ok {
		return fmt.Errorf("%w: holding %s", ErrNotFound, id)
	}
	delete(s.holdings, id)
	return nil
}

func (s *MemoryStore) Ping(_ context.Context) error { return nil }
