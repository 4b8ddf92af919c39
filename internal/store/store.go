// Package store defines the persistence interface for the portfolio engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finwerk/portfolio-engine/internal/model"
)

var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned on uniqueness violations: duplicate ISIN or
	// WKN, duplicate (asset, timestamp) price, second holding for an asset.
	ErrConflict = errors.New("store: conflict")
)

// HoldingFilter narrows ListHoldings. Zero values mean "no filter".
type HoldingFilter struct {
	Category model.Category
	Class    model.AssetClass
}

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Asset registry ---

	// CreateAsset persists a new asset. The cache pair starts unset.
	CreateAsset(ctx context.Context, a *model.Asset) error

	// GetAsset retrieves an asset by ISIN.
	GetAsset(ctx context.Context, isin string) (*model.Asset, error)

	// ListAssets returns all assets ordered by name.
	ListAssets(ctx context.Context) ([]model.Asset, error)

	// UpdateAsset updates identity and classification fields. The cache
	// pair is not touched here; only ApplyPriceCache writes it.
	UpdateAsset(ctx context.Context, a *model.Asset) error

	// DeleteAsset removes an asset and cascades to its prices and holding.
	DeleteAsset(ctx context.Context, isin string) error

	// --- Price ledger (append-only) ---

	// InsertPrice appends an immutable price observation.
	InsertPrice(ctx context.Context, p *model.Price) error

	// ListPrices returns all observations for an asset, newest first.
	ListPrices(ctx context.Context, isin string) ([]model.Price, error)

	// GetLatestPrice returns the observation with the maximum timestamp.
	GetLatestPrice(ctx context.Context, isin string) (*model.Price, error)

	// ApplyPriceCache conditionally writes the asset's cache pair: the
	// write happens iff the cached timestamp is unset or <= ts, as one
	// atomic operation. Reports whether the write was applied.
	ApplyPriceCache(ctx context.Context, isin string, amount decimal.Decimal, ts time.Time) (bool, error)

	// --- Holdings ledger ---

	// CreateHolding persists a new position. At most one per asset.
	CreateHolding(ctx context.Context, h *model.Holding) error

	// GetHolding retrieves a holding by ID.
	GetHolding(ctx context.Context, id string) (*model.Holding, error)

	// ListHoldings returns holdings matching the filter, largest first.
	ListHoldings(ctx context.Context, f HoldingFilter) ([]model.Holding, error)

	// UpdateHolding updates quantity, cost basis, category, and notes.
	UpdateHolding(ctx context.Context, h *model.Holding) error

	// DeleteHolding removes a position.
	DeleteHolding(ctx context.Context, id string) error

	// Ping checks connectivity to the backing database.
	Ping(ctx context.Context) error
}
