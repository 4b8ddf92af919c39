// Package model defines the core domain types shared across the portfolio
// engine. All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrValidation marks malformed input rejected before persistence.
var ErrValidation = errors.New("validation failed")

// AssetClass classifies a tradable instrument.
type AssetClass string

const (
	ClassStock      AssetClass = "STOCK"
	ClassETF        AssetClass = "ETF"
	ClassETC        AssetClass = "ETC"
	ClassCrypto     AssetClass = "CRYPTO"
	ClassDerivative AssetClass = "DERIVATIVE"
)

var assetClasses = map[AssetClass]bool{
	ClassStock:      true,
	ClassETF:        true,
	ClassETC:        true,
	ClassCrypto:     true,
	ClassDerivative: true,
}

// ParseAssetClass validates s against the closed set of asset classes.
func ParseAssetClass(s string) (AssetClass, error) {
	c := AssetClass(s)
	if !assetClasses[c] {
		return "", fmt.Errorf("%w: unknown asset class %q", ErrValidation, s)
	}
	return c, nil
}

// Category tags a holding with its investment-strategy bucket.
type Category string

const (
	CategoryBasis      Category = "BASIS"
	CategoryDividend   Category = "DIVIDEND"
	CategoryEurope     Category = "EUROPE"
	CategoryUSTech     Category = "US_TECH"
	CategoryWorldTech  Category = "WORLD_TECH"
	CategoryCompounder Category = "COMPOUNDER"
	CategoryOther      Category = "OTHER"
)

var categories = map[Category]bool{
	CategoryBasis:      true,
	CategoryDividend:   true,
	CategoryEurope:     true,
	CategoryUSTech:     true,
	CategoryWorldTech:  true,
	CategoryCompounder: true,
	CategoryOther:      true,
}

// ParseCategory validates s against the closed set of holding categories.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !categories[c] {
		return "", fmt.Errorf("%w: unknown category %q", ErrValidation, s)
	}
	return c, nil
}

// Asset holds the identity and classification of one tradable instrument.
// The ISIN is the immutable primary key. CurrentPrice/CurrentPriceAt form
// the cache pair: either both nil or both set, written only by the price
// ledger's propagation step — never by asset updates.
type Asset struct {
	ISIN     string     `json:"isin" db:"isin"`
	WKN      string     `json:"wkn,omitempty" db:"wkn"`       // secondary code, unique when set
	Symbol   string     `json:"symbol,omitempty" db:"symbol"` // exchange ticker
	Name     string     `json:"name" db:"name"`
	Class    AssetClass `json:"asset_class" db:"asset_class"`
	Currency string     `json:"currency" db:"currency"` // ISO 4217
	Exchange string     `json:"exchange,omitempty" db:"exchange"`

	CurrentPrice   *decimal.Decimal `json:"current_price,omitempty" db:"current_price"`
	CurrentPriceAt *time.Time       `json:"current_price_at,omitempty" db:"current_price_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Price is one immutable observation in the ledger: one asset, one instant,
// one amount. (asset, timestamp) is unique; entries are never updated.
type Price struct {
	ID        string          `json:"id" db:"id"`
	ISIN      string          `json:"isin" db:"isin"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
}

// Validate rejects a ledger entry before it reaches the store.
func (p *Price) Validate() error {
	if p.ISIN == "" {
		return fmt.Errorf("%w: isin is required", ErrValidation)
	}
	if p.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", ErrValidation)
	}
	if !p.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	return nil
}

// Holding is a held position in exactly one asset. At most one holding
// exists per asset. AvgPurchasePrice is optional: positions transferred in
// without a known cost basis carry nil, and every valuation derived from it
// stays undefined rather than defaulting to zero.
type Holding struct {
	ID               string           `json:"id" db:"id"`
	ISIN             string           `json:"isin" db:"isin"`
	Quantity         decimal.Decimal  `json:"quantity" db:"quantity"`
	AvgPurchasePrice *decimal.Decimal `json:"average_purchase_price,omitempty" db:"average_purchase_price"`
	Category         Category         `json:"category" db:"category"`
	Notes            string           `json:"notes,omitempty" db:"notes"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at" db:"updated_at"`
}

// Validate rejects a holding before it reaches the store.
func (h *Holding) Validate() error {
	if h.ISIN == "" {
		return fmt.Errorf("%w: isin is required", ErrValidation)
	}
	if !h.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	if h.AvgPurchasePrice != nil && !h.AvgPurchasePrice.IsPositive() {
		return fmt.Errorf("%w: average purchase price must be positive when set", ErrValidation)
	}
	if !categories[h.Category] {
		return fmt.Errorf("%w: unknown category %q", ErrValidation, h.Category)
	}
	return nil
}
