package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/finwerk/portfolio-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// mapPgError translates driver errors into the store's failure taxonomy.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: %s", ErrNotFound, pgErr.ConstraintName)
		}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// --- Asset registry ---

func (s *PostgresStore) CreateAsset(ctx context.Context, a *model.Asset) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO assets (isin, wkn, symbol, name, asset_class, currency, exchange, created_at, updated_at)
		 VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9)`,
		a.ISIN, a.WKN, a.Symbol, a.Name, a.Class, a.Currency, a.Exchange,
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

const assetColumns = `isin, COALESCE(wkn, ''), symbol, name, asset_class, currency, exchange,
        current_price::TEXT, current_price_at, created_at, updated_at`

func scanAsset(row pgx.Row) (*model.Asset, error) {
	var a model.Asset
	var priceStr *string

	err := row.Scan(&a.ISIN, &a.WKN, &a.Symbol, &a.Name, &a.Class, &a.Currency, &a.Exchange,
		&priceStr, &a.CurrentPriceAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, mapPgError(err)
	}
	if priceStr != nil {
		p, err := decimal.NewFromString(*priceStr)
		if err != nil {
			return nil, fmt.Errorf("parse current_price: %w", err)
		}
		a.CurrentPrice = &p
	}
	return &a, nil
}

func (s *PostgresStore) GetAsset(ctx context.Context, isin string) (*model.Asset, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE isin = $1`, isin)
	a, err := scanAsset(row)
	if err != nil {
		return nil, fmt.Errorf("get asset %s: %w", isin, err)
	}
	return a, nil
}

func (s *PostgresStore) ListAssets(ctx context.Context) ([]model.Asset, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+assetColumns+` FROM assets ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []model.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, *a)
	}
	return assets, rows.Err()
}

func (s *PostgresStore) UpdateAsset(ctx context.Context, a *model.Asset) error {
	// The cache pair is deliberately excluded; only ApplyPriceCache writes it.
	tag, err := s.pool.Exec(ctx,
		`UPDATE assets
		 SET wkn = NULLIF($2, ''), symbol = $3, name = $4, asset_class = $5,
		     currency = $6, exchange = $7, updated_at = $8
		 WHERE isin = $1`,
		a.ISIN, a.WKN, a.Symbol, a.Name, a.Class, a.Currency, a.Exchange, a.UpdatedAt,
	)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: asset %s", ErrNotFound, a.ISIN)
	}
	return nil
}

func (s *PostgresStore) DeleteAsset(ctx context.Context, isin string) error {
	// Prices and holdings cascade via ON DELETE CASCADE.
	tag, err := s.pool.Exec(ctx, `DELETE FROM assets WHERE isin = $1`, isin)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: asset %s", ErrNotFound, isin)
	}
	return nil
}

// --- Price ledger ---

func (s *PostgresStore) InsertPrice(ctx context.Context, p *model.Price) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO prices (id, isin, timestamp, amount)
		 VALUES ($1, $2, $3, $4::NUMERIC)`,
		p.ID, p.ISIN, p.Timestamp, p.Amount.String(),
	)
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

func (s *PostgresStore) ListPrices(ctx context.Context, isin string) ([]model.Price, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, isin, timestamp, amount::TEXT
		 FROM prices WHERE isin = $1 ORDER BY timestamp DESC`, isin)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prices []model.Price
	for rows.Next() {
		var p model.Price
		var amountStr string
		if err := rows.Scan(&p.ID, &p.ISIN, &p.Timestamp, &amountStr); err != nil {
			return nil, err
		}
		p.Amount, err = decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("parse amount: %w", err)
		}
		prices = append(prices, p)
	}
	return prices, rows.Err()
}

func (s *PostgresStore) GetLatestPrice(ctx context.Context, isin string) (*model.Price, error) {
	var p model.Price
	var amountStr string

	err := s.pool.QueryRow(ctx,
		`SELECT id, isin, timestamp, amount::TEXT
		 FROM prices WHERE isin = $1 ORDER BY timestamp DESC LIMIT 1`, isin).
		Scan(&p.ID, &p.ISIN, &p.Timestamp, &amountStr)
	if err != nil {
		return nil, fmt.Errorf("latest price for %s: %w", isin, mapPgError(err))
	}
	p.Amount, err = decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) ApplyPriceCache(ctx context.Context, isin string, amount decimal.Decimal, ts time.Time) (bool, error) {
	// Single conditional UPDATE: the recency check and the write are one
	// atomic statement, so concurrent out-of-order inserts cannot leave the
	// cache on an older timestamp.
	tag, err := s.pool.Exec(ctx,
		`UPDATE assets
		 SET current_price = $2::NUMERIC, current_price_at = $3, updated_at = now()
		 WHERE isin = $1 AND (current_price_at IS NULL OR current_price_at <= $3)`,
		isin, amount.String(), ts,
	)
	if err != nil {
		return false, mapPgError(err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	// No row written: distinguish a stale observation from a missing asset.
	var exists bool
	err = s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM assets WHERE isin = $1)`, isin).Scan(&exists)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, fmt.Errorf("%w: asset %s", ErrNotFound, isin)
	}
	return false, nil
}

// --- Holdings ledger ---

func (s *PostgresStore) CreateHolding(ctx context.Context, h *model.Holding) error {
	var avg *string
	if h.AvgPurchasePrice != nil {
		v := h.AvgPurchasePrice.String()
		avg = &v
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO holdings (id, isin, quantity, average_purchase_price, category, notes, created_at, updated_at)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5, $6, $7, $8)`,
		h.ID, h.ISIN, h.Quantity.String(), avg, h.Category, h.Notes,
		h.CreatedAt, h.UpdatedAt,
	)
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

func scanHolding(row pgx.Row) (*model.Holding, error) {
	var h model.Holding
	var qtyStr string
	var avgStr *string

	err := row.Scan(&h.ID, &h.ISIN, &qtyStr, &avgStr, &h.Category, &h.Notes,
		&h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, mapPgError(err)
	}
	h.Quantity, err = decimal.NewFromString(qtyStr)
	if err != nil {
		return nil, fmt.Errorf("parse quantity: %w", err)
	}
	if avgStr != nil {
		avg, err := decimal.NewFromString(*avgStr)
		if err != nil {
			return nil, fmt.Errorf("parse average_purchase_price: %w", err)
		}
		h.AvgPurchasePrice = &avg
	}
	return &h, nil
}

const holdingColumns = `h.id, h.isin, h.quantity::TEXT, h.average_purchase_price::TEXT,
        h.category, h.notes, h.created_at, h.updated_at`

func (s *PostgresStore) GetHolding(ctx context.Context, id string) (*model.Holding, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+holdingColumns+` FROM holdings h WHERE h.id = $1`, id)
	h, err := scanHolding(row)
	if err != nil {
		return nil, fmt.Errorf("get holding %s: %w", id, err)
	}
	return h, nil
}

func (s *PostgresStore) ListHoldings(ctx context.Context, f HoldingFilter) ([]model.Holding, error) {
	query := `SELECT ` + holdingColumns + `
		 FROM holdings h
		 JOIN assets a ON a.isin = h.isin
		 WHERE ($1 = '' OR h.category = $1)
		   AND ($2 = '' OR a.asset_class = $2)
		 ORDER BY h.quantity DESC`

	rows, err := s.pool.Query(ctx, query, string(f.Category), string(f.Class))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holdings []model.Holding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, err
		}
		holdings = append(holdings, *h)
	}
	return holdings, rows.Err()
}

func (s *PostgresStore) UpdateHolding(ctx context.Context, h *model.Holding) error {
	var avg *string
	if h.AvgPurchasePrice != nil {
		v := h.AvgPurchasePrice.String()
		avg = &v
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE holdings
		 SET quantity = $2::NUMERIC, average_purchase_price = $3::NUMERIC,
		     category = $4, notes = $5, updated_at = $6
		 WHERE id = $1`,
		h.ID, h.Quantity.String(), avg, h.Category, h.Notes, h.UpdatedAt,
	)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: holding %s", ErrNotFound, h.ID)
	}
	return nil
}

func (s *PostgresStore) DeleteHolding(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM holdings WHERE id = $1`, id)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: holding %s", ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
