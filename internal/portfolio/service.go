// Package portfolio provides the HTTP handlers and business logic for the
// asset registry, the price ledger, and holdings valuation.
//
// All monetary values use shopspring/decimal — never float64 for money.
package portfolio

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finwerk/portfolio-engine/internal/allocation"
	"github.com/finwerk/portfolio-engine/internal/instrument"
	"github.com/finwerk/portfolio-engine/internal/metrics"
	"github.com/finwerk/portfolio-engine/internal/model"
	"github.com/finwerk/portfolio-engine/internal/store"
	"github.com/finwerk/portfolio-engine/internal/valuation"
)

// Service handles registry, ledger, and holdings operations. Concurrency
// control for the price cache lives in the store's conditional update, so
// the service itself holds no locks.
type Service struct {
	store store.Store
	wsHub *WSHub // optional WebSocket hub for cache-refresh broadcasts
}

// NewService creates a new portfolio service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, hub *WSHub) *Service {
	return &Service{store: st, wsHub: hub}
}

// --- Request/Response types ---

// AssetRequest is the JSON body for asset creation and update.
type AssetRequest struct {
	ISIN     string `json:"isin"`
	WKN      string `json:"wkn"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Class    string `json:"asset_class"`
	Currency string `json:"currency"`
	Exchange string `json:"exchange"`
}

// RecordPriceRequest is the JSON body for POST /assets/{isin}/prices.
type RecordPriceRequest struct {
	Timestamp time.Time       `json:"timestamp"`
	Amount    decimal.Decimal `json:"amount"`
}

// RecordPriceResponse reports the appended entry and whether the asset's
// cache pair was refreshed by it.
type RecordPriceResponse struct {
	Price          model.Price `json:"price"`
	CacheRefreshed bool        `json:"cache_refreshed"`
}

// HoldingRequest is the JSON body for holding creation and update.
type HoldingRequest struct {
	ISIN             string           `json:"isin"`
	Quantity         decimal.Decimal  `json:"quantity"`
	AvgPurchasePrice *decimal.Decimal `json:"average_purchase_price"`
	Category         string           `json:"category"`
	Notes            string           `json:"notes"`
}

// HoldingView is a holding joined with its asset and the three derived
// valuation fields. A nil field means "unknown", not zero.
type HoldingView struct {
	model.Holding
	Asset              model.Asset      `json:"asset"`
	TotalInvestment    *decimal.Decimal `json:"total_investment"`
	CurrentMarketValue *decimal.Decimal `json:"current_market_value"`
	ProfitLoss         *decimal.Decimal `json:"profit_loss"`
}

// --- Core operations ---

// RecordPrice appends one observation to the ledger and then propagates the
// latest price onto the asset's cache pair. The propagation is a separate,
// named step: if the insert fails, the cache is never touched.
func (s *Service) RecordPrice(ctx context.Context, isin string, ts time.Time, amount decimal.Decimal) (*model.Price, bool, error) {
	entry := &model.Price{
		ID:        uuid.New().String(),
		ISIN:      isin,
		Timestamp: ts.UTC(),
		Amount:    amount,
	}
	if err := entry.Validate(); err != nil {
		return nil, false, err
	}

	if err := s.store.InsertPrice(ctx, entry); err != nil {
		if errors.Is(err, store.ErrConflict) {
			metrics.PriceConflicts.Inc()
		}
		return nil, false, err
	}

	refreshed, err := s.propagateLatestPrice(ctx, isin)
	if err != nil {
		return nil, false, err
	}
	return entry, refreshed, nil
}

// propagateLatestPrice re-reads the ledger entry with the maximum timestamp
// for the asset and conditionally writes it to the cache pair. The store's
// conditional update keeps the comparison and the write atomic, so the cache
// tracks the maximum observed timestamp even under concurrent inserts.
// Out-of-order backfills are skipped; re-applying the maximum is a no-op.
func (s *Service) propagateLatestPrice(ctx context.Context, isin string) (bool, error) {
	latest, err := s.store.GetLatestPrice(ctx, isin)
	if err != nil {
		return false, err
	}

	applied, err := s.store.ApplyPriceCache(ctx, isin, latest.Amount, latest.Timestamp)
	if err != nil {
		return false, err
	}

	if applied {
		metrics.CacheRefreshes.WithLabelValues("applied").Inc()
		if s.wsHub != nil {
			s.wsHub.Broadcast(WSMessage{
				Type:      "price_cache_refreshed",
				ISIN:      isin,
				Amount:    latest.Amount.String(),
				Timestamp: latest.Timestamp.UTC().Format(time.RFC3339),
			})
		}
	} else {
		metrics.CacheRefreshes.WithLabelValues("stale").Inc()
	}
	return applied, nil
}

func assetFromRequest(req *AssetRequest) (*model.Asset, error) {
	isin, err := instrument.ParseISIN(req.ISIN)
	if err != nil {
		return nil, err
	}
	if err := instrument.ValidateWKN(req.WKN); err != nil {
		return nil, err
	}
	if req.Name == "" {
		return nil, errors.New("name is required")
	}
	currency := req.Currency
	if currency == "" {
		currency = "EUR"
	}
	if err := instrument.ValidateCurrency(currency); err != nil {
		return nil, err
	}
	class := model.ClassStock
	if req.Class != "" {
		class, err = model.ParseAssetClass(req.Class)
		if err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	return &model.Asset{
		ISIN:      isin,
		WKN:       req.WKN,
		Symbol:    req.Symbol,
		Name:      req.Name,
		Class:     class,
		Currency:  currency,
		Exchange:  req.Exchange,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// --- HTTP Handlers: asset registry ---

// CreateAsset handles POST /api/v1/assets
func (s *Service) CreateAsset(w http.ResponseWriter, r *http.Request) {
	var req AssetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	asset, err := assetFromRequest(&req)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.store.CreateAsset(r.Context(), asset); err != nil {
		writeStoreError(w, err)
		return
	}

	slog.Info("asset created",
		"isin", asset.ISIN,
		"symbol", asset.Symbol,
		"class", asset.Class,
		"currency", asset.Currency,
	)

	writeJSON(w, http.StatusCreated, asset)
}

// ListAssets handles GET /api/v1/assets
func (s *Service) ListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := s.store.ListAssets(r.Context())
	if err != nil {
		writeError(w, "failed to list assets", http.StatusInternalServerError)
		return
	}
	if assets == nil {
		assets = []model.Asset{}
	}
	writeJSON(w, http.StatusOK, assets)
}

// GetAsset handles GET /api/v1/assets/{isin}
func (s *Service) GetAsset(w http.ResponseWriter, r *http.Request) {
	asset, err := s.store.GetAsset(r.Context(), chi.URLParam(r, "isin"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

// UpdateAsset handles PUT /api/v1/assets/{isin}
// The cache pair is read-only here; it is written only by the ledger.
func (s *Service) UpdateAsset(w http.ResponseWriter, r *http.Request) {
	var req AssetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.ISIN = chi.URLParam(r, "isin") // the identifier is immutable

	asset, err := assetFromRequest(&req)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.store.UpdateAsset(r.Context(), asset); err != nil {
		writeStoreError(w, err)
		return
	}

	updated, err := s.store.GetAsset(r.Context(), asset.ISIN)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteAsset handles DELETE /api/v1/assets/{isin}
// Cascades to the asset's price history and holding.
func (s *Service) DeleteAsset(w http.ResponseWriter, r *http.Request) {
	isin := chi.URLParam(r, "isin")
	if err := s.store.DeleteAsset(r.Context(), isin); err != nil {
		writeStoreError(w, err)
		return
	}
	slog.Info("asset deleted", "isin", isin)
	w.WriteHeader(http.StatusNoContent)
}

// --- HTTP Handlers: price ledger ---

// RecordPriceHTTP handles POST /api/v1/assets/{isin}/prices
func (s *Service) RecordPriceHTTP(w http.ResponseWriter, r *http.Request) {
	isin := chi.URLParam(r, "isin")

	var req RecordPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	asset, err := s.store.GetAsset(r.Context(), isin)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	entry, refreshed, err := s.RecordPrice(r.Context(), isin, req.Timestamp, req.Amount)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	metrics.PricesRecorded.WithLabelValues(string(asset.Class)).Inc()

	slog.Info("price recorded",
		"isin", isin,
		"timestamp", entry.Timestamp,
		"amount", entry.Amount.String(),
		"cache_refreshed", refreshed,
	)

	writeJSON(w, http.StatusCreated, RecordPriceResponse{
		Price:          *entry,
		CacheRefreshed: refreshed,
	})
}

// GetPriceHistory handles GET /api/v1/assets/{isin}/prices
// Returns the ledger for one asset, newest first.
func (s *Service) GetPriceHistory(w http.ResponseWriter, r *http.Request) {
	isin := chi.URLParam(r, "isin")

	if _, err := s.store.GetAsset(r.Context(), isin); err != nil {
		writeStoreError(w, err)
		return
	}

	prices, err := s.store.ListPrices(r.Context(), isin)
	if err != nil {
		writeError(w, "failed to load price history", http.StatusInternalServerError)
		return
	}
	if prices == nil {
		prices = []model.Price{}
	}
	writeJSON(w, http.StatusOK, prices)
}

// --- HTTP Handlers: holdings ---

// CreateHolding handles POST /api/v1/holdings
func (s *Service) CreateHolding(w http.ResponseWriter, r *http.Request) {
	var req HoldingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	category := model.CategoryOther
	if req.Category != "" {
		var err error
		category, err = model.ParseCategory(req.Category)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	now := time.Now().UTC()
	holding := &model.Holding{
		ID:               uuid.New().String(),
		ISIN:             req.ISIN,
		Quantity:         req.Quantity,
		AvgPurchasePrice: req.AvgPurchasePrice,
		Category:         category,
		Notes:            req.Notes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := holding.Validate(); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.store.CreateHolding(r.Context(), holding); err != nil {
		writeStoreError(w, err)
		return
	}

	metrics.HoldingsCreated.WithLabelValues(string(category)).Inc()

	slog.Info("holding created",
		"id", holding.ID,
		"isin", holding.ISIN,
		"quantity", holding.Quantity.String(),
		"category", holding.Category,
	)

	view, err := s.holdingView(r, holding)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// ListHoldings handles GET /api/v1/holdings
// Optional filters: ?category=<Category> and ?class=<AssetClass>.
func (s *Service) ListHoldings(w http.ResponseWriter, r *http.Request) {
	var filter store.HoldingFilter

	if raw := r.URL.Query().Get("category"); raw != "" {
		category, err := model.ParseCategory(raw)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		filter.Category = category
	}
	if raw := r.URL.Query().Get("class"); raw != "" {
		class, err := model.ParseAssetClass(raw)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		filter.Class = class
	}

	holdings, err := s.store.ListHoldings(r.Context(), filter)
	if err != nil {
		writeError(w, "failed to list holdings", http.StatusInternalServerError)
		return
	}

	views := make([]HoldingView, 0, len(holdings))
	for i := range holdings {
		view, err := s.holdingView(r, &holdings[i])
		if err != nil {
			writeStoreError(w, err)
			return
		}
		views = append(views, *view)
	}
	writeJSON(w, http.StatusOK, views)
}

// GetHolding handles GET /api/v1/holdings/{holdingID}
func (s *Service) GetHolding(w http.ResponseWriter, r *http.Request) {
	holding, err := s.store.GetHolding(r.Context(), chi.URLParam(r, "holdingID"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	view, err := s.holdingView(r, holding)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// UpdateHolding handles PUT /api/v1/holdings/{holdingID}
func (s *Service) UpdateHolding(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "holdingID")

	existing, err := s.store.GetHolding(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	var req HoldingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	category := existing.Category
	if req.Category != "" {
		category, err = model.ParseCategory(req.Category)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	holding := &model.Holding{
		ID:               existing.ID,
		ISIN:             existing.ISIN,
		Quantity:         req.Quantity,
		AvgPurchasePrice: req.AvgPurchasePrice,
		Category:         category,
		Notes:            req.Notes,
		CreatedAt:        existing.CreatedAt,
		UpdatedAt:        time.Now().UTC(),
	}
	if err := holding.Validate(); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.store.UpdateHolding(r.Context(), holding); err != nil {
		writeStoreError(w, err)
		return
	}

	view, err := s.holdingView(r, holding)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// DeleteHolding handles DELETE /api/v1/holdings/{holdingID}
func (s *Service) DeleteHolding(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteHolding(r.Context(), chi.URLParam(r, "holdingID")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSummary handles GET /api/v1/portfolio/summary
// Returns totals and allocation weights across all holdings.
func (s *Service) GetSummary(w http.ResponseWriter, r *http.Request) {
	holdings, err := s.store.ListHoldings(r.Context(), store.HoldingFilter{})
	if err != nil {
		writeError(w, "failed to list holdings", http.StatusInternalServerError)
		return
	}
	assets, err := s.store.ListAssets(r.Context())
	if err != nil {
		writeError(w, "failed to list assets", http.StatusInternalServerError)
		return
	}

	byISIN := make(map[string]model.Asset, len(assets))
	for _, a := range assets {
		byISIN[a.ISIN] = a
	}

	writeJSON(w, http.StatusOK, allocation.Summarize(holdings, byISIN))
}

func (s *Service) holdingView(r *http.Request, h *model.Holding) (*HoldingView, error) {
	asset, err := s.store.GetAsset(r.Context(), h.ISIN)
	if err != nil {
		return nil, err
	}
	return &HoldingView{
		Holding:            *h,
		Asset:              *asset,
		TotalInvestment:    valuation.TotalInvestment(h),
		CurrentMarketValue: valuation.CurrentMarketValue(h, asset),
		ProfitLoss:         valuation.ProfitLoss(h, asset),
	}, nil
}

// --- Response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeStoreError maps the failure taxonomy onto HTTP status codes:
// validation → 400, conflict → 409, missing reference → 404.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrValidation):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrConflict):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	default:
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}
