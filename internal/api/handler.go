package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"market-pulse/config"
	"market-pulse/internal/app"
	"market-pulse/models"
	"market-pulse/observability"
	"market-pulse/services"
)

// maxQuoteSymbols caps the symbols accepted by one quotes request
const maxQuoteSymbols = 25

// Handler handles HTTP API requests
type Handler struct {
	app *app.App
	cfg *config.Config
}

// NewHandler creates a new Handler
func NewHandler(application *app.App, cfg *config.Config) *Handler {
	return &Handler{app: application, cfg: cfg}
}

// HandleIndex identifies the API
func (h *Handler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, map[string]string{"message": "Market Pulse API"})
}

// HealthResponse is the health endpoint payload
type HealthResponse struct {
	models.HealthStatus
	Database        string                            `json:"database"`
	CircuitBreakers map[string]services.BreakerStatus `json:"circuit_breakers"`
}

// HandleHealth returns the health status of every data source, the
// database and the circuit breakers
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		HealthStatus:    h.app.Health(),
		Database:        h.app.DatabaseStatus(r.Context()),
		CircuitBreakers: services.DefaultBreakers().Status(),
	}

	if resp.Database == app.DatabaseDisconnected || len(services.DefaultBreakers().OpenProviders()) > 0 {
		resp.Status = "degraded"
	}

	h.jsonResponse(w, resp)
}

// HandleSummary returns the aggregated market summary. Provider failures
// never change the status code.
func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, h.app.Summary(r.Context()))
}

// BreadthInput is one exchange's advance/decline counts
type BreadthInput struct {
	Advancers *int64 `json:"advancers" validate:"omitempty,gte=0"`
	Decliners *int64 `json:"decliners" validate:"omitempty,gte=0"`
	UpVol     *int64 `json:"upVol" validate:"omitempty,gte=0"`
	DownVol   *int64 `json:"downVol" validate:"omitempty,gte=0"`
}

// SectorInput is one sector's daily change
type SectorInput struct {
	Symbol string  `json:"symbol" validate:"required,max=10,ticker"`
	Name   string  `json:"name" validate:"max=50"`
	Pct    float64 `json:"pct" validate:"gte=-100"`
}

// VIXInput is the volatility index reading
type VIXInput struct {
	Price float64 `json:"price" validate:"gte=0"`
	Pct   float64 `json:"pct" validate:"gte=-100"`
}

// PostureRequest carries explicit scorer inputs
type PostureRequest struct {
	Breadth map[string]BreadthInput `json:"breadth" validate:"max=2,dive,keys,oneof=nyse nasdaq,endkeys"`
	Sectors []SectorInput           `json:"sectors" validate:"max=50,dive"`
	VIX     VIXInput                `json:"vix"`
}

// HandlePosture scores the posted breadth, sectors and VIX
func (h *Handler) HandlePosture(w http.ResponseWriter, r *http.Request) {
	var req PostureRequest
	if errs := decodeJSON(w, r, &req); errs != nil {
		h.jsonValidationError(w, errs)
		return
	}
	if errs := validateStruct(r.Context(), &req); errs != nil {
		h.jsonValidationError(w, errs)
		return
	}

	breadth := make(map[string]models.BreadthData, len(req.Breadth))
	for exchange, b := range req.Breadth {
		breadth[exchange] = models.BreadthData(b)
	}
	sectors := make([]models.SectorData, 0, len(req.Sectors))
	for _, s := range req.Sectors {
		sectors = append(sectors, models.SectorData{
			Symbol: models.NormalizeSymbol(s.Symbol),
			Name:   s.Name,
			Pct:    s.Pct,
		})
	}
	vix := models.VIXData{Symbol: models.VIXSymbol, Price: req.VIX.Price, Pct: req.VIX.Pct}

	h.jsonResponse(w, h.app.Posture(breadth, sectors, vix))
}

// HandlePostureHistory returns recorded posture readings
func (h *Handler) HandlePostureHistory(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.app.PostureHistory(r.Context(), h.ParseLimitParam(r, 50))
	if err != nil {
		observability.Error("failed to load posture history", "error", err)
		h.jsonError(w, "failed to load posture history", http.StatusInternalServerError)
		return
	}
	h.jsonResponse(w, snaps)
}

// HandleLatestPosture returns the newest recorded posture reading
func (h *Handler) HandleLatestPosture(w http.ResponseWriter, r *http.Request) {
	snap, err := h.app.LatestPosture(r.Context())
	if err != nil {
		observability.Error("failed to load latest posture", "error", err)
		h.jsonError(w, "failed to load latest posture", http.StatusInternalServerError)
		return
	}
	if snap == nil {
		h.jsonError(w, "no posture recorded yet", http.StatusNotFound)
		return
	}
	h.jsonResponse(w, snap)
}

// QuotesResponse is the quotes endpoint payload
type QuotesResponse struct {
	Quotes map[string]models.Quote `json:"quotes"`
	Source string                  `json:"source"`
}

// HandleQuotes resolves the comma-separated symbols query parameter
func (h *Handler) HandleQuotes(w http.ResponseWriter, r *http.Request) {
	symbols, err := h.parseSymbolsParam(r)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	quotes, source, err := h.app.Quotes(r.Context(), symbols)
	if err != nil {
		observability.Error("failed to resolve quotes", "error", err)
		h.jsonError(w, "failed to resolve quotes", http.StatusInternalServerError)
		return
	}
	h.jsonResponse(w, QuotesResponse{Quotes: quotes, Source: source})
}

// HandleMiniQuotes returns compact quotes with sparklines for the symbols
// query parameter
func (h *Handler) HandleMiniQuotes(w http.ResponseWriter, r *http.Request) {
	symbols, err := h.parseSymbolsParam(r)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	quotes, err := h.app.MiniQuotes(r.Context(), symbols)
	if err != nil {
		observability.Error("failed to resolve mini quotes", "error", err)
		h.jsonError(w, "failed to resolve quotes", http.StatusInternalServerError)
		return
	}
	h.jsonResponse(w, quotes)
}

// SparklineResponse is the sparkline endpoint payload
type SparklineResponse struct {
	Symbol string    `json:"symbol"`
	Points []float64 `json:"points"`
	Source string    `json:"source"`
}

// HandleSparkline returns recent intraday closes for a symbol
func (h *Handler) HandleSparkline(w http.ResponseWriter, r *http.Request) {
	symbol := models.NormalizeSymbol(chi.URLParam(r, "symbol"))
	if err := ValidateSymbol(symbol); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	points, source, err := h.app.Sparkline(r.Context(), symbol)
	if err != nil {
		observability.Error("failed to resolve sparkline", "symbol", symbol, "error", err)
		h.jsonError(w, "failed to resolve sparkline", http.StatusInternalServerError)
		return
	}
	h.jsonResponse(w, SparklineResponse{Symbol: symbol, Points: points, Source: source})
}

// HandleGetWatchlist returns the watchlist
func (h *Handler) HandleGetWatchlist(w http.ResponseWriter, r *http.Request) {
	wl, err := h.app.Watchlist(r.Context())
	if err != nil {
		h.watchlistError(w, err)
		return
	}
	h.jsonResponse(w, wl)
}

// WatchlistRequest is the body of the add and replace endpoints: a JSON
// array of items
type WatchlistRequest struct {
	Items []models.WatchlistItem `json:"items" validate:"max=200,dive"`
}

// HandleAddWatchlist merges the posted items into the watchlist
func (h *Handler) HandleAddWatchlist(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readWatchlistRequest(w, r)
	if !ok {
		return
	}

	wl, err := h.app.AddToWatchlist(r.Context(), req.Items)
	if err != nil {
		h.watchlistError(w, err)
		return
	}
	h.jsonResponse(w, wl)
}

// HandleReplaceWatchlist replaces the watchlist with the posted items
func (h *Handler) HandleReplaceWatchlist(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readWatchlistRequest(w, r)
	if !ok {
		return
	}

	wl, err := h.app.ReplaceWatchlist(r.Context(), req.Items)
	if err != nil {
		h.watchlistError(w, err)
		return
	}
	h.jsonResponse(w, wl)
}

// HandleRemoveWatchlist removes one symbol from the watchlist
func (h *Handler) HandleRemoveWatchlist(w http.ResponseWriter, r *http.Request) {
	symbol := models.NormalizeSymbol(chi.URLParam(r, "symbol"))
	if err := ValidateSymbol(symbol); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	wl, err := h.app.RemoveFromWatchlist(r.Context(), symbol)
	if err != nil {
		h.watchlistError(w, err)
		return
	}
	h.jsonResponse(w, wl)
}

// HandleWatchlistQuotes returns mini quotes for every watchlist symbol
func (h *Handler) HandleWatchlistQuotes(w http.ResponseWriter, r *http.Request) {
	quotes, err := h.app.WatchlistQuotes(r.Context())
	if err != nil {
		observability.Error("failed to resolve watchlist quotes", "error", err)
		h.jsonError(w, "failed to resolve watchlist quotes", http.StatusInternalServerError)
		return
	}
	h.jsonResponse(w, quotes)
}

func (h *Handler) readWatchlistRequest(w http.ResponseWriter, r *http.Request) (WatchlistRequest, bool) {
	var req WatchlistRequest
	if errs := decodeJSON(w, r, &req.Items); errs != nil {
		h.jsonValidationError(w, errs)
		return req, false
	}
	if errs := validateStruct(r.Context(), &req); errs != nil {
		h.jsonValidationError(w, errs)
		return req, false
	}
	return req, true
}

func (h *Handler) watchlistError(w http.ResponseWriter, err error) {
	observability.Error("watchlist store failed", "error", err)
	h.jsonError(w, "watchlist unavailable", http.StatusInternalServerError)
}

// parseSymbolsParam reads and validates the symbols query parameter
func (h *Handler) parseSymbolsParam(r *http.Request) ([]string, error) {
	raw := r.URL.Query().Get("symbols")
	if strings.TrimSpace(raw) == "" {
		return nil, errMissingSymbols
	}

	var symbols []string
	for _, part := range strings.Split(raw, ",") {
		sym := models.NormalizeSymbol(part)
		if sym == "" {
			continue
		}
		if err := ValidateSymbol(sym); err != nil {
			return nil, err
		}
		symbols = append(symbols, sym)
	}
	if len(symbols) == 0 {
		return nil, errMissingSymbols
	}
	if len(symbols) > maxQuoteSymbols {
		return nil, errTooManySymbols
	}
	return symbols, nil
}

// ParseLimitParam parses the limit query parameter
func (h *Handler) ParseLimitParam(r *http.Request, defaultLimit int) int {
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			return l
		}
	}
	return defaultLimit
}

func (h *Handler) jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func (h *Handler) jsonValidationError(w http.ResponseWriter, errs []ValidationError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]any{
		"error":   "validation failed",
		"details": errs,
	})
}
