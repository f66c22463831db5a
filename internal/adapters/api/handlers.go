package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/mfujino/sellbridge/internal/domain/listing"
	"github.com/mfujino/sellbridge/internal/domain/pricing"
	"github.com/mfujino/sellbridge/pkg/actionlock"
)

// Handler exposes the lifecycle dispatcher, the reconciler and the price
// calculator over JSON HTTP
type Handler struct {
	dispatcher *listing.Dispatcher
	reconciler *listing.Reconciler
	rates      listing.RateProvider
	logger     *slog.Logger
}

// NewHandler creates the API handler
func NewHandler(
	dispatcher *listing.Dispatcher,
	reconciler *listing.Reconciler,
	rates listing.RateProvider,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		reconciler: reconciler,
		rates:      rates,
		logger:     logger,
	}
}

// Routes wires the handler onto a mux
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/actions", h.handleAction)
	mux.HandleFunc("POST /v1/reconcile", h.handleReconcile)
	mux.HandleFunc("POST /v1/quotes", h.handleQuote)
	mux.HandleFunc("POST /v1/quotes/reprice", h.handleReprice)
	mux.HandleFunc("POST /v1/items", h.handleRegisterItem)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

type actionRequest struct {
	Action string `json:"action"`
	SKU    string `json:"sku"`
}

type listingResponse struct {
	SKU          string `json:"sku"`
	OfferID      string `json:"offer_id"`
	SourceID     string `json:"source_id"`
	Status       string `json:"status"`
	Price        int64  `json:"price"`
	Profit       int64  `json:"profit"`
	ProfitSource int64  `json:"profit_source"`
	ViewCount    int64  `json:"view_count"`
	WatchCount   int64  `json:"watch_count"`
}

func toListingResponse(l *listing.Listing) listingResponse {
	return listingResponse{
		SKU:          l.SKU,
		OfferID:      l.OfferID,
		SourceID:     l.SourceID,
		Status:       string(l.Status),
		Price:        l.Price,
		Profit:       l.Profit,
		ProfitSource: l.ProfitSource,
		ViewCount:    l.ViewCount,
		WatchCount:   l.WatchCount,
	}
}

func (h *Handler) handleAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.dispatcher.Dispatch(r.Context(), listing.NewActionRequest(listing.Action(req.Action), req.SKU))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toListingResponse(result))
}

type reconcileRequest struct {
	// Exactly one of Family (target side) or Variant (sourcing side) is set
	Family  string `json:"family,omitempty"`
	Variant string `json:"variant,omitempty"`
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch {
	case req.Family != "" && req.Variant != "":
		h.writeError(w, http.StatusBadRequest, "set either family or variant, not both")
	case req.Family != "":
		summary, err := h.reconciler.ReconcileAll(r.Context(), req.Family)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusOK, summary)
	case req.Variant != "":
		summary, err := h.reconciler.ReconcileSources(r.Context(), listing.SourceVariant(req.Variant))
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusOK, summary)
	default:
		h.writeError(w, http.StatusBadRequest, "set family or variant")
	}
}

type quoteRequest struct {
	Price        int64 `json:"price"`         // yen
	ShippingCost int64 `json:"shipping_cost"` // yen

	// ListingPrice (cents) is set on reprice only
	ListingPrice int64 `json:"listing_price,omitempty"`
}

type quoteResponse struct {
	ListingPrice       int64 `json:"listing_price"`
	ListingPriceSource int64 `json:"listing_price_source"`
	Profit             int64 `json:"profit"`
	ProfitSource       int64 `json:"profit_source"`
}

func (h *Handler) handleQuote(w http.ResponseWriter, r *http.Request) {
	h.quote(w, r, false)
}

func (h *Handler) handleReprice(w http.ResponseWriter, r *http.Request) {
	h.quote(w, r, true)
}

func (h *Handler) quote(w http.ResponseWriter, r *http.Request, reprice bool) {
	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg, err := h.rates.Rates(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	costBasis := req.Price + req.ShippingCost
	var bd pricing.Breakdown
	if reprice {
		bd, err = pricing.Reprice(cfg, costBasis, req.ListingPrice)
	} else {
		bd, err = pricing.Quote(cfg, costBasis)
	}
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, quoteResponse{
		ListingPrice:       bd.ListingPrice,
		ListingPriceSource: bd.ListingPriceSource,
		Profit:             bd.Profit,
		ProfitSource:       bd.ProfitSource,
	})
}

type registerItemRequest struct {
	SKU           string     `json:"sku"`
	OfferID       string     `json:"offer_id"`
	Family        string     `json:"family"`
	SourceID      string     `json:"source_id"`
	URL           string     `json:"url"`
	Variant       string     `json:"variant"`
	Name          string     `json:"name"`
	Price         int64      `json:"price"`          // yen
	ShippingCost  int64      `json:"shipping_cost"`  // yen
	ShippingPrice int64      `json:"shipping_price"` // cents
	EndAt         *time.Time `json:"end_at,omitempty"`
}

type registerItemResponse struct {
	Listing listingResponse `json:"listing"`
	Quote   quoteResponse   `json:"quote"`

	// PublishError is set when the target marketplace rejected the initial
	// publish; the listing is stored as failed.
	PublishError string `json:"publish_error,omitempty"`
}

func (h *Handler) handleRegisterItem(w http.ResponseWriter, r *http.Request) {
	var req registerItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SKU == "" || req.SourceID == "" {
		h.writeError(w, http.StatusBadRequest, "sku and source_id are required")
		return
	}

	lst, bd, err := h.dispatcher.RegisterItem(r.Context(), listing.RegisterItemCommand{
		SKU:           req.SKU,
		OfferID:       req.OfferID,
		Family:        req.Family,
		SourceID:      req.SourceID,
		URL:           req.URL,
		Variant:       listing.SourceVariant(req.Variant),
		Name:          req.Name,
		Price:         req.Price,
		ShippingCost:  req.ShippingCost,
		ShippingPrice: req.ShippingPrice,
		EndAt:         req.EndAt,
	})

	var remoteErr *listing.RemoteError
	if err != nil && !(errors.As(err, &remoteErr) && lst != nil) {
		h.writeDomainError(w, r, err)
		return
	}

	resp := registerItemResponse{
		Listing: toListingResponse(lst),
		Quote: quoteResponse{
			ListingPrice:       bd.ListingPrice,
			ListingPriceSource: bd.ListingPriceSource,
			Profit:             bd.Profit,
			ProfitSource:       bd.ProfitSource,
		},
	}
	if remoteErr != nil {
		resp.PublishError = remoteErr.Error()
	}

	h.writeJSON(w, http.StatusCreated, resp)
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeDomainError maps domain errors onto HTTP status codes
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var transitionErr *listing.TransitionError
	var remoteErr *listing.RemoteError

	switch {
	case errors.Is(err, actionlock.ErrBusy):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &transitionErr):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, listing.ErrListingNotFound), errors.Is(err, listing.ErrSourceItemNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, listing.ErrUnknownAction), errors.Is(err, listing.ErrUnknownVariant),
		errors.Is(err, pricing.ErrInvalidRate), errors.Is(err, pricing.ErrConfiguration):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &remoteErr):
		h.writeError(w, http.StatusBadGateway, err.Error())
	default:
		h.logger.Error("Unhandled error", "error", err, "path", r.URL.Path)
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, errorResponse{Error: msg})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}
