package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/routeflow/routeflow-api/internal/chains"
	"github.com/routeflow/routeflow-api/internal/metrics"
	"github.com/routeflow/routeflow-api/internal/router"
)

// QuoteHandler serves route quotes for prospective transfers.
type QuoteHandler struct {
	router  *router.Router
	metrics *metrics.Registry
}

func NewQuoteHandler(r *router.Router, m *metrics.Registry) *QuoteHandler {
	return &QuoteHandler{router: r, metrics: m}
}

// quoteRequestFromQuery parses asset, amount_usd and the optional
// repeated chains parameter.
func quoteRequestFromQuery(c *gin.Context) (router.QuoteRequest, bool) {
	req := router.QuoteRequest{
		Asset: c.DefaultQuery("asset", "USDC"),
	}

	amountStr := c.Query("amount_usd")
	if amountStr != "" {
		amount, err := strconv.ParseFloat(amountStr, 64)
		if err != nil || amount <= 0 {
			sendError(c, http.StatusBadRequest, "amount_usd must be a positive number", err)
			return req, false
		}
		req.AmountUSD = amount
	}

	for _, raw := range c.QueryArray("chains") {
		chain, err := chains.Parse(raw)
		if err != nil {
			sendError(c, http.StatusBadRequest, "unsupported chain in chains parameter", err)
			return req, false
		}
		req.AllowedChains = append(req.AllowedChains, chain)
	}

	return req, true
}

// GetQuotes handles GET /api/v1/quotes.
func (h *QuoteHandler) GetQuotes(c *gin.Context) {
	req, ok := quoteRequestFromQuery(c)
	if !ok {
		return
	}

	quotes, err := h.router.AllQuotes(c.Request.Context(), req)
	if err != nil {
		handleRouterError(c, err)
		return
	}

	for _, q := range quotes {
		if q.Recommended {
			h.metrics.QuotesServed.WithLabelValues(string(q.Chain)).Inc()
		}
	}

	sendSuccess(c, http.StatusOK, gin.H{
		"object": "list",
		"data":   quotes,
	})
}

// GetCheapestQuote handles GET /api/v1/quotes/cheapest.
func (h *QuoteHandler) GetCheapestQuote(c *gin.Context) {
	req, ok := quoteRequestFromQuery(c)
	if !ok {
		return
	}

	quote, err := h.router.QuoteCheapest(c.Request.Context(), req)
	if err != nil {
		handleRouterError(c, err)
		return
	}

	h.metrics.QuotesServed.WithLabelValues(string(quote.Chain)).Inc()
	sendSuccess(c, http.StatusOK, quote)
}

func handleRouterError(c *gin.Context, err error) {
	if errors.Is(err, router.ErrNoRouteAvailable) {
		sendError(c, http.StatusServiceUnavailable, "no route available", err)
		return
	}
	sendError(c, http.StatusBadRequest, "failed to compute quotes", err)
}
