package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/routeflow/routeflow-api/internal/oracle"
)

// FXHandler exposes exchange-rate reads and conversions.
type FXHandler struct {
	fx *oracle.FXOracle
}

func NewFXHandler(fx *oracle.FXOracle) *FXHandler {
	return &FXHandler{fx: fx}
}

// GetRate handles GET /api/v1/fx/rate?pair=ETH/USD.
func (h *FXHandler) GetRate(c *gin.Context) {
	pair := c.Query("pair")
	if pair == "" {
		sendError(c, http.StatusBadRequest, "pair query parameter is required", nil)
		return
	}

	rate, err := h.fx.GetRate(c.Request.Context(), pair)
	if err != nil {
		handleFXError(c, err)
		return
	}

	sendSuccess(c, http.StatusOK, gin.H{
		"pair": pair,
		"rate": rate,
	})
}

type convertRequest struct {
	Amount float64 `json:"amount" binding:"required,gt=0"`
	From   string  `json:"from" binding:"required"`
	To     string  `json:"to" binding:"required"`
}

// Convert handles POST /api/v1/fx/convert.
func (h *FXHandler) Convert(c *gin.Context) {
	var req convertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "invalid conversion request", err)
		return
	}

	converted, err := h.fx.Convert(c.Request.Context(), req.Amount, req.From, req.To)
	if err != nil {
		handleFXError(c, err)
		return
	}

	sendSuccess(c, http.StatusOK, gin.H{
		"amount":    req.Amount,
		"from":      req.From,
		"to":        req.To,
		"converted": converted,
	})
}

// GetRateMovement handles GET /api/v1/fx/movement.
func (h *FXHandler) GetRateMovement(c *gin.Context) {
	pair := c.Query("pair")
	if pair == "" {
		sendError(c, http.StatusBadRequest, "pair query parameter is required", nil)
		return
	}

	threshold := 2.0
	if raw := c.Query("threshold_percent"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed <= 0 {
			sendError(c, http.StatusBadRequest, "threshold_percent must be a positive number", err)
			return
		}
		threshold = parsed
	}

	window := time.Minute
	if raw := c.Query("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			sendError(c, http.StatusBadRequest, "window must be a positive duration", err)
			return
		}
		window = parsed
	}

	moved, movement, err := h.fx.CheckRateMovement(c.Request.Context(), pair, threshold, window)
	if err != nil {
		handleFXError(c, err)
		return
	}

	sendSuccess(c, http.StatusOK, gin.H{
		"pair":              pair,
		"moved":             moved,
		"movement_percent":  movement,
		"threshold_percent": threshold,
		"window":            window.String(),
	})
}

// GetVolatility handles GET /api/v1/fx/volatility.
func (h *FXHandler) GetVolatility(c *gin.Context) {
	pair := c.Query("pair")
	if pair == "" {
		sendError(c, http.StatusBadRequest, "pair query parameter is required", nil)
		return
	}

	volatility, err := h.fx.GetVolatility(c.Request.Context(), pair)
	if err != nil {
		handleFXError(c, err)
		return
	}

	sendSuccess(c, http.StatusOK, gin.H{
		"pair":               pair,
		"volatility_percent": volatility,
	})
}

func handleFXError(c *gin.Context, err error) {
	if errors.Is(err, oracle.ErrPairNotSupported) {
		sendError(c, http.StatusBadRequest, "currency pair not supported", err)
		return
	}
	sendError(c, http.StatusInternalServerError, "failed to read exchange rate", err)
}
