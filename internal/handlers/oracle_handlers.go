package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/routeflow/routeflow-api/internal/chains"
	"github.com/routeflow/routeflow-api/internal/oracle"
)

// OracleHandler exposes gas oracle reads and cache operations.
type OracleHandler struct {
	gas *oracle.GasOracle
}

func NewOracleHandler(gas *oracle.GasOracle) *OracleHandler {
	return &OracleHandler{gas: gas}
}

// GetGasEstimate handles GET /api/v1/oracle/gas/:chain.
func (h *OracleHandler) GetGasEstimate(c *gin.Context) {
	chain, err := chains.Parse(c.Param("chain"))
	if err != nil {
		sendError(c, http.StatusBadRequest, "unsupported chain", err)
		return
	}

	asset := c.DefaultQuery("asset", "USDC")
	estimate, err := h.gas.EstimateGas(c.Request.Context(), chain, asset)
	if err != nil {
		sendError(c, http.StatusServiceUnavailable, "failed to estimate gas", err)
		return
	}

	sendSuccess(c, http.StatusOK, estimate)
}

// GetCacheStatus handles GET /api/v1/oracle/cache/status.
func (h *OracleHandler) GetCacheStatus(c *gin.Context) {
	sendSuccess(c, http.StatusOK, h.gas.CacheStats())
}

// ClearCache handles POST /api/v1/oracle/cache/clear.
func (h *OracleHandler) ClearCache(c *gin.Context) {
	h.gas.ClearCache()
	sendSuccess(c, http.StatusOK, SuccessResponse{Message: "gas estimate cache cleared"})
}
