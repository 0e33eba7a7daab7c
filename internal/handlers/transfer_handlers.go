package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/routeflow/routeflow-api/internal/chains"
	"github.com/routeflow/routeflow-api/internal/metrics"
	"github.com/routeflow/routeflow-api/internal/middleware"
	"github.com/routeflow/routeflow-api/internal/provider"
	"github.com/routeflow/routeflow-api/internal/router"
)

// TransferHandler initiates and reads provider transfers. When the caller
// does not pin a destination chain the quote router picks the cheapest
// one.
type TransferHandler struct {
	client  provider.Client
	router  *router.Router
	metrics *metrics.Registry
}

func NewTransferHandler(client provider.Client, r *router.Router, m *metrics.Registry) *TransferHandler {
	return &TransferHandler{client: client, router: r, metrics: m}
}

type createTransferRequest struct {
	WalletID           string   `json:"wallet_id" binding:"required"`
	DestinationAddress string   `json:"destination_address" binding:"required"`
	DestinationChain   string   `json:"destination_chain"`
	Amount             float64  `json:"amount" binding:"required,gt=0"`
	Currency           string   `json:"currency"`
	AllowedChains      []string `json:"allowed_chains"`
}

type createTransferResponse struct {
	Transfer *provider.Transfer `json:"transfer"`
	Route    *router.RouteQuote `json:"route,omitempty"`
}

// CreateTransfer handles POST /api/v1/transfers. The route is mounted
// behind the idempotency middleware, so duplicate submissions with the
// same key replay this handler's first response.
func (h *TransferHandler) CreateTransfer(c *gin.Context) {
	var req createTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "invalid transfer request", err)
		return
	}
	if !IsAddressValid(req.DestinationAddress) {
		sendError(c, http.StatusBadRequest, "destination_address is not a valid address", nil)
		return
	}

	ctx := c.Request.Context()
	log := middleware.LogWithCorrelationID(ctx)

	var (
		destChain chains.Chain
		route     *router.RouteQuote
	)
	if req.DestinationChain != "" {
		chain, err := chains.Parse(req.DestinationChain)
		if err != nil {
			sendError(c, http.StatusBadRequest, "unsupported destination_chain", err)
			return
		}
		destChain = chain
	} else {
		allowed := make([]chains.Chain, 0, len(req.AllowedChains))
		for _, raw := range req.AllowedChains {
			chain, err := chains.Parse(raw)
			if err != nil {
				sendError(c, http.StatusBadRequest, "unsupported chain in allowed_chains", err)
				return
			}
			allowed = append(allowed, chain)
		}

		quote, err := h.router.QuoteCheapest(ctx, router.QuoteRequest{
			Asset:         "USDC",
			AmountUSD:     req.Amount,
			AllowedChains: allowed,
		})
		if err != nil {
			handleRouterError(c, err)
			return
		}
		destChain = quote.Chain
		route = quote

		log.Info("routed transfer to cheapest chain",
			zap.String("chain", string(quote.Chain)),
			zap.Float64("fee_estimate_usd", quote.FeeEstimateUSD))
	}

	transfer, err := h.client.TransferUSDC(ctx, provider.TransferParams{
		WalletID:           req.WalletID,
		DestinationChain:   destChain,
		DestinationAddress: req.DestinationAddress,
		Amount:             provider.Amount{Currency: req.Currency, Value: req.Amount},
	})
	if err != nil {
		handleProviderError(c, err, "wallet not found")
		return
	}

	h.metrics.TransfersStarted.Inc()
	log.Info("transfer initiated",
		zap.String("transfer_id", transfer.ID),
		zap.String("wallet_id", transfer.WalletID),
		zap.String("destination_chain", string(destChain)))

	sendSuccess(c, http.StatusCreated, createTransferResponse{
		Transfer: transfer,
		Route:    route,
	})
}

// GetTransfer handles GET /api/v1/transfers/:transferId.
func (h *TransferHandler) GetTransfer(c *gin.Context) {
	transfer, err := h.client.GetTransfer(c.Request.Context(), c.Param("transferId"))
	if err != nil {
		handleProviderError(c, err, "transfer not found")
		return
	}
	sendSuccess(c, http.StatusOK, transfer)
}
