package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/routeflow/routeflow-api/internal/chains"
	"github.com/routeflow/routeflow-api/internal/provider"
)

// ProviderHandler exposes user and wallet provisioning on the custody
// provider.
type ProviderHandler struct {
	client provider.Client
}

func NewProviderHandler(client provider.Client) *ProviderHandler {
	return &ProviderHandler{client: client}
}

type createUserRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// CreateUser handles POST /api/v1/provider/users.
func (h *ProviderHandler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "invalid user request", err)
		return
	}

	user, err := h.client.CreateUser(c.Request.Context(), provider.CreateUserParams{Email: req.Email})
	if err != nil {
		handleProviderError(c, err, "user not found")
		return
	}

	sendSuccess(c, http.StatusCreated, user)
}

type createWalletRequest struct {
	UserID     string `json:"user_id" binding:"required"`
	Blockchain string `json:"blockchain" binding:"required"`
	State      string `json:"state"`
}

// CreateWallet handles POST /api/v1/provider/wallets.
func (h *ProviderHandler) CreateWallet(c *gin.Context) {
	var req createWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "invalid wallet request", err)
		return
	}

	chain, err := chains.Parse(req.Blockchain)
	if err != nil {
		sendError(c, http.StatusBadRequest, "unsupported blockchain", err)
		return
	}

	wallet, err := h.client.CreateWallet(c.Request.Context(), provider.CreateWalletParams{
		UserID:     req.UserID,
		Blockchain: chain,
		State:      provider.WalletState(req.State),
	})
	if err != nil {
		handleProviderError(c, err, "user not found")
		return
	}

	sendSuccess(c, http.StatusCreated, wallet)
}

// GetWallet handles GET /api/v1/provider/wallets/:walletId.
func (h *ProviderHandler) GetWallet(c *gin.Context) {
	wallet, err := h.client.GetWallet(c.Request.Context(), c.Param("walletId"))
	if err != nil {
		handleProviderError(c, err, "wallet not found")
		return
	}
	sendSuccess(c, http.StatusOK, wallet)
}
