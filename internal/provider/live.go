package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/routeflow/routeflow-api/internal/chains"
	httpclient "github.com/routeflow/routeflow-api/internal/client/http"
)

// LiveClient talks to the real custody provider's REST API. It maps the
// provider's wire shapes onto the same types the mock serves, so callers
// cannot tell which variant they hold.
type LiveClient struct {
	client *httpclient.HTTPClient
}

// NewLiveClient creates a provider client for the given API base URL and
// key.
func NewLiveClient(baseURL, apiKey string) *LiveClient {
	return &LiveClient{
		client: httpclient.NewHTTPClient(
			httpclient.WithBaseURL(baseURL),
			httpclient.WithDefaultHeader("Authorization", "Bearer "+apiKey),
			httpclient.WithTimeout(15*time.Second),
		),
	}
}

type wireUser struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	CreateDate time.Time `json:"createDate"`
}

type wireWallet struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Blockchain string    `json:"blockchain"`
	Address    string    `json:"address"`
	State      string    `json:"state"`
	CreateDate time.Time `json:"createDate"`
}

type wireBalance struct {
	Token  struct{ Symbol string `json:"symbol"` } `json:"token"`
	Amount string                                  `json:"amount"`
}

type wireTransfer struct {
	ID              string    `json:"id"`
	WalletID        string    `json:"walletId"`
	Blockchain      string    `json:"blockchain"`
	DestinationAddr string    `json:"destinationAddress"`
	Amounts         []string  `json:"amounts"`
	State           string    `json:"state"`
	TxHash          string    `json:"txHash"`
	CreateDate      time.Time `json:"createDate"`
	UpdateDate      time.Time `json:"updateDate"`
}

func (c *LiveClient) CreateUser(ctx context.Context, params CreateUserParams) (*User, error) {
	body := map[string]string{
		"userId": uuid.New().String(),
		"email":  params.Email,
	}
	resp, err := c.client.Post(ctx, "/v1/w3s/users", body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create provider user")
	}

	var envelope struct {
		Data struct {
			User wireUser `json:"user"`
		} `json:"data"`
	}
	if err := c.client.ProcessJSONResponse(resp, &envelope); err != nil {
		return nil, errors.Wrap(err, "failed to decode user response")
	}

	return &User{
		ID:        envelope.Data.User.ID,
		Email:     params.Email,
		CreatedAt: envelope.Data.User.CreateDate,
	}, nil
}

func (c *LiveClient) CreateWallet(ctx context.Context, params CreateWalletParams) (*Wallet, error) {
	body := map[string]interface{}{
		"userId":      params.UserID,
		"blockchains": []string{string(params.Blockchain)},
		"accountType": "SCA",
	}
	resp, err := c.client.Post(ctx, "/v1/w3s/user/wallets", body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create provider wallet")
	}

	var envelope struct {
		Data struct {
			Wallets []wireWallet `json:"wallets"`
		} `json:"data"`
	}
	if err := c.client.ProcessJSONResponse(resp, &envelope); err != nil {
		return nil, errors.Wrap(err, "failed to decode wallet response")
	}
	if len(envelope.Data.Wallets) == 0 {
		return nil, errors.New("provider returned no wallets")
	}

	w := envelope.Data.Wallets[0]
	return &Wallet{
		ID:         w.ID,
		UserID:     w.UserID,
		Blockchain: params.Blockchain,
		Address:    w.Address,
		State:      WalletState(w.State),
		Balances:   map[string]float64{},
		CreatedAt:  w.CreateDate,
	}, nil
}

func (c *LiveClient) GetWallet(ctx context.Context, walletID string) (*Wallet, error) {
	resp, err := c.client.Get(ctx, fmt.Sprintf("/v1/w3s/wallets/%s", walletID))
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("wallet %s: %w", walletID, ErrNotFound)
		}
		return nil, errors.Wrap(err, "failed to fetch provider wallet")
	}

	var envelope struct {
		Data struct {
			Wallet wireWallet `json:"wallet"`
		} `json:"data"`
	}
	if err := c.client.ProcessJSONResponse(resp, &envelope); err != nil {
		return nil, errors.Wrap(err, "failed to decode wallet response")
	}
	w := envelope.Data.Wallet

	balances, err := c.walletBalances(ctx, walletID)
	if err != nil {
		return nil, err
	}

	return &Wallet{
		ID:         w.ID,
		UserID:     w.UserID,
		Blockchain: parseBlockchain(w.Blockchain),
		Address:    w.Address,
		State:      WalletState(w.State),
		Balances:   balances,
		CreatedAt:  w.CreateDate,
	}, nil
}

func (c *LiveClient) TransferUSDC(ctx context.Context, params TransferParams) (*Transfer, error) {
	body := map[string]interface{}{
		"walletId":           params.WalletID,
		"destinationAddress": params.DestinationAddress,
		"blockchain":         string(params.DestinationChain),
		"amounts":            []string{fmt.Sprintf("%f", params.Amount.Value)},
		"tokenSymbol":        "USDC",
		"feeLevel":           "MEDIUM",
	}
	resp, err := c.client.Post(ctx, "/v1/w3s/user/transactions/transfer", body)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("wallet %s: %w", params.WalletID, ErrNotFound)
		}
		return nil, errors.Wrap(err, "failed to initiate provider transfer")
	}

	var envelope struct {
		Data wireTransfer `json:"data"`
	}
	if err := c.client.ProcessJSONResponse(resp, &envelope); err != nil {
		return nil, errors.Wrap(err, "failed to decode transfer response")
	}

	return mapTransfer(envelope.Data, params), nil
}

func (c *LiveClient) GetTransfer(ctx context.Context, transferID string) (*Transfer, error) {
	resp, err := c.client.Get(ctx, fmt.Sprintf("/v1/w3s/transactions/%s", transferID))
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("transfer %s: %w", transferID, ErrNotFound)
		}
		return nil, errors.Wrap(err, "failed to fetch provider transfer")
	}

	var envelope struct {
		Data struct {
			Transaction wireTransfer `json:"transaction"`
		} `json:"data"`
	}
	if err := c.client.ProcessJSONResponse(resp, &envelope); err != nil {
		return nil, errors.Wrap(err, "failed to decode transfer response")
	}

	return mapTransfer(envelope.Data.Transaction, TransferParams{}), nil
}

func (c *LiveClient) walletBalances(ctx context.Context, walletID string) (map[string]float64, error) {
	resp, err := c.client.Get(ctx, fmt.Sprintf("/v1/w3s/wallets/%s/balances", walletID))
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch wallet balances")
	}

	var envelope struct {
		Data struct {
			TokenBalances []wireBalance `json:"tokenBalances"`
		} `json:"data"`
	}
	if err := c.client.ProcessJSONResponse(resp, &envelope); err != nil {
		return nil, errors.Wrap(err, "failed to decode balances response")
	}

	balances := make(map[string]float64, len(envelope.Data.TokenBalances))
	for _, b := range envelope.Data.TokenBalances {
		var amount float64
		if _, err := fmt.Sscanf(b.Amount, "%f", &amount); err != nil {
			continue
		}
		balances[b.Token.Symbol] = amount
	}
	return balances, nil
}

func mapTransfer(w wireTransfer, params TransferParams) *Transfer {
	transfer := &Transfer{
		ID:       w.ID,
		WalletID: w.WalletID,
		Destination: Destination{
			Chain:   parseBlockchain(w.Blockchain),
			Address: w.DestinationAddr,
		},
		Amount:     params.Amount,
		Status:     mapState(w.State),
		CreateDate: w.CreateDate,
		UpdateDate: w.UpdateDate,
	}
	if transfer.Status == TransferStatusComplete {
		transfer.TransactionHash = w.TxHash
	}
	if transfer.Amount.Currency == "" {
		transfer.Amount.Currency = "USDC"
		if len(w.Amounts) > 0 {
			fmt.Sscanf(w.Amounts[0], "%f", &transfer.Amount.Value)
		}
	}
	return transfer
}

// mapState folds the provider's transaction states onto the four-state
// lifecycle. Anything in flight reads as running.
func mapState(state string) TransferStatus {
	switch state {
	case "INITIATED", "QUEUED", "PENDING_RISK_SCREENING":
		return TransferStatusPending
	case "SENT", "CONFIRMED":
		return TransferStatusRunning
	case "COMPLETE":
		return TransferStatusComplete
	case "FAILED", "DENIED", "CANCELLED":
		return TransferStatusFailed
	default:
		return TransferStatusPending
	}
}

func parseBlockchain(s string) chains.Chain {
	if chain, err := chains.Parse(s); err == nil {
		return chain
	}
	return chains.Chain(s)
}

func isNotFound(err error) bool {
	var httpErr *httpclient.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == 404
	}
	return false
}
