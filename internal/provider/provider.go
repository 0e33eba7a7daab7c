package provider

import (
	"context"
	"errors"
	"time"

	"github.com/routeflow/routeflow-api/internal/chains"
)

var (
	// ErrNotFound is returned when a referenced user, wallet or transfer id
	// is unknown to the provider.
	ErrNotFound = errors.New("provider resource not found")

	// ErrInsufficientBalance rejects a transfer whose amount exceeds the
	// source wallet's balance for the requested asset.
	ErrInsufficientBalance = errors.New("insufficient wallet balance")

	// ErrValidation rejects malformed request parameters before any state
	// changes.
	ErrValidation = errors.New("invalid request parameters")
)

// WalletState distinguishes hot custody wallets from cold storage.
type WalletState string

const (
	WalletStateLive WalletState = "LIVE"
	WalletStateCold WalletState = "COLD"
)

// TransferStatus is the lifecycle state of a provider transfer. A transfer
// is created pending, may be observed running while settlement is in
// flight, and ends at exactly one of complete or failed.
type TransferStatus string

const (
	TransferStatusPending  TransferStatus = "pending"
	TransferStatusRunning  TransferStatus = "running"
	TransferStatusComplete TransferStatus = "complete"
	TransferStatusFailed   TransferStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s TransferStatus) Terminal() bool {
	return s == TransferStatusComplete || s == TransferStatusFailed
}

// User is an onboarded end user of the custody provider.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Wallet is a custodial wallet on one chain. Balances are keyed by asset
// symbol and change only through transfer settlement.
type Wallet struct {
	ID         string             `json:"id"`
	UserID     string             `json:"user_id"`
	Blockchain chains.Chain       `json:"blockchain"`
	Address    string             `json:"address"`
	State      WalletState        `json:"state"`
	Balances   map[string]float64 `json:"balances"`
	CreatedAt  time.Time          `json:"created_at"`
}

// Amount is a currency-tagged value.
type Amount struct {
	Currency string  `json:"currency"`
	Value    float64 `json:"value"`
}

// Destination identifies where a transfer settles.
type Destination struct {
	Chain   chains.Chain `json:"chain"`
	Address string       `json:"address"`
}

// Transfer is a provider transfer. TransactionHash is non-empty exactly
// when Status is complete.
type Transfer struct {
	ID              string         `json:"id"`
	WalletID        string         `json:"wallet_id"`
	Destination     Destination    `json:"destination"`
	Amount          Amount         `json:"amount"`
	Status          TransferStatus `json:"status"`
	TransactionHash string         `json:"transaction_hash,omitempty"`
	FailureReason   string         `json:"failure_reason,omitempty"`
	CreateDate      time.Time      `json:"create_date"`
	UpdateDate      time.Time      `json:"update_date"`
}

// CreateUserParams carries the fields needed to onboard a user.
type CreateUserParams struct {
	Email string `json:"email"`
}

// CreateWalletParams provisions a wallet for an existing user.
type CreateWalletParams struct {
	UserID     string       `json:"user_id"`
	Blockchain chains.Chain `json:"blockchain"`
	State      WalletState  `json:"state"`
}

// TransferParams initiates a USDC transfer out of a wallet.
type TransferParams struct {
	WalletID           string       `json:"wallet_id"`
	DestinationChain   chains.Chain `json:"destination_chain"`
	DestinationAddress string       `json:"destination_address"`
	Amount             Amount       `json:"amount"`
}

// Client is the capability surface of a custody provider. The mock and
// live implementations are selected once at construction; callers never
// branch on which variant they hold.
type Client interface {
	CreateUser(ctx context.Context, params CreateUserParams) (*User, error)
	CreateWallet(ctx context.Context, params CreateWalletParams) (*Wallet, error)
	GetWallet(ctx context.Context, walletID string) (*Wallet, error)
	TransferUSDC(ctx context.Context, params TransferParams) (*Transfer, error)
	GetTransfer(ctx context.Context, transferID string) (*Transfer, error)
}
