package provider

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/routeflow/routeflow-api/internal/chains"
	"github.com/routeflow/routeflow-api/internal/logger"
)

const (
	// Same-chain settlement is a couple of blocks; cross-chain transfers go
	// through CCTP attestation and take materially longer.
	sameChainSettlementDelay  = 2 * time.Second
	crossChainSettlementDelay = 20 * time.Second

	// Destination addresses with this prefix settle as failed. Lets demo
	// and test flows exercise the failure branch without a live provider.
	failingAddressPrefix = "0xdead"
)

// MockClient simulates a custodial payment provider in process. Users,
// wallets and transfers live in memory; transfer settlement fires through
// the injected scheduler so callers observe the same asynchronous shape as
// the live provider.
type MockClient struct {
	mu        sync.Mutex
	scheduler Scheduler
	rng       *rand.Rand
	logger    *zap.Logger

	users     map[string]*User
	wallets   map[string]*Wallet
	transfers map[string]*Transfer
	cancels   map[string]CancelFunc

	sameChainDelay  time.Duration
	crossChainDelay time.Duration

	closed bool
}

// NewMockClient creates a mock provider settling on the given scheduler.
func NewMockClient(scheduler Scheduler) *MockClient {
	return NewSeededMockClient(scheduler, time.Now().UnixNano())
}

// NewSeededMockClient pins the transaction-hash RNG for reproducible runs.
func NewSeededMockClient(scheduler Scheduler, seed int64) *MockClient {
	return &MockClient{
		scheduler:       scheduler,
		rng:             rand.New(rand.NewSource(seed)),
		logger:          logger.Log,
		users:           make(map[string]*User),
		wallets:         make(map[string]*Wallet),
		transfers:       make(map[string]*Transfer),
		cancels:         make(map[string]CancelFunc),
		sameChainDelay:  sameChainSettlementDelay,
		crossChainDelay: crossChainSettlementDelay,
	}
}

func (m *MockClient) CreateUser(_ context.Context, params CreateUserParams) (*User, error) {
	if params.Email == "" {
		return nil, fmt.Errorf("email is required: %w", ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	user := &User{
		ID:        "user_" + uuid.New().String(),
		Email:     params.Email,
		CreatedAt: time.Now().UTC(),
	}
	m.users[user.ID] = user

	m.logger.Info("created provider user", zap.String("user_id", user.ID))

	copied := *user
	return &copied, nil
}

func (m *MockClient) CreateWallet(_ context.Context, params CreateWalletParams) (*Wallet, error) {
	if !chains.Valid(params.Blockchain) {
		return nil, fmt.Errorf("unsupported blockchain %q: %w", params.Blockchain, ErrValidation)
	}
	state := params.State
	if state == "" {
		state = WalletStateLive
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[params.UserID]; !ok {
		return nil, fmt.Errorf("user %s: %w", params.UserID, ErrNotFound)
	}

	wallet := &Wallet{
		ID:         "wallet_" + uuid.New().String(),
		UserID:     params.UserID,
		Blockchain: params.Blockchain,
		Address:    m.newAddress(),
		State:      state,
		Balances: map[string]float64{
			"USDC": seedBalance(params.UserID, params.Blockchain),
		},
		CreatedAt: time.Now().UTC(),
	}
	m.wallets[wallet.ID] = wallet

	m.logger.Info("created provider wallet",
		zap.String("wallet_id", wallet.ID),
		zap.String("user_id", wallet.UserID),
		zap.String("blockchain", string(wallet.Blockchain)))

	return copyWallet(wallet), nil
}

func (m *MockClient) GetWallet(_ context.Context, walletID string) (*Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wallet, ok := m.wallets[walletID]
	if !ok {
		return nil, fmt.Errorf("wallet %s: %w", walletID, ErrNotFound)
	}
	return copyWallet(wallet), nil
}

func (m *MockClient) TransferUSDC(_ context.Context, params TransferParams) (*Transfer, error) {
	if !chains.Valid(params.DestinationChain) {
		return nil, fmt.Errorf("unsupported destination chain %q: %w", params.DestinationChain, ErrValidation)
	}
	if params.Amount.Value <= 0 {
		return nil, fmt.Errorf("transfer amount must be positive: %w", ErrValidation)
	}
	currency := params.Amount.Currency
	if currency == "" {
		currency = "USDC"
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	wallet, ok := m.wallets[params.WalletID]
	if !ok {
		return nil, fmt.Errorf("wallet %s: %w", params.WalletID, ErrNotFound)
	}
	if wallet.Balances[currency] < params.Amount.Value {
		return nil, fmt.Errorf("wallet %s holds %.2f %s: %w",
			wallet.ID, wallet.Balances[currency], currency, ErrInsufficientBalance)
	}

	now := time.Now().UTC()
	transfer := &Transfer{
		ID:       "transfer_" + uuid.New().String(),
		WalletID: wallet.ID,
		Destination: Destination{
			Chain:   params.DestinationChain,
			Address: params.DestinationAddress,
		},
		Amount:     Amount{Currency: currency, Value: params.Amount.Value},
		Status:     TransferStatusPending,
		CreateDate: now,
		UpdateDate: now,
	}
	m.transfers[transfer.ID] = transfer

	delay := m.sameChainDelay
	if params.DestinationChain != wallet.Blockchain {
		delay = m.crossChainDelay
	}

	id := transfer.ID
	m.cancels[id] = m.scheduler.Schedule(delay, func() { m.settle(id) })

	m.logger.Info("initiated provider transfer",
		zap.String("transfer_id", transfer.ID),
		zap.String("wallet_id", wallet.ID),
		zap.String("destination_chain", string(params.DestinationChain)),
		zap.Float64("amount", params.Amount.Value),
		zap.Duration("settlement_delay", delay))

	copied := *transfer
	return &copied, nil
}

func (m *MockClient) GetTransfer(_ context.Context, transferID string) (*Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	transfer, ok := m.transfers[transferID]
	if !ok {
		return nil, fmt.Errorf("transfer %s: %w", transferID, ErrNotFound)
	}
	copied := *transfer
	return &copied, nil
}

// ApplyTransferUpdate applies an externally reported terminal status, as
// delivered by a provider webhook. A transfer already terminal is left
// untouched so duplicate deliveries cannot re-transition it.
func (m *MockClient) ApplyTransferUpdate(_ context.Context, transferID string, status TransferStatus, txHash string) (*Transfer, error) {
	if !status.Terminal() && status != TransferStatusRunning {
		return nil, fmt.Errorf("invalid transfer status %q: %w", status, ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	transfer, ok := m.transfers[transferID]
	if !ok {
		return nil, fmt.Errorf("transfer %s: %w", transferID, ErrNotFound)
	}
	if transfer.Status.Terminal() {
		copied := *transfer
		return &copied, nil
	}

	if cancel, ok := m.cancels[transferID]; ok {
		cancel()
		delete(m.cancels, transferID)
	}

	transfer.Status = status
	transfer.UpdateDate = time.Now().UTC()
	if status == TransferStatusComplete {
		if txHash == "" {
			txHash = m.newTxHash()
		}
		transfer.TransactionHash = txHash
		m.debitLocked(transfer)
	}

	m.logger.Info("applied external transfer update",
		zap.String("transfer_id", transferID),
		zap.String("status", string(status)))

	copied := *transfer
	return &copied, nil
}

// Close cancels all outstanding settlement tasks. In-flight transfers stay
// pending forever, which matches a provider outage.
func (m *MockClient) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	for id, cancel := range m.cancels {
		cancel()
		delete(m.cancels, id)
	}
}

// settle fires once per transfer from the scheduler. The terminal check
// makes it idempotent against a racing external update.
func (m *MockClient) settle(transferID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.cancels, transferID)

	transfer, ok := m.transfers[transferID]
	if !ok || transfer.Status.Terminal() {
		return
	}

	transfer.UpdateDate = time.Now().UTC()
	if strings.HasPrefix(strings.ToLower(transfer.Destination.Address), failingAddressPrefix) {
		transfer.Status = TransferStatusFailed
		transfer.FailureReason = "destination rejected by network"
		m.logger.Warn("transfer settlement failed",
			zap.String("transfer_id", transferID),
			zap.String("reason", transfer.FailureReason))
		return
	}

	transfer.Status = TransferStatusComplete
	transfer.TransactionHash = m.newTxHash()
	m.debitLocked(transfer)

	m.logger.Info("transfer settled",
		zap.String("transfer_id", transferID),
		zap.String("transaction_hash", transfer.TransactionHash))
}

// debitLocked moves the settled amount out of the source wallet. Caller
// holds m.mu.
func (m *MockClient) debitLocked(transfer *Transfer) {
	wallet, ok := m.wallets[transfer.WalletID]
	if !ok {
		return
	}
	wallet.Balances[transfer.Amount.Currency] -= transfer.Amount.Value
	if wallet.Balances[transfer.Amount.Currency] < 0 {
		wallet.Balances[transfer.Amount.Currency] = 0
	}
}

func (m *MockClient) newAddress() string {
	var b [20]byte
	m.rng.Read(b[:])
	return fmt.Sprintf("0x%x", b)
}

func (m *MockClient) newTxHash() string {
	var b [32]byte
	m.rng.Read(b[:])
	return fmt.Sprintf("0x%x", b)
}

// seedBalance derives a stable demo balance from the owning user and
// chain, between 250 and 5000 USDC.
func seedBalance(userID string, chain chains.Chain) float64 {
	h := fnv.New32a()
	h.Write([]byte(userID))
	h.Write([]byte(chain))
	return 250 + float64(h.Sum32()%4751)
}

func copyWallet(w *Wallet) *Wallet {
	copied := *w
	copied.Balances = make(map[string]float64, len(w.Balances))
	for asset, amount := range w.Balances {
		copied.Balances[asset] = amount
	}
	return &copied
}
