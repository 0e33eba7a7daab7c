package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routeflow/routeflow-api/internal/chains"
	"github.com/routeflow/routeflow-api/internal/handlers"
	"github.com/routeflow/routeflow-api/internal/idempotency"
	"github.com/routeflow/routeflow-api/internal/logger"
	"github.com/routeflow/routeflow-api/internal/metrics"
	"github.com/routeflow/routeflow-api/internal/oracle"
	"github.com/routeflow/routeflow-api/internal/provider"
	"github.com/routeflow/routeflow-api/internal/router"
	"github.com/routeflow/routeflow-api/internal/webhook"
)

func init() {
	logger.Init("test")
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	engine   *gin.Engine
	client   *provider.MockClient
	sched    *provider.FakeScheduler
	verifier *webhook.Verifier
	gas      *oracle.GasOracle
}

const testWebhookSecret = "whsec_handlers_test"

func newFixture(t *testing.T) *fixture {
	t.Helper()

	sched := provider.NewFakeScheduler()
	client := provider.NewSeededMockClient(sched, 42)
	t.Cleanup(client.Close)

	gas := oracle.NewSeededGasOracle(false, nil, 42)
	fx := oracle.NewSeededFXOracle(false, nil, 42)
	quoteRouter := router.New(gas)
	reg := metrics.NewRegistry()
	verifier := webhook.NewVerifier(testWebhookSecret)

	dispatcher := webhook.NewDispatcher()
	dispatcher.On(webhook.EventTypeTransfers, func(ctx context.Context, event webhook.Event) error {
		_, err := client.ApplyTransferUpdate(ctx, event.Data.ID,
			provider.TransferStatus(event.Data.Status), event.Data.TransactionHash)
		return err
	})

	engine := gin.New()
	v1 := engine.Group("/api/v1")

	quoteHandler := handlers.NewQuoteHandler(quoteRouter, reg)
	v1.GET("/quotes", quoteHandler.GetQuotes)
	v1.GET("/quotes/cheapest", quoteHandler.GetCheapestQuote)

	oracleHandler := handlers.NewOracleHandler(gas)
	v1.GET("/oracle/gas/:chain", oracleHandler.GetGasEstimate)
	v1.GET("/oracle/cache/status", oracleHandler.GetCacheStatus)
	v1.POST("/oracle/cache/clear", oracleHandler.ClearCache)

	fxHandler := handlers.NewFXHandler(fx)
	v1.GET("/fx/rate", fxHandler.GetRate)
	v1.POST("/fx/convert", fxHandler.Convert)
	v1.GET("/fx/movement", fxHandler.GetRateMovement)
	v1.GET("/fx/volatility", fxHandler.GetVolatility)

	providerHandler := handlers.NewProviderHandler(client)
	v1.POST("/provider/users", providerHandler.CreateUser)
	v1.POST("/provider/wallets", providerHandler.CreateWallet)
	v1.GET("/provider/wallets/:walletId", providerHandler.GetWallet)

	transferHandler := handlers.NewTransferHandler(client, quoteRouter, reg)
	v1.POST("/transfers",
		idempotency.Middleware(idempotency.NewMemoryStore(), time.Minute),
		transferHandler.CreateTransfer)
	v1.GET("/transfers/:transferId", transferHandler.GetTransfer)

	webhookHandler := handlers.NewWebhookHandler(verifier, dispatcher, reg)
	v1.POST("/webhooks/provider", webhookHandler.HandleProviderWebhook)

	return &fixture{
		engine:   engine,
		client:   client,
		sched:    sched,
		verifier: verifier,
		gas:      gas,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func (f *fixture) createWallet(t *testing.T, chain chains.Chain) map[string]interface{} {
	t.Helper()

	w := f.do(t, http.MethodPost, "/api/v1/provider/users", gin.H{"email": "demo@example.com"}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var user map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &user))

	w = f.do(t, http.MethodPost, "/api/v1/provider/wallets", gin.H{
		"user_id":    user["id"],
		"blockchain": string(chain),
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var wallet map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &wallet))
	return wallet
}

func TestQuotesEndpoint(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/quotes?amount_usd=100", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []router.RouteQuote `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 4)

	var recommended int
	for i, q := range resp.Data {
		if q.Recommended {
			recommended++
		}
		if i > 0 {
			assert.GreaterOrEqual(t, q.FeeEstimateUSD, resp.Data[i-1].FeeEstimateUSD)
		}
	}
	assert.Equal(t, 1, recommended)
}

func TestQuotesEndpoint_BadParams(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/quotes?amount_usd=-5", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/quotes?chains=dogechain", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheapestQuoteEndpoint(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/quotes/cheapest?amount_usd=50&chains=base&chains=polygon", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var quote router.RouteQuote
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &quote))
	assert.Equal(t, chains.Base, quote.Chain)
	assert.True(t, quote.Recommended)
}

func TestOracleCacheEndpoints(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/oracle/gas/base", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/oracle/cache/status", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, float64(1), status["total_entries"])

	w = f.do(t, http.MethodPost, "/api/v1/oracle/cache/clear", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, f.gas.CacheStats()["total_entries"])

	w = f.do(t, http.MethodGet, "/api/v1/oracle/gas/dogechain", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFXEndpoints(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/fx/rate?pair=ETH/USD", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rateResp struct {
		Rate float64 `json:"rate"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rateResp))
	assert.InDelta(t, 2500.0, rateResp.Rate, 2500.0*0.002)

	w = f.do(t, http.MethodGet, "/api/v1/fx/rate?pair=ZWL/USD", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/fx/rate", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/fx/convert", gin.H{
		"amount": 100, "from": "USD", "to": "EUR",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var convResp struct {
		Converted float64 `json:"converted"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &convResp))
	assert.InDelta(t, 92.0, convResp.Converted, 92.0*0.002)

	w = f.do(t, http.MethodGet, "/api/v1/fx/movement?pair=ETH/USD&threshold_percent=2&window=1m", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/fx/volatility?pair=ETH/USD", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestProviderEndpoints(t *testing.T) {
	f := newFixture(t)

	wallet := f.createWallet(t, chains.Base)
	walletID := wallet["id"].(string)

	w := f.do(t, http.MethodGet, "/api/v1/provider/wallets/"+walletID, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/provider/wallets/wallet_missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/provider/users", gin.H{"email": "not-an-email"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/provider/wallets", gin.H{
		"user_id": "user_missing", "blockchain": "base",
	}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

const validAddress = "0xfeed000000000000000000000000000000000001"

func TestCreateTransfer_AutoRouted(t *testing.T) {
	f := newFixture(t)
	wallet := f.createWallet(t, chains.Base)

	w := f.do(t, http.MethodPost, "/api/v1/transfers", gin.H{
		"wallet_id":           wallet["id"],
		"destination_address": validAddress,
		"amount":              25,
	}, map[string]string{idempotency.HeaderKey: "key-auto"})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Transfer provider.Transfer  `json:"transfer"`
		Route    *router.RouteQuote `json:"route"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, provider.TransferStatusPending, resp.Transfer.Status)
	require.NotNil(t, resp.Route)
	assert.True(t, resp.Route.Recommended)
	assert.Equal(t, resp.Route.Chain, resp.Transfer.Destination.Chain)
}

func TestCreateTransfer_Validation(t *testing.T) {
	f := newFixture(t)
	wallet := f.createWallet(t, chains.Base)

	tests := []struct {
		name string
		body gin.H
		want int
	}{
		{
			name: "missing idempotency key is handled by middleware",
			body: gin.H{"wallet_id": wallet["id"], "destination_address": validAddress, "amount": 5},
			want: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/api/v1/transfers", tt.body, nil)
			assert.Equal(t, tt.want, w.Code)
		})
	}

	headers := map[string]string{idempotency.HeaderKey: "key-validation"}

	w := f.do(t, http.MethodPost, "/api/v1/transfers", gin.H{
		"wallet_id": wallet["id"], "destination_address": "not-an-address", "amount": 5,
	}, headers)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	headers[idempotency.HeaderKey] = "key-validation-2"
	w = f.do(t, http.MethodPost, "/api/v1/transfers", gin.H{
		"wallet_id": wallet["id"], "destination_address": validAddress, "amount": 0,
	}, headers)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	headers[idempotency.HeaderKey] = "key-validation-3"
	w = f.do(t, http.MethodPost, "/api/v1/transfers", gin.H{
		"wallet_id": wallet["id"], "destination_address": validAddress,
		"amount": 1000000, "destination_chain": "base",
	}, headers)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestCreateTransfer_IdempotentReplay(t *testing.T) {
	f := newFixture(t)
	wallet := f.createWallet(t, chains.Base)

	body := gin.H{
		"wallet_id":           wallet["id"],
		"destination_address": validAddress,
		"destination_chain":   "base",
		"amount":              10,
	}
	headers := map[string]string{idempotency.HeaderKey: "key-replay"}

	first := f.do(t, http.MethodPost, "/api/v1/transfers", body, headers)
	require.Equal(t, http.StatusCreated, first.Code)

	second := f.do(t, http.MethodPost, "/api/v1/transfers", body, headers)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get(idempotency.HeaderReplay))
}

func TestTransferLifecycleThroughAPI(t *testing.T) {
	f := newFixture(t)
	wallet := f.createWallet(t, chains.Base)

	w := f.do(t, http.MethodPost, "/api/v1/transfers", gin.H{
		"wallet_id":           wallet["id"],
		"destination_address": validAddress,
		"destination_chain":   "base",
		"amount":              10,
	}, map[string]string{idempotency.HeaderKey: "key-lifecycle"})
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		Transfer provider.Transfer `json:"transfer"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	f.sched.Advance(3 * time.Second)

	w = f.do(t, http.MethodGet, "/api/v1/transfers/"+created.Transfer.ID, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var settled provider.Transfer
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &settled))
	assert.Equal(t, provider.TransferStatusComplete, settled.Status)
	assert.NotEmpty(t, settled.TransactionHash)
}

func signedWebhook(t *testing.T, f *fixture, body []byte, at time.Time) map[string]string {
	t.Helper()
	return map[string]string{
		handlers.HeaderWebhookSignature: f.verifier.Sign(body, at),
		handlers.HeaderWebhookTimestamp: fmt.Sprintf("%d", at.Unix()),
	}
}

func (f *fixture) postWebhook(t *testing.T, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/provider", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func TestWebhookEndpoint_CompletesTransfer(t *testing.T) {
	f := newFixture(t)
	wallet := f.createWallet(t, chains.Base)

	created := f.do(t, http.MethodPost, "/api/v1/transfers", gin.H{
		"wallet_id":           wallet["id"],
		"destination_address": validAddress,
		"destination_chain":   "base",
		"amount":              10,
	}, map[string]string{idempotency.HeaderKey: "key-webhook"})
	require.Equal(t, http.StatusCreated, created.Code)

	var resp struct {
		Transfer provider.Transfer `json:"transfer"`
	}
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &resp))

	body := []byte(fmt.Sprintf(
		`{"type":"transfers","data":{"id":"%s","status":"complete","transaction_hash":"0xwebhook"}}`,
		resp.Transfer.ID))

	w := f.postWebhook(t, body, signedWebhook(t, f, body, time.Now()))
	require.Equal(t, http.StatusOK, w.Code)

	got := f.do(t, http.MethodGet, "/api/v1/transfers/"+resp.Transfer.ID, nil, nil)
	var settled provider.Transfer
	require.NoError(t, json.Unmarshal(got.Body.Bytes(), &settled))
	assert.Equal(t, provider.TransferStatusComplete, settled.Status)
	assert.Equal(t, "0xwebhook", settled.TransactionHash)
}

func TestWebhookEndpoint_AuthFailures(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{"type":"transfers","data":{"id":"t1","status":"complete"}}`)

	// Signed ten minutes ago.
	old := time.Now().Add(-10 * time.Minute)
	w := f.postWebhook(t, body, signedWebhook(t, f, body, old))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Wrong secret.
	other := webhook.NewVerifier("whsec_wrong")
	now := time.Now()
	w = f.postWebhook(t, body, map[string]string{
		handlers.HeaderWebhookSignature: other.Sign(body, now),
		handlers.HeaderWebhookTimestamp: fmt.Sprintf("%d", now.Unix()),
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Missing headers entirely.
	w = f.postWebhook(t, body, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookEndpoint_RetryableAfterHandlerFailure(t *testing.T) {
	f := newFixture(t)
	wallet := f.createWallet(t, chains.Base)

	created := f.do(t, http.MethodPost, "/api/v1/transfers", gin.H{
		"wallet_id":           wallet["id"],
		"destination_address": validAddress,
		"destination_chain":   "base",
		"amount":              10,
	}, map[string]string{idempotency.HeaderKey: "key-retry"})
	require.Equal(t, http.StatusCreated, created.Code)

	var resp struct {
		Transfer provider.Transfer `json:"transfer"`
	}
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &resp))

	// First delivery fails in the handler; the event id must not be burned.
	bad := []byte(fmt.Sprintf(
		`{"type":"transfers","data":{"id":"%s","status":"exploded"}}`, resp.Transfer.ID))
	w := f.postWebhook(t, bad, signedWebhook(t, f, bad, time.Now()))
	require.Equal(t, http.StatusBadRequest, w.Code)

	// Redelivery for the same event id gets processed, not rejected as a
	// duplicate.
	good := []byte(fmt.Sprintf(
		`{"type":"transfers","data":{"id":"%s","status":"complete","transaction_hash":"0xretry"}}`,
		resp.Transfer.ID))
	w = f.postWebhook(t, good, signedWebhook(t, f, good, time.Now()))
	require.Equal(t, http.StatusOK, w.Code)

	got := f.do(t, http.MethodGet, "/api/v1/transfers/"+resp.Transfer.ID, nil, nil)
	var settled provider.Transfer
	require.NoError(t, json.Unmarshal(got.Body.Bytes(), &settled))
	assert.Equal(t, provider.TransferStatusComplete, settled.Status)
}

func TestWebhookEndpoint_UnknownTransferIsRetryable(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{"type":"transfers","data":{"id":"transfer_ghost","status":"complete"}}`)
	headers := signedWebhook(t, f, body, time.Now())

	// Out-of-order delivery for a transfer this service has not seen yet.
	// Every attempt answers the same way until the transfer exists.
	first := f.postWebhook(t, body, headers)
	require.Equal(t, http.StatusBadRequest, first.Code)

	second := f.postWebhook(t, body, headers)
	assert.Equal(t, http.StatusBadRequest, second.Code)
}

func TestWebhookEndpoint_ReplayRejected(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{"type":"payments","data":{"id":"evt_replay","status":"complete"}}`)
	headers := signedWebhook(t, f, body, time.Now())

	first := f.postWebhook(t, body, headers)
	require.Equal(t, http.StatusOK, first.Code)

	second := f.postWebhook(t, body, headers)
	assert.Equal(t, http.StatusConflict, second.Code)
}
