package server

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/routeflow/routeflow-api/internal/client/pricefeed"
	"github.com/routeflow/routeflow-api/internal/config"
	"github.com/routeflow/routeflow-api/internal/handlers"
	"github.com/routeflow/routeflow-api/internal/idempotency"
	"github.com/routeflow/routeflow-api/internal/logger"
	"github.com/routeflow/routeflow-api/internal/metrics"
	"github.com/routeflow/routeflow-api/internal/middleware"
	"github.com/routeflow/routeflow-api/internal/oracle"
	"github.com/routeflow/routeflow-api/internal/provider"
	"github.com/routeflow/routeflow-api/internal/router"
	"github.com/routeflow/routeflow-api/internal/webhook"
)

// transferUpdater is the optional capability of provider clients that hold
// transfer state in process. Webhook events flow into it; the live client
// does not implement it because the provider owns that state.
type transferUpdater interface {
	ApplyTransferUpdate(ctx context.Context, transferID string, status provider.TransferStatus, txHash string) (*provider.Transfer, error)
}

// Server wires the service's components behind one gin engine.
type Server struct {
	cfg      *config.Config
	engine   *gin.Engine
	provider provider.Client
	metrics  *metrics.Registry
}

// New builds the server from configuration. The provider and routing
// variants are selected here, once; nothing downstream branches on the
// flags again.
func New(cfg *config.Config) (*Server, error) {
	var feed *pricefeed.Client
	if !cfg.Flags.UseMockRouting {
		feed = pricefeed.NewClient(cfg.PriceFeedAPIKey)
	}

	gasOracle := oracle.NewGasOracle(!cfg.Flags.UseMockRouting, feed)
	fxOracle := oracle.NewFXOracle(!cfg.Flags.UseMockRouting, feed)
	quoteRouter := router.New(gasOracle)

	var providerClient provider.Client
	if cfg.Flags.UseMockProvider {
		providerClient = provider.NewMockClient(provider.NewTimerScheduler())
	} else {
		providerClient = provider.NewLiveClient(cfg.ProviderBaseURL, cfg.ProviderAPIKey)
	}

	store, err := newIdempotencyStore(cfg)
	if err != nil {
		return nil, err
	}

	reg := metrics.NewRegistry()
	verifier := webhook.NewVerifier(cfg.WebhookSecret)
	dispatcher := webhook.NewDispatcher()
	registerEventHandlers(dispatcher, providerClient, reg)

	s := &Server{
		cfg:      cfg,
		provider: providerClient,
		metrics:  reg,
	}
	s.engine = s.buildEngine(quoteRouter, gasOracle, fxOracle, store, verifier, dispatcher)

	return s, nil
}

func newIdempotencyStore(cfg *config.Config) (idempotency.Store, error) {
	if cfg.RedisURL == "" {
		return idempotency.NewMemoryStore(), nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Log.Info("using redis idempotency store")
	return idempotency.NewRedisStore(client), nil
}

// registerEventHandlers binds provider webhook events to transfer state.
// Payment and payout events are acknowledged but carry no state in this
// service yet.
func registerEventHandlers(dispatcher *webhook.Dispatcher, client provider.Client, reg *metrics.Registry) {
	updater, ok := client.(transferUpdater)
	if !ok {
		return
	}

	dispatcher.On(webhook.EventTypeTransfers, func(ctx context.Context, event webhook.Event) error {
		status := provider.TransferStatus(event.Data.Status)
		if !status.Terminal() && status != provider.TransferStatusRunning {
			return fmt.Errorf("unexpected transfer status %q", event.Data.Status)
		}

		transfer, err := updater.ApplyTransferUpdate(ctx, event.Data.ID, status, event.Data.TransactionHash)
		if err != nil {
			return err
		}
		if transfer.Status.Terminal() {
			reg.TransfersSettled.WithLabelValues(string(transfer.Status)).Inc()
		}
		return nil
	})
}

func (s *Server) buildEngine(
	quoteRouter *router.Router,
	gasOracle *oracle.GasOracle,
	fxOracle *oracle.FXOracle,
	store idempotency.Store,
	verifier *webhook.Verifier,
	dispatcher *webhook.Dispatcher,
) *gin.Engine {
	if s.cfg.Stage == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CorrelationID())
	engine.Use(middleware.RequestMetrics(s.metrics))
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", idempotency.HeaderKey, middleware.CorrelationIDHeader},
		ExposeHeaders:    []string{middleware.CorrelationIDHeader, idempotency.HeaderReplay},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	rateLimiter := middleware.NewRateLimiter(s.cfg.RateLimitPerSecond, s.cfg.RateLimitBurst)
	engine.Use(rateLimiter.Middleware())

	healthHandler := handlers.NewHealthHandler(s.cfg.Stage)
	quoteHandler := handlers.NewQuoteHandler(quoteRouter, s.metrics)
	oracleHandler := handlers.NewOracleHandler(gasOracle)
	fxHandler := handlers.NewFXHandler(fxOracle)
	providerHandler := handlers.NewProviderHandler(s.provider)
	transferHandler := handlers.NewTransferHandler(s.provider, quoteRouter, s.metrics)
	webhookHandler := handlers.NewWebhookHandler(verifier, dispatcher, s.metrics)

	engine.GET("/healthz", healthHandler.Healthz)
	engine.GET("/metrics", s.metrics.Handler())

	v1 := engine.Group("/api/v1")
	{
		v1.GET("/quotes", quoteHandler.GetQuotes)
		v1.GET("/quotes/cheapest", quoteHandler.GetCheapestQuote)

		v1.GET("/oracle/gas/:chain", oracleHandler.GetGasEstimate)
		v1.GET("/oracle/cache/status", oracleHandler.GetCacheStatus)
		v1.POST("/oracle/cache/clear", oracleHandler.ClearCache)

		v1.GET("/fx/rate", fxHandler.GetRate)
		v1.POST("/fx/convert", fxHandler.Convert)
		v1.GET("/fx/movement", fxHandler.GetRateMovement)
		v1.GET("/fx/volatility", fxHandler.GetVolatility)

		v1.POST("/provider/users", providerHandler.CreateUser)
		v1.POST("/provider/wallets", providerHandler.CreateWallet)
		v1.GET("/provider/wallets/:walletId", providerHandler.GetWallet)

		v1.POST("/transfers",
			s.observeReplays(),
			idempotency.Middleware(store, s.cfg.IdempotencyTTL),
			transferHandler.CreateTransfer)
		v1.GET("/transfers/:transferId", transferHandler.GetTransfer)

		v1.POST("/webhooks/provider", webhookHandler.HandleProviderWebhook)
	}

	return engine
}

// observeReplays counts responses served from a stored idempotency record.
// It sits in front of the idempotency middleware so it sees the final
// response headers.
func (s *Server) observeReplays() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if c.Writer.Header().Get(idempotency.HeaderReplay) == "true" {
			s.metrics.IdempotentReplays.Inc()
		}
	}
}

// Engine exposes the configured router, used by tests driving requests
// through httptest.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Close releases background resources held by the provider client.
func (s *Server) Close() {
	if mock, ok := s.provider.(*provider.MockClient); ok {
		mock.Close()
	}
}
