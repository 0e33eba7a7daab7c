package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/routeflow/routeflow-api/internal/chains"
	"github.com/routeflow/routeflow-api/internal/logger"
	"github.com/routeflow/routeflow-api/internal/oracle"

	"go.uber.org/zap"
)

// ErrNoRouteAvailable indicates no chain in the request's allow-list could
// be quoted. Individual chain failures are tolerated and excluded; this
// error means all of them failed.
var ErrNoRouteAvailable = errors.New("no route available")

// highFeeRatio is the fee-to-amount ratio above which a quote is flagged as
// expensive in quote summaries.
const highFeeRatio = 0.02

// RouteQuote is a candidate route for one logical transfer.
type RouteQuote struct {
	Chain          chains.Chain `json:"chain"`
	FeeEstimateUSD float64      `json:"fee_estimate_usd"`
	ETASeconds     int          `json:"eta_seconds"`
	Explanation    string       `json:"explanation"`
	Recommended    bool         `json:"recommended"`
	IsHighFee      bool         `json:"is_high_fee"`
}

// QuoteRequest describes the transfer being routed.
type QuoteRequest struct {
	Asset         string
	AmountUSD     float64
	AllowedChains []chains.Chain
}

// Router ranks candidate chains for a transfer by querying the gas oracle
// for each allowed chain.
type Router struct {
	estimator oracle.GasEstimator
	logger    *zap.Logger
}

// New creates a quote router backed by the given gas estimator.
func New(estimator oracle.GasEstimator) *Router {
	return &Router{
		estimator: estimator,
		logger:    logger.Log,
	}
}

// AllQuotes returns a quote for every allowed chain that could be
// estimated, sorted ascending by fee (ties broken by ETA, then registry
// order). Exactly one entry carries Recommended, the one QuoteCheapest
// would select.
func (r *Router) AllQuotes(ctx context.Context, req QuoteRequest) ([]RouteQuote, error) {
	allowed, err := resolveAllowedChains(req.AllowedChains)
	if err != nil {
		return nil, err
	}

	type result struct {
		estimate *oracle.GasEstimate
		err      error
	}

	// Per-chain oracle queries are independent; fan them out and rank once
	// all have resolved or failed.
	results := make([]result, len(allowed))
	var wg sync.WaitGroup
	for i, chain := range allowed {
		wg.Add(1)
		go func(i int, chain chains.Chain) {
			defer wg.Done()
			est, err := r.estimator.EstimateGas(ctx, chain, req.Asset)
			results[i] = result{estimate: est, err: err}
		}(i, chain)
	}
	wg.Wait()

	quotes := make([]RouteQuote, 0, len(allowed))
	for i, res := range results {
		if res.err != nil {
			// A failed chain drops out of the candidate set. Retrying is a
			// caller concern.
			r.logger.Warn("excluding chain from route candidates",
				zap.String("chain", string(allowed[i])),
				zap.Error(res.err))
			continue
		}
		quotes = append(quotes, RouteQuote{
			Chain:          res.estimate.Chain,
			FeeEstimateUSD: res.estimate.FeeUSD,
			ETASeconds:     res.estimate.ETASeconds,
			Explanation:    res.estimate.Explanation,
			IsHighFee:      req.AmountUSD > 0 && res.estimate.FeeUSD/req.AmountUSD > highFeeRatio,
		})
	}

	if len(quotes) == 0 {
		return nil, fmt.Errorf("%w: all %d candidate chains failed", ErrNoRouteAvailable, len(allowed))
	}

	sort.SliceStable(quotes, func(i, j int) bool {
		if quotes[i].FeeEstimateUSD != quotes[j].FeeEstimateUSD {
			return quotes[i].FeeEstimateUSD < quotes[j].FeeEstimateUSD
		}
		if quotes[i].ETASeconds != quotes[j].ETASeconds {
			return quotes[i].ETASeconds < quotes[j].ETASeconds
		}
		return chains.Index(quotes[i].Chain) < chains.Index(quotes[j].Chain)
	})

	quotes[0].Recommended = true

	return quotes, nil
}

// QuoteCheapest returns the single best route for the request.
func (r *Router) QuoteCheapest(ctx context.Context, req QuoteRequest) (*RouteQuote, error) {
	quotes, err := r.AllQuotes(ctx, req)
	if err != nil {
		return nil, err
	}
	best := quotes[0]
	return &best, nil
}

// resolveAllowedChains validates the request's allow-list, defaulting to
// the full registry when empty.
func resolveAllowedChains(allowed []chains.Chain) ([]chains.Chain, error) {
	if len(allowed) == 0 {
		return chains.All(), nil
	}
	for _, chain := range allowed {
		if !chains.Valid(chain) {
			return nil, fmt.Errorf("invalid chain in allow-list: %q", chain)
		}
	}
	out := make([]chains.Chain, len(allowed))
	copy(out, allowed)
	return out, nil
}
