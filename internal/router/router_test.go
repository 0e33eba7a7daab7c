package router_test

import (
	"context"
	"errors"
	"testing"

	"github.com/routeflow/routeflow-api/internal/chains"
	"github.com/routeflow/routeflow-api/internal/logger"
	"github.com/routeflow/routeflow-api/internal/oracle"
	"github.com/routeflow/routeflow-api/internal/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.Init("test")
}

// stubEstimator serves fixed estimates per chain and errors for chains in
// its fail set.
type stubEstimator struct {
	estimates map[chains.Chain]oracle.GasEstimate
	fail      map[chains.Chain]error
}

func (s *stubEstimator) EstimateGas(_ context.Context, chain chains.Chain, _ string) (*oracle.GasEstimate, error) {
	if err, ok := s.fail[chain]; ok {
		return nil, err
	}
	est, ok := s.estimates[chain]
	if !ok {
		return nil, errors.New("no estimate configured")
	}
	return &est, nil
}

func fixedEstimates() map[chains.Chain]oracle.GasEstimate {
	return map[chains.Chain]oracle.GasEstimate{
		chains.Ethereum: {Chain: chains.Ethereum, FeeUSD: 4.20, ETASeconds: 36, Explanation: "eth"},
		chains.Base:     {Chain: chains.Base, FeeUSD: 0.02, ETASeconds: 6, Explanation: "base"},
		chains.Polygon:  {Chain: chains.Polygon, FeeUSD: 0.03, ETASeconds: 6, Explanation: "polygon"},
		chains.Arbitrum: {Chain: chains.Arbitrum, FeeUSD: 0.08, ETASeconds: 1, Explanation: "arbitrum"},
	}
}

func TestRouter_AllQuotesSortedByFee(t *testing.T) {
	r := router.New(&stubEstimator{estimates: fixedEstimates()})

	quotes, err := r.AllQuotes(context.Background(), router.QuoteRequest{Asset: "USDC", AmountUSD: 100})
	require.NoError(t, err)
	require.Len(t, quotes, 4)

	wantOrder := []chains.Chain{chains.Base, chains.Polygon, chains.Arbitrum, chains.Ethereum}
	for i, want := range wantOrder {
		assert.Equal(t, want, quotes[i].Chain, "position %d", i)
	}

	var recommended int
	for _, q := range quotes {
		if q.Recommended {
			recommended++
			assert.Equal(t, chains.Base, q.Chain)
		}
	}
	assert.Equal(t, 1, recommended)
}

func TestRouter_FeeTieBrokenByETA(t *testing.T) {
	estimates := map[chains.Chain]oracle.GasEstimate{
		chains.Base:    {Chain: chains.Base, FeeUSD: 0.05, ETASeconds: 6},
		chains.Polygon: {Chain: chains.Polygon, FeeUSD: 0.05, ETASeconds: 4},
	}
	r := router.New(&stubEstimator{estimates: estimates})

	quote, err := r.QuoteCheapest(context.Background(), router.QuoteRequest{
		Asset:         "USDC",
		AmountUSD:     100,
		AllowedChains: []chains.Chain{chains.Base, chains.Polygon},
	})
	require.NoError(t, err)
	assert.Equal(t, chains.Polygon, quote.Chain)
}

func TestRouter_FullTieBrokenByRegistryOrder(t *testing.T) {
	estimates := map[chains.Chain]oracle.GasEstimate{
		chains.Polygon: {Chain: chains.Polygon, FeeUSD: 0.05, ETASeconds: 6},
		chains.Base:    {Chain: chains.Base, FeeUSD: 0.05, ETASeconds: 6},
	}
	r := router.New(&stubEstimator{estimates: estimates})

	quote, err := r.QuoteCheapest(context.Background(), router.QuoteRequest{
		Asset:         "USDC",
		AmountUSD:     100,
		AllowedChains: []chains.Chain{chains.Polygon, chains.Base},
	})
	require.NoError(t, err)
	// Base precedes Polygon in the registry's canonical order.
	assert.Equal(t, chains.Base, quote.Chain)
}

func TestRouter_PartialOracleFailureExcludesChain(t *testing.T) {
	stub := &stubEstimator{
		estimates: fixedEstimates(),
		fail: map[chains.Chain]error{
			chains.Base: oracle.ErrProviderUnavailable,
		},
	}
	r := router.New(stub)

	quotes, err := r.AllQuotes(context.Background(), router.QuoteRequest{Asset: "USDC", AmountUSD: 100})
	require.NoError(t, err)
	require.Len(t, quotes, 3)
	for _, q := range quotes {
		assert.NotEqual(t, chains.Base, q.Chain)
	}
	assert.Equal(t, chains.Polygon, quotes[0].Chain)
	assert.True(t, quotes[0].Recommended)
}

func TestRouter_AllChainsFailing(t *testing.T) {
	stub := &stubEstimator{
		fail: map[chains.Chain]error{
			chains.Ethereum: oracle.ErrProviderUnavailable,
			chains.Base:     oracle.ErrProviderUnavailable,
			chains.Polygon:  oracle.ErrProviderUnavailable,
			chains.Arbitrum: oracle.ErrProviderUnavailable,
		},
	}
	r := router.New(stub)

	quotes, err := r.AllQuotes(context.Background(), router.QuoteRequest{Asset: "USDC", AmountUSD: 100})
	assert.ErrorIs(t, err, router.ErrNoRouteAvailable)
	assert.Nil(t, quotes)
}

func TestRouter_HighFeeFlag(t *testing.T) {
	r := router.New(&stubEstimator{estimates: fixedEstimates()})

	// $4.20 on a $100 transfer is 4.2%, over the 2% cutoff; the rest are
	// well under it.
	quotes, err := r.AllQuotes(context.Background(), router.QuoteRequest{Asset: "USDC", AmountUSD: 100})
	require.NoError(t, err)

	for _, q := range quotes {
		if q.Chain == chains.Ethereum {
			assert.True(t, q.IsHighFee)
		} else {
			assert.False(t, q.IsHighFee, "chain %s", q.Chain)
		}
	}
}

func TestRouter_InvalidAllowedChain(t *testing.T) {
	r := router.New(&stubEstimator{estimates: fixedEstimates()})

	_, err := r.AllQuotes(context.Background(), router.QuoteRequest{
		Asset:         "USDC",
		AmountUSD:     100,
		AllowedChains: []chains.Chain{chains.Base, chains.Chain("dogechain")},
	})
	assert.Error(t, err)
}

func TestRouter_CheapestWithSeededOracle(t *testing.T) {
	// Base's mock base fee is low enough that it wins against polygon and
	// arbitrum for any multiplier draw.
	o := oracle.NewSeededGasOracle(false, nil, 1234)
	r := router.New(o)

	quote, err := r.QuoteCheapest(context.Background(), router.QuoteRequest{
		Asset:         "USDC",
		AmountUSD:     50,
		AllowedChains: []chains.Chain{chains.Base, chains.Polygon, chains.Arbitrum},
	})
	require.NoError(t, err)
	assert.Equal(t, chains.Base, quote.Chain)
	assert.True(t, quote.Recommended)
}
