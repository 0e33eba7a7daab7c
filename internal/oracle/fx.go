package oracle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/routeflow/routeflow-api/internal/client/pricefeed"
	"github.com/routeflow/routeflow-api/internal/logger"

	"go.uber.org/zap"
)

// ErrPairNotSupported indicates the requested currency pair has no rate
// source.
var ErrPairNotSupported = errors.New("currency pair not supported")

// mockRates holds the baseline conversion rates used outside live mode.
// Keys are "FROM_TO" in upper case.
var mockRates = map[string]float64{
	"USDC_USD": 1.0,
	"USDT_USD": 1.0,
	"ETH_USD":  2500.0,
	"BTC_USD":  62000.0,
	"POL_USD":  0.45,
	"USD_EUR":  0.92,
	"EUR_USD":  1.0870,
	"USD_GBP":  0.79,
	"GBP_USD":  1.2658,
}

// maxSamplesPerPair bounds the in-memory rate history.
const maxSamplesPerPair = 256

type rateSample struct {
	rate       float64
	observedAt time.Time
}

// FXOracle serves currency conversion rates and derived movement and
// volatility signals. Rates come from a jittered mock table, or from the
// live price feed for crypto-to-fiat pairs.
type FXOracle struct {
	live bool
	feed *pricefeed.Client

	mu      sync.Mutex
	rng     *rand.Rand
	history map[string][]rateSample

	logger *zap.Logger
}

// NewFXOracle creates an FX oracle. When live is false the feed may be nil.
func NewFXOracle(live bool, feed *pricefeed.Client) *FXOracle {
	return NewSeededFXOracle(live, feed, time.Now().UnixNano())
}

// NewSeededFXOracle creates an FX oracle with a fixed random seed.
func NewSeededFXOracle(live bool, feed *pricefeed.Client, seed int64) *FXOracle {
	return &FXOracle{
		live:    live,
		feed:    feed,
		rng:     rand.New(rand.NewSource(seed)),
		history: make(map[string][]rateSample),
		logger:  logger.Log,
	}
}

func pairKey(from, to string) string {
	return fmt.Sprintf("%s_%s", strings.ToUpper(from), strings.ToUpper(to))
}

// GetRate returns the current conversion rate for a pair like "ETH/USD".
// Every successful lookup is recorded in the pair's history window.
func (o *FXOracle) GetRate(ctx context.Context, pair string) (float64, error) {
	from, to, err := splitPair(pair)
	if err != nil {
		return 0, err
	}
	return o.rate(ctx, from, to)
}

// Convert converts an amount between two currencies at the current rate.
func (o *FXOracle) Convert(ctx context.Context, amount float64, from, to string) (float64, error) {
	if strings.EqualFold(from, to) {
		return amount, nil
	}
	rate, err := o.rate(ctx, from, to)
	if err != nil {
		return 0, err
	}
	return amount * rate, nil
}

// CheckRateMovement reports whether the pair's rate moved by more than
// thresholdPercent over the given window. It returns the observed movement
// in percent alongside the signal. A pair with no prior observations inside
// the window reports no movement.
func (o *FXOracle) CheckRateMovement(ctx context.Context, pair string, thresholdPercent float64, window time.Duration) (bool, float64, error) {
	from, to, err := splitPair(pair)
	if err != nil {
		return false, 0, err
	}

	current, err := o.rate(ctx, from, to)
	if err != nil {
		return false, 0, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	key := pairKey(from, to)
	cutoff := time.Now().Add(-window)
	var oldest *rateSample
	for i := range o.history[key] {
		sample := &o.history[key][i]
		if sample.observedAt.Before(cutoff) {
			continue
		}
		oldest = sample
		break
	}

	if oldest == nil || oldest.rate == 0 {
		return false, 0, nil
	}

	movement := math.Abs(current-oldest.rate) / oldest.rate * 100
	if movement > thresholdPercent {
		o.logger.Info("rate movement exceeded threshold",
			zap.String("pair", key),
			zap.Float64("movement_pct", movement),
			zap.Float64("threshold_pct", thresholdPercent))
		return true, movement, nil
	}
	return false, movement, nil
}

// GetVolatility returns the standard deviation of the pair's observed
// rates, expressed as a percentage of the mean. A pair with fewer than two
// observations has zero volatility.
func (o *FXOracle) GetVolatility(ctx context.Context, pair string) (float64, error) {
	from, to, err := splitPair(pair)
	if err != nil {
		return 0, err
	}

	// Take a fresh observation so volatility reflects the present.
	if _, err := o.rate(ctx, from, to); err != nil {
		return 0, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	samples := o.history[pairKey(from, to)]
	if len(samples) < 2 {
		return 0, nil
	}

	var sum float64
	for _, s := range samples {
		sum += s.rate
	}
	mean := sum / float64(len(samples))
	if mean == 0 {
		return 0, nil
	}

	var variance float64
	for _, s := range samples {
		variance += (s.rate - mean) * (s.rate - mean)
	}
	variance /= float64(len(samples))

	return math.Sqrt(variance) / mean * 100, nil
}

// rate resolves the current rate for from→to and records it.
func (o *FXOracle) rate(ctx context.Context, from, to string) (float64, error) {
	key := pairKey(from, to)

	if o.live {
		price, err := o.feed.GetPrice(ctx, from, to)
		if err != nil {
			// The feed only serves crypto-to-fiat; fall through to the
			// static table for fiat pairs.
			if base, ok := mockRates[key]; ok {
				o.observe(key, base)
				return base, nil
			}
			return 0, fmt.Errorf("%w: %s", ErrPairNotSupported, key)
		}
		o.observe(key, price)
		return price, nil
	}

	base, ok := mockRates[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrPairNotSupported, key)
	}

	o.mu.Lock()
	jitter := 1 + (o.rng.Float64()-0.5)*0.004 // ±0.2% drift per observation
	o.mu.Unlock()

	rate := base * jitter
	o.observe(key, rate)
	return rate, nil
}

func (o *FXOracle) observe(key string, rate float64) {
	o.observeAt(key, rate, time.Now())
}

func (o *FXOracle) observeAt(key string, rate float64, at time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()

	samples := append(o.history[key], rateSample{rate: rate, observedAt: at})
	if len(samples) > maxSamplesPerPair {
		samples = samples[len(samples)-maxSamplesPerPair:]
	}
	o.history[key] = samples
}

func splitPair(pair string) (string, string, error) {
	parts := strings.Split(pair, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: malformed pair %q", ErrPairNotSupported, pair)
	}
	return parts[0], parts[1], nil
}
