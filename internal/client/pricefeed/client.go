package pricefeed

import (
	"context"
	"fmt"
	"strings"

	httpClient "github.com/routeflow/routeflow-api/internal/client/http"
	"github.com/routeflow/routeflow-api/internal/logger"

	"go.uber.org/zap"
)

const defaultBaseURL = "https://pro-api.coinmarketcap.com"

// Client manages communication with the market data API that backs the
// oracles in live mode.
type Client struct {
	apiKey     string
	httpClient *httpClient.HTTPClient
}

// NewClient creates a new price feed client.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey: apiKey,
		httpClient: httpClient.NewHTTPClient(
			httpClient.WithBaseURL(defaultBaseURL),
		),
	}
}

// Quote is a single price quote in a target currency.
type Quote struct {
	Price            float64 `json:"price"`
	Volume24h        float64 `json:"volume_24h"`
	PercentChange1h  float64 `json:"percent_change_1h"`
	PercentChange24h float64 `json:"percent_change_24h"`
	LastUpdated      string  `json:"last_updated"`
}

// TokenData holds quotes for one token, keyed by fiat symbol.
type TokenData struct {
	ID          int              `json:"id"`
	Name        string           `json:"name"`
	Symbol      string           `json:"symbol"`
	LastUpdated string           `json:"last_updated"`
	Quote       map[string]Quote `json:"quote"`
}

type apiStatus struct {
	Timestamp    string `json:"timestamp"`
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// QuotesResponse is the payload of the latest-quotes endpoint. The v2 API
// returns an array per symbol even for single-symbol queries.
type QuotesResponse struct {
	Status apiStatus              `json:"status"`
	Data   map[string][]TokenData `json:"data"`
}

// Error represents a logical error returned by the price feed API.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("price feed API error: status %d, message: %s", e.StatusCode, e.Message)
}

// GetLatestQuotes fetches the latest quotes for the given token symbols,
// converted into each of the given fiat symbols.
func (c *Client) GetLatestQuotes(ctx context.Context, tokenSymbols []string, convertSymbols []string) (*QuotesResponse, error) {
	if len(tokenSymbols) == 0 {
		return nil, fmt.Errorf("tokenSymbols cannot be empty")
	}

	options := []httpClient.RequestOption{
		httpClient.WithQueryParam("symbol", strings.ToUpper(strings.Join(tokenSymbols, ","))),
		httpClient.WithHeader("X-CMC_PRO_API_KEY", c.apiKey),
	}
	if len(convertSymbols) > 0 {
		options = append(options, httpClient.WithQueryParam("convert", strings.ToUpper(strings.Join(convertSymbols, ","))))
	}

	resp, err := c.httpClient.Get(ctx, "/v2/cryptocurrency/quotes/latest", options...)
	if err != nil {
		logger.Error("price feed request failed", zap.Error(err))
		return nil, fmt.Errorf("failed to get latest quotes: %w", err)
	}

	var apiResponse QuotesResponse
	if err := c.httpClient.ProcessJSONResponse(resp, &apiResponse); err != nil {
		return nil, fmt.Errorf("failed to process quotes response: %w", err)
	}

	if apiResponse.Status.ErrorCode != 0 {
		return nil, &Error{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("API error %d: %s", apiResponse.Status.ErrorCode, apiResponse.Status.ErrorMessage),
		}
	}

	return &apiResponse, nil
}

// GetPrice fetches a single token price in the given fiat currency.
func (c *Client) GetPrice(ctx context.Context, tokenSymbol, fiatSymbol string) (float64, error) {
	resp, err := c.GetLatestQuotes(ctx, []string{tokenSymbol}, []string{fiatSymbol})
	if err != nil {
		return 0, err
	}

	tokenData, ok := resp.Data[strings.ToUpper(tokenSymbol)]
	if !ok || len(tokenData) == 0 {
		return 0, fmt.Errorf("no data found for token %s", tokenSymbol)
	}

	quote, ok := tokenData[0].Quote[strings.ToUpper(fiatSymbol)]
	if !ok {
		return 0, fmt.Errorf("no quote found for %s to %s", tokenSymbol, fiatSymbol)
	}

	return quote.Price, nil
}
