// Package tradestation wraps the TradeStation v3 market data API: REST
// lookups for bars, expirations and strikes, plus the chunked option
// chain stream.
package tradestation

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	productionBaseURL = "https://api.tradestation.com/v3"
	sandboxBaseURL    = "https://sim-api.tradestation.com/v3"

	streamAccept = "application/vnd.tradestation.streams.v2+json"
)

// HeaderProvider supplies authorization headers for each request
type HeaderProvider interface {
	Headers(ctx context.Context) (map[string]string, error)
}

// Client is the TradeStation market data client
type Client struct {
	auth    HeaderProvider
	rest    *resty.Client
	stream  *resty.Client
	baseURL string
}

// NewClient creates a client against production or sandbox
func NewClient(auth HeaderProvider, sandbox bool) *Client {
	baseURL := productionBaseURL
	if sandbox {
		baseURL = sandboxBaseURL
	}

	rest := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second)

	// The stream connection stays open indefinitely: connect timeout
	// only, no read deadline. Silence is handled by the heartbeat
	// supervisor upstream.
	stream := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(0).
		SetDoNotParseResponse(true)

	return &Client{
		auth:    auth,
		rest:    rest,
		stream:  stream,
		baseURL: baseURL,
	}
}

// SetBaseURL points both clients at a different host, used by tests.
func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
	c.rest.SetBaseURL(url)
	c.stream.SetBaseURL(url)
}

// LatestBar fetches the most recent 1-minute bar for a symbol using the
// 24-hour session template so pre/post market prices stay fresh.
func (c *Client) LatestBar(ctx context.Context, symbol string) (*Bar, error) {
	headers, err := c.auth.Headers(ctx)
	if err != nil {
		return nil, err
	}

	var body barchartResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetQueryParams(map[string]string{
			"unit":            "Minute",
			"barsback":        "1",
			"sessiontemplate": "USEQ24Hour",
		}).
		SetResult(&body).
		Get("/marketdata/barcharts/" + symbol)
	if err != nil {
		return nil, fmt.Errorf("barcharts request for %s failed: %w", symbol, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("barcharts request for %s returned %s", symbol, resp.Status())
	}
	if len(body.Bars) == 0 {
		return nil, fmt.Errorf("no bars returned for %s", symbol)
	}
	return &body.Bars[len(body.Bars)-1], nil
}

// Expirations lists available option expiration dates for a symbol
func (c *Client) Expirations(ctx context.Context, symbol string) ([]string, error) {
	headers, err := c.auth.Headers(ctx)
	if err != nil {
		return nil, err
	}

	var body expirationsResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&body).
		Get("/marketdata/options/expirations/" + symbol)
	if err != nil {
		return nil, fmt.Errorf("expirations request for %s failed: %w", symbol, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("expirations request for %s returned %s", symbol, resp.Status())
	}

	dates := make([]string, 0, len(body.Expirations))
	for _, e := range body.Expirations {
		dates = append(dates, e.Date.Format("2006-01-02"))
	}
	return dates, nil
}

// Strikes lists strike prices for a symbol and expiration
func (c *Client) Strikes(ctx context.Context, symbol, expiration string) ([]float64, error) {
	headers, err := c.auth.Headers(ctx)
	if err != nil {
		return nil, err
	}

	var body strikesResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetQueryParam("expiration", expiration).
		SetResult(&body).
		Get("/marketdata/options/strikes/" + symbol)
	if err != nil {
		return nil, fmt.Errorf("strikes request for %s failed: %w", symbol, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("strikes request for %s returned %s", symbol, resp.Status())
	}

	strikes := make([]float64, 0, len(body.Strikes))
	for _, row := range body.Strikes {
		if len(row) == 0 {
			continue
		}
		var v FlexFloat
		if err := v.UnmarshalJSON([]byte(row[0])); err == nil && v != 0 {
			strikes = append(strikes, float64(v))
		}
	}
	return strikes, nil
}
