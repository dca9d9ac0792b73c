// Package alphavantage is the REST client for the AlphaVantage market-data
// API. Credentials are supplied per call so a key-pool scheduler can rotate
// them; the client owns timeouts, transport retries, and response
// classification.
package alphavantage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const (
	// DefaultTimeout is the per-request timeout. The provider either answers
	// quickly or not at all, so this is deliberately short.
	DefaultTimeout = 5 * time.Second

	// maxTransportRetries bounds retries of connect/read failures after the
	// initial attempt. HTTP status errors are never retried here; pacing
	// decisions belong to the ingestion engine.
	maxTransportRetries = 3

	// retryBaseDelay spaces transport retries.
	retryBaseDelay = 500 * time.Millisecond
)

// Client calls the AlphaVantage HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new AlphaVantage client. baseURL is the query root,
// e.g. "https://www.alphavantage.co/query".
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With(slog.String("component", "alphavantage")),
	}
}

// DailySeries fetches the daily close series for req.Symbol using the given
// API key. Transport and HTTP failures are logged and reported as an empty
// result; the returned error is non-nil only when the request could not be
// issued at all (context cancelled, unbuildable URL).
func (c *Client) DailySeries(ctx context.Context, req DailySeriesRequest, apiKey string) (SeriesResult, error) {
	params := url.Values{}
	params.Set("function", "TIME_SERIES_DAILY")
	params.Set("symbol", req.Symbol)
	params.Set("datatype", "csv")
	if req.Full {
		params.Set("outputsize", "full")
	} else {
		params.Set("outputsize", "compact")
	}

	body, ok, err := c.get(ctx, params, apiKey)
	if err != nil {
		return SeriesResult{}, fmt.Errorf("alphavantage: daily series %s: %w", req.Symbol, err)
	}
	if !ok {
		return SeriesResult{Kind: ResultEmpty}, nil
	}

	rows, kind := parseSeriesCSV(body)
	return SeriesResult{Kind: kind, Rows: rows, Raw: body}, nil
}

// SymbolSearch searches the provider's instrument catalogue.
func (c *Client) SymbolSearch(ctx context.Context, req SymbolSearchRequest, apiKey string) (SearchResult, error) {
	params := url.Values{}
	params.Set("function", "SYMBOL_SEARCH")
	params.Set("keywords", req.Keywords)
	params.Set("datatype", "csv")

	body, ok, err := c.get(ctx, params, apiKey)
	if err != nil {
		return SearchResult{}, fmt.Errorf("alphavantage: symbol search %q: %w", req.Keywords, err)
	}
	if !ok {
		return SearchResult{Kind: ResultEmpty}, nil
	}

	matches, kind := parseSearchCSV(body)
	return SearchResult{Kind: kind, Matches: matches, Raw: body}, nil
}

// CompanyOverview fetches company metadata for req.Symbol.
func (c *Client) CompanyOverview(ctx context.Context, req CompanyOverviewRequest, apiKey string) (OverviewResult, error) {
	params := url.Values{}
	params.Set("function", "OVERVIEW")
	params.Set("symbol", req.Symbol)

	body, ok, err := c.get(ctx, params, apiKey)
	if err != nil {
		return OverviewResult{}, fmt.Errorf("alphavantage: overview %s: %w", req.Symbol, err)
	}
	if !ok {
		return OverviewResult{Kind: ResultEmpty}, nil
	}

	company, kind := parseOverviewJSON(body)
	return OverviewResult{Kind: kind, Company: company, Raw: body}, nil
}

// get issues one GET request with the API key attached, retrying transport
// failures up to maxTransportRetries times. The bool result is false when the
// request ultimately failed at the transport or HTTP layer; such failures are
// logged and the cycle treats them as "no data".
func (c *Client) get(ctx context.Context, params url.Values, apiKey string) ([]byte, bool, error) {
	params.Set("apikey", apiKey)
	reqURL := c.baseURL + "?" + params.Encode()

	var lastErr error
	for attempt := 0; attempt <= maxTransportRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(retryBaseDelay * time.Duration(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, false, ctx.Err()
			case <-timer.C:
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, false, fmt.Errorf("build request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, false, ctx.Err()
			}
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		// Application-level errors are not retried.
		if resp.StatusCode != http.StatusOK {
			c.logger.Error("provider returned HTTP error",
				slog.Int("status", resp.StatusCode),
				slog.String("function", params.Get("function")),
				slog.String("symbol", params.Get("symbol")),
			)
			return nil, false, nil
		}

		return body, true, nil
	}

	if isTimeout(lastErr) {
		c.logger.Error("provider request timed out",
			slog.String("function", params.Get("function")),
			slog.String("symbol", params.Get("symbol")),
		)
	} else {
		c.logger.Error("provider request failed",
			slog.String("function", params.Get("function")),
			slog.String("symbol", params.Get("symbol")),
			slog.String("error", lastErr.Error()),
		)
	}
	return nil, false, nil
}

// isTimeout reports whether err is a deadline-style transport failure.
func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
