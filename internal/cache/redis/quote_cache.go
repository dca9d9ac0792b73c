package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tgdn/stockspec-backend/internal/domain"
)

// QuoteCache implements domain.QuoteCache using Redis hashes.
// Each symbol's quote is stored as a hash at key "quote:{symbol}" with fields
// "price", "delta", "percent" and "ts" (Unix nanosecond timestamp).
type QuoteCache struct {
	rdb *redis.Client
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying()}
}

func quoteKey(symbol string) string {
	return "quote:" + symbol
}

// SetQuote stores the latest quote for a symbol.
func (qc *QuoteCache) SetQuote(ctx context.Context, symbol string, q domain.Quote) error {
	fields := map[string]interface{}{
		"price":   strconv.FormatFloat(q.Price, 'f', -1, 64),
		"delta":   strconv.FormatFloat(q.Delta, 'f', -1, 64),
		"percent": strconv.FormatFloat(q.Percent, 'f', -1, 64),
		"ts":      strconv.FormatInt(q.At.UnixNano(), 10),
	}
	if err := qc.rdb.HSet(ctx, quoteKey(symbol), fields).Err(); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", symbol, err)
	}
	return nil
}

// GetQuote retrieves the cached quote for a symbol.
// It returns domain.ErrNotFound when the key does not exist.
func (qc *QuoteCache) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	vals, err := qc.rdb.HGetAll(ctx, quoteKey(symbol)).Result()
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s: %w", symbol, err)
	}
	q, ok := quoteFromHash(vals)
	if !ok {
		return domain.Quote{}, domain.ErrNotFound
	}
	return q, nil
}

// GetQuotes retrieves cached quotes for multiple symbols using a pipeline.
// Symbols without a cached quote are silently omitted from the result map.
func (qc *QuoteCache) GetQuotes(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	if len(symbols) == 0 {
		return map[string]domain.Quote{}, nil
	}

	pipe := qc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(symbols))
	for _, sym := range symbols {
		cmds[sym] = pipe.HGetAll(ctx, quoteKey(sym))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get quotes pipeline: %w", err)
	}

	result := make(map[string]domain.Quote, len(symbols))
	for sym, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil {
			continue
		}
		if q, ok := quoteFromHash(vals); ok {
			result[sym] = q
		}
	}
	return result, nil
}

// quoteFromHash decodes a quote hash. It reports false when the hash is
// missing or any field fails to parse.
func quoteFromHash(vals map[string]string) (domain.Quote, bool) {
	if len(vals) == 0 {
		return domain.Quote{}, false
	}

	price, err := parseHashFloat(vals, "price")
	if err != nil {
		return domain.Quote{}, false
	}
	delta, err := parseHashFloat(vals, "delta")
	if err != nil {
		return domain.Quote{}, false
	}
	percent, err := parseHashFloat(vals, "percent")
	if err != nil {
		return domain.Quote{}, false
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return domain.Quote{}, false
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return domain.Quote{}, false
	}

	return domain.Quote{
		Price:   price,
		Delta:   delta,
		Percent: percent,
		At:      time.Unix(0, tsNano),
	}, true
}

func parseHashFloat(vals map[string]string, field string) (float64, error) {
	s, ok := vals[field]
	if !ok {
		return 0, fmt.Errorf("missing field %q", field)
	}
	return strconv.ParseFloat(s, 64)
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)
