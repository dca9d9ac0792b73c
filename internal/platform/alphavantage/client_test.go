package alphavantage

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDailySeries(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"function":   r.URL.Query().Get("function"),
			"symbol":     r.URL.Query().Get("symbol"),
			"datatype":   r.URL.Query().Get("datatype"),
			"outputsize": r.URL.Query().Get("outputsize"),
			"apikey":     r.URL.Query().Get("apikey"),
		}
		_, _ = w.Write([]byte(seriesCSV))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, testLogger())
	res, err := c.DailySeries(context.Background(), DailySeriesRequest{Symbol: "AAPL", Full: true}, "key-1")
	require.NoError(t, err)
	assert.Equal(t, ResultOK, res.Kind)
	assert.Len(t, res.Rows, 3)
	assert.Equal(t, []byte(seriesCSV), res.Raw)

	assert.Equal(t, "TIME_SERIES_DAILY", gotQuery["function"])
	assert.Equal(t, "AAPL", gotQuery["symbol"])
	assert.Equal(t, "csv", gotQuery["datatype"])
	assert.Equal(t, "full", gotQuery["outputsize"])
	assert.Equal(t, "key-1", gotQuery["apikey"])
}

func TestDailySeries_CompactByDefault(t *testing.T) {
	var outputsize string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		outputsize = r.URL.Query().Get("outputsize")
		_, _ = w.Write([]byte(seriesCSV))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, testLogger())
	_, err := c.DailySeries(context.Background(), DailySeriesRequest{Symbol: "AAPL"}, "k")
	require.NoError(t, err)
	assert.Equal(t, "compact", outputsize)
}

func TestDailySeries_HTTPErrorIsEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, testLogger())
	res, err := c.DailySeries(context.Background(), DailySeriesRequest{Symbol: "AAPL"}, "k")
	require.NoError(t, err)
	assert.Equal(t, ResultEmpty, res.Kind)
	assert.Empty(t, res.Rows)
}

func TestDailySeries_RetriesTransportFailures(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			// Drop the connection to force a transport error.
			conn, _, err := w.(http.Hijacker).Hijack()
			require.NoError(t, err)
			_ = conn.Close()
			return
		}
		_, _ = w.Write([]byte(seriesCSV))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, testLogger())
	res, err := c.DailySeries(context.Background(), DailySeriesRequest{Symbol: "AAPL"}, "k")
	require.NoError(t, err)
	assert.Equal(t, ResultOK, res.Kind)
	assert.Equal(t, 2, calls)
}

func TestDailySeries_GivesUpAfterTransportRetries(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		conn, _, err := w.(http.Hijacker).Hijack()
		require.NoError(t, err)
		_ = conn.Close()
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, testLogger())
	res, err := c.DailySeries(context.Background(), DailySeriesRequest{Symbol: "AAPL"}, "k")
	require.NoError(t, err)
	assert.Equal(t, ResultEmpty, res.Kind)
	// One initial attempt plus the retry budget.
	assert.Equal(t, maxTransportRetries+1, calls)
}

func TestDailySeries_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(seriesCSV))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(srv.URL, time.Second, testLogger())
	_, err := c.DailySeries(ctx, DailySeriesRequest{Symbol: "AAPL"}, "k")
	assert.Error(t, err)
}

func TestCompanyOverview(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "OVERVIEW", r.URL.Query().Get("function"))
		_, _ = w.Write([]byte(`{"Symbol":"AAPL","Name":"Apple Inc","Beta":"1.1"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, testLogger())
	res, err := c.CompanyOverview(context.Background(), CompanyOverviewRequest{Symbol: "AAPL"}, "k")
	require.NoError(t, err)
	assert.Equal(t, ResultOK, res.Kind)
	assert.Equal(t, "Apple Inc", res.Company.Name)
}

func TestSymbolSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "SYMBOL_SEARCH", r.URL.Query().Get("function"))
		assert.Equal(t, "apple", r.URL.Query().Get("keywords"))
		_, _ = w.Write([]byte("symbol,name,type,region,currency\nAAPL,Apple Inc,Equity,United States,USD\n"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, testLogger())
	res, err := c.SymbolSearch(context.Background(), SymbolSearchRequest{Keywords: "apple"}, "k")
	require.NoError(t, err)
	require.Equal(t, ResultOK, res.Kind)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "AAPL", res.Matches[0].Symbol)
}
