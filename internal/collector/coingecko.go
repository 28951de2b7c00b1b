package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"SeriesKeeper/internal/model"
)

// ErrNoData is returned when the API answers successfully but with nothing in it.
var ErrNoData = errors.New("no data returned")

// CoinGeckoOptions configures a CoinGeckoFetcher.
type CoinGeckoOptions struct {
	BaseURL      string
	APIKey       string
	APIKeyHeader string
	VsCurrency   string
	Proxy        string
	Timeout      time.Duration
}

// CoinGeckoFetcher implements Fetcher using the CoinGecko public REST API.
type CoinGeckoFetcher struct {
	BaseURL      string
	APIKey       string
	APIKeyHeader string
	VsCurrency   string
	Client       *http.Client
}

// NewCoinGeckoFetcher creates a new fetcher with optional proxy support.
func NewCoinGeckoFetcher(opts CoinGeckoOptions) *CoinGeckoFetcher {
	transport := &http.Transport{}
	if opts.Proxy != "" {
		if u, err := url.Parse(opts.Proxy); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	vs := opts.VsCurrency
	if vs == "" {
		vs = "usd"
	}
	return &CoinGeckoFetcher{
		BaseURL:      opts.BaseURL,
		APIKey:       opts.APIKey,
		APIKeyHeader: opts.APIKeyHeader,
		VsCurrency:   vs,
		Client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

func (f *CoinGeckoFetcher) Name() string { return "coingecko" }

// marketChart is the response of /coins/{id}/market_chart. Pointers tell an
// absent key apart from an empty series.
type marketChart struct {
	Prices       *[][]json.RawMessage `json:"prices"`
	MarketCaps   *[][]json.RawMessage `json:"market_caps"`
	TotalVolumes *[][]json.RawMessage `json:"total_volumes"`
}

// marketRow is one element of the /coins/markets response.
type marketRow struct {
	ID           string           `json:"id"`
	CurrentPrice *decimal.Decimal `json:"current_price"`
	MarketCap    decimal.Decimal  `json:"market_cap"`
	TotalVolume  decimal.Decimal  `json:"total_volume"`
	LastUpdated  string           `json:"last_updated"`
}

// FetchWindow requests the trailing window of daily prices, market caps and volumes.
func (f *CoinGeckoFetcher) FetchWindow(ctx context.Context, coinID string, days int) (*model.RemoteWindow, error) {
	const op = "fetch market chart"

	q := url.Values{}
	q.Set("vs_currency", f.VsCurrency)
	q.Set("days", strconv.Itoa(days))
	q.Set("interval", "daily")
	endpoint := fmt.Sprintf("%s/coins/%s/market_chart?%s", f.BaseURL, url.PathEscape(coinID), q.Encode())

	body, err := f.get(ctx, op, endpoint)
	if err != nil {
		return nil, err
	}

	var chart marketChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, &SchemaError{Op: op, Reason: "decode body", Err: err}
	}

	w := &model.RemoteWindow{CoinID: coinID, FetchedAt: time.Now().UTC()}
	series := []struct {
		key  string
		raw  *[][]json.RawMessage
		dest *[]model.SeriesPoint
	}{
		{"prices", chart.Prices, &w.Prices},
		{"market_caps", chart.MarketCaps, &w.MarketCaps},
		{"total_volumes", chart.TotalVolumes, &w.TotalVolumes},
	}
	for _, s := range series {
		if s.raw == nil {
			return nil, &SchemaError{Op: op, Reason: fmt.Sprintf("missing %q", s.key)}
		}
		points, err := toPoints(*s.raw)
		if err != nil {
			return nil, &SchemaError{Op: op, Reason: s.key, Err: err}
		}
		*s.dest = points
	}
	return w, nil
}

// FetchLatest requests the current market snapshot for a single coin.
func (f *CoinGeckoFetcher) FetchLatest(ctx context.Context, coinID string) (*model.Quote, error) {
	const op = "fetch markets"

	q := url.Values{}
	q.Set("vs_currency", f.VsCurrency)
	q.Set("ids", coinID)
	endpoint := fmt.Sprintf("%s/coins/markets?%s", f.BaseURL, q.Encode())

	body, err := f.get(ctx, op, endpoint)
	if err != nil {
		return nil, err
	}

	var rows []marketRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, &SchemaError{Op: op, Reason: "decode body", Err: err}
	}
	if len(rows) == 0 {
		return nil, ErrNoData
	}

	row := rows[0]
	if row.CurrentPrice == nil {
		return nil, &SchemaError{Op: op, Reason: `missing "current_price"`}
	}
	updated, err := time.Parse(time.RFC3339, row.LastUpdated)
	if err != nil {
		return nil, &SchemaError{Op: op, Reason: "last_updated", Err: err}
	}
	return &model.Quote{
		CoinID:      coinID,
		Price:       *row.CurrentPrice,
		MarketCap:   row.MarketCap,
		TotalVolume: row.TotalVolume,
		LastUpdated: updated.UTC(),
	}, nil
}

func (f *CoinGeckoFetcher) get(ctx context.Context, op, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if f.APIKey != "" && f.APIKeyHeader != "" {
		req.Header.Set(f.APIKeyHeader, f.APIKey)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &NetworkError{Op: op, StatusCode: resp.StatusCode, Body: truncate(string(body), 256)}
	}
	return body, nil
}

// toPoints checks every [timestamp, value] pair. decimal decodes a JSON null
// as zero, so nulls are rejected before decoding.
func toPoints(raw [][]json.RawMessage) ([]model.SeriesPoint, error) {
	points := make([]model.SeriesPoint, 0, len(raw))
	for i, pair := range raw {
		if len(pair) != 2 {
			return nil, fmt.Errorf("entry %d: expected [timestamp, value], got %d elements", i, len(pair))
		}
		ts, err := decodeNumber(pair[0])
		if err != nil {
			return nil, fmt.Errorf("entry %d timestamp: %w", i, err)
		}
		if !ts.IsInteger() || ts.IsNegative() {
			return nil, fmt.Errorf("entry %d timestamp: %s is not a non-negative whole number of milliseconds", i, ts)
		}
		v, err := decodeNumber(pair[1])
		if err != nil {
			return nil, fmt.Errorf("entry %d value: %w", i, err)
		}
		points = append(points, model.SeriesPoint{TimestampMs: ts.IntPart(), Value: v})
	}
	return points, nil
}

func decodeNumber(raw json.RawMessage) (decimal.Decimal, error) {
	if string(bytes.TrimSpace(raw)) == "null" {
		return decimal.Zero, errors.New("null")
	}
	var d decimal.Decimal
	if err := json.Unmarshal(raw, &d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
