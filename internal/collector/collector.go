package collector

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"SeriesKeeper/internal/model"
)

// MockFetcher returns controllable fixed data for development and testing.
type MockFetcher struct {
	Price  decimal.Decimal
	Window *model.RemoteWindow
	Quote  *model.Quote
	Err    error

	// Now anchors generated data; zero means time.Now().
	Now time.Time

	Calls int
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchWindow(_ context.Context, coinID string, days int) (*model.RemoteWindow, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Window != nil {
		return m.Window, nil
	}
	return generateMockWindow(coinID, m.Price, days, m.now()), nil
}

func (m *MockFetcher) FetchLatest(_ context.Context, coinID string) (*model.Quote, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Quote != nil {
		return m.Quote, nil
	}
	return &model.Quote{
		CoinID:      coinID,
		Price:       m.Price,
		MarketCap:   m.Price.Mul(decimal.NewFromInt(19_000_000)),
		TotalVolume: decimal.NewFromInt(25_000_000_000),
		LastUpdated: m.now().UTC(),
	}, nil
}

func (m *MockFetcher) now() time.Time {
	if m.Now.IsZero() {
		return time.Now()
	}
	return m.Now
}

// generateMockWindow mimics the daily market chart: one point per midnight
// plus a final point stamped with the current time.
func generateMockWindow(coinID string, basePrice decimal.Decimal, days int, now time.Time) *model.RemoteWindow {
	w := &model.RemoteWindow{CoinID: coinID, FetchedAt: now.UTC()}
	today := model.DateOf(now)
	step := decimal.NewFromFloat(0.001)
	for i := days; i >= 0; i-- {
		ts := today.AddDate(0, 0, -i).UnixMilli()
		p := basePrice.Mul(decimal.NewFromInt(1).Add(step.Mul(decimal.NewFromInt(int64(days/2 - i)))))
		w.Prices = append(w.Prices, model.SeriesPoint{TimestampMs: ts, Value: p})
		w.MarketCaps = append(w.MarketCaps, model.SeriesPoint{TimestampMs: ts, Value: p.Mul(decimal.NewFromInt(19_000_000))})
		w.TotalVolumes = append(w.TotalVolumes, model.SeriesPoint{TimestampMs: ts, Value: decimal.NewFromInt(25_000_000_000)})
	}
	ts := now.UnixMilli()
	w.Prices = append(w.Prices, model.SeriesPoint{TimestampMs: ts, Value: basePrice})
	w.MarketCaps = append(w.MarketCaps, model.SeriesPoint{TimestampMs: ts, Value: basePrice.Mul(decimal.NewFromInt(19_000_000))})
	w.TotalVolumes = append(w.TotalVolumes, model.SeriesPoint{TimestampMs: ts, Value: decimal.NewFromInt(25_000_000_000)})
	return w
}
