package collector

import (
	"context"

	"SeriesKeeper/internal/model"
)

// Fetcher defines the interface for fetching market data.
type Fetcher interface {
	FetchWindow(ctx context.Context, coinID string, days int) (*model.RemoteWindow, error)
	FetchLatest(ctx context.Context, coinID string) (*model.Quote, error)
	Name() string
}
