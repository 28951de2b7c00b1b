package recorder

import (
	"time"

	"SeriesKeeper/internal/model"
)

// Run kinds.
const (
	KindSync   = "SYNC"
	KindLatest = "LATEST"
)

// Run statuses.
const (
	StatusOK     = "OK"
	StatusNoop   = "NOOP"
	StatusFailed = "FAILED"
)

// RunEvent records the outcome of one sync or latest-price run.
type RunEvent struct {
	StartedAt time.Time
	Duration  time.Duration
	Kind      string // "SYNC" or "LATEST"
	Status    string // "OK", "NOOP" or "FAILED"
	CoinID    string
	Fetched   int
	Added     int
	Total     int
	Watermark time.Time
	Error     string
}

// Recorder persists run history and a queryable copy of the series.
type Recorder interface {
	RecordRun(evt *RunEvent) error
	MirrorRecords(coinID string, records []model.DailyRecord) error
	Close() error
}
