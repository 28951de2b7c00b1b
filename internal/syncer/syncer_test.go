package syncer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SeriesKeeper/internal/collector"
	"SeriesKeeper/internal/model"
	"SeriesKeeper/internal/reconcile"
	"SeriesKeeper/internal/recorder"
	"SeriesKeeper/internal/store"
)

const header = "snapped_at,price,market_cap,total_volume\n"

type captureRecorder struct {
	runs     []*recorder.RunEvent
	mirrored []model.DailyRecord
}

func (c *captureRecorder) RecordRun(evt *recorder.RunEvent) error {
	c.runs = append(c.runs, evt)
	return nil
}

func (c *captureRecorder) MirrorRecords(_ string, records []model.DailyRecord) error {
	c.mirrored = append(c.mirrored, records...)
	return nil
}

func (c *captureRecorder) Close() error { return nil }

func day(s string) time.Time {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

// windowOf builds a window with one sample per timestamp; price = idx+1.
func windowOf(stamps ...time.Time) *model.RemoteWindow {
	w := &model.RemoteWindow{CoinID: "bitcoin"}
	for i, ts := range stamps {
		v := decimal.NewFromInt(int64(i + 1))
		w.Prices = append(w.Prices, model.SeriesPoint{TimestampMs: ts.UnixMilli(), Value: v})
		w.MarketCaps = append(w.MarketCaps, model.SeriesPoint{TimestampMs: ts.UnixMilli(), Value: v.Mul(decimal.NewFromInt(100))})
		w.TotalVolumes = append(w.TotalVolumes, model.SeriesPoint{TimestampMs: ts.UnixMilli(), Value: decimal.NewFromInt(7)})
	}
	return w
}

func setup(t *testing.T, content string, opts Options, f collector.Fetcher) (*Synchronizer, *captureRecorder, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "btc.csv")
	if content != "" {
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	opts.CSVPath = path
	opts.CoinID = "bitcoin"
	if opts.Days == 0 {
		opts.Days = 7
	}
	rec := &captureRecorder{}
	return New(opts, f, rec), rec, path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestSync_AddsOnlyMissingDays(t *testing.T) {
	f := &collector.MockFetcher{Window: windowOf(day("2024-01-02"), day("2024-01-03"), day("2024-01-04"))}
	s, rec, path := setup(t, header+"2024-01-01,10,1000,7\n2024-01-02,20,2000,7\n", Options{}, f)

	res, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Fetched)
	assert.Equal(t, []string{"2024-01-03", "2024-01-04"}, res.AddedDates)
	assert.Equal(t, 4, res.Total)
	assert.Equal(t, day("2024-01-04"), res.Watermark)

	assert.Equal(t, header+
		"2024-01-01,10,1000,7\n"+
		"2024-01-02,20,2000,7\n"+
		"2024-01-03,2,200,7\n"+
		"2024-01-04,3,300,7\n", readFile(t, path))

	require.Len(t, rec.runs, 1)
	assert.Equal(t, recorder.StatusOK, rec.runs[0].Status)
	assert.Len(t, rec.mirrored, 2)
}

func TestSync_IsIdempotent(t *testing.T) {
	f := &collector.MockFetcher{Window: windowOf(day("2024-01-01"), day("2024-01-02"), day("2024-01-02").Add(9*time.Hour))}
	s, rec, path := setup(t, "", Options{}, f)

	_, err := s.Sync(context.Background())
	require.NoError(t, err)
	first := readFile(t, path)
	info1, err := os.Stat(path)
	require.NoError(t, err)

	res, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.True(t, res.UpToDate())
	assert.Equal(t, first, readFile(t, path))

	info2, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info1.ModTime(), info2.ModTime(), "no-op run must not rewrite the file")

	require.Len(t, rec.runs, 2)
	assert.Equal(t, recorder.StatusNoop, rec.runs[1].Status)
}

func TestSync_TieBreakKeepsLaterSample(t *testing.T) {
	// Two samples on 2024-01-05: price 1 at midnight, price 2 in the afternoon.
	f := &collector.MockFetcher{Window: windowOf(day("2024-01-05"), day("2024-01-05").Add(15*time.Hour))}
	s, _, path := setup(t, "", Options{}, f)

	_, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, header+"2024-01-05,2,200,7\n", readFile(t, path))
}

func TestSync_FailureLeavesStoreUntouched(t *testing.T) {
	original := header + "2024-01-01,10,1000,7\n"
	netErr := &collector.NetworkError{Op: "fetch market chart", Err: errors.New("connection refused")}
	f := &collector.MockFetcher{Err: netErr}
	s, rec, path := setup(t, original, Options{}, f)

	_, err := s.Sync(context.Background())
	require.Error(t, err)
	var ne *collector.NetworkError
	assert.True(t, errors.As(err, &ne))
	assert.Equal(t, original, readFile(t, path))

	require.Len(t, rec.runs, 1)
	assert.Equal(t, recorder.StatusFailed, rec.runs[0].Status)
	assert.Contains(t, rec.runs[0].Error, "connection refused")

	lock, err := store.AcquireLock(path)
	require.NoError(t, err, "lock must be released after a failed run")
	require.NoError(t, lock.Release())
}

func TestSync_SchemaErrorPropagates(t *testing.T) {
	f := &collector.MockFetcher{Err: &collector.SchemaError{Op: "fetch market chart", Reason: `missing "prices"`}}
	s, _, path := setup(t, "", Options{}, f)

	_, err := s.Sync(context.Background())
	var se *collector.SchemaError
	assert.True(t, errors.As(err, &se))
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSync_LockedStore(t *testing.T) {
	f := &collector.MockFetcher{Window: windowOf(day("2024-01-01"))}
	s, _, path := setup(t, "", Options{}, f)

	lock, err := store.AcquireLock(path)
	require.NoError(t, err)
	defer lock.Release()

	_, err = s.Sync(context.Background())
	assert.ErrorIs(t, err, store.ErrLocked)
	assert.Zero(t, f.Calls, "fetch must not run without the lock")
}

func TestSync_WatermarkNeverBackfills(t *testing.T) {
	f := &collector.MockFetcher{Window: windowOf(day("2024-01-02"), day("2024-01-03"), day("2024-01-04"))}
	content := header + "2024-01-01,10,1000,7\n2024-01-03,30,3000,7\n"
	s, _, path := setup(t, content, Options{Policy: reconcile.PolicyWatermark}, f)

	res, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-04"}, res.AddedDates)
	assert.Equal(t, content+"2024-01-04,3,300,7\n", readFile(t, path))

	// The maximum date never decreases even if the remote window moves back.
	f.Window = windowOf(day("2023-12-30"), day("2023-12-31"))
	res, err = s.Sync(context.Background())
	require.NoError(t, err)
	assert.True(t, res.UpToDate())
	assert.Equal(t, day("2024-01-04"), res.Watermark)
}

func TestSync_SetPolicyFillsGap(t *testing.T) {
	f := &collector.MockFetcher{Window: windowOf(day("2024-01-02"), day("2024-01-03"))}
	s, _, path := setup(t, header+"2024-01-01,10,1000,7\n2024-01-03,30,3000,7\n", Options{Policy: reconcile.PolicySet}, f)

	res, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-02"}, res.AddedDates)
	assert.Equal(t, header+
		"2024-01-01,10,1000,7\n"+
		"2024-01-02,1,100,7\n"+
		"2024-01-03,30,3000,7\n", readFile(t, path))
}

func TestSync_RewriteHealsLegacyFile(t *testing.T) {
	legacy := "snapped_at,price,market_cap,total_volume\n" +
		"2024-01-02 00:00:00 UTC,20,2000,7\n" +
		"2024-01-01 00:00:00 UTC,10,1000,7\n" +
		"2024-01-02 00:00:00 UTC,21,2100,7\n"
	f := &collector.MockFetcher{Window: windowOf(day("2024-01-03"))}
	s, _, path := setup(t, legacy, Options{}, f)

	_, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, header+
		"2024-01-01,10,1000,7\n"+
		"2024-01-02,21,2100,7\n"+
		"2024-01-03,1,100,7\n", readFile(t, path))

	series, err := store.Load(path)
	require.NoError(t, err)
	recs := series.Records()
	for i := 1; i < len(recs); i++ {
		assert.False(t, recs[i].Date.Before(recs[i-1].Date), "rows must be non-decreasing by date")
	}
}

func TestSync_AppendMode(t *testing.T) {
	content := header + "2024-01-01,10,1000,7\n"
	f := &collector.MockFetcher{Window: windowOf(day("2024-01-01"), day("2024-01-02"))}
	s, _, path := setup(t, content, Options{Mode: ModeAppend}, f)

	res, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Rewritten)
	assert.Equal(t, content+"2024-01-02,2,200,7\n", readFile(t, path))
}

func TestSync_AppendModeFallsBackToRewriteForGaps(t *testing.T) {
	f := &collector.MockFetcher{Window: windowOf(day("2024-01-02"))}
	s, _, path := setup(t, header+"2024-01-01,10,1000,7\n2024-01-03,30,3000,7\n", Options{Mode: ModeAppend}, f)

	res, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Rewritten)
	assert.Equal(t, header+
		"2024-01-01,10,1000,7\n"+
		"2024-01-02,1,100,7\n"+
		"2024-01-03,30,3000,7\n", readFile(t, path))
}

func TestSync_AppendModeOntoUnterminatedFile(t *testing.T) {
	f := &collector.MockFetcher{Window: windowOf(day("2024-01-01"), day("2024-01-02"))}
	s, _, path := setup(t, header+"2024-01-01,10,1000,7", Options{Mode: ModeAppend}, f)

	res, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Rewritten)

	series, err := store.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, series.Len())
	assert.Zero(t, series.Skipped)
	assert.Equal(t, header+"2024-01-01,10,1000,7\n2024-01-02,2,200,7\n", readFile(t, path))
}

func TestSync_AppendModeRewritesWhenFirstRowIsBad(t *testing.T) {
	f := &collector.MockFetcher{Window: windowOf(day("2024-01-03"))}
	s, _, path := setup(t, "2024-13-01,1,1,1\n2024-01-02,20,2000,7\n", Options{Mode: ModeAppend}, f)

	res, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Rewritten)
	assert.Equal(t, header+"2024-01-02,20,2000,7\n2024-01-03,1,100,7\n", readFile(t, path))
}

func TestUpdateLatest_ReplacesToday(t *testing.T) {
	q := &model.Quote{
		CoinID:      "bitcoin",
		Price:       decimal.RequireFromString("67123.5"),
		MarketCap:   decimal.NewFromInt(1321),
		TotalVolume: decimal.NewFromInt(28),
		LastUpdated: time.Date(2024, 1, 2, 18, 22, 41, 0, time.UTC),
	}
	f := &collector.MockFetcher{Quote: q}
	s, rec, path := setup(t, header+"2024-01-01,10,1000,7\n2024-01-02,20,2000,7\n", Options{}, f)

	res, err := s.UpdateLatest(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Replaced)
	assert.True(t, res.Changed)
	assert.Equal(t, header+
		"2024-01-01,10,1000,7\n"+
		"2024-01-02,67123.5,1321,28\n", readFile(t, path))

	// Same quote again is a no-op.
	res, err = s.UpdateLatest(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Changed)

	require.Len(t, rec.runs, 2)
	assert.Equal(t, recorder.KindLatest, rec.runs[0].Kind)
	assert.Equal(t, recorder.StatusOK, rec.runs[0].Status)
	assert.Equal(t, recorder.StatusNoop, rec.runs[1].Status)
}

func TestUpdateLatest_InsertsNewDay(t *testing.T) {
	q := &model.Quote{Price: decimal.NewFromInt(5), LastUpdated: time.Date(2024, 1, 3, 1, 0, 0, 0, time.UTC)}
	s, _, path := setup(t, header+"2024-01-01,10,1000,7\n", Options{}, &collector.MockFetcher{Quote: q})

	res, err := s.UpdateLatest(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Replaced)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, header+"2024-01-01,10,1000,7\n2024-01-03,5,0,0\n", readFile(t, path))
}

type noDataFetcher struct{ collector.MockFetcher }

func (n *noDataFetcher) FetchLatest(context.Context, string) (*model.Quote, error) {
	return nil, collector.ErrNoData
}

func TestUpdateLatest_NoDataIsNoop(t *testing.T) {
	original := header + "2024-01-01,10,1000,7\n"
	s, _, path := setup(t, original, Options{}, &noDataFetcher{})

	res, err := s.UpdateLatest(context.Background())
	require.NoError(t, err)
	assert.True(t, res.NoData)
	assert.Equal(t, original, readFile(t, path))
}

func TestUpdateLatest_FailureLeavesStoreUntouched(t *testing.T) {
	original := header + "2024-01-01,10,1000,7\n"
	f := &collector.MockFetcher{Err: &collector.NetworkError{Op: "fetch markets", StatusCode: 503}}
	s, _, path := setup(t, original, Options{}, f)

	_, err := s.UpdateLatest(context.Background())
	var ne *collector.NetworkError
	assert.True(t, errors.As(err, &ne))
	assert.Equal(t, original, readFile(t, path))
}
