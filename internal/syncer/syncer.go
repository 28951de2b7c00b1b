// Package syncer runs the read, fetch, reconcile and write sequence that keeps
// the local series file in step with the remote source.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"SeriesKeeper/internal/collector"
	"SeriesKeeper/internal/model"
	"SeriesKeeper/internal/reconcile"
	"SeriesKeeper/internal/recorder"
	"SeriesKeeper/internal/store"
)

// Write modes.
const (
	ModeRewrite = "rewrite"
	ModeAppend  = "append"
)

// Options configures a Synchronizer.
type Options struct {
	CSVPath string
	CoinID  string
	Days    int
	Policy  reconcile.Policy
	Mode    string
}

// Result describes a completed sync run.
type Result struct {
	Fetched    int
	Added      int
	AddedDates []string
	Total      int
	Watermark  time.Time
	Rewritten  bool
}

// UpToDate reports whether the run found nothing new.
func (r *Result) UpToDate() bool { return r.Added == 0 }

// LatestResult describes a completed latest-price update.
type LatestResult struct {
	Record   model.DailyRecord
	Replaced bool
	Changed  bool
	NoData   bool
	Total    int
}

// Synchronizer keeps one CSV store in step with one coin's market chart.
type Synchronizer struct {
	opts     Options
	fetcher  collector.Fetcher
	recorder recorder.Recorder

	// Now is the clock used for run bookkeeping.
	Now func() time.Time

	mu sync.Mutex
}

// New creates a Synchronizer. A nil recorder disables run history.
func New(opts Options, fetcher collector.Fetcher, rec recorder.Recorder) *Synchronizer {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	if opts.Policy == "" {
		opts.Policy = reconcile.PolicySet
	}
	if opts.Mode == "" {
		opts.Mode = ModeRewrite
	}
	return &Synchronizer{opts: opts, fetcher: fetcher, recorder: rec, Now: time.Now}
}

// Options returns the synchronizer configuration.
func (s *Synchronizer) Options() Options { return s.opts }

// Sync fetches the trailing window and adds the days the store is missing.
// A failed fetch leaves the store untouched.
func (s *Synchronizer) Sync(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := s.Now()
	res, err := s.sync(ctx)
	s.recordRun(recorder.KindSync, started, res, err)
	return res, err
}

func (s *Synchronizer) sync(ctx context.Context) (*Result, error) {
	lock, err := store.AcquireLock(s.opts.CSVPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			log.Printf("[WARN] %v", err)
		}
	}()

	series, err := store.Load(s.opts.CSVPath)
	if err != nil {
		return nil, fmt.Errorf("load store: %w", err)
	}
	watermark, _ := series.Watermark()
	log.Printf("[INFO] store %s: %d records, latest %s", s.opts.CSVPath, series.Len(), formatDate(watermark))

	window, err := s.fetcher.FetchWindow(ctx, s.opts.CoinID, s.opts.Days)
	if err != nil {
		return nil, fmt.Errorf("%s window: %w", s.fetcher.Name(), err)
	}

	candidates := reconcile.Window(window)
	added := reconcile.NewRecords(reconcile.Existing{
		Dates:     series.Dates(),
		Watermark: watermark,
	}, candidates, s.opts.Policy)

	res := &Result{
		Fetched:   len(candidates),
		Added:     len(added),
		Total:     series.Len(),
		Watermark: watermark,
	}
	if len(added) == 0 {
		log.Printf("[INFO] no new daily records (%d fetched)", len(candidates))
		return res, nil
	}

	for _, r := range added {
		res.AddedDates = append(res.AddedDates, r.Key())
	}

	if s.opts.Mode == ModeAppend && added[0].Date.After(watermark) && series.Skipped == 0 {
		if err := store.Append(s.opts.CSVPath, added); err != nil {
			return nil, fmt.Errorf("append store: %w", err)
		}
		res.Total = series.Len() + len(added)
	} else {
		if s.opts.Mode == ModeAppend {
			log.Printf("[WARN] append would break date order or keep bad rows, rewriting %s", s.opts.CSVPath)
		}
		merged := reconcile.Merge(series.Records(), added)
		if err := store.Rewrite(s.opts.CSVPath, merged); err != nil {
			return nil, fmt.Errorf("rewrite store: %w", err)
		}
		res.Total = len(merged)
		res.Rewritten = true
	}
	res.Watermark = added[len(added)-1].Date
	if res.Watermark.Before(watermark) {
		res.Watermark = watermark
	}

	if err := s.recorder.MirrorRecords(s.opts.CoinID, added); err != nil {
		log.Printf("[ERROR] mirror records: %v", err)
	}
	log.Printf("[INFO] added %d daily records: %v", len(added), res.AddedDates)
	return res, nil
}

// UpdateLatest fetches the current quote and replaces (or inserts) the record
// for its UTC date. The store is always rewritten in date order.
func (s *Synchronizer) UpdateLatest(ctx context.Context) (*LatestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := s.Now()
	res, err := s.updateLatest(ctx)

	var sr *Result
	if res != nil {
		sr = &Result{Total: res.Total, Watermark: res.Record.Date}
		if res.Changed {
			sr.Added = 1
		}
	}
	s.recordRun(recorder.KindLatest, started, sr, err)
	return res, err
}

func (s *Synchronizer) updateLatest(ctx context.Context) (*LatestResult, error) {
	lock, err := store.AcquireLock(s.opts.CSVPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			log.Printf("[WARN] %v", err)
		}
	}()

	quote, err := s.fetcher.FetchLatest(ctx, s.opts.CoinID)
	if errors.Is(err, collector.ErrNoData) {
		log.Printf("[WARN] no latest price returned for %s", s.opts.CoinID)
		return &LatestResult{NoData: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s latest: %w", s.fetcher.Name(), err)
	}

	series, err := store.Load(s.opts.CSVPath)
	if err != nil {
		return nil, fmt.Errorf("load store: %w", err)
	}

	rec := quote.Record()
	res := &LatestResult{Record: rec, Total: series.Len()}
	for _, existing := range series.Records() {
		if !existing.Date.Equal(rec.Date) {
			continue
		}
		res.Replaced = true
		if sameValues(existing, rec) {
			log.Printf("[INFO] latest price for %s unchanged", rec.Key())
			return res, nil
		}
	}

	merged := reconcile.Upsert(series.Records(), rec)
	if err := store.Rewrite(s.opts.CSVPath, merged); err != nil {
		return nil, fmt.Errorf("rewrite store: %w", err)
	}
	res.Changed = true
	res.Total = len(merged)

	if err := s.recorder.MirrorRecords(s.opts.CoinID, []model.DailyRecord{rec}); err != nil {
		log.Printf("[ERROR] mirror latest record: %v", err)
	}
	log.Printf("[INFO] updated latest price for %s: %s", rec.Key(), rec.Price.String())
	return res, nil
}

// Status loads the store without modifying it.
func (s *Synchronizer) Status() (*store.Series, error) {
	return store.Load(s.opts.CSVPath)
}

func (s *Synchronizer) recordRun(kind string, started time.Time, res *Result, runErr error) {
	evt := &recorder.RunEvent{
		StartedAt: started,
		Duration:  s.Now().Sub(started),
		Kind:      kind,
		CoinID:    s.opts.CoinID,
	}
	switch {
	case runErr != nil:
		evt.Status = recorder.StatusFailed
		evt.Error = runErr.Error()
	case res == nil || res.Added == 0:
		evt.Status = recorder.StatusNoop
	default:
		evt.Status = recorder.StatusOK
	}
	if res != nil {
		evt.Fetched = res.Fetched
		evt.Added = res.Added
		evt.Total = res.Total
		evt.Watermark = res.Watermark
	}
	if err := s.recorder.RecordRun(evt); err != nil {
		log.Printf("[ERROR] record run: %v", err)
	}
}

func sameValues(a, b model.DailyRecord) bool {
	return a.Price.Equal(b.Price) && a.MarketCap.Equal(b.MarketCap) && a.TotalVolume.Equal(b.TotalVolume)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "none"
	}
	return t.Format(model.DateLayout)
}
