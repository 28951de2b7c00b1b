package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"

	"SeriesKeeper/internal/calculator"
	"SeriesKeeper/internal/notifier"
	"SeriesKeeper/internal/reconcile"
	"SeriesKeeper/internal/syncer"

	"github.com/robfig/cron/v3"
)

// Scheduler manages all cron tasks.
type Scheduler struct {
	Cron     *cron.Cron
	Syncer   *syncer.Synchronizer
	Notifier notifier.Sender
	Ctx      context.Context

	// UpdateLatest controls whether the latest-price task is registered.
	UpdateLatest bool

	wg sync.WaitGroup
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, s *syncer.Synchronizer, n notifier.Sender, updateLatest bool) *Scheduler {
	if n == nil {
		n = notifier.NoopSender{}
	}
	return &Scheduler{
		Cron:         cron.New(cron.WithSeconds()),
		Syncer:       s,
		Notifier:     n,
		Ctx:          ctx,
		UpdateLatest: updateLatest,
	}
}

// RegisterAll registers the daily sync and, if enabled, the latest-price task.
func (s *Scheduler) RegisterAll(syncCron, latestCron string) error {
	if _, err := s.Cron.AddFunc(syncCron, func() { s.RunSync(s.Ctx) }); err != nil {
		return fmt.Errorf("register sync task: %w", err)
	}
	if s.UpdateLatest {
		if _, err := s.Cron.AddFunc(latestCron, func() { s.RunLatest(s.Ctx) }); err != nil {
			return fmt.Errorf("register latest task: %w", err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[INFO] scheduler started")
}

// Go runs f in a goroutine that Stop waits for. Use it for work started
// outside cron, such as a startup sync or the command poller.
func (s *Scheduler) Go(f func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		f()
	}()
}

// Stop stops the cron scheduler and waits for cron jobs and Go goroutines,
// so no run still holds the store lock when the process exits.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.wg.Wait()
	log.Println("[INFO] scheduler stopped")
}

// RunSync runs one sync and reports the outcome.
func (s *Scheduler) RunSync(ctx context.Context) (*syncer.Result, error) {
	log.Println("[INFO] running sync task")
	coin := s.Syncer.Options().CoinID
	res, err := s.Syncer.Sync(ctx)
	if err != nil {
		log.Printf("[ERROR] sync: %v", err)
		s.trySend(notifier.FormatFailure("sync", err))
		return nil, err
	}
	if !res.UpToDate() {
		s.trySend(notifier.FormatSyncReport(coin, res))
	}
	return res, nil
}

// RunLatest runs one latest-price update and reports failures.
func (s *Scheduler) RunLatest(ctx context.Context) (*syncer.LatestResult, error) {
	log.Println("[INFO] running latest price task")
	res, err := s.Syncer.UpdateLatest(ctx)
	if err != nil {
		log.Printf("[ERROR] latest: %v", err)
		s.trySend(notifier.FormatFailure("latest price update", err))
		return nil, err
	}
	return res, nil
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	coin := s.Syncer.Options().CoinID
	switch command {
	case "/sync":
		res, err := s.Syncer.Sync(ctx)
		if err != nil {
			return notifier.FormatFailure("sync", err)
		}
		return notifier.FormatSyncReport(coin, res)
	case "/latest":
		res, err := s.Syncer.UpdateLatest(ctx)
		if err != nil {
			return notifier.FormatFailure("latest price update", err)
		}
		return notifier.FormatLatestReport(coin, res)
	case "/status":
		series, err := s.Syncer.Status()
		if err != nil {
			return notifier.FormatFailure("status", err)
		}
		return notifier.FormatStatus(coin, calculator.Summarize(reconcile.Merge(series.Records(), nil)))
	default:
		return "Commands:\n• /sync\n• /latest\n• /status"
	}
}

func (s *Scheduler) trySend(text string) {
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		log.Printf("[ERROR] send notification: %v", err)
	}
}
