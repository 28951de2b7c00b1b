package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"SeriesKeeper/internal/collector"
	"SeriesKeeper/internal/config"
	"SeriesKeeper/internal/notifier"
	"SeriesKeeper/internal/reconcile"
	"SeriesKeeper/internal/recorder"
	"SeriesKeeper/internal/scheduler"
	"SeriesKeeper/internal/syncer"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	os.Exit(run())
}

func run() int {
	log.Println("[INFO] SeriesKeeper starting...")

	// Secrets may live in .env; real environment variables win.
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("[WARN] %v", err)
	}

	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Printf("[FATAL] load config: %v", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("[FATAL] config validation: %v", err)
		return 1
	}
	policy, _ := reconcile.ParsePolicy(cfg.Sync.Policy)

	fetcher := collector.NewCoinGeckoFetcher(collector.CoinGeckoOptions{
		BaseURL:      cfg.Source.BaseURL,
		APIKey:       cfg.Source.APIKey,
		APIKeyHeader: cfg.Source.APIKeyHeader,
		VsCurrency:   cfg.Source.VsCurrency,
		Proxy:        cfg.Proxy,
		Timeout:      cfg.Source.Timeout,
	})
	log.Printf("[INFO] data source: %s, coin %s, window %d days, policy %s, mode %s",
		fetcher.Name(), cfg.Source.CoinID, cfg.Sync.Days, policy, cfg.Sync.Mode)

	var rec recorder.Recorder
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err != nil {
			log.Printf("[WARN] init sqlite recorder failed, using noop: %v", err)
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}
	defer rec.Close()

	var sender notifier.Sender = notifier.NoopSender{}
	var tn *notifier.TelegramNotifier
	if cfg.TelegramEnabled() {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		sender = tn
	}

	sync := syncer.New(syncer.Options{
		CSVPath: cfg.Store.CSVPath,
		CoinID:  cfg.Source.CoinID,
		Days:    cfg.Sync.Days,
		Policy:  policy,
		Mode:    cfg.Sync.Mode,
	}, fetcher, rec)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := scheduler.NewScheduler(ctx, sync, sender, cfg.LatestEnabled())

	if os.Getenv("KEEPER_DAEMON") != "true" {
		return runOnce(ctx, sched, cfg.LatestEnabled())
	}

	if err := sched.RegisterAll(cfg.Schedule.SyncCron, cfg.Schedule.LatestCron); err != nil {
		log.Printf("[FATAL] register cron tasks: %v", err)
		return 1
	}
	sched.Start()
	defer sched.Stop()

	if tn != nil {
		sched.Go(func() { tn.StartPolling(ctx, sched.HandleCommand) })
		log.Println("[INFO] Telegram polling started")
	}

	if os.Getenv("RUN_ON_START") == "true" {
		log.Println("[INFO] RUN_ON_START enabled, executing sync now")
		sched.Go(func() { sched.RunSync(ctx) })
	}

	log.Println("[INFO] SeriesKeeper is running. Press Ctrl+C to stop.")
	<-ctx.Done()
	log.Println("[INFO] shutdown signal received, stopping...")
	return 0
}

// runOnce performs a single sync (and latest update) and maps failures to a
// non-zero exit status for cron and CI callers.
func runOnce(ctx context.Context, sched *scheduler.Scheduler, latest bool) int {
	res, err := sched.RunSync(ctx)
	if err != nil {
		return 1
	}
	if res.UpToDate() {
		log.Println("[INFO] already up to date")
	}

	if latest {
		if _, err := sched.RunLatest(ctx); err != nil {
			return 1
		}
	}
	log.Println("[INFO] SeriesKeeper finished")
	return 0
}
