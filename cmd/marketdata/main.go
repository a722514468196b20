package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"marketdata/internal/cache"
	"marketdata/internal/config"
	"marketdata/internal/manager"
	"marketdata/internal/model"
	"marketdata/internal/notifier"
	"marketdata/internal/provider"
	"marketdata/internal/recorder"
	"marketdata/internal/scheduler"
	"marketdata/internal/stream"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[INFO] marketdata starting...")

	// Optional .env for local development
	if err := godotenv.Load(); err == nil {
		log.Println("[INFO] loaded .env")
	}

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] config validation: %v", err)
	}

	// Init providers; preference order comes from config
	yahoo := provider.NewYahooFetcher(cfg.Proxy)
	fetchers := []provider.Fetcher{yahoo}
	if cfg.Providers.AlphaVantage.APIKey != "" {
		av := provider.NewAlphaVantageFetcher(
			cfg.Providers.AlphaVantage.APIKey, cfg.Proxy, cfg.Providers.AlphaVantage.CallsPerMinute)
		if cfg.Providers.Preferred == av.Name() {
			fetchers = []provider.Fetcher{av, yahoo}
		} else {
			fetchers = append(fetchers, av)
		}
	}
	client := provider.NewClient(fetchers...)
	log.Printf("[INFO] providers: %v", client.Sources())

	// Init cache
	store, err := cache.New(cfg.Cache.Dir, cfg.Cache.MaxBytes)
	if err != nil {
		log.Fatalf("[FATAL] init cache: %v", err)
	}

	// Init recorder
	var rec recorder.Recorder
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err != nil {
			log.Printf("[WARN] init sqlite recorder failed, using noop: %v", err)
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
			defer sr.Close()
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}

	// Init market data manager
	mgr := manager.New(client, store, manager.Config{
		Period:         cfg.Manager.Period,
		Workers:        cfg.Manager.Workers,
		MarketDataTTL:  cfg.Cache.MarketDataTTL.Std(),
		CompanyInfoTTL: cfg.Cache.CompanyInfoTTL.Std(),
		RecoveryWait:   cfg.Manager.RecoveryWait.Std(),
	}, rec)

	// Init maintenance scheduler
	sched := scheduler.NewScheduler(store)
	if err := sched.RegisterAll(cfg.Maintenance.SweepCron, cfg.Maintenance.StatsCron); err != nil {
		log.Fatalf("[FATAL] register maintenance tasks: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init streaming manager
	sm := stream.New(mgr, stream.Config{
		Interval:        cfg.Streaming.Interval.Std(),
		DataBufferSize:  cfg.Streaming.DataBuffer,
		AlertBufferSize: cfg.Streaming.AlertBuffer,
	}, rec)
	for _, sym := range cfg.Refresh.Symbols {
		sm.AddSymbol(sym)
	}
	for _, a := range cfg.Alerts {
		sm.SetAlert(a.Symbol, model.AlertKind(a.Kind), a.Threshold)
	}

	// Forward fired alerts to Telegram when configured
	tn := notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
	if tn.Enabled() {
		sm.OnAlert(func(alert model.FiredAlert) {
			go tn.NotifyAlert(ctx, alert)
		})
		log.Println("[INFO] Telegram alert forwarding enabled")
	}

	// Start background activity
	if len(cfg.Refresh.Symbols) > 0 {
		mgr.StartBackgroundRefresh(cfg.Refresh.Symbols, cfg.Refresh.Interval.Std())
		defer mgr.StopBackgroundRefresh()
		sm.Start()
		defer sm.Stop()
	} else {
		log.Println("[WARN] no symbols configured, refresh and streaming idle")
	}

	log.Println("[INFO] marketdata is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[INFO] shutdown signal received, stopping...")
	cancel()
	log.Println("[INFO] marketdata stopped")
}
