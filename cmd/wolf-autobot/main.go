package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kapu/wolf-autobot-go/internal/account"
	"github.com/kapu/wolf-autobot-go/internal/automation"
	"github.com/kapu/wolf-autobot-go/internal/cmdcat"
	appcfg "github.com/kapu/wolf-autobot-go/internal/config"
	"github.com/kapu/wolf-autobot-go/internal/obslog"
	"github.com/kapu/wolf-autobot-go/internal/sched"
	"github.com/kapu/wolf-autobot-go/internal/store"
	"github.com/kapu/wolf-autobot-go/internal/wolf"
	"go.uber.org/zap"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer obslog.L().Sync()

	catalog, err := cmdcat.New(cfg.CommandDir)
	if err != nil {
		log.Fatalf("command catalog error: %v", err)
	}

	var st store.Store
	if cfg.RedisURL != "" {
		rs, err := store.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis store error: %v", err)
		}
		defer rs.Close()
		st = rs
	} else {
		obslog.L().Warn("no REDIS_URL, accounts will not survive a restart")
		st = store.NewMemoryStore()
	}

	client := wolf.NewClient(cfg.WolfBaseURL,
		wolf.WithTimeout(8*time.Second),
		wolf.WithRetry(2),
	)

	accounts := account.NewRegistry(client, st, cfg.InboxLimit)
	timers := sched.NewRegistry()
	svc := automation.NewService(cfg, accounts, timers, catalog)

	if cfg.DatabaseURL != "" {
		audit, err := automation.NewActivityRepo(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("activity repo error: %v", err)
		}
		svc.SetAudit(audit)
	}

	if err := accounts.LoadFromStore(context.Background()); err != nil {
		obslog.L().Error("account_restore_failed", zap.Error(err))
	}

	var feed *wolf.Feed
	if cfg.WolfWSURL != "" {
		feed = wolf.NewFeed(cfg.WolfWSURL, 5, time.Second)
		feed.OnStateChange(func(state wolf.FeedState) {
			obslog.L().Info("feed_state", zap.String("state", string(state)))
		})
		svc.AttachFeed(feed)

		cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := feed.Connect(cctx); err != nil {
			obslog.L().Warn("feed_connect_failed, polling only", zap.Error(err))
		}
		cancel()
	}

	obslog.L().Info("wolf-autobot started",
		zap.String("base_url", cfg.WolfBaseURL),
		zap.Duration("poll_interval", cfg.PollInterval),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	obslog.L().Info("shutting down")
	if feed != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = feed.Close(ctx)
		cancel()
	}
	// deactivate every online account so sessions close server-side
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	for _, acct := range accounts.List() {
		if acct.Online() {
			if _, err := accounts.Toggle(ctx, acct.ID, false); err != nil {
				obslog.L().Warn("shutdown_toggle_failed", zap.String("account_id", acct.ID), zap.Error(err))
			}
		}
	}
	cancel()
	svc.Close()
}
