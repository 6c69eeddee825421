package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/figwatch/figwatch/internal/api"
	"github.com/figwatch/figwatch/internal/automigrate"
	"github.com/figwatch/figwatch/internal/config"
	"github.com/figwatch/figwatch/internal/figma"
	"github.com/figwatch/figwatch/internal/notify"
	"github.com/figwatch/figwatch/internal/poller"
	"github.com/figwatch/figwatch/internal/registry"
	"github.com/figwatch/figwatch/internal/store"
	"github.com/figwatch/figwatch/internal/telegram"
	"github.com/figwatch/figwatch/internal/tracker"
	"github.com/figwatch/figwatch/internal/watch"
	"github.com/figwatch/figwatch/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(cfg.Store)
	if err != nil {
		log.Fatalf("Store error: %v", err)
	}
	defer closeStore()

	figmaClient, err := figma.NewClient(cfg.Figma.APIBaseURL, cfg.Figma.APIToken)
	if err != nil {
		log.Fatalf("Figma client error: %v", err)
	}

	reg, err := registry.New(ctx, st)
	if err != nil {
		log.Fatalf("Load subscriptions: %v", err)
	}
	trackerCfg := tracker.Config{FetchTimeout: cfg.Poll.FetchTimeout}
	versions, err := tracker.NewVersionTracker(ctx, figmaClient, st, trackerCfg)
	if err != nil {
		log.Fatalf("Load versions: %v", err)
	}
	comments, err := tracker.NewCommentTracker(ctx, figmaClient, st, trackerCfg)
	if err != nil {
		log.Fatalf("Load comments: %v", err)
	}

	service := watch.New(reg, versions, comments, figmaClient, watch.Config{
		AutoSubscribeComments: cfg.Poll.AutoSubscribeComments,
	})

	hub := ws.NewHub()
	go hub.Run()

	sinks := notify.Fanout{hub}
	if cfg.Telegram.Enabled() {
		tgClient, err := telegram.NewClient(cfg.Telegram.APIBaseURL, cfg.Telegram.BotToken)
		if err != nil {
			log.Fatalf("Telegram client error: %v", err)
		}
		sinks = append(sinks, telegram.NewNotifier(tgClient))

		bot := telegram.NewBot(tgClient, service, telegram.BotConfig{})
		go func() {
			if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("Telegram bot stopped: %v", err)
			}
		}()
	} else {
		log.Printf("TELEGRAM_BOT_TOKEN not set; Telegram frontend disabled")
	}

	p := poller.New(versions, comments, reg, figmaClient, sinks, poller.Config{
		Interval:     cfg.Poll.Interval,
		InitialDelay: cfg.Poll.InitialDelay,
		FetchTimeout: cfg.Poll.FetchTimeout,
	})
	go p.Start(ctx)

	router := api.NewRouter(api.Deps{
		Watch:  service,
		Poller: p,
		Hub:    hub,
	}, api.Config{
		AuthToken:   cfg.HTTP.APIToken,
		CORSOrigins: cfg.HTTP.AllowedOrigins,
	})

	server := &http.Server{
		Addr:    ":" + cfg.HTTP.Port,
		Handler: router,
	}

	go func() {
		log.Printf("👀 figwatch listening on port %s (poll every %s)", cfg.HTTP.Port, cfg.Poll.Interval)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}

// openStore picks Postgres when DATABASE_URL is set, local JSON files
// otherwise. The close func is safe to call either way.
func openStore(cfg config.StoreConfig) (store.StateStore, func(), error) {
	if !cfg.UsesPostgres() {
		log.Printf("💾 State in %s", cfg.StateDir)
		return store.NewFileStore(cfg.StateDir), func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}
	if cfg.AutoMigrate {
		if err := automigrate.Run(db, "migrations"); err != nil {
			db.Close()
			return nil, nil, err
		}
	}
	log.Printf("💾 State in Postgres")
	return store.NewPGStore(db), func() { db.Close() }, nil
}
