// jobsprint-discovery-engine
//
// Continuous multi-user job discovery: a cron-driven coordinator fans
// out per-user search cycles through a rate-limited source adapter,
// scores and filters the results, persists net-new postings, and sends
// each user a digest of matches they have not seen before.
//
// Publishes EVENT_DIGEST_SENT to Redis after every successful digest.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jobsprint/discovery-engine/internal/config"
	"jobsprint/discovery-engine/internal/db"
	"jobsprint/discovery-engine/internal/dedup"
	"jobsprint/discovery-engine/internal/notify"
	"jobsprint/discovery-engine/internal/ratelimit"
	"jobsprint/discovery-engine/internal/scheduler"
	"jobsprint/discovery-engine/internal/score"
	"jobsprint/discovery-engine/internal/server"
	"jobsprint/discovery-engine/internal/source"
	"jobsprint/discovery-engine/internal/store"
)

const version = "1.0.0"

func main() {
	// ── Config ───────────────────────────────────────────────────────────────
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("[discovery-engine] Config error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── PostgreSQL ───────────────────────────────────────────────────────────
	log.Println("[discovery-engine] Connecting to PostgreSQL…")
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[discovery-engine] PostgreSQL: %v", err)
	}
	defer pool.Close()
	log.Println("[discovery-engine] PostgreSQL connected ✓")

	records := store.NewPostgres(pool)
	if err := records.EnsureSchema(ctx); err != nil {
		log.Fatalf("[discovery-engine] Schema: %v", err)
	}

	// ── Redis ────────────────────────────────────────────────────────────────
	log.Println("[discovery-engine] Connecting to Redis…")
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("[discovery-engine] Redis: %v", err)
	}
	defer rdb.Close()
	log.Println("[discovery-engine] Redis connected ✓")

	// ── Source adapter ───────────────────────────────────────────────────────
	gateway := ratelimit.NewGateway(cfg.Engine.RequestsPerMinute)

	methods := []source.FetchMethod{source.NewGuestFetcher(cfg.Engine.FetchTimeout())}
	if cfg.Engine.BrowserFallback {
		methods = append(methods, source.NewBrowserFetcher(cfg.Engine.BrowserTimeout()))
	}
	adapter := source.NewAdapter(gateway, methods...)

	// ── Pipeline ─────────────────────────────────────────────────────────────
	engine := score.NewEngine(cfg.Engine.EmployerAllowList)
	deduper := dedup.New(records, rdb)

	var transport notify.Transport = notify.LogTransport{}
	if cfg.TelegramToken != "" {
		tg, err := notify.NewTelegramTransport(cfg.TelegramToken, cfg.TelegramChatBase)
		if err != nil {
			log.Fatalf("[discovery-engine] Telegram: %v", err)
		}
		transport = tg
		log.Println("[discovery-engine] Telegram transport enabled")
	} else {
		log.Println("[discovery-engine] No TELEGRAM_BOT_TOKEN set — digests go to the log")
	}
	dispatcher := notify.NewDispatcher(records, transport, rdb)

	// ── Coordinator ──────────────────────────────────────────────────────────
	coord := scheduler.New(records, adapter, engine, deduper, dispatcher, cfg.Engine)
	if err := coord.Start(ctx); err != nil {
		log.Fatalf("[discovery-engine] Coordinator: %v", err)
	}

	// ── HTTP server ──────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	server.NewHandler(coord, gateway, version).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("[discovery-engine] v%s listening on :%s", version, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[discovery-engine] HTTP server error: %v", err)
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[discovery-engine] Shutting down…")
	coord.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[discovery-engine] Shutdown error: %v", err)
	}
	log.Println("[discovery-engine] Stopped.")
}
