package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nathanyu/matching-engine/internal/config"
	"github.com/nathanyu/matching-engine/internal/domain"
	"github.com/nathanyu/matching-engine/internal/engine"
	"github.com/nathanyu/matching-engine/internal/feed"
	"github.com/nathanyu/matching-engine/internal/gateway"
	"github.com/nathanyu/matching-engine/internal/handler"
	"github.com/nathanyu/matching-engine/internal/journal"
	"github.com/nathanyu/matching-engine/internal/marketdata"
	"github.com/nathanyu/matching-engine/internal/middleware"
	"github.com/nathanyu/matching-engine/internal/outbox"
	"github.com/nathanyu/matching-engine/internal/sequencer"
	"github.com/nathanyu/matching-engine/internal/stream"
)

// feedMaxAttempts is how many publish failures park an outbox entry as
// failed instead of retrying it forever.
const feedMaxAttempts = 10

func main() {
	cfg := config.Load()

	log.Printf("Starting matching engine service for %s...", cfg.Symbol)

	// --- Core components ---

	eng := engine.New(cfg.Symbol)
	svc := sequencer.NewService(eng, cfg.CommandBuffer)

	jnl, err := journal.Open(journal.Options{
		Dir:          cfg.JournalDir,
		SegmentSize:  cfg.JournalSegmentBytes,
		SyncOnAppend: cfg.JournalSync,
	})
	if err != nil {
		log.Fatalf("open journal: %v", err)
	}

	gw := gateway.New(svc, jnl)

	// Rebuild engine state from the journal before the sequencer loop
	// starts and before any consumer can observe it.
	if _, err := gw.Replay(eng); err != nil {
		log.Fatalf("replay journal: %v", err)
	}

	// --- Event consumers ---

	// Market data tape (candles, trade log)
	tape := marketdata.NewPublisher(cfg.EventBuffer)
	svc.RegisterTradeConsumer(tape.TradesIn)

	// WebSocket fan-out
	streamTrades := make(chan domain.TradeEvent, cfg.EventBuffer)
	streamBooks := make(chan domain.BookEvent, cfg.EventBuffer)
	svc.RegisterTradeConsumer(streamTrades)
	svc.RegisterBookConsumer(streamBooks)
	streams := stream.NewServer()

	// Kafka trade feed (outbox-backed, optional)
	var (
		store       *outbox.Store
		publisher   *feed.Publisher
		broadcaster *feed.Broadcaster
		feedTrades  chan domain.TradeEvent
	)
	if cfg.FeedEnabled() {
		store, err = outbox.Open(cfg.OutboxDir, feedMaxAttempts)
		if err != nil {
			log.Fatalf("open outbox: %v", err)
		}
		publisher = feed.NewPublisher(store, cfg.KafkaBrokers, cfg.KafkaTopic)
		broadcaster, err = feed.NewBroadcaster(store, cfg.KafkaBrokers, cfg.KafkaTopic, 0)
		if err != nil {
			log.Fatalf("connect broadcaster: %v", err)
		}
		feedTrades = make(chan domain.TradeEvent, cfg.EventBuffer)
		svc.RegisterTradeConsumer(feedTrades)
	} else {
		log.Println("[main] trade feed disabled: no brokers configured")
	}

	// --- Start the pipeline ---

	svc.Start()
	tape.Start()

	ctx, cancel := context.WithCancel(context.Background())
	streams.Run(ctx, streamTrades, streamBooks)
	if cfg.FeedEnabled() {
		go publisher.Run(ctx, feedTrades)
		broadcaster.Start(ctx)
	}

	// --- HTTP server ---

	r := gin.Default()
	r.Use(middleware.PrometheusMiddleware())

	handler.New(gw, svc, tape).RegisterRoutes(r)
	streams.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	// --- Metrics server ---

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metricsMux,
	}

	go func() {
		log.Printf("Metrics server listening on %s", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("metrics server error: %v", err)
		}
	}()

	go func() {
		log.Printf("HTTP server listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	// --- Graceful shutdown ---

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()

	// Intake first, so nothing new enters the pipeline.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Metrics server shutdown error: %v", err)
	}

	cancel() // stream pumps, feed publisher, broadcaster
	tape.Stop()
	svc.Stop()

	if cfg.FeedEnabled() {
		if err := publisher.Close(); err != nil {
			log.Printf("close feed writer: %v", err)
		}
		if err := broadcaster.Close(); err != nil {
			log.Printf("close broadcaster: %v", err)
		}
		if err := store.Close(); err != nil {
			log.Printf("close outbox: %v", err)
		}
	}
	if err := jnl.Close(); err != nil {
		log.Printf("close journal: %v", err)
	}

	log.Println("Matching engine service stopped.")
}
