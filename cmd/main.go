package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/trip-engine/internal/config"
	"github.com/ukydev/trip-engine/internal/db"
	"github.com/ukydev/trip-engine/internal/enrichment"
	"github.com/ukydev/trip-engine/internal/handlers"
	"github.com/ukydev/trip-engine/internal/ingest"
	"github.com/ukydev/trip-engine/internal/middleware"
	"github.com/ukydev/trip-engine/internal/reconciler"
	"github.com/ukydev/trip-engine/internal/rollup"
	"github.com/ukydev/trip-engine/internal/trip"
)

func main() {
	_ = godotenv.Load()
	if os.Getenv("LOG_FORMAT") == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}
	cfg := config.Load()

	client, err := db.ConnectMongo(cfg.MongoURI)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to MongoDB")
	}
	defer client.Disconnect(context.Background())
	log.Info("connected to MongoDB")

	database := client.Database(cfg.MongoDB)
	sampleStore := &db.MongoSampleStore{Collection: database.Collection("samples")}
	tripStore := &db.MongoTripStore{Collection: database.Collection("trips")}
	eventStore := &db.MongoEventStore{
		Transitions: database.Collection("mode_transitions"),
		Refuels:     database.Collection("refuels"),
	}
	rollupStore := &db.MongoRollupStore{Collection: database.Collection("rollups")}

	ensureCtx, cancelEnsure := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelEnsure()
	for name, ensure := range map[string]func(context.Context) error{
		"samples": sampleStore.EnsureIndexes,
		"trips":   tripStore.EnsureIndexes,
		"rollups": rollupStore.EnsureIndexes,
	} {
		if err := ensure(ensureCtx); err != nil {
			log.WithError(err).WithField("collection", name).Fatal("failed to ensure indexes")
		}
	}

	var lastSeen db.LastSeenStore
	redisStore, err := db.NewRedisLastSeen(context.Background(), cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.WithError(err).Warn("redis unavailable, reconciler will use the sample store only")
	} else {
		defer redisStore.Close()
		lastSeen = redisStore
	}

	var enricher enrichment.Provider = enrichment.Noop{}
	if cfg.EnrichmentURL != "" {
		enricher = enrichment.NewHTTPProvider(cfg.EnrichmentURL, cfg.EnrichmentTimeout, cfg.EnrichmentAttempts)
	}

	aggregator := rollup.NewEngine(tripStore, rollupStore)
	engine := trip.NewEngine(cfg, sampleStore, tripStore, eventStore, lastSeen, enricher, aggregator)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	subscriber, err := ingest.NewSubscriber(cfg.MQTTBroker, cfg.MQTTClientID, cfg.SampleTopic, cfg.EndTopic, cfg.StaleTimeout, engine)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to MQTT broker")
	}
	defer subscriber.Stop()
	if err := subscriber.Start(ctx); err != nil {
		log.WithError(err).Fatal("failed to start telemetry subscriber")
	}

	rec := reconciler.New(engine, tripStore, sampleStore, lastSeen,
		cfg.StaleTimeout, cfg.ReconcileInterval, cfg.ReconcileRunBudget)
	go rec.Start(ctx)

	mux := http.NewServeMux()
	handlers.NewQueryHandler(tripStore, eventStore, rollupStore).Register(mux)
	server := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: middleware.Logging(mux)}
	go func() {
		log.WithField("port", cfg.HTTPPort).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP shutdown error")
	}
}
