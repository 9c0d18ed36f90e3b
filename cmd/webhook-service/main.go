package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/orderbridge/reconciler/pkg/adapter"
	"github.com/orderbridge/reconciler/pkg/audit"
	"github.com/orderbridge/reconciler/pkg/common/config"
	"github.com/orderbridge/reconciler/pkg/common/database"
	"github.com/orderbridge/reconciler/pkg/common/kafka"
	"github.com/orderbridge/reconciler/pkg/common/logger"
	"github.com/orderbridge/reconciler/pkg/dedup"
	"github.com/orderbridge/reconciler/pkg/orders"
	"github.com/orderbridge/reconciler/pkg/reconcile"
	"github.com/orderbridge/reconciler/pkg/webhook"
)

func main() {
	logger.Init()
	cfg := config.Load()

	manifest, err := config.LoadProviderManifest(cfg.ProviderManifestPath)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to load provider manifest")
	}

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}

	auditRepo := audit.NewRepository(db)
	if err := auditRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate audit tables")
	}

	orderRepo := orders.NewOrderRepository(db)
	quoteRepo := orders.NewQuoteRepository(db)
	if err := orderRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate order tables")
	}
	if err := quoteRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate quote tables")
	}

	registry := adapter.NewRegistry()
	registry.Register(adapter.ProviderStripe, adapter.NewStripeNormalizer())

	var tracker reconcile.DuplicateTracker
	if cfg.DedupEnabled {
		tracker = dedup.NewRedisTracker(database.GetRedis(), cfg.DedupTTL)
	}

	engine := reconcile.NewEngine(registry, auditRepo, orderRepo, quoteRepo, tracker)

	outcomes := kafka.NewProducer(cfg.OutcomeTopic)
	defer outcomes.Close()

	var dlq *kafka.Producer
	if cfg.WebhookDLQTopic != "" {
		dlq = kafka.NewProducer(cfg.WebhookDLQTopic)
		defer dlq.Close()
	}

	handler := webhook.NewHTTPHandler(engine, outcomes, dlq, cfg.MaxRequestBody)

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	handler.Register(api, manifest.Providers)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, "8081"),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host":      cfg.ServerHost,
			"port":      "8081",
			"providers": manifest.Providers,
		}).Info("Webhook Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Webhook Service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	logger.Log.Info("Webhook Service stopped")
}
