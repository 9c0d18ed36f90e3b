package main

import (
	"context"
	"errors"
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
	"github.com/orderbridge/reconciler/pkg/common/models"
	"github.com/orderbridge/reconciler/pkg/observability/metrics"
	"github.com/orderbridge/reconciler/pkg/orders"
	"github.com/orderbridge/reconciler/pkg/reconcile"
	"github.com/orderbridge/reconciler/pkg/retry"
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

	registry := adapter.NewRegistry()
	registry.Register(adapter.ProviderStripe, adapter.NewStripeNormalizer())

	engine := reconcile.NewEngine(registry, auditRepo, orderRepo, quoteRepo, nil)
	dispatcher := retry.NewDispatcher(auditRepo, engine, manifest.DefaultProvider)
	handler := webhook.NewOperatorHandler(dispatcher, auditRepo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Async retry surface: record ids published to the retry-request
	// topic are replayed just like operator-triggered retries.
	if cfg.RetryRequestTopic != "" {
		consumer := kafka.NewConsumer(cfg.RetryRequestTopic, cfg.KafkaGroupID)
		defer consumer.Close()

		go func() {
			err := consumer.Consume(ctx, func(ctx context.Context, event models.Event) error {
				id, _ := event.Data["record_id"].(string)
				if id == "" {
					logger.Log.WithField("event_id", event.ID).Warn("retry request without record_id")
					return nil
				}
				if _, err := dispatcher.RetryOne(ctx, id); err != nil {
					if reconcile.IsRetryable(err) {
						// Leave the message uncommitted so it is redelivered.
						return err
					}
					logger.Log.WithError(err).WithField("record_id", id).Error("async retry failed")
				}
				return nil
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Log.WithError(err).Error("retry request consumer stopped")
			}
		}()
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w)
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	handler.Register(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, "8082"),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": "8082",
		}).Info("Operator Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Operator Service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	logger.Log.Info("Operator Service stopped")
}
