package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/orderbridge/reconciler/pkg/adapter"
	"github.com/orderbridge/reconciler/pkg/audit"
	"github.com/orderbridge/reconciler/pkg/common/kafka"
	"github.com/orderbridge/reconciler/pkg/common/logger"
	"github.com/orderbridge/reconciler/pkg/observability/metrics"
	"github.com/orderbridge/reconciler/pkg/reconcile"
)

type Engine interface {
	Reconcile(ctx context.Context, provider string, raw adapter.RawEvent) (*audit.AttemptRecord, error)
}

// HTTPHandler exposes one webhook endpoint per configured provider.
// The provider key is bound to the route, never taken from the
// payload.
type HTTPHandler struct {
	engine   Engine
	outcomes *kafka.Producer
	dlq      *kafka.Producer
	maxBody  int64
}

// NewHTTPHandler wires the ingestion surface. outcomes and dlq may be
// nil; publishing is best effort either way.
func NewHTTPHandler(engine Engine, outcomes, dlq *kafka.Producer, maxBody int64) *HTTPHandler {
	return &HTTPHandler{engine: engine, outcomes: outcomes, dlq: dlq, maxBody: maxBody}
}

func (h *HTTPHandler) Register(router *mux.Router, providers []string) {
	for _, provider := range providers {
		provider := provider
		router.HandleFunc("/webhooks/"+provider, func(w http.ResponseWriter, r *http.Request) {
			h.handleEvent(w, r, provider)
		}).Methods(http.MethodPost)
	}
}

func (h *HTTPHandler) handleEvent(w http.ResponseWriter, r *http.Request, provider string) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}

	var raw map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		logger.Log.WithError(err).WithField("provider", provider).Warn("invalid webhook payload")
		metrics.IncWebhookRejected()
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	rec, err := h.engine.Reconcile(r.Context(), provider, raw)
	if err != nil {
		if reconcile.IsRetryable(err) {
			// 409 tells the provider to redeliver later.
			http.Error(w, "transient failure, retry later", http.StatusConflict)
			return
		}
		if adapter.IsParseError(err) {
			metrics.IncWebhookRejected()
			h.publishDLQ(r.Context(), provider, raw, err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if errors.Is(err, reconcile.ErrAdapterNotFound) {
			metrics.IncWebhookRejected()
			http.Error(w, "unknown provider", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).WithField("provider", provider).Error("failed to reconcile webhook event")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	metrics.IncWebhookAccepted()
	h.publishOutcome(r.Context(), rec)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"record_id":          rec.ID,
		"status":             rec.Status,
		"order_increment_id": rec.OrderIncrementID,
	})
}

func (h *HTTPHandler) publishOutcome(ctx context.Context, rec *audit.AttemptRecord) {
	if h.outcomes == nil {
		return
	}
	data := map[string]interface{}{
		"record_id":          rec.ID,
		"provider":           rec.Provider,
		"status":             rec.Status,
		"order_increment_id": rec.OrderIncrementID,
	}
	if err := h.outcomes.PublishEvent(ctx, "reconciliation.outcome", rec.Provider, data); err != nil {
		logger.Log.WithError(err).WithField("record_id", rec.ID).
			Error("failed to publish reconciliation outcome")
	}
}

func (h *HTTPHandler) publishDLQ(ctx context.Context, provider string, raw map[string]interface{}, cause error) {
	if h.dlq == nil {
		return
	}
	data := map[string]interface{}{
		"provider": provider,
		"error":    cause.Error(),
		"payload":  raw,
	}
	if err := h.dlq.PublishEvent(ctx, "webhook.unparseable", provider, data); err != nil {
		logger.Log.WithError(err).Error("failed to push payload to DLQ")
	}
}
