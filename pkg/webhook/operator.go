package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/orderbridge/reconciler/pkg/audit"
	"github.com/orderbridge/reconciler/pkg/common/logger"
	"github.com/orderbridge/reconciler/pkg/reconcile"
	"github.com/orderbridge/reconciler/pkg/retry"
)

type Dispatcher interface {
	RetryOne(ctx context.Context, id string) (*audit.AttemptRecord, error)
	RetryMany(ctx context.Context, ids []string) retry.BatchResult
}

type RecordStore interface {
	LoadByID(ctx context.Context, id string) (*audit.AttemptRecord, error)
}

// OperatorHandler is the operator retry surface: inspect a stored
// attempt, replay it, or replay a batch.
type OperatorHandler struct {
	dispatcher Dispatcher
	records    RecordStore
}

func NewOperatorHandler(dispatcher Dispatcher, records RecordStore) *OperatorHandler {
	return &OperatorHandler{dispatcher: dispatcher, records: records}
}

func (h *OperatorHandler) Register(router *mux.Router) {
	router.HandleFunc("/records/retry", h.handleMassRetry).Methods(http.MethodPost)
	router.HandleFunc("/records/{id}", h.handleGet).Methods(http.MethodGet)
	router.HandleFunc("/records/{id}/retry", h.handleRetry).Methods(http.MethodPost)
}

func (h *OperatorHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	rec, err := h.records.LoadByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, audit.ErrNotFound) {
			http.Error(w, "record not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to load attempt record")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}

func (h *OperatorHandler) handleRetry(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	rec, err := h.dispatcher.RetryOne(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, audit.ErrNotFound):
			http.Error(w, "record not found", http.StatusNotFound)
		case errors.Is(err, retry.ErrNoPayload):
			http.Error(w, "no raw payload available to retry", http.StatusUnprocessableEntity)
		case reconcile.IsRetryable(err):
			http.Error(w, "transient failure, retry later", http.StatusConflict)
		default:
			logger.Log.WithError(err).WithField("record_id", id).Error("retry failed")
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"record_id":          rec.ID,
		"status":             rec.Status,
		"order_increment_id": rec.OrderIncrementID,
	})
}

func (h *OperatorHandler) handleMassRetry(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.IDs) == 0 {
		http.Error(w, "no records selected", http.StatusBadRequest)
		return
	}

	result := h.dispatcher.RetryMany(r.Context(), req.IDs)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
