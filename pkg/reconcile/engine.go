package reconcile

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/orderbridge/reconciler/pkg/adapter"
	"github.com/orderbridge/reconciler/pkg/audit"
	"github.com/orderbridge/reconciler/pkg/common/logger"
	"github.com/orderbridge/reconciler/pkg/observability/metrics"
	"github.com/orderbridge/reconciler/pkg/orders"
)

const (
	ReasonQuoteNotFound   = "quote_not_found"
	ReasonSubmitNoOrder   = "submit_no_order_returned"
	ReasonSubmitFailed    = "submit_failed"
	ReasonUnresolved      = "unresolved"
	createdByEngine       = "reconcile_engine"
	quoteSourceReservedID = "reserved_order_id"
)

type OrderStore interface {
	FindByIncrementID(ctx context.Context, incrementID string) (*orders.Order, error)
}

type QuoteStore interface {
	LoadByID(ctx context.Context, id int64) (*orders.Quote, error)
	LoadByReservedOrderID(ctx context.Context, incrementID string) (*orders.Quote, error)
	Submit(ctx context.Context, quote *orders.Quote) (*orders.Order, error)
}

type AuditStore interface {
	Create(ctx context.Context, rec *audit.AttemptRecord) error
	Save(ctx context.Context, rec *audit.AttemptRecord) error
	LoadByID(ctx context.Context, id string) (*audit.AttemptRecord, error)
}

// DuplicateTracker remembers event ids it has seen before. It is
// strictly observational: a positive hit only annotates the record,
// the order-store idempotency checks still run.
type DuplicateTracker interface {
	MarkSeen(ctx context.Context, key string) (bool, error)
}

// Engine runs one reconciliation attempt per call. It holds no state
// between calls; concurrent invocations are safe and rely on the
// order-store lookups for idempotency.
type Engine struct {
	registry   *adapter.Registry
	auditStore AuditStore
	orderStore OrderStore
	quoteStore QuoteStore
	dedup      DuplicateTracker
}

// NewEngine wires the engine. dedup may be nil.
func NewEngine(registry *adapter.Registry, auditStore AuditStore, orderStore OrderStore, quoteStore QuoteStore, dedup DuplicateTracker) *Engine {
	return &Engine{
		registry:   registry,
		auditStore: auditStore,
		orderStore: orderStore,
		quoteStore: quoteStore,
		dedup:      dedup,
	}
}

// Reconcile normalizes a raw provider event, records the attempt, and
// tries to resolve or create the matching order. Permanent failures
// are absorbed into the returned record; only a *RetryableError (or a
// pre-normalization failure) comes back as an error.
func (e *Engine) Reconcile(ctx context.Context, provider string, raw adapter.RawEvent) (*audit.AttemptRecord, error) {
	normalizer := e.registry.Resolve(provider)
	if normalizer == nil {
		return nil, fmt.Errorf("%w: %q", ErrAdapterNotFound, provider)
	}

	ev, err := normalizer.ParseEvent(raw)
	if err != nil {
		return nil, err
	}

	rec := &audit.AttemptRecord{
		ID:               uuid.New().String(),
		Provider:         ev.Provider,
		EventID:          ev.EventID,
		PaymentIntentID:  ev.PaymentIntentID,
		ChargeID:         ev.ChargeID,
		OrderIncrementID: ev.OrderIncrementID,
		QuoteID:          ev.QuoteID,
		Status:           audit.StatusPending,
	}
	rec.SetRaw(ev.Raw)

	e.annotateDuplicate(ctx, rec, ev)

	// Audit-first: the record is written before any order-side effect.
	// A failed write is logged and annotated but never stops processing.
	if err := e.auditStore.Create(ctx, rec); err != nil {
		logger.Log.WithError(err).WithField("event_id", ev.EventID).
			Error("failed to persist attempt record")
		rec.AnnotateSaveError(err)
	}

	if ev.OrderIncrementID != "" {
		order, err := e.orderStore.FindByIncrementID(ctx, ev.OrderIncrementID)
		if err != nil {
			logger.Log.WithError(err).WithField("increment_id", ev.OrderIncrementID).
				Error("failed to look up order by increment id")
		}
		if order != nil {
			rec.MarkCreated(ev.OrderIncrementID)
			e.persist(ctx, rec)
			metrics.IncAttemptCreated()
			logger.Log.WithField("increment_id", ev.OrderIncrementID).
				Info("order already exists, attempt short-circuited")
			return rec, nil
		}
	}

	quoteID := ev.QuoteID
	var quote *orders.Quote
	if quoteID == 0 && ev.OrderIncrementID != "" {
		q, err := e.quoteStore.LoadByReservedOrderID(ctx, ev.OrderIncrementID)
		if err != nil {
			// Non-critical, falls through to the unresolved path.
			logger.Log.WithError(err).WithField("increment_id", ev.OrderIncrementID).
				Error("failed to find quote by reserved order id")
		}
		if q != nil {
			quote = q
			quoteID = q.ID
			rec.QuoteID = quoteID
			rec.Annotate("quote_source", quoteSourceReservedID)
			logger.Log.WithFields(map[string]interface{}{
				"quote_id":     quoteID,
				"increment_id": ev.OrderIncrementID,
			}).Info("resolved quote via reserved order id")
		}
	}

	if quoteID == 0 {
		// Nothing to act on. The attempt stays pending until an operator
		// supplies more information and retries; the reason annotation
		// keeps it distinguishable from an in-flight attempt.
		rec.AnnotateReason(ReasonUnresolved)
		e.persist(ctx, rec)
		metrics.IncAttemptUnresolved()
		logger.Log.WithField("record_id", rec.ID).
			Warn("no quote or order identifiers resolvable, attempt left pending")
		return rec, nil
	}

	if quote == nil {
		q, err := e.quoteStore.LoadByID(ctx, quoteID)
		if err != nil {
			return e.submitFailed(ctx, rec, err)
		}
		quote = q
	}

	if quote == nil {
		rec.MarkFailed(ReasonQuoteNotFound)
		rec.Annotate("quote_id", quoteID)
		e.persist(ctx, rec)
		metrics.IncAttemptFailed()
		return rec, nil
	}

	order, err := e.quoteStore.Submit(ctx, quote)
	if err != nil {
		return e.submitFailed(ctx, rec, err)
	}

	if order == nil || order.IncrementID == "" {
		rec.MarkFailed(ReasonSubmitNoOrder)
		e.persist(ctx, rec)
		metrics.IncAttemptFailed()
		return rec, nil
	}

	rec.MarkCreated(order.IncrementID)
	rec.AnnotateCreatedBy(createdByEngine)
	e.persist(ctx, rec)
	metrics.IncAttemptCreated()
	logger.Log.WithFields(map[string]interface{}{
		"record_id":    rec.ID,
		"increment_id": order.IncrementID,
	}).Info("order created from quote")
	return rec, nil
}

func (e *Engine) submitFailed(ctx context.Context, rec *audit.AttemptRecord, cause error) (*audit.AttemptRecord, error) {
	if IsTransientStoreError(cause) {
		rec.MarkRetryable(cause)
		e.persist(ctx, rec)
		metrics.IncAttemptRetryable()
		logger.Log.WithError(cause).WithField("record_id", rec.ID).
			Warn("transient store error during quote submission")
		return nil, &RetryableError{Err: cause}
	}

	rec.MarkFailed(ReasonSubmitFailed)
	rec.AnnotateError(cause)
	e.persist(ctx, rec)
	metrics.IncAttemptFailed()
	logger.Log.WithError(cause).WithField("record_id", rec.ID).
		Error("quote submission failed")
	return rec, nil
}

func (e *Engine) annotateDuplicate(ctx context.Context, rec *audit.AttemptRecord, ev *adapter.NormalizedEvent) {
	if e.dedup == nil || ev.EventID == "" {
		return
	}
	seen, err := e.dedup.MarkSeen(ctx, ev.Provider+":"+ev.EventID)
	if err != nil {
		logger.Log.WithError(err).Debug("duplicate tracker unavailable")
		return
	}
	if seen {
		rec.Annotate("duplicate_delivery", true)
		logger.Log.WithField("event_id", ev.EventID).Info("duplicate delivery detected")
	}
}

func (e *Engine) persist(ctx context.Context, rec *audit.AttemptRecord) {
	if err := e.auditStore.Save(ctx, rec); err != nil {
		logger.Log.WithError(err).WithField("record_id", rec.ID).
			Error("failed to update attempt record")
	}
}
