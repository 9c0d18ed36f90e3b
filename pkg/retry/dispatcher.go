package retry

import (
	"context"
	"errors"

	"github.com/orderbridge/reconciler/pkg/adapter"
	"github.com/orderbridge/reconciler/pkg/audit"
	"github.com/orderbridge/reconciler/pkg/common/logger"
)

// ErrNoPayload means the stored record carries nothing replayable.
var ErrNoPayload = errors.New("no raw payload available to retry")

type RecordStore interface {
	LoadByID(ctx context.Context, id string) (*audit.AttemptRecord, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, provider string, raw adapter.RawEvent) (*audit.AttemptRecord, error)
}

type BatchResult struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Dispatcher replays archived webhook payloads through the
// reconciliation engine, singly or in bulk.
type Dispatcher struct {
	records         RecordStore
	engine          Reconciler
	defaultProvider string
}

func NewDispatcher(records RecordStore, engine Reconciler, defaultProvider string) *Dispatcher {
	return &Dispatcher{
		records:         records,
		engine:          engine,
		defaultProvider: defaultProvider,
	}
}

// RetryOne re-runs reconciliation for a stored record. The payload is
// recovered from meta.raw, falling back to the whole meta blob for
// records written before raw got its own key. The engine's outcome —
// including a RetryableError — surfaces to the caller.
func (d *Dispatcher) RetryOne(ctx context.Context, id string) (*audit.AttemptRecord, error) {
	rec, err := d.records.LoadByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, audit.ErrNotFound
	}

	raw := rec.Raw()
	if raw == nil && len(rec.Meta) > 0 {
		raw = map[string]interface{}(rec.Meta)
	}
	if len(raw) == 0 {
		return nil, ErrNoPayload
	}

	provider := rec.Provider
	if provider == "" {
		provider = d.defaultProvider
	}

	return d.engine.Reconcile(ctx, provider, adapter.RawEvent(raw))
}

// RetryMany retries each id independently. Per-item failures —
// transient ones included — are counted, never propagated, so one bad
// record cannot abort the batch.
func (d *Dispatcher) RetryMany(ctx context.Context, ids []string) BatchResult {
	var res BatchResult
	for _, id := range ids {
		if _, err := d.RetryOne(ctx, id); err != nil {
			logger.Log.WithError(err).WithField("record_id", id).
				Error("retry failed for record")
			res.Failed++
			continue
		}
		res.Succeeded++
	}
	return res
}
