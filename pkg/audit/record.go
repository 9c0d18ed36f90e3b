package audit

import (
	"time"

	"gorm.io/datatypes"
)

const (
	StatusPending = "pending"
	StatusCreated = "created"
	StatusFailed  = "failed"
)

// Meta keys. The meta column is an open jsonb map so that new
// diagnostic keys never break deserialization of old records; these
// constants and the accessors below are the only writers.
const (
	metaKeyRaw            = "raw"
	metaKeyReason         = "reason"
	metaKeyError          = "error"
	metaKeySaveError      = "save_error"
	metaKeyTransientError = "transient_error"
	metaKeyCreatedBy      = "created_by"
)

// AttemptRecord is the audit trail entry for one reconciliation
// attempt. Records are created before any order-side effect is tried
// and never deleted by this system.
type AttemptRecord struct {
	ID               string            `json:"id" gorm:"type:uuid;primaryKey"`
	Provider         string            `json:"provider" gorm:"column:provider;index"`
	EventID          string            `json:"event_id,omitempty" gorm:"column:event_id;index"`
	PaymentIntentID  string            `json:"payment_intent_id,omitempty" gorm:"column:payment_intent_id"`
	ChargeID         string            `json:"charge_id,omitempty" gorm:"column:charge_id"`
	OrderIncrementID string            `json:"order_increment_id,omitempty" gorm:"column:order_increment_id;index"`
	QuoteID          int64             `json:"quote_id,omitempty" gorm:"column:quote_id"`
	Status           string            `json:"status" gorm:"column:status;index"`
	Meta             datatypes.JSONMap `json:"meta" gorm:"column:meta;type:jsonb"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

func (AttemptRecord) TableName() string {
	return "reconcile_attempts"
}

// SetRaw stores the original payload under the recoverable meta key.
// It must be called before the record is first persisted so a retry is
// possible even after failure.
func (r *AttemptRecord) SetRaw(raw map[string]interface{}) {
	r.Annotate(metaKeyRaw, map[string]interface{}(raw))
}

// Raw returns the archived original payload, or nil when none was
// stored.
func (r *AttemptRecord) Raw() map[string]interface{} {
	if r.Meta == nil {
		return nil
	}
	if raw, ok := r.Meta[metaKeyRaw].(map[string]interface{}); ok && len(raw) > 0 {
		return raw
	}
	return nil
}

func (r *AttemptRecord) Annotate(key string, value interface{}) {
	if r.Meta == nil {
		r.Meta = datatypes.JSONMap{}
	}
	r.Meta[key] = value
}

func (r *AttemptRecord) AnnotateReason(reason string) {
	r.Annotate(metaKeyReason, reason)
}

func (r *AttemptRecord) Reason() string {
	if r.Meta == nil {
		return ""
	}
	reason, _ := r.Meta[metaKeyReason].(string)
	return reason
}

func (r *AttemptRecord) MarkCreated(incrementID string) {
	r.OrderIncrementID = incrementID
	r.Status = StatusCreated
}

// MarkFailed flags the attempt permanently failed. The raw payload
// stays in meta so operators can still retry by hand.
func (r *AttemptRecord) MarkFailed(reason string) {
	r.Status = StatusFailed
	r.Annotate(metaKeyReason, reason)
}

// MarkRetryable puts the attempt back to pending with the transient
// failure recorded, signalling the delivery layer to redeliver.
func (r *AttemptRecord) MarkRetryable(cause error) {
	r.Status = StatusPending
	r.Annotate(metaKeyTransientError, cause.Error())
}

func (r *AttemptRecord) AnnotateError(err error) {
	r.Annotate(metaKeyError, err.Error())
}

func (r *AttemptRecord) AnnotateSaveError(err error) {
	r.Annotate(metaKeySaveError, err.Error())
}

func (r *AttemptRecord) AnnotateCreatedBy(actor string) {
	r.Annotate(metaKeyCreatedBy, actor)
}
