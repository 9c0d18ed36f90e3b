package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	attemptsCreated    atomic.Int64
	attemptsFailed     atomic.Int64
	attemptsUnresolved atomic.Int64
	attemptsRetryable  atomic.Int64
	webhooksAccepted   atomic.Int64
	webhooksRejected   atomic.Int64
)

func IncAttemptCreated()    { attemptsCreated.Add(1) }
func IncAttemptFailed()     { attemptsFailed.Add(1) }
func IncAttemptUnresolved() { attemptsUnresolved.Add(1) }
func IncAttemptRetryable()  { attemptsRetryable.Add(1) }
func IncWebhookAccepted()   { webhooksAccepted.Add(1) }
func IncWebhookRejected()   { webhooksRejected.Add(1) }

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	fmt.Fprintf(w, "# HELP reconciler_attempts_created_total Reconciliation attempts that ended with an order created or resolved.\n")
	fmt.Fprintf(w, "# TYPE reconciler_attempts_created_total counter\n")
	fmt.Fprintf(w, "reconciler_attempts_created_total %d\n", attemptsCreated.Load())

	fmt.Fprintf(w, "# HELP reconciler_attempts_failed_total Reconciliation attempts that ended permanently failed.\n")
	fmt.Fprintf(w, "# TYPE reconciler_attempts_failed_total counter\n")
	fmt.Fprintf(w, "reconciler_attempts_failed_total %d\n", attemptsFailed.Load())

	fmt.Fprintf(w, "# HELP reconciler_attempts_unresolved_total Reconciliation attempts left pending with no resolvable identifiers.\n")
	fmt.Fprintf(w, "# TYPE reconciler_attempts_unresolved_total counter\n")
	fmt.Fprintf(w, "reconciler_attempts_unresolved_total %d\n", attemptsUnresolved.Load())

	fmt.Fprintf(w, "# HELP reconciler_attempts_retryable_total Reconciliation attempts that hit a transient store error and requested redelivery.\n")
	fmt.Fprintf(w, "# TYPE reconciler_attempts_retryable_total counter\n")
	fmt.Fprintf(w, "reconciler_attempts_retryable_total %d\n", attemptsRetryable.Load())

	fmt.Fprintf(w, "# HELP reconciler_webhooks_accepted_total Webhook deliveries accepted by the ingestion endpoint.\n")
	fmt.Fprintf(w, "# TYPE reconciler_webhooks_accepted_total counter\n")
	fmt.Fprintf(w, "reconciler_webhooks_accepted_total %d\n", webhooksAccepted.Load())

	fmt.Fprintf(w, "# HELP reconciler_webhooks_rejected_total Webhook deliveries rejected as malformed or unroutable.\n")
	fmt.Fprintf(w, "# TYPE reconciler_webhooks_rejected_total counter\n")
	fmt.Fprintf(w, "reconciler_webhooks_rejected_total %d\n", webhooksRejected.Load())
}
