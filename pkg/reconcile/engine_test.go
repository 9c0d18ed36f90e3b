package reconcile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/orderbridge/reconciler/pkg/adapter"
	"github.com/orderbridge/reconciler/pkg/audit"
	"github.com/orderbridge/reconciler/pkg/common/logger"
	"github.com/orderbridge/reconciler/pkg/orders"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

type fakeAuditStore struct {
	records   map[string]*audit.AttemptRecord
	createErr error
	saveErr   error
}

func newFakeAuditStore() *fakeAuditStore {
	return &fakeAuditStore{records: make(map[string]*audit.AttemptRecord)}
}

func (s *fakeAuditStore) Create(ctx context.Context, rec *audit.AttemptRecord) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.records[rec.ID] = rec
	return nil
}

func (s *fakeAuditStore) Save(ctx context.Context, rec *audit.AttemptRecord) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.records[rec.ID] = rec
	return nil
}

func (s *fakeAuditStore) LoadByID(ctx context.Context, id string) (*audit.AttemptRecord, error) {
	rec, ok := s.records[id]
	if !ok {
		return nil, audit.ErrNotFound
	}
	return rec, nil
}

type fakeOrderStore struct {
	byIncrementID map[string]*orders.Order
	lookupErr     error
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{byIncrementID: make(map[string]*orders.Order)}
}

func (s *fakeOrderStore) FindByIncrementID(ctx context.Context, incrementID string) (*orders.Order, error) {
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	return s.byIncrementID[incrementID], nil
}

type fakeQuoteStore struct {
	byID         map[int64]*orders.Quote
	byReservedID map[string]*orders.Quote
	submitErr    error
	submitOrder  *orders.Order
	submitCalls  int
}

func newFakeQuoteStore() *fakeQuoteStore {
	return &fakeQuoteStore{
		byID:         make(map[int64]*orders.Quote),
		byReservedID: make(map[string]*orders.Quote),
	}
}

func (s *fakeQuoteStore) LoadByID(ctx context.Context, id int64) (*orders.Quote, error) {
	return s.byID[id], nil
}

func (s *fakeQuoteStore) LoadByReservedOrderID(ctx context.Context, incrementID string) (*orders.Quote, error) {
	return s.byReservedID[incrementID], nil
}

func (s *fakeQuoteStore) Submit(ctx context.Context, quote *orders.Quote) (*orders.Order, error) {
	s.submitCalls++
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	if s.submitOrder != nil {
		return s.submitOrder, nil
	}
	incrementID := quote.ReservedOrderID
	if incrementID == "" {
		incrementID = fmt.Sprintf("1%09d", quote.ID)
	}
	return &orders.Order{IncrementID: incrementID, QuoteID: quote.ID}, nil
}

func newTestEngine(auditStore *fakeAuditStore, orderStore *fakeOrderStore, quoteStore *fakeQuoteStore) *Engine {
	registry := adapter.NewRegistry()
	registry.Register(adapter.ProviderStripe, adapter.NewStripeNormalizer())
	return NewEngine(registry, auditStore, orderStore, quoteStore, nil)
}

func stripeEvent(eventID, incrementID, quoteID string) adapter.RawEvent {
	metadata := map[string]interface{}{}
	if incrementID != "" {
		metadata["Order #"] = incrementID
	}
	if quoteID != "" {
		metadata["Quote ID"] = quoteID
	}
	return adapter.RawEvent{
		"id": eventID,
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"object":   "checkout.session",
				"id":       "cs_" + eventID,
				"metadata": metadata,
			},
		},
	}
}

func TestReconcileCreatesOrderFromQuote(t *testing.T) {
	auditStore := newFakeAuditStore()
	orderStore := newFakeOrderStore()
	quoteStore := newFakeQuoteStore()
	quoteStore.byID[55] = &orders.Quote{ID: 55, ReservedOrderID: "100000123", IsActive: true}

	engine := newTestEngine(auditStore, orderStore, quoteStore)

	rec, err := engine.Reconcile(context.Background(), "stripe", stripeEvent("evt_1", "", "55"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != audit.StatusCreated {
		t.Fatalf("expected status created, got %q", rec.Status)
	}
	if rec.OrderIncrementID != "100000123" {
		t.Fatalf("expected increment id 100000123, got %q", rec.OrderIncrementID)
	}
	if rec.Meta["created_by"] != "reconcile_engine" {
		t.Fatalf("expected creation attribution, got %v", rec.Meta["created_by"])
	}
	if quoteStore.submitCalls != 1 {
		t.Fatalf("expected one submission, got %d", quoteStore.submitCalls)
	}
}

func TestReconcileShortCircuitsWhenOrderExists(t *testing.T) {
	auditStore := newFakeAuditStore()
	orderStore := newFakeOrderStore()
	quoteStore := newFakeQuoteStore()

	quote := &orders.Quote{ID: 55, ReservedOrderID: "100000123", IsActive: true}
	quoteStore.byID[55] = quote
	quoteStore.byReservedID["100000123"] = quote

	engine := newTestEngine(auditStore, orderStore, quoteStore)
	raw := stripeEvent("evt_dup", "100000123", "55")

	first, err := engine.Reconcile(context.Background(), "stripe", raw)
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if first.Status != audit.StatusCreated {
		t.Fatalf("expected first call to create, got %q", first.Status)
	}

	// The order now exists; a duplicate delivery must not submit again.
	orderStore.byIncrementID["100000123"] = &orders.Order{IncrementID: "100000123", QuoteID: 55}

	second, err := engine.Reconcile(context.Background(), "stripe", raw)
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if second.Status != audit.StatusCreated {
		t.Fatalf("expected second call to reach created, got %q", second.Status)
	}
	if quoteStore.submitCalls != 1 {
		t.Fatalf("expected exactly one submission across both calls, got %d", quoteStore.submitCalls)
	}
}

func TestReconcileTransientErrorSignalsRetry(t *testing.T) {
	auditStore := newFakeAuditStore()
	orderStore := newFakeOrderStore()
	quoteStore := newFakeQuoteStore()
	quoteStore.byID[7] = &orders.Quote{ID: 7, IsActive: true}
	quoteStore.submitErr = errors.New("Deadlock found when trying to get lock; try restarting transaction")

	engine := newTestEngine(auditStore, orderStore, quoteStore)

	rec, err := engine.Reconcile(context.Background(), "stripe", stripeEvent("evt_t", "", "7"))
	if rec != nil {
		t.Fatal("expected no record returned on retryable failure")
	}
	if !IsRetryable(err) {
		t.Fatalf("expected RetryableError, got %v", err)
	}

	if len(auditStore.records) != 1 {
		t.Fatalf("expected one persisted record, got %d", len(auditStore.records))
	}
	for _, stored := range auditStore.records {
		if stored.Status != audit.StatusPending {
			t.Fatalf("expected stored record pending, got %q", stored.Status)
		}
		if stored.Meta["transient_error"] == nil {
			t.Fatal("expected transient_error annotation")
		}
	}
}

func TestReconcileUnknownProviderWritesNoRecord(t *testing.T) {
	auditStore := newFakeAuditStore()
	engine := newTestEngine(auditStore, newFakeOrderStore(), newFakeQuoteStore())

	_, err := engine.Reconcile(context.Background(), "unknown-provider", adapter.RawEvent{"id": "evt_x"})
	if !errors.Is(err, ErrAdapterNotFound) {
		t.Fatalf("expected ErrAdapterNotFound, got %v", err)
	}
	if len(auditStore.records) != 0 {
		t.Fatalf("expected no attempt records, got %d", len(auditStore.records))
	}
}

func TestReconcileQuoteNotFound(t *testing.T) {
	auditStore := newFakeAuditStore()
	engine := newTestEngine(auditStore, newFakeOrderStore(), newFakeQuoteStore())

	rec, err := engine.Reconcile(context.Background(), "stripe", stripeEvent("evt_q", "", "999"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != audit.StatusFailed {
		t.Fatalf("expected status failed, got %q", rec.Status)
	}
	if rec.Reason() != ReasonQuoteNotFound {
		t.Fatalf("expected reason quote_not_found, got %q", rec.Reason())
	}
}

func TestReconcileSubmitReturnsNoOrder(t *testing.T) {
	auditStore := newFakeAuditStore()
	quoteStore := newFakeQuoteStore()
	quoteStore.byID[3] = &orders.Quote{ID: 3, IsActive: true}
	quoteStore.submitOrder = &orders.Order{} // no increment id assigned

	engine := newTestEngine(auditStore, newFakeOrderStore(), quoteStore)

	rec, err := engine.Reconcile(context.Background(), "stripe", stripeEvent("evt_n", "", "3"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != audit.StatusFailed {
		t.Fatalf("expected status failed, got %q", rec.Status)
	}
	if rec.Reason() != ReasonSubmitNoOrder {
		t.Fatalf("expected reason submit_no_order_returned, got %q", rec.Reason())
	}
}

func TestReconcilePermanentErrorIsAbsorbed(t *testing.T) {
	auditStore := newFakeAuditStore()
	quoteStore := newFakeQuoteStore()
	quoteStore.byID[4] = &orders.Quote{ID: 4, IsActive: true}
	quoteStore.submitErr = errors.New("order total does not match payment amount")

	engine := newTestEngine(auditStore, newFakeOrderStore(), quoteStore)

	rec, err := engine.Reconcile(context.Background(), "stripe", stripeEvent("evt_p", "", "4"))
	if err != nil {
		t.Fatalf("permanent failures must be absorbed, got %v", err)
	}
	if rec.Status != audit.StatusFailed {
		t.Fatalf("expected status failed, got %q", rec.Status)
	}
	if rec.Meta["error"] == nil {
		t.Fatal("expected error annotation")
	}
}

func TestReconcileUnresolvedStaysPending(t *testing.T) {
	auditStore := newFakeAuditStore()
	engine := newTestEngine(auditStore, newFakeOrderStore(), newFakeQuoteStore())

	rec, err := engine.Reconcile(context.Background(), "stripe", stripeEvent("evt_u", "", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != audit.StatusPending {
		t.Fatalf("expected status pending, got %q", rec.Status)
	}
	if rec.Reason() != ReasonUnresolved {
		t.Fatalf("expected reason unresolved, got %q", rec.Reason())
	}
}

func TestReconcileResolvesQuoteViaReservedOrderID(t *testing.T) {
	auditStore := newFakeAuditStore()
	quoteStore := newFakeQuoteStore()
	quote := &orders.Quote{ID: 88, ReservedOrderID: "100000777", IsActive: true}
	quoteStore.byID[88] = quote
	quoteStore.byReservedID["100000777"] = quote

	engine := newTestEngine(auditStore, newFakeOrderStore(), quoteStore)

	rec, err := engine.Reconcile(context.Background(), "stripe", stripeEvent("evt_r", "100000777", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.QuoteID != 88 {
		t.Fatalf("expected adopted quote id 88, got %d", rec.QuoteID)
	}
	if rec.Meta["quote_source"] != "reserved_order_id" {
		t.Fatalf("expected quote_source annotation, got %v", rec.Meta["quote_source"])
	}
	if rec.Status != audit.StatusCreated {
		t.Fatalf("expected status created, got %q", rec.Status)
	}
}

func TestReconcileAuditCreateFailureIsNonFatal(t *testing.T) {
	auditStore := newFakeAuditStore()
	auditStore.createErr = errors.New("connection refused")
	quoteStore := newFakeQuoteStore()
	quoteStore.byID[5] = &orders.Quote{ID: 5, ReservedOrderID: "100000005", IsActive: true}

	engine := newTestEngine(auditStore, newFakeOrderStore(), quoteStore)

	rec, err := engine.Reconcile(context.Background(), "stripe", stripeEvent("evt_s", "", "5"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != audit.StatusCreated {
		t.Fatalf("expected processing to continue to created, got %q", rec.Status)
	}
	if rec.Meta["save_error"] == nil {
		t.Fatal("expected save_error annotation")
	}
	if rec.Raw() == nil {
		t.Fatal("expected raw payload retained for retry")
	}
}

type fakeTracker struct {
	seen map[string]bool
}

func (t *fakeTracker) MarkSeen(ctx context.Context, key string) (bool, error) {
	if t.seen == nil {
		t.seen = make(map[string]bool)
	}
	prev := t.seen[key]
	t.seen[key] = true
	return prev, nil
}

func TestReconcileAnnotatesDuplicateDelivery(t *testing.T) {
	auditStore := newFakeAuditStore()
	quoteStore := newFakeQuoteStore()
	quoteStore.byID[6] = &orders.Quote{ID: 6, ReservedOrderID: "100000006", IsActive: true}

	registry := adapter.NewRegistry()
	registry.Register(adapter.ProviderStripe, adapter.NewStripeNormalizer())
	engine := NewEngine(registry, auditStore, newFakeOrderStore(), quoteStore, &fakeTracker{})

	raw := stripeEvent("evt_d", "", "6")

	first, err := engine.Reconcile(context.Background(), "stripe", raw)
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if first.Meta["duplicate_delivery"] != nil {
		t.Fatal("first delivery must not be flagged")
	}

	second, err := engine.Reconcile(context.Background(), "stripe", raw)
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if second.Meta["duplicate_delivery"] != true {
		t.Fatal("expected duplicate_delivery annotation on redelivery")
	}
}
