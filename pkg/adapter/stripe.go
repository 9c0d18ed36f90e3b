package adapter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const ProviderStripe = "stripe"

// Metadata keys the checkout integration writes onto Stripe objects.
const (
	metadataOrderKey = "Order #"
	metadataQuoteKey = "Quote ID"
)

// StripeNormalizer maps Stripe webhook payloads (charge, payment_intent
// and checkout.session events) onto the canonical event shape.
type StripeNormalizer struct{}

func NewStripeNormalizer() *StripeNormalizer {
	return &StripeNormalizer{}
}

func (n *StripeNormalizer) ParseEvent(raw RawEvent) (*NormalizedEvent, error) {
	if raw == nil {
		return nil, &ParseError{Provider: ProviderStripe, Reason: "payload is not a mapping"}
	}

	ev := &NormalizedEvent{
		Provider: ProviderStripe,
		EventID:  getString(raw["id"]),
		Raw:      raw,
	}

	object := extractMap(extractMap(raw["data"])["object"])
	objectType := getString(object["object"])

	if pi := getString(object["payment_intent"]); pi != "" {
		ev.PaymentIntentID = pi
	}

	switch objectType {
	case "charge":
		ev.ChargeID = getString(object["id"])
	case "payment_intent":
		ev.PaymentIntentID = getString(object["id"])
		if first := firstCharge(object); first != nil {
			ev.ChargeID = getString(first["id"])
		}
	}

	// Metadata identifiers are written by the store at checkout time, so
	// they win over anything inferred from the payment objects above.
	metadata := extractMap(object["metadata"])
	if v := getString(metadata[metadataOrderKey]); v != "" {
		ev.OrderIncrementID = v
	}
	if v, ok := metadata[metadataQuoteKey]; ok {
		if quoteID, err := coerceInt64(v); err == nil && quoteID != 0 {
			ev.QuoteID = quoteID
		}
	}

	return ev, nil
}

func firstCharge(object map[string]interface{}) map[string]interface{} {
	charges := extractMap(object["charges"])
	data, ok := charges["data"].([]interface{})
	if !ok || len(data) == 0 {
		return nil
	}
	first, ok := data[0].(map[string]interface{})
	if !ok {
		return nil
	}
	return first
}

func extractMap(value interface{}) map[string]interface{} {
	if m, ok := value.(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{}
}

func getString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		return ""
	}
}

func coerceInt64(v interface{}) (int64, error) {
	switch val := v.(type) {
	case string:
		return strconv.ParseInt(strings.TrimSpace(val), 10, 64)
	case json.Number:
		return val.Int64()
	case float64:
		return int64(val), nil
	case int:
		return int64(val), nil
	case int64:
		return val, nil
	default:
		return 0, fmt.Errorf("cannot coerce %T to int64", v)
	}
}
