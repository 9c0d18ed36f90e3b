package adapter

import "errors"

// RawEvent is a provider webhook payload as decoded from JSON. It is
// carried through reconciliation untouched so failed attempts can be
// replayed later.
type RawEvent map[string]interface{}

// NormalizedEvent is the canonical shape every provider adapter
// produces. Absent identifiers stay zero-valued; only structurally
// invalid input is an error.
type NormalizedEvent struct {
	Provider         string
	EventID          string
	PaymentIntentID  string
	ChargeID         string
	OrderIncrementID string
	QuoteID          int64
	Raw              RawEvent
}

// Normalizer translates one provider's raw event payload into a
// NormalizedEvent.
type Normalizer interface {
	ParseEvent(raw RawEvent) (*NormalizedEvent, error)
}

// ParseError marks input a normalizer could not make sense of
// structurally. Missing optional fields never produce one.
type ParseError struct {
	Provider string
	Reason   string
}

func (e *ParseError) Error() string {
	return "parse " + e.Provider + " event: " + e.Reason
}

func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
