package extractor

import "time"

// Reason says why no transaction was produced.
type Reason string

const (
	ReasonNotFound    Reason = "not_found"
	ReasonZeroAmount  Reason = "zero_amount"
	ReasonUnparseable Reason = "unparseable"
	ReasonCallFailed  Reason = "call_failed"
)

// Result is either Found or NotFound.
type Result interface {
	result()
}

// Found is a validated transaction with a positive amount.
type Found struct {
	IsRefund    bool
	Amount      int64
	Currency    string
	CardLabel   string
	Destination string
	// PurchasedAt is zero when the model's value could not be parsed.
	PurchasedAt time.Time
}

// NotFound carries the reason extraction produced nothing.
type NotFound struct {
	Reason Reason
}

func (Found) result()    {}
func (NotFound) result() {}

// SignedAmount is negative for refunds.
func (f Found) SignedAmount() int64 {
	if f.IsRefund {
		return -f.Amount
	}
	return f.Amount
}
