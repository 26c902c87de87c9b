package extractor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// SchemaName is sent as json_schema.name.
const SchemaName = "transaction_extraction"

// Schema is the strict two-variant contract: found=false with a null
// transaction, or found=true with every transaction field present.
var Schema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"found", "transaction"},
	"properties": map[string]any{
		"found": map[string]any{
			"type":        "boolean",
			"description": "true only when the email reports a single card payment or refund",
		},
		"transaction": map[string]any{
			"anyOf": []any{
				map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []string{"isRefund", "amount", "currency", "cardName", "destination", "purchasedAt"},
					"properties": map[string]any{
						"isRefund": map[string]any{
							"type":        "boolean",
							"description": "true for a refund or cancellation; amount stays positive",
						},
						"amount": map[string]any{
							"type":        "integer",
							"minimum":     0,
							"description": "amount in the currency's minor-less display unit, never negative",
						},
						"currency": map[string]any{
							"type":        "string",
							"pattern":     "^[A-Z]{3}$",
							"description": "ISO 4217 code",
						},
						"cardName": map[string]any{
							"type":        "string",
							"description": "card label as written in the email, e.g. VISA•1234",
						},
						"destination": map[string]any{
							"type":        "string",
							"description": "merchant or payee",
						},
						"purchasedAt": map[string]any{
							"type":        "string",
							"description": "local date-time of the purchase, formatted YYYY-MM-DDTHH:MM:SS",
						},
					},
				},
				map[string]any{"type": "null"},
			},
		},
	},
}

type rawResult struct {
	Found       *bool           `json:"found" validate:"required"`
	Transaction *rawTransaction `json:"transaction"`
}

type rawTransaction struct {
	IsRefund    *bool   `json:"isRefund" validate:"required"`
	Amount      *int64  `json:"amount" validate:"required,gte=0"`
	Currency    *string `json:"currency" validate:"required,len=3,alpha,uppercase"`
	CardName    *string `json:"cardName" validate:"required"`
	Destination *string `json:"destination" validate:"required"`
	PurchasedAt *string `json:"purchasedAt" validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

var purchasedAtLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006-01-02",
	"2006/01/02",
}

// Decode validates a raw model response against Schema. It is deterministic:
// the same input always yields the same Result. A non-nil error means the
// response was unparseable; the Result is then NotFound{ReasonUnparseable}.
func Decode(raw string, loc *time.Location) (Result, error) {
	unparseable := NotFound{Reason: ReasonUnparseable}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()

	var r rawResult
	if err := dec.Decode(&r); err != nil {
		return unparseable, fmt.Errorf("decode: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return unparseable, errors.New("decode: trailing data after JSON object")
	}
	// 嵌套的 transaction 非 nil 时也会被校验
	if err := validate.Struct(r); err != nil {
		return unparseable, fmt.Errorf("validate: %w", err)
	}

	if !*r.Found {
		return NotFound{Reason: ReasonNotFound}, nil
	}
	if r.Transaction == nil {
		return unparseable, errors.New("validate: found=true with null transaction")
	}

	t := r.Transaction
	if *t.Amount == 0 {
		return NotFound{Reason: ReasonZeroAmount}, nil
	}

	return Found{
		IsRefund:    *t.IsRefund,
		Amount:      *t.Amount,
		Currency:    *t.Currency,
		CardLabel:   strings.TrimSpace(*t.CardName),
		Destination: strings.TrimSpace(*t.Destination),
		PurchasedAt: parsePurchasedAt(*t.PurchasedAt, loc),
	}, nil
}

func parsePurchasedAt(s string, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	s = strings.TrimSpace(s)
	for _, layout := range purchasedAtLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t
		}
	}
	return time.Time{}
}

// compactJSON is used for log fields; invalid input is returned as-is.
func compactJSON(raw string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(raw)); err != nil {
		return raw
	}
	return buf.String()
}
