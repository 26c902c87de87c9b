// Package extractor turns a normalized email into a transaction record with a
// single structured-output model call.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/syuchan1005/CardNotifier/internal/llm"
	"github.com/syuchan1005/CardNotifier/pkg/metrics"
)

// maxBodyRunes bounds the body sent to the model.
const maxBodyRunes = 8000

const systemPrompt = `You read card-issuer notification emails and extract the single payment or refund they report.
Reply with JSON matching the schema. If the email does not report exactly one card transaction, set found to false and transaction to null.
Amounts are never negative: use isRefund=true for refunds and cancellations.
Write purchasedAt in the email's local time as YYYY-MM-DDTHH:MM:SS.`

// Completer is the structured-output call.
type Completer interface {
	Complete(ctx context.Context, r llm.Request) (string, error)
}

// Projection is the compact view of an email sent to the model.
type Projection struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type Extractor struct {
	llm    Completer
	loc    *time.Location
	logger *zap.Logger
}

// New creates an Extractor; loc is used for purchase times without an offset.
func New(c Completer, loc *time.Location, logger *zap.Logger) *Extractor {
	if loc == nil {
		loc = time.UTC
	}
	return &Extractor{llm: c, loc: loc, logger: logger}
}

// Extract never returns an error: call failures and invalid responses become NotFound.
// There is no retry.
func (e *Extractor) Extract(ctx context.Context, p Projection) Result {
	prompt, err := buildPrompt(p)
	if err != nil {
		e.logger.Error("Failed to build extraction prompt", zap.Error(err))
		return e.record(NotFound{Reason: ReasonCallFailed})
	}

	raw, err := e.llm.Complete(ctx, llm.Request{
		System:     systemPrompt,
		Prompt:     prompt,
		SchemaName: SchemaName,
		Schema:     Schema,
	})
	if err != nil {
		e.logger.Warn("Extraction call failed", zap.Error(err))
		return e.record(NotFound{Reason: ReasonCallFailed})
	}

	res, err := Decode(raw, e.loc)
	if err != nil {
		e.logger.Warn("Extraction response unparseable",
			zap.Error(err),
			zap.String("raw", truncate(compactJSON(raw), 500)),
		)
	}
	return e.record(res)
}

func (e *Extractor) record(r Result) Result {
	switch v := r.(type) {
	case Found:
		metrics.IncrementExtraction("found")
	case NotFound:
		metrics.IncrementExtraction(string(v.Reason))
	}
	return r
}

func buildPrompt(p Projection) (string, error) {
	p.Body = truncate(p.Body, maxBodyRunes)
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal projection: %w", err)
	}
	return string(b), nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
