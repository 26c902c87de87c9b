package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/syuchan1005/CardNotifier/internal/llm"
	"github.com/syuchan1005/CardNotifier/pkg/metrics"
)

type mockCompleter struct {
	mock.Mock
}

func (m *mockCompleter) Complete(ctx context.Context, r llm.Request) (string, error) {
	args := m.Called(ctx, r)
	return args.String(0), args.Error(1)
}

func TestExtract_Found(t *testing.T) {
	c := &mockCompleter{}
	c.On("Complete", mock.Anything, mock.MatchedBy(func(r llm.Request) bool {
		var p Projection
		if err := json.Unmarshal([]byte(r.Prompt), &p); err != nil {
			return false
		}
		return r.SchemaName == SchemaName && r.Schema != nil &&
			p.Subject == "Usage" && strings.Contains(p.Body, "Cafe Foo")
	})).Return(`{"found":true,"transaction":{"isRefund":false,"amount":1200,"currency":"JPY",
		"cardName":"VISA•1234","destination":"Cafe Foo","purchasedAt":"2024-08-27T08:49:00"}}`, nil)

	e := New(c, tokyo, zap.NewNop())
	got := e.Extract(context.Background(), Projection{
		From: "notice@card.example", To: "alias@cards.example", Subject: "Usage",
		Body: "Charged 1200 JPY at Cafe Foo on card VISA•1234",
	})

	f, ok := got.(Found)
	require.True(t, ok)
	assert.Equal(t, int64(1200), f.Amount)
	assert.Equal(t, "JPY", f.Currency)
	assert.Equal(t, "VISA•1234", f.CardLabel)
	assert.Equal(t, "Cafe Foo", f.Destination)
	c.AssertNumberOfCalls(t, "Complete", 1)
}

func TestExtract_CallFailedNoRetry(t *testing.T) {
	c := &mockCompleter{}
	c.On("Complete", mock.Anything, mock.Anything).Return("", errors.New("timeout"))

	before := testutil.ToFloat64(metrics.ExtractionCount.WithLabelValues("call_failed"))
	got := New(c, nil, zap.NewNop()).Extract(context.Background(), Projection{})

	assert.Equal(t, NotFound{Reason: ReasonCallFailed}, got)
	c.AssertNumberOfCalls(t, "Complete", 1)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ExtractionCount.WithLabelValues("call_failed")))
}

func TestExtract_UnparseableCountedSeparately(t *testing.T) {
	c := &mockCompleter{}
	c.On("Complete", mock.Anything, mock.Anything).Return(`{"found":"maybe"}`, nil)

	before := testutil.ToFloat64(metrics.ExtractionCount.WithLabelValues("unparseable"))
	got := New(c, tokyo, zap.NewNop()).Extract(context.Background(), Projection{})

	assert.Equal(t, NotFound{Reason: ReasonUnparseable}, got)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ExtractionCount.WithLabelValues("unparseable")))
}

func TestBuildPrompt_TruncatesBody(t *testing.T) {
	prompt, err := buildPrompt(Projection{Body: strings.Repeat("あ", maxBodyRunes+100)})
	require.NoError(t, err)

	var p Projection
	require.NoError(t, json.Unmarshal([]byte(prompt), &p))
	assert.Equal(t, maxBodyRunes, len([]rune(p.Body)))
}
