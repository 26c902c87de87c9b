package provisioning

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/syuchan1005/CardNotifier/pkg/circuitbreaker"
	"github.com/syuchan1005/CardNotifier/pkg/config"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(config.CloudflareConfig{
		BaseURL:     srv.URL,
		APIToken:    "tok",
		ZoneID:      "zone1",
		ActionType:  "worker",
		ActionValue: "card-notifier",
	}, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New(config.CloudflareConfig{ZoneID: "z"}, zap.NewNop())
	assert.Error(t, err)
}

func TestCreateRule(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/zones/zone1/email/routing/rules", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var req createRuleRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Enabled)
		require.Len(t, req.Matchers, 1)
		assert.Equal(t, ruleMatcher{Field: "to", Type: "literal", Value: "x@alias.example"}, req.Matchers[0])
		require.Len(t, req.Actions, 1)
		assert.Equal(t, ruleAction{Type: "worker", Value: []string{"card-notifier"}}, req.Actions[0])

		_, _ = io.WriteString(w, `{"success":true,"errors":[],"result":{"id":"rule-1"}}`)
	})

	id, err := c.CreateRule(context.Background(), "x@alias.example")
	require.NoError(t, err)
	assert.Equal(t, "rule-1", id)
}

func TestCreateRule_TagFallback(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":true,"result":{"tag":"tag-9"}}`)
	})
	id, err := c.CreateRule(context.Background(), "x@alias.example")
	require.NoError(t, err)
	assert.Equal(t, "tag-9", id)
}

func TestCreateRule_RemoteFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":false,"errors":[{"code":2020,"message":"rule exists"}]}`)
	})
	_, err := c.CreateRule(context.Background(), "x@alias.example")
	assert.ErrorIs(t, err, ErrRemote)
	assert.Contains(t, err.Error(), "rule exists")
}

func TestCreateRule_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `denied`)
	})
	_, err := c.CreateRule(context.Background(), "x@alias.example")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "denied", apiErr.Body)
}

func TestDeleteRule(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/zones/zone1/email/routing/rules/rule-1", r.URL.Path)
		_, _ = io.WriteString(w, `{"success":true,"result":{"id":"rule-1"}}`)
	})
	assert.NoError(t, c.DeleteRule(context.Background(), "rule-1"))
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	})

	threshold := circuitbreaker.DefaultConfig().FailureThreshold
	for i := 0; i < threshold; i++ {
		_ = c.DeleteRule(context.Background(), "r")
	}
	err := c.DeleteRule(context.Background(), "r")
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitBreakerOpen)
	assert.Equal(t, threshold, calls)
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	for i := 0; i < 10; i++ {
		_ = c.DeleteRule(context.Background(), "r")
	}
	assert.Equal(t, circuitbreaker.StateClosed, c.breaker.GetState())
}
