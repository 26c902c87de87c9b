package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/syuchan1005/CardNotifier/internal/handler"
	"github.com/syuchan1005/CardNotifier/pkg/trace"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestHealthz(t *testing.T) {
	r := NewRouter(Handlers{}, nil)
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(trace.HeaderName))
}

func TestReadyz(t *testing.T) {
	ok := NewRouter(Handlers{}, map[string]ReadinessCheck{
		"db": func(context.Context) error { return nil },
	})
	w := httptest.NewRecorder()
	ok.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	down := NewRouter(Handlers{}, map[string]ReadinessCheck{
		"mq": func(context.Context) error { return errors.New("closed") },
	})
	w = httptest.NewRecorder()
	down.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "mq_not_ready")
}

func TestTraceIDPropagated(t *testing.T) {
	r := NewRouter(Handlers{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(trace.HeaderName, "abc123")
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)
	assert.Equal(t, "abc123", w.Header().Get(trace.HeaderName))
}

func TestMetricsExposed(t *testing.T) {
	r := NewRouter(Handlers{}, nil)
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPublicKeyRoute(t *testing.T) {
	r := NewRouter(Handlers{
		Notification: handler.NewNotificationHandler("KEY", nil, zap.NewNop()),
	}, nil)
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/notification", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"publicKey":"KEY"}`, w.Body.String())
}
