// Package provisioning manages server-side mail routing rules for alias addresses.
package provisioning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/syuchan1005/CardNotifier/pkg/circuitbreaker"
	"github.com/syuchan1005/CardNotifier/pkg/config"
	"github.com/syuchan1005/CardNotifier/pkg/metrics"
)

// ErrRemote is returned when the API answers 2xx but reports success=false.
var ErrRemote = errors.New("provisioning: remote reported failure")

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provisioning: API error (status %d): %s", e.StatusCode, e.Body)
}

// apiEnvelope is the common response wrapper of the routing API.
type apiEnvelope struct {
	Success bool         `json:"success"`
	Errors  []apiMessage `json:"errors"`
	Result  *ruleResult  `json:"result"`
}

type apiMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type ruleResult struct {
	ID  string `json:"id"`
	Tag string `json:"tag"`
}

type ruleAction struct {
	Type  string   `json:"type"`
	Value []string `json:"value"`
}

type ruleMatcher struct {
	Field string `json:"field"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

type createRuleRequest struct {
	Name     string        `json:"name"`
	Enabled  bool          `json:"enabled"`
	Priority int           `json:"priority"`
	Actions  []ruleAction  `json:"actions"`
	Matchers []ruleMatcher `json:"matchers"`
}

type Client struct {
	httpClient  *http.Client
	baseURL     string
	token       string
	zoneID      string
	actionType  string
	actionValue string
	breaker     *circuitbreaker.CircuitBreaker
	logger      *zap.Logger
}

// New creates a client for the zone's email routing rules.
func New(cfg config.CloudflareConfig, logger *zap.Logger) (*Client, error) {
	if cfg.APIToken == "" || cfg.ZoneID == "" {
		return nil, fmt.Errorf("provisioning: API token and zone id are required")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.cloudflare.com/client/v4"
	}
	actionType := cfg.ActionType
	if actionType == "" {
		actionType = "worker"
	}

	bcfg := circuitbreaker.DefaultConfig()
	// 4xx 是请求本身的问题，不计入熔断
	bcfg.IsFailure = func(err error) bool {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests
		}
		return !errors.Is(err, ErrRemote)
	}
	bcfg.OnStateChange = func(from, to circuitbreaker.State) {
		logger.Warn("Provisioning circuit breaker state changed",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}

	return &Client{
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		baseURL:     baseURL,
		token:       cfg.APIToken,
		zoneID:      cfg.ZoneID,
		actionType:  actionType,
		actionValue: cfg.ActionValue,
		breaker:     circuitbreaker.NewCircuitBreaker(bcfg),
		logger:      logger,
	}, nil
}

// CreateRule routes mail for address to this service and returns the rule id.
func (c *Client) CreateRule(ctx context.Context, address string) (string, error) {
	body := createRuleRequest{
		Name:    "cardnotifier " + address,
		Enabled: true,
		Actions: []ruleAction{{Type: c.actionType, Value: []string{c.actionValue}}},
		Matchers: []ruleMatcher{{
			Field: "to",
			Type:  "literal",
			Value: address,
		}},
	}

	var env apiEnvelope
	err := c.do(ctx, http.MethodPost, c.rulesURL(), body, &env)
	if err == nil && (env.Result == nil || env.Result.id() == "") {
		err = fmt.Errorf("%w: create returned no rule id", ErrRemote)
	}
	c.record("create", err)
	if err != nil {
		return "", err
	}

	c.logger.Info("Routing rule created",
		zap.String("address", address),
		zap.String("rule_id", env.Result.id()),
	)
	return env.Result.id(), nil
}

// DeleteRule removes a rule by id.
func (c *Client) DeleteRule(ctx context.Context, ruleID string) error {
	var env apiEnvelope
	err := c.do(ctx, http.MethodDelete, c.rulesURL()+"/"+url.PathEscape(ruleID), nil, &env)
	c.record("delete", err)
	if err != nil {
		return err
	}
	c.logger.Info("Routing rule deleted", zap.String("rule_id", ruleID))
	return nil
}

func (r *ruleResult) id() string {
	if r.ID != "" {
		return r.ID
	}
	return r.Tag
}

func (c *Client) rulesURL() string {
	return c.baseURL + "/zones/" + url.PathEscape(c.zoneID) + "/email/routing/rules"
}

func (c *Client) record(op string, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	metrics.IncrementProvisioning(op, status)
}

func (c *Client) do(ctx context.Context, method, endpoint string, in any, out *apiEnvelope) error {
	return c.breaker.Execute(func() error {
		var reader io.Reader
		if in != nil {
			b, err := json.Marshal(in)
			if err != nil {
				return fmt.Errorf("provisioning: marshal request: %w", err)
			}
			reader = bytes.NewReader(b)
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return fmt.Errorf("provisioning: create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		if in != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("provisioning: %s %s: %w", method, endpoint, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return fmt.Errorf("provisioning: read response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
		}

		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("provisioning: decode response: %w", err)
		}
		if !out.Success {
			msgs := make([]string, 0, len(out.Errors))
			for _, m := range out.Errors {
				msgs = append(msgs, fmt.Sprintf("%d %s", m.Code, m.Message))
			}
			return fmt.Errorf("%w: %s", ErrRemote, strings.Join(msgs, "; "))
		}
		return nil
	})
}
