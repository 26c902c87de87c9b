package webpush

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	webpushgo "github.com/SherClockHolmes/webpush-go"
)

// Subscription is one recipient endpoint with its keys as stored (base64url).
type Subscription struct {
	Endpoint string
	P256dh   string
	Auth     string
}

// Response is what the push service answered.
type Response struct {
	StatusCode int
	Body       string
}

// OK reports a 2xx answer.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

type Sender struct {
	httpClient *http.Client
	vapid      *VAPID
	ttl        time.Duration
}

// NewSender creates a Sender. httpClient may be nil.
func NewSender(vapid *VAPID, ttl time.Duration, httpClient *http.Client) *Sender {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Sender{httpClient: httpClient, vapid: vapid, ttl: ttl}
}

// Send encrypts payload for sub and POSTs it. Any HTTP answer is returned as
// a Response; the error is reserved for key, encryption and transport failures.
func (s *Sender) Send(ctx context.Context, sub Subscription, payload []byte) (*Response, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	if _, err := DecodeKeys(sub.P256dh, sub.Auth); err != nil {
		return nil, err
	}

	resp, err := webpushgo.SendNotificationWithContext(ctx, payload, &webpushgo.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpushgo.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpushgo.Options{
		HTTPClient: s.httpClient,
		// webpush-go 自己补 mailto: 前缀
		Subscriber:      strings.TrimPrefix(s.vapid.subject, "mailto:"),
		VAPIDPublicKey:  s.vapid.publicKey,
		VAPIDPrivateKey: s.vapid.privateKey,
		TTL:             int(s.ttl.Seconds()),
		Urgency:         webpushgo.UrgencyNormal,
	})
	if err != nil {
		return nil, fmt.Errorf("webpush: send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return &Response{StatusCode: resp.StatusCode, Body: string(body)}, nil
}
