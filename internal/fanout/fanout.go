// Package fanout delivers one notification to every push subscription of a user.
package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/syuchan1005/CardNotifier/contracts/db"
	"github.com/syuchan1005/CardNotifier/internal/webpush"
	"github.com/syuchan1005/CardNotifier/pkg/metrics"
)

// SubscriptionStore lists a user's push registrations.
type SubscriptionStore interface {
	ListByUser(ctx context.Context, userID int64) ([]db.PushSubscription, error)
}

// Pusher sends one encrypted, signed message.
type Pusher interface {
	Send(ctx context.Context, sub webpush.Subscription, payload []byte) (*webpush.Response, error)
}

// Notification is rendered as {title, options:{body, data}} for the service worker.
type Notification struct {
	Title string
	Body  string
	Data  map[string]any
}

type notificationPayload struct {
	Title   string              `json:"title"`
	Options notificationOptions `json:"options"`
}

type notificationOptions struct {
	Body string         `json:"body"`
	Data map[string]any `json:"data,omitempty"`
}

// Payload returns the JSON bytes that are encrypted for each recipient.
func (n Notification) Payload() ([]byte, error) {
	return json.Marshal(notificationPayload{
		Title:   n.Title,
		Options: notificationOptions{Body: n.Body, Data: n.Data},
	})
}

// DeliveryError is a non-2xx answer from a push service.
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("push service returned %d: %s", e.StatusCode, e.Body)
}

// Gone reports that the endpoint no longer exists and should be deregistered.
func (e *DeliveryError) Gone() bool {
	return e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone
}

// Delivery is the settled outcome for one subscription.
type Delivery struct {
	Subscription db.PushSubscription
	StatusCode   int
	Body         string
	Err          error
}

// Gone reports a 404/410 answer.
func (d Delivery) Gone() bool {
	var de *DeliveryError
	return errors.As(d.Err, &de) && de.Gone()
}

// Result holds one Delivery per subscription, in subscription order.
type Result struct {
	Deliveries []Delivery
}

func (r Result) Succeeded() int {
	n := 0
	for _, d := range r.Deliveries {
		if d.Err == nil {
			n++
		}
	}
	return n
}

func (r Result) Failed() []Delivery {
	var out []Delivery
	for _, d := range r.Deliveries {
		if d.Err != nil {
			out = append(out, d)
		}
	}
	return out
}

// Gone lists subscriptions the caller should delete.
func (r Result) Gone() []db.PushSubscription {
	var out []db.PushSubscription
	for _, d := range r.Deliveries {
		if d.Gone() {
			out = append(out, d.Subscription)
		}
	}
	return out
}

type Engine struct {
	subs   SubscriptionStore
	pusher Pusher
	logger *zap.Logger
}

func New(subs SubscriptionStore, pusher Pusher, logger *zap.Logger) *Engine {
	return &Engine{subs: subs, pusher: pusher, logger: logger}
}

// Send delivers n to all of userID's subscriptions concurrently and waits for
// every delivery to settle. One failing endpoint never affects the others.
// The error is only for failing to load subscriptions or build the payload.
func (e *Engine) Send(ctx context.Context, userID int64, n Notification) (Result, error) {
	subs, err := e.subs.ListByUser(ctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return Result{}, nil
	}

	payload, err := n.Payload()
	if err != nil {
		return Result{}, fmt.Errorf("encode notification: %w", err)
	}

	deliveries := make([]Delivery, len(subs))
	var wg sync.WaitGroup
	for i, sub := range subs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			deliveries[i] = e.deliver(ctx, sub, payload)
		}()
	}
	wg.Wait()

	res := Result{Deliveries: deliveries}
	e.logger.Info("Notification fanout settled",
		zap.Int64("user_id", userID),
		zap.Int("subscriptions", len(subs)),
		zap.Int("succeeded", res.Succeeded()),
		zap.Int("gone", len(res.Gone())),
	)
	return res, nil
}

func (e *Engine) deliver(ctx context.Context, sub db.PushSubscription, payload []byte) (d Delivery) {
	d.Subscription = sub
	defer func() {
		if r := recover(); r != nil {
			d.Err = fmt.Errorf("push delivery panic: %v", r)
		}
		switch {
		case d.Err == nil:
			metrics.IncrementPushDelivery("delivered")
		case d.Gone():
			metrics.IncrementPushDelivery("gone")
		default:
			metrics.IncrementPushDelivery("failed")
			e.logger.Warn("Push delivery failed",
				zap.Int64("subscription_id", sub.ID),
				zap.Int("status", d.StatusCode),
				zap.Error(d.Err),
			)
		}
	}()

	resp, err := e.pusher.Send(ctx, webpush.Subscription{
		Endpoint: sub.Endpoint,
		P256dh:   sub.KeyP256dh,
		Auth:     sub.KeyAuth,
	}, payload)
	if err != nil {
		d.Err = err
		return d
	}

	d.StatusCode = resp.StatusCode
	d.Body = resp.Body
	if !resp.OK() {
		d.Err = &DeliveryError{StatusCode: resp.StatusCode, Body: resp.Body}
	}
	return d
}
