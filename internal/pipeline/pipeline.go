// Package pipeline runs one inbound message through resolution, storage,
// extraction, retention and notification.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/syuchan1005/CardNotifier/contracts/db"
	"github.com/syuchan1005/CardNotifier/internal/extractor"
	"github.com/syuchan1005/CardNotifier/internal/fanout"
	"github.com/syuchan1005/CardNotifier/internal/mailparse"
	"github.com/syuchan1005/CardNotifier/internal/repository"
	"github.com/syuchan1005/CardNotifier/internal/resolver"
	"github.com/syuchan1005/CardNotifier/pkg/logger"
	"github.com/syuchan1005/CardNotifier/pkg/metrics"
	"github.com/syuchan1005/CardNotifier/pkg/otel"
)

const dedupScope = "ingest"

// ErrMalformed wraps messages that can never be parsed.
var ErrMalformed = errors.New("pipeline: malformed message")

// IsPermanent reports errors that redelivery cannot fix.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrMalformed) ||
		errors.Is(err, resolver.ErrNoForwardingHint) ||
		errors.Is(err, resolver.ErrNoOwner)
}

type (
	Resolver interface {
		Resolve(ctx context.Context, in resolver.Input) (*resolver.Resolution, error)
	}
	EmailStore interface {
		Insert(ctx context.Context, e *db.Email) (int64, error)
	}
	TransactionStore interface {
		Insert(ctx context.Context, t *db.Transaction) (int64, error)
	}
	Extractor interface {
		Extract(ctx context.Context, p extractor.Projection) extractor.Result
	}
	Sweeper interface {
		Sweep(ctx context.Context) (int64, error)
	}
	Notifier interface {
		Send(ctx context.Context, userID int64, n fanout.Notification) (fanout.Result, error)
	}
	SubscriptionRemover interface {
		DeleteByEndpoint(ctx context.Context, userID int64, endpoint string) (int64, error)
	}
	// Deduper is a fast path in front of the email unique constraint.
	// Keys are marked only after the email row is written.
	Deduper interface {
		Seen(ctx context.Context, scope, key string) bool
		Mark(ctx context.Context, scope, key string)
	}
)

// Deps are the collaborators of a Pipeline. Deduper may be nil.
type Deps struct {
	Resolver      Resolver
	Emails        EmailStore
	Transactions  TransactionStore
	Extractor     Extractor
	Sweeper       Sweeper
	Notifier      Notifier
	Subscriptions SubscriptionRemover
	Deduper       Deduper
}

// Inbound is one message as delivered by the transport.
type Inbound struct {
	Raw          []byte
	EnvelopeFrom string
	EnvelopeTo   string
	// Headers are transport headers, not MIME headers.
	Headers    map[string]string
	ReceivedAt time.Time
}

// Outcome summarizes a completed run.
type Outcome struct {
	MessageID     string
	UserID        int64
	EmailID       int64
	Duplicate     bool
	Extraction    extractor.Result
	TransactionID int64
	Delivery      *fanout.Result
	Deregistered  int
}

type Pipeline struct {
	deps       Deps
	hintHeader string
	logger     *zap.Logger
	now        func() time.Time
}

// New creates a Pipeline reading the forwarding hint from hintHeader.
func New(deps Deps, hintHeader string, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{deps: deps, hintHeader: hintHeader, logger: logger, now: time.Now}
}

// Process runs the stages in order. Routing, parse and email write failures are
// returned; extraction, transaction write, retention and delivery failures are
// logged and the run continues.
func (p *Pipeline) Process(ctx context.Context, in Inbound) (*Outcome, error) {
	ctx, span := otel.StartSpan(ctx, "pipeline.process")
	out, err := p.process(ctx, in)
	if out != nil {
		span.SetAttributes(
			attribute.String("mail.message_id", out.MessageID),
			attribute.Int64("user.id", out.UserID),
		)
	}
	otel.EndSpan(span, err)
	return out, err
}

func (p *Pipeline) process(ctx context.Context, in Inbound) (*Outcome, error) {
	log := logger.WithTrace(ctx, p.logger)

	// 1. parse
	msg, err := p.parse(ctx, in.Raw)
	if err != nil {
		metrics.IncrementIngest("malformed")
		log.Warn("Failed to parse inbound message", zap.Error(err))
		return nil, err
	}
	out := &Outcome{MessageID: msg.MessageID}
	log = log.With(zap.String("message_id", msg.MessageID))

	// 2. resolve
	res, err := p.resolve(ctx, in, msg)
	if err != nil {
		if errors.Is(err, resolver.ErrNoForwardingHint) || errors.Is(err, resolver.ErrNoOwner) {
			metrics.IncrementIngest("unrouted")
		} else {
			metrics.IncrementIngest("error")
		}
		log.Error("Failed to resolve message owner",
			zap.String("envelope_to", in.EnvelopeTo),
			zap.Error(err),
		)
		return out, err
	}
	out.UserID = res.UserID
	log = log.With(zap.Int64("user_id", res.UserID))

	// 3. normalize
	body := msg.Body()
	date := msg.Date
	if date.IsZero() {
		date = in.ReceivedAt
	}
	if date.IsZero() {
		date = p.now()
	}

	// 4. persist email
	dedupKey := strconv.FormatInt(res.UserID, 10) + ":" + msg.MessageID
	if p.deps.Deduper != nil && p.deps.Deduper.Seen(ctx, dedupScope, dedupKey) {
		out.Duplicate = true
		metrics.IncrementIngest("duplicate")
		log.Info("Message already ingested, skipping")
		return out, nil
	}
	email := &db.Email{
		UserID:    res.UserID,
		From:      msg.From,
		To:        strings.Join(msg.To, ", "),
		Date:      date,
		MessageID: msg.MessageID,
		Subject:   msg.Subject,
		BodyText:  body,
	}
	emailID, err := p.storeEmail(ctx, email)
	if errors.Is(err, repository.ErrDuplicate) {
		p.markIngested(ctx, dedupKey)
		out.Duplicate = true
		metrics.IncrementIngest("duplicate")
		log.Info("Email row already exists, skipping")
		return out, nil
	}
	if err != nil {
		metrics.IncrementIngest("error")
		log.Error("Failed to store email", zap.Error(err))
		return out, fmt.Errorf("store email: %w", err)
	}
	out.EmailID = emailID
	p.markIngested(ctx, dedupKey)

	// 5. retention
	p.sweep(ctx, log)

	// 6. extract
	result := p.extract(ctx, extractor.Projection{
		From:    msg.From,
		To:      email.To,
		Subject: msg.Subject,
		Body:    body,
	})
	out.Extraction = result

	found, ok := result.(extractor.Found)
	if !ok {
		metrics.IncrementIngest("no_transaction")
		log.Info("No transaction in message", zap.String("reason", string(result.(extractor.NotFound).Reason)))
		return out, nil
	}

	// 7. persist transaction
	tx := &db.Transaction{
		UserID:      res.UserID,
		MessageID:   msg.MessageID,
		IsRefund:    found.IsRefund,
		Amount:      found.Amount,
		Currency:    found.Currency,
		CardName:    found.CardLabel,
		Destination: found.Destination,
		PurchasedAt: found.PurchasedAt,
		CreatedAt:   p.now(),
	}
	if tx.PurchasedAt.IsZero() {
		tx.PurchasedAt = date
	}
	id, err := p.storeTransaction(ctx, tx)
	if errors.Is(err, repository.ErrDuplicate) {
		// 邮件已被清理但交易还在：之前已经通知过
		out.Duplicate = true
		metrics.IncrementIngest("duplicate")
		log.Info("Transaction already recorded, skipping notification", zap.Int64("email_id", emailID))
		return out, nil
	}
	if err != nil {
		// 通知仍然发送，只记录不一致
		log.Error("Failed to store transaction, notifying anyway",
			zap.Int64("email_id", emailID),
			zap.Error(err),
		)
	} else {
		out.TransactionID = id
	}

	// 8. notify
	delivery, err := p.notify(ctx, *tx)
	if err != nil {
		log.Error("Failed to fan out notification", zap.Error(err))
		metrics.IncrementIngest("transaction")
		return out, nil
	}
	out.Delivery = &delivery
	out.Deregistered = p.deregister(ctx, log, res.UserID, delivery)

	metrics.IncrementIngest("transaction")
	log.Info("Transaction processed",
		zap.Int64("amount", tx.SignedAmount()),
		zap.String("currency", tx.Currency),
		zap.Int("delivered", delivery.Succeeded()),
	)
	return out, nil
}

func (p *Pipeline) parse(ctx context.Context, raw []byte) (*mailparse.Message, error) {
	_, span := otel.StartSpan(ctx, "pipeline.parse")
	msg, err := mailparse.Parse(raw)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	otel.EndSpan(span, err)
	return msg, err
}

func (p *Pipeline) resolve(ctx context.Context, in Inbound, msg *mailparse.Message) (*resolver.Resolution, error) {
	ctx, span := otel.StartSpan(ctx, "pipeline.resolve")
	res, err := p.deps.Resolver.Resolve(ctx, resolver.Input{
		Hints: p.hints(in, msg),
		To:    msg.To,
		Cc:    msg.Cc,
		Bcc:   msg.Bcc,
	})
	otel.EndSpan(span, err)
	return res, err
}

// hints collects the forwarding hint: transport header, then MIME header.
// The envelope recipient is never a hint; transports rewrite it.
func (p *Pipeline) hints(in Inbound, msg *mailparse.Message) []string {
	var hints []string
	if p.hintHeader != "" {
		for k, v := range in.Headers {
			if strings.EqualFold(k, p.hintHeader) {
				hints = append(hints, mailparse.ParseAddressList(v)...)
			}
		}
		hints = append(hints, mailparse.ParseAddressList(msg.Header.Get(p.hintHeader))...)
	}
	return hints
}

func (p *Pipeline) markIngested(ctx context.Context, key string) {
	if p.deps.Deduper != nil {
		p.deps.Deduper.Mark(ctx, dedupScope, key)
	}
}

func (p *Pipeline) storeEmail(ctx context.Context, e *db.Email) (int64, error) {
	ctx, span := otel.StartSpan(ctx, "pipeline.store_email")
	id, err := p.deps.Emails.Insert(ctx, e)
	if errors.Is(err, repository.ErrDuplicate) {
		otel.EndSpan(span, nil)
	} else {
		otel.EndSpan(span, err)
	}
	return id, err
}

func (p *Pipeline) sweep(ctx context.Context, log *zap.Logger) {
	if p.deps.Sweeper == nil {
		return
	}
	ctx, span := otel.StartSpan(ctx, "pipeline.retention")
	n, err := p.deps.Sweeper.Sweep(ctx)
	otel.EndSpan(span, err)
	if err != nil {
		log.Warn("Retention sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		log.Debug("Retention sweep", zap.Int64("deleted", n))
	}
}

func (p *Pipeline) extract(ctx context.Context, proj extractor.Projection) extractor.Result {
	ctx, span := otel.StartSpan(ctx, "pipeline.extract")
	r := p.deps.Extractor.Extract(ctx, proj)
	switch v := r.(type) {
	case extractor.Found:
		span.SetAttributes(attribute.String("extraction.result", "found"))
	case extractor.NotFound:
		span.SetAttributes(attribute.String("extraction.result", string(v.Reason)))
	}
	otel.EndSpan(span, nil)
	return r
}

func (p *Pipeline) storeTransaction(ctx context.Context, t *db.Transaction) (int64, error) {
	ctx, span := otel.StartSpan(ctx, "pipeline.store_transaction")
	id, err := p.deps.Transactions.Insert(ctx, t)
	if errors.Is(err, repository.ErrDuplicate) {
		otel.EndSpan(span, nil)
	} else {
		otel.EndSpan(span, err)
	}
	return id, err
}

func (p *Pipeline) notify(ctx context.Context, t db.Transaction) (fanout.Result, error) {
	ctx, span := otel.StartSpan(ctx, "pipeline.notify")
	res, err := p.deps.Notifier.Send(ctx, t.UserID, Notification(t))
	if err == nil {
		span.SetAttributes(
			attribute.Int("push.subscriptions", len(res.Deliveries)),
			attribute.Int("push.succeeded", res.Succeeded()),
		)
	}
	otel.EndSpan(span, err)
	return res, err
}

func (p *Pipeline) deregister(ctx context.Context, log *zap.Logger, userID int64, res fanout.Result) int {
	if p.deps.Subscriptions == nil {
		return 0
	}
	removed := 0
	for _, sub := range res.Gone() {
		n, err := p.deps.Subscriptions.DeleteByEndpoint(ctx, userID, sub.Endpoint)
		if err != nil {
			log.Warn("Failed to remove expired subscription",
				zap.Int64("subscription_id", sub.ID),
				zap.Error(err),
			)
			continue
		}
		removed += int(n)
	}
	return removed
}

// Notification renders the push message for a stored transaction.
func Notification(t db.Transaction) fanout.Notification {
	title := "Card payment"
	if t.IsRefund {
		title = "Card refund"
	}
	return fanout.Notification{
		Title: title,
		Body:  fmt.Sprintf("%s/%s\n%d %s", t.CardName, t.Destination, t.SignedAmount(), t.Currency),
		Data: map[string]any{
			"messageId": t.MessageID,
			"amount":    t.SignedAmount(),
			"currency":  t.Currency,
		},
	}
}
