package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"

	"github.com/syuchan1005/CardNotifier/contracts/db"
)

// RepositorySuite runs against a real PostgreSQL when
// CARDNOTIFIER_TEST_DATABASE_URL is set.
type RepositorySuite struct {
	suite.Suite
	ctx  context.Context
	pool *pgxpool.Pool

	emails *EmailRepository
	txs    *TransactionRepository
	rules  *RoutingRuleRepository
	subs   *PushSubscriptionRepository
}

func TestRepositorySuite(t *testing.T) {
	dsn := os.Getenv("CARDNOTIFIER_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("CARDNOTIFIER_TEST_DATABASE_URL not set")
	}
	suite.Run(t, &RepositorySuite{})
}

func (s *RepositorySuite) SetupSuite() {
	s.ctx = context.Background()
	pool, err := pgxpool.New(s.ctx, os.Getenv("CARDNOTIFIER_TEST_DATABASE_URL"))
	s.Require().NoError(err)
	s.pool = pool

	schema, err := os.ReadFile("testdata/schema.sql")
	s.Require().NoError(err)
	_, err = pool.Exec(s.ctx, string(schema))
	s.Require().NoError(err)

	s.emails = NewEmailRepository(pool)
	s.txs = NewTransactionRepository(pool)
	s.rules = NewRoutingRuleRepository(pool)
	s.subs = NewPushSubscriptionRepository(pool)
}

func (s *RepositorySuite) TearDownSuite() {
	s.pool.Close()
}

func (s *RepositorySuite) SetupTest() {
	_, err := s.pool.Exec(s.ctx, `TRUNCATE emails, transactions, email_routing_rules, push_subscriptions RESTART IDENTITY`)
	s.Require().NoError(err)
}

func (s *RepositorySuite) TestEmailInsertAndRetention() {
	now := time.Now().UTC()
	old := &db.Email{UserID: 1, From: "a@x", To: "b@y", Date: now.Add(-8 * 24 * time.Hour), MessageID: "old"}
	fresh := &db.Email{UserID: 2, From: "a@x", To: "b@y", Date: now.Add(-time.Hour), MessageID: "fresh"}

	_, err := s.emails.Insert(s.ctx, old)
	s.Require().NoError(err)
	_, err = s.emails.Insert(s.ctx, fresh)
	s.Require().NoError(err)
	s.NotZero(fresh.ID)

	_, err = s.emails.Insert(s.ctx, &db.Email{UserID: 2, Date: now, MessageID: "fresh"})
	s.ErrorIs(err, ErrDuplicate)

	n, err := s.emails.DeleteOlderThan(s.ctx, now.Add(-7*24*time.Hour))
	s.Require().NoError(err)
	s.Equal(int64(1), n)
}

func (s *RepositorySuite) TestTransactionAtMostOncePerMessage() {
	tx := &db.Transaction{
		UserID: 1, MessageID: "m1", Amount: 1200, Currency: "JPY",
		CardName: "VISA", Destination: "Cafe", PurchasedAt: time.Now(), CreatedAt: time.Now(),
	}
	_, err := s.txs.Insert(s.ctx, tx)
	s.Require().NoError(err)

	dup := *tx
	_, err = s.txs.Insert(s.ctx, &dup)
	s.ErrorIs(err, ErrDuplicate)
}

func (s *RepositorySuite) TestRoutingRules() {
	rr := &db.RoutingRule{UserID: 7, EmailAddress: "Alias@Cards.Example", RuleID: "r-1"}
	_, err := s.rules.Insert(s.ctx, rr)
	s.Require().NoError(err)

	got, err := s.rules.FindByAddress(s.ctx, "alias@cards.example")
	s.Require().NoError(err)
	s.Equal(int64(7), got.UserID)

	_, err = s.rules.FindByID(s.ctx, 8, rr.ID)
	s.ErrorIs(err, ErrNotFound)

	list, err := s.rules.ListByUser(s.ctx, 7)
	s.Require().NoError(err)
	s.Len(list, 1)

	s.Require().NoError(s.rules.Delete(s.ctx, rr.ID))
	s.ErrorIs(s.rules.Delete(s.ctx, rr.ID), ErrNotFound)

	_, err = s.rules.FindByAddress(s.ctx, "alias@cards.example")
	s.ErrorIs(err, ErrNotFound)
}

func (s *RepositorySuite) TestPushSubscriptions() {
	for _, ep := range []string{"https://push.example/1", "https://push.example/2"} {
		s.Require().NoError(s.subs.Upsert(s.ctx, &db.PushSubscription{UserID: 3, Endpoint: ep, KeyP256dh: "p", KeyAuth: "a"}))
	}

	subs, err := s.subs.ListByUser(s.ctx, 3)
	s.Require().NoError(err)
	s.Len(subs, 2)

	n, err := s.subs.DeleteByEndpoint(s.ctx, 3, "https://push.example/1")
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	n, err = s.subs.DeleteByEndpoint(s.ctx, 3, "https://push.example/1")
	s.Require().NoError(err)
	s.Zero(n)
}
