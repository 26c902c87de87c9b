// Package alias provisions per-user receiving addresses.
package alias

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/syuchan1005/CardNotifier/contracts/db"
	"github.com/syuchan1005/CardNotifier/internal/repository"
)

// ErrNotFound the alias does not exist or belongs to another user.
var ErrNotFound = errors.New("alias: not found")

// RuleStore is the local routing-rule table.
type RuleStore interface {
	Insert(ctx context.Context, rr *db.RoutingRule) (int64, error)
	FindByID(ctx context.Context, userID, id int64) (*db.RoutingRule, error)
	ListByUser(ctx context.Context, userID int64) ([]db.RoutingRule, error)
	Delete(ctx context.Context, id int64) error
}

// Remote is the mail provider's routing-rule API.
type Remote interface {
	CreateRule(ctx context.Context, address string) (string, error)
	DeleteRule(ctx context.Context, ruleID string) error
}

type Service struct {
	rules      RuleStore
	remote     Remote
	domain     string
	logger     *zap.Logger
	newLocalID func() string
}

func NewService(rules RuleStore, remote Remote, domain string, logger *zap.Logger) *Service {
	return &Service{
		rules:      rules,
		remote:     remote,
		domain:     strings.ToLower(strings.TrimPrefix(domain, "@")),
		logger:     logger,
		newLocalID: uuid.NewString,
	}
}

// Create generates a fresh address, provisions it remotely and then records it.
// If the local write fails the remote rule is deleted again.
func (s *Service) Create(ctx context.Context, userID int64) (*db.RoutingRule, error) {
	if s.domain == "" {
		return nil, fmt.Errorf("alias: domain is not configured")
	}
	address := strings.ToLower(s.newLocalID()) + "@" + s.domain

	ruleID, err := s.remote.CreateRule(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("create remote rule: %w", err)
	}

	rr := &db.RoutingRule{UserID: userID, EmailAddress: address, RuleID: ruleID}
	id, err := s.rules.Insert(ctx, rr)
	if err != nil {
		if derr := s.remote.DeleteRule(ctx, ruleID); derr != nil {
			// 远端规则成为孤儿，需要人工清理
			s.logger.Error("Failed to roll back remote rule",
				zap.String("rule_id", ruleID),
				zap.String("address", address),
				zap.Error(derr),
			)
		}
		return nil, fmt.Errorf("store alias: %w", err)
	}
	rr.ID = id

	s.logger.Info("Alias created",
		zap.Int64("user_id", userID),
		zap.Int64("alias_id", id),
		zap.String("address", address),
	)
	return rr, nil
}

// Delete removes the remote rule first; the local row is only deleted after
// the remote call succeeds.
func (s *Service) Delete(ctx context.Context, userID, id int64) error {
	rr, err := s.rules.FindByID(ctx, userID, id)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("find alias: %w", err)
	}

	if err := s.remote.DeleteRule(ctx, rr.RuleID); err != nil {
		return fmt.Errorf("delete remote rule: %w", err)
	}

	if err := s.rules.Delete(ctx, rr.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		s.logger.Error("Remote rule deleted but local alias remains",
			zap.Int64("alias_id", rr.ID),
			zap.String("rule_id", rr.RuleID),
			zap.Error(err),
		)
		return fmt.Errorf("delete alias: %w", err)
	}

	s.logger.Info("Alias deleted",
		zap.Int64("user_id", userID),
		zap.Int64("alias_id", id),
	)
	return nil
}

func (s *Service) List(ctx context.Context, userID int64) ([]db.RoutingRule, error) {
	rules, err := s.rules.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list aliases: %w", err)
	}
	return rules, nil
}
