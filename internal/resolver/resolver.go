// Package resolver maps the destination addresses of an inbound message to the
// user that owns the matching alias.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/syuchan1005/CardNotifier/contracts/db"
	"github.com/syuchan1005/CardNotifier/internal/repository"
)

var (
	// ErrNoForwardingHint the message carried no forwarding-hint header.
	ErrNoForwardingHint = errors.New("resolver: no forwarding hint")
	// ErrNoOwner no candidate address has a routing rule.
	ErrNoOwner = errors.New("resolver: no owner for any candidate address")
)

// RuleStore looks up routing rules by alias address.
type RuleStore interface {
	FindByAddress(ctx context.Context, address string) (*db.RoutingRule, error)
}

// Input lists candidate addresses in precedence order groups.
type Input struct {
	// Hints are forwarding-hint values: transport header first, then MIME header.
	Hints []string
	To    []string
	Cc    []string
	Bcc   []string
}

// Resolution is the owner and the address that matched.
type Resolution struct {
	UserID  int64
	Address string
}

type Resolver struct {
	rules  RuleStore
	logger *zap.Logger
}

func New(rules RuleStore, logger *zap.Logger) *Resolver {
	return &Resolver{rules: rules, logger: logger}
}

// Candidates returns lower-cased, de-duplicated addresses: hints, then To, Cc, Bcc.
func Candidates(in Input) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, group := range [][]string{in.Hints, in.To, in.Cc, in.Bcc} {
		for _, a := range group {
			a = strings.ToLower(strings.TrimSpace(a))
			if a == "" {
				continue
			}
			if _, ok := seen[a]; ok {
				continue
			}
			seen[a] = struct{}{}
			out = append(out, a)
		}
	}
	return out
}

// Resolve returns the first candidate with a routing rule.
func (r *Resolver) Resolve(ctx context.Context, in Input) (*Resolution, error) {
	if !hasHint(in.Hints) {
		return nil, ErrNoForwardingHint
	}

	candidates := Candidates(in)
	for _, addr := range candidates {
		rule, err := r.rules.FindByAddress(ctx, addr)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lookup routing rule for %s: %w", addr, err)
		}
		r.logger.Debug("Resolved owner",
			zap.String("address", addr),
			zap.Int64("user_id", rule.UserID),
		)
		return &Resolution{UserID: rule.UserID, Address: addr}, nil
	}

	return nil, fmt.Errorf("%w (%d candidates)", ErrNoOwner, len(candidates))
}

func hasHint(hints []string) bool {
	for _, h := range hints {
		if strings.TrimSpace(h) != "" {
			return true
		}
	}
	return false
}
