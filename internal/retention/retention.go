// Package retention removes stored emails older than the retention horizon.
package retention

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/syuchan1005/CardNotifier/pkg/metrics"
)

const DefaultHorizon = 7 * 24 * time.Hour

// EmailPurger deletes emails whose date is strictly before threshold.
type EmailPurger interface {
	DeleteOlderThan(ctx context.Context, threshold time.Time) (int64, error)
}

type Sweeper struct {
	emails  EmailPurger
	horizon time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// New returns a Sweeper. A non-positive horizon means DefaultHorizon.
func New(emails EmailPurger, horizon time.Duration, logger *zap.Logger) *Sweeper {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{emails: emails, horizon: horizon, logger: logger, now: time.Now}
}

// Threshold is the cut-off used by the next sweep.
func (s *Sweeper) Threshold() time.Time {
	return s.now().Add(-s.horizon)
}

// Sweep deletes every email (all users) dated before now minus the horizon.
// Transactions are not touched.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	threshold := s.Threshold()
	n, err := s.emails.DeleteOlderThan(ctx, threshold)
	if err != nil {
		return 0, fmt.Errorf("delete emails before %s: %w", threshold.Format(time.RFC3339), err)
	}
	metrics.AddRetentionDeleted(n)
	if n > 0 {
		s.logger.Info("Retention sweep removed emails",
			zap.Int64("deleted", n),
			zap.Time("threshold", threshold),
		)
	}
	return n, nil
}
