package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockPurger struct {
	mock.Mock
}

func (m *mockPurger) DeleteOlderThan(ctx context.Context, threshold time.Time) (int64, error) {
	args := m.Called(ctx, threshold)
	return args.Get(0).(int64), args.Error(1)
}

func TestSweep_UsesHorizon(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	want := time.Date(2024, 5, 3, 12, 0, 0, 0, time.UTC)

	p := &mockPurger{}
	p.On("DeleteOlderThan", mock.Anything, want).Return(int64(4), nil)

	s := New(p, 0, zap.NewNop())
	s.now = func() time.Time { return now }

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	p.AssertExpectations(t)
}

func TestSweep_CustomHorizon(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	s := New(&mockPurger{}, 24*time.Hour, nil)
	s.now = func() time.Time { return now }
	assert.Equal(t, now.Add(-24*time.Hour), s.Threshold())
}

func TestSweep_Error(t *testing.T) {
	p := &mockPurger{}
	p.On("DeleteOlderThan", mock.Anything, mock.Anything).Return(int64(0), errors.New("db down"))

	n, err := New(p, DefaultHorizon, zap.NewNop()).Sweep(context.Background())
	assert.Error(t, err)
	assert.Zero(t, n)
}
