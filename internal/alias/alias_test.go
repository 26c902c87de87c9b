package alias

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/syuchan1005/CardNotifier/contracts/db"
	"github.com/syuchan1005/CardNotifier/internal/repository"
)

type mockRules struct{ mock.Mock }

func (m *mockRules) Insert(ctx context.Context, rr *db.RoutingRule) (int64, error) {
	args := m.Called(ctx, rr)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockRules) FindByID(ctx context.Context, userID, id int64) (*db.RoutingRule, error) {
	args := m.Called(ctx, userID, id)
	rr, _ := args.Get(0).(*db.RoutingRule)
	return rr, args.Error(1)
}

func (m *mockRules) ListByUser(ctx context.Context, userID int64) ([]db.RoutingRule, error) {
	args := m.Called(ctx, userID)
	rules, _ := args.Get(0).([]db.RoutingRule)
	return rules, args.Error(1)
}

func (m *mockRules) Delete(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

type mockRemote struct{ mock.Mock }

func (m *mockRemote) CreateRule(ctx context.Context, address string) (string, error) {
	args := m.Called(ctx, address)
	return args.String(0), args.Error(1)
}

func (m *mockRemote) DeleteRule(ctx context.Context, ruleID string) error {
	return m.Called(ctx, ruleID).Error(0)
}

func newService(rules *mockRules, remote *mockRemote) *Service {
	s := NewService(rules, remote, "@Alias.Example", zap.NewNop())
	s.newLocalID = func() string { return "ABC-123" }
	return s
}

func TestCreate(t *testing.T) {
	rules, remote := &mockRules{}, &mockRemote{}
	remote.On("CreateRule", mock.Anything, "abc-123@alias.example").Return("rule-1", nil)
	rules.On("Insert", mock.Anything, &db.RoutingRule{UserID: 5, EmailAddress: "abc-123@alias.example", RuleID: "rule-1"}).
		Return(int64(9), nil)

	rr, err := newService(rules, remote).Create(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(9), rr.ID)
	assert.Equal(t, "rule-1", rr.RuleID)
	rules.AssertExpectations(t)
	remote.AssertExpectations(t)
}

func TestCreate_RemoteFailureWritesNothing(t *testing.T) {
	rules, remote := &mockRules{}, &mockRemote{}
	remote.On("CreateRule", mock.Anything, mock.Anything).Return("", errors.New("api down"))

	_, err := newService(rules, remote).Create(context.Background(), 5)
	assert.Error(t, err)
	rules.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestCreate_LocalFailureRollsBackRemote(t *testing.T) {
	rules, remote := &mockRules{}, &mockRemote{}
	remote.On("CreateRule", mock.Anything, mock.Anything).Return("rule-1", nil)
	remote.On("DeleteRule", mock.Anything, "rule-1").Return(nil)
	rules.On("Insert", mock.Anything, mock.Anything).Return(int64(0), errors.New("db down"))

	_, err := newService(rules, remote).Create(context.Background(), 5)
	assert.Error(t, err)
	remote.AssertExpectations(t)
}

func TestCreate_NoDomain(t *testing.T) {
	s := NewService(&mockRules{}, &mockRemote{}, "", zap.NewNop())
	_, err := s.Create(context.Background(), 1)
	assert.Error(t, err)
}

func TestCreate_GeneratesUniqueAddresses(t *testing.T) {
	rules, remote := &mockRules{}, &mockRemote{}
	var seen []string
	remote.On("CreateRule", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { seen = append(seen, args.String(1)) }).
		Return("r", nil)
	rules.On("Insert", mock.Anything, mock.Anything).Return(int64(1), nil)

	s := NewService(rules, remote, "alias.example", zap.NewNop())
	for i := 0; i < 2; i++ {
		_, err := s.Create(context.Background(), 1)
		require.NoError(t, err)
	}
	require.Len(t, seen, 2)
	assert.NotEqual(t, seen[0], seen[1])
	assert.Regexp(t, `^[0-9a-f-]{36}@alias\.example$`, seen[0])
}

func TestDelete(t *testing.T) {
	rules, remote := &mockRules{}, &mockRemote{}
	rules.On("FindByID", mock.Anything, int64(5), int64(9)).Return(&db.RoutingRule{ID: 9, UserID: 5, RuleID: "rule-1"}, nil)
	remote.On("DeleteRule", mock.Anything, "rule-1").Return(nil)
	rules.On("Delete", mock.Anything, int64(9)).Return(nil)

	require.NoError(t, newService(rules, remote).Delete(context.Background(), 5, 9))
	rules.AssertExpectations(t)
	remote.AssertExpectations(t)
}

func TestDelete_RemoteFailureKeepsLocal(t *testing.T) {
	rules, remote := &mockRules{}, &mockRemote{}
	rules.On("FindByID", mock.Anything, int64(5), int64(9)).Return(&db.RoutingRule{ID: 9, RuleID: "rule-1"}, nil)
	remote.On("DeleteRule", mock.Anything, "rule-1").Return(errors.New("api down"))

	err := newService(rules, remote).Delete(context.Background(), 5, 9)
	assert.Error(t, err)
	rules.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestDelete_NotFound(t *testing.T) {
	rules := &mockRules{}
	rules.On("FindByID", mock.Anything, int64(5), int64(9)).Return(nil, repository.ErrNotFound)

	err := newService(rules, &mockRemote{}).Delete(context.Background(), 5, 9)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList(t *testing.T) {
	rules := &mockRules{}
	rules.On("ListByUser", mock.Anything, int64(5)).Return([]db.RoutingRule{{ID: 1}, {ID: 2}}, nil)

	got, err := newService(rules, &mockRemote{}).List(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
