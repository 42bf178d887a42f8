package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/evikzub/CVTransformer/internal/auth"
	"github.com/evikzub/CVTransformer/internal/domain"
	"github.com/evikzub/CVTransformer/internal/tracker"
)

// --- Mock User Repository ---

type mockUserRepository struct {
	mock.Mock
}

func (m *mockUserRepository) Create(ctx context.Context, nu domain.NewUser) (*domain.User, error) {
	args := m.Called(ctx, nu)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByRemoteID(ctx context.Context, remoteID int64) (*domain.User, error) {
	args := m.Called(ctx, remoteID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) TouchLastLogin(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockUserRepository) IncrementConversionCount(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockUserRepository) SetRole(ctx context.Context, id, role string) error {
	return m.Called(ctx, id, role).Error(0)
}

func (m *mockUserRepository) ListAll(ctx context.Context) ([]*domain.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.User), args.Error(1)
}

func (m *mockUserRepository) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

// --- Mock Issue Tracker ---

type mockTracker struct {
	mock.Mock
}

func (m *mockTracker) AuthenticateByPassword(ctx context.Context, username, password string) (*domain.RemoteIdentity, error) {
	args := m.Called(ctx, username, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RemoteIdentity), args.Error(1)
}

func (m *mockTracker) LookupIdentityByLogin(ctx context.Context, login string) (*domain.RemoteIdentity, error) {
	args := m.Called(ctx, login)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RemoteIdentity), args.Error(1)
}

func (m *mockTracker) ListIssues(ctx context.Context, auth tracker.Auth, filter tracker.IssueFilter) (*tracker.IssueList, error) {
	args := m.Called(ctx, auth, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tracker.IssueList), args.Error(1)
}

func (m *mockTracker) CreateIssue(ctx context.Context, auth tracker.Auth, issue tracker.NewIssue) (*domain.RawIssue, error) {
	args := m.Called(ctx, auth, issue)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RawIssue), args.Error(1)
}

func (m *mockTracker) GetIssue(ctx context.Context, auth tracker.Auth, id int64) (*domain.RawIssue, error) {
	args := m.Called(ctx, auth, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RawIssue), args.Error(1)
}

func (m *mockTracker) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// --- Mock Identity Cache ---

type mockIdentityCache struct {
	mock.Mock
}

func (m *mockIdentityCache) Get(ctx context.Context, login string) (*domain.RemoteIdentity, error) {
	args := m.Called(ctx, login)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RemoteIdentity), args.Error(1)
}

func (m *mockIdentityCache) Set(ctx context.Context, identity *domain.RemoteIdentity) error {
	return m.Called(ctx, identity).Error(0)
}

// --- Mock Event Publisher ---

type mockEvents struct {
	mock.Mock
}

func (m *mockEvents) PublishUserRegistered(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockEvents) PublishUserLoggedIn(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockEvents) PublishUserRoleChanged(ctx context.Context, userID, role string) error {
	return m.Called(ctx, userID, role).Error(0)
}

func (m *mockEvents) PublishUserDeleted(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *mockEvents) PublishTicketCreated(ctx context.Context, user *domain.User, ticket *domain.Ticket, mode domain.AuthMode, conversion bool) error {
	return m.Called(ctx, user, ticket, mode, conversion).Error(0)
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// wednesday is 2024-05-15 10:00 UTC.
var wednesday = time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)

func newTestJWTManager(t *testing.T) (*auth.JWTManager, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: wednesday}
	m, err := auth.NewJWTManager("test-secret-key-for-testing", auth.WithClock(clock.Now))
	require.NoError(t, err)
	return m, clock
}
