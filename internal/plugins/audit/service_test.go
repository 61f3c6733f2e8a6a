package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/authportal/internal/apperror"
)

// --- Mock Repository ---

// mockAuditRepo implements AuditRepository for testing.
type mockAuditRepo struct {
	logFn           func(ctx context.Context, event *AuthEvent) error
	listByUserFn    func(ctx context.Context, userID string, limit int) ([]AuthEvent, error)
	countFailuresFn func(ctx context.Context, email string, since time.Time) (int, error)

	mu     sync.Mutex
	logged []AuthEvent
}

func (m *mockAuditRepo) Log(ctx context.Context, event *AuthEvent) error {
	if m.logFn != nil {
		return m.logFn(ctx, event)
	}
	m.mu.Lock()
	m.logged = append(m.logged, *event)
	m.mu.Unlock()
	return nil
}

func (m *mockAuditRepo) ListByUser(ctx context.Context, userID string, limit int) ([]AuthEvent, error) {
	if m.listByUserFn != nil {
		return m.listByUserFn(ctx, userID, limit)
	}
	return nil, nil
}

func (m *mockAuditRepo) CountFailuresSince(ctx context.Context, email string, since time.Time) (int, error) {
	if m.countFailuresFn != nil {
		return m.countFailuresFn(ctx, email, since)
	}
	return 0, nil
}

func (m *mockAuditRepo) events() []AuthEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AuthEvent(nil), m.logged...)
}

var testNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func newTestService(repo AuditRepository) *auditService {
	return &auditService{repo: repo, now: func() time.Time { return testNow }}
}

// assertAppError checks err is an AppError with the expected code.
func assertAppError(t *testing.T, err error, code int) {
	t.Helper()
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code)
}

// --- Log ---

func TestLog_Success(t *testing.T) {
	repo := &mockAuditRepo{}
	svc := newTestService(repo)

	err := svc.Log(context.Background(), &AuthEvent{EventID: "e1", Action: ActionSignedIn, UserID: "1"})
	require.NoError(t, err)
	require.Len(t, repo.events(), 1)
	assert.Equal(t, ActionSignedIn, repo.events()[0].Action)
}

func TestLog_RequiresActionAndEventID(t *testing.T) {
	svc := newTestService(&mockAuditRepo{})

	assertAppError(t, svc.Log(context.Background(), &AuthEvent{EventID: "e1"}), 400)
	assertAppError(t, svc.Log(context.Background(), &AuthEvent{Action: ActionSignedIn}), 400)
}

func TestLog_RepoErrorIsInternal(t *testing.T) {
	repo := &mockAuditRepo{
		logFn: func(context.Context, *AuthEvent) error { return errors.New("db down") },
	}
	svc := newTestService(repo)

	err := svc.Log(context.Background(), &AuthEvent{EventID: "e1", Action: ActionSignedOut})
	assertAppError(t, err, 500)
}

// --- RecentForUser ---

func TestRecentForUser(t *testing.T) {
	var gotLimit int
	repo := &mockAuditRepo{
		listByUserFn: func(_ context.Context, userID string, limit int) ([]AuthEvent, error) {
			gotLimit = limit
			return []AuthEvent{{UserID: userID, Action: ActionSignedIn}}, nil
		},
	}
	svc := newTestService(repo)

	events, err := svc.RecentForUser(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, recentLimit, gotLimit)
	require.Len(t, events, 1)
	assert.Equal(t, "7", events[0].UserID)
}

func TestRecentForUser_EmptyID(t *testing.T) {
	svc := newTestService(&mockAuditRepo{})
	_, err := svc.RecentForUser(context.Background(), "")
	assertAppError(t, err, 400)
}

// --- RecentFailures ---

func TestRecentFailures(t *testing.T) {
	var gotEmail string
	var gotSince time.Time
	repo := &mockAuditRepo{
		countFailuresFn: func(_ context.Context, email string, since time.Time) (int, error) {
			gotEmail, gotSince = email, since
			return 3, nil
		},
	}
	svc := newTestService(repo)

	n, err := svc.RecentFailures(context.Background(), "  Ada@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "ada@example.com", gotEmail)
	assert.Equal(t, testNow.Add(-failureWindow), gotSince)
}

func TestRecentFailures_NoEmailSkipsQuery(t *testing.T) {
	repo := &mockAuditRepo{
		countFailuresFn: func(context.Context, string, time.Time) (int, error) {
			t.Fatal("repository must not be queried")
			return 0, nil
		},
	}
	n, err := newTestService(repo).RecentFailures(context.Background(), " ")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAuthEvent_Label(t *testing.T) {
	assert.Equal(t, "Signed in", AuthEvent{Action: ActionSignedIn}.Label())
	assert.Equal(t, "Session expired", AuthEvent{Action: ActionSessionExpired}.Label())
	assert.Equal(t, "custom.action", AuthEvent{Action: "custom.action"}.Label())
}
