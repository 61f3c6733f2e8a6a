package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/keyxmakerx/authportal/internal/testutil"
)

// --- Mock AuthClient ---

// mockClient implements AuthClient with function fields so each test wires
// only the calls it needs.
type mockClient struct {
	signInFn  func(ctx context.Context, creds Credentials) (*AuthResult, error)
	signUpFn  func(ctx context.Context, input SignUpInput) (*AuthResult, error)
	signOutFn func(ctx context.Context, token string) error
	meFn      func(ctx context.Context, token string) (*User, error)

	mu            sync.Mutex
	signOutTokens []string
}

func (m *mockClient) SignIn(ctx context.Context, creds Credentials) (*AuthResult, error) {
	if m.signInFn != nil {
		return m.signInFn(ctx, creds)
	}
	return nil, &AuthError{Kind: KindAuthentication, Status: 401}
}

func (m *mockClient) SignUp(ctx context.Context, input SignUpInput) (*AuthResult, error) {
	if m.signUpFn != nil {
		return m.signUpFn(ctx, input)
	}
	return nil, &AuthError{Kind: KindValidation, Status: 422}
}

func (m *mockClient) SignOut(ctx context.Context, token string) error {
	m.mu.Lock()
	m.signOutTokens = append(m.signOutTokens, token)
	m.mu.Unlock()
	if m.signOutFn != nil {
		return m.signOutFn(ctx, token)
	}
	return nil
}

func (m *mockClient) Me(ctx context.Context, token string) (*User, error) {
	if m.meFn != nil {
		return m.meFn(ctx, token)
	}
	return nil, &AuthError{Kind: KindAuthentication, Status: 401}
}

func (m *mockClient) signOuts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.signOutTokens...)
}

// --- Fixtures ---

// testNow is the fixed clock every provider test runs on.
var testNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// clock is a settable test clock.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// acceptAll answers every sign-in with token t1 for user 1.
func acceptAll(_ context.Context, creds Credentials) (*AuthResult, error) {
	return &AuthResult{Token: "t1", User: &User{ID: "1", Email: normalizeEmail(creds.Email)}}, nil
}

// newTestProvider wires a Provider to client on an in-memory Redis.
func newTestProvider(t *testing.T, client AuthClient) (*Provider, SessionStore, *clock) {
	t.Helper()

	_, rdb := testutil.NewRedis(t)
	store := NewRedisStore(rdb, time.Hour)
	clk := &clock{now: testNow}
	p := NewProvider(client, store, ProviderConfig{
		RevalidateInterval: 5 * time.Minute,
		SignOutTimeout:     time.Second,
		SubmitLockTTL:      30 * time.Second,
		Now:                clk.Now,
	})
	t.Cleanup(p.Wait)
	return p, store, clk
}
