package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects events in order.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listen(_ context.Context, e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []EventType
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func TestProvider_InitialStateIsUnauthenticated(t *testing.T) {
	p, _, _ := newTestProvider(t, &mockClient{})

	s, err := p.Load(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, s.IsAuthenticated)
	assert.Nil(t, s.User)
	assert.Empty(t, s.Token)
}

func TestProvider_SignIn_Success(t *testing.T) {
	client := &mockClient{signInFn: func(_ context.Context, creds Credentials) (*AuthResult, error) {
		assert.Equal(t, "a@b.com", creds.Email)
		return &AuthResult{Token: "t1", User: &User{ID: "1", Email: "a@b.com"}}, nil
	}}
	p, store, _ := newTestProvider(t, client)

	s, err := p.SignIn(context.Background(), "sid", Credentials{Email: "a@b.com", Password: "pw"})
	require.NoError(t, err)
	assert.True(t, s.IsAuthenticated)
	assert.Equal(t, "t1", s.Token)
	assert.Equal(t, &User{ID: "1", Email: "a@b.com"}, s.User)

	stored, err := store.Load(context.Background(), "sid")
	require.NoError(t, err)
	assert.Equal(t, s, stored)
}

func TestProvider_SignIn_NotifiesBeforeReturning(t *testing.T) {
	p, store, _ := newTestProvider(t, &mockClient{signInFn: acceptAll})

	var seenStored *Session
	p.Subscribe(func(ctx context.Context, e Event) {
		if e.Type == EventSignedIn {
			// The store already holds the new session when subscribers run.
			seenStored, _ = store.Load(ctx, e.SessionID)
		}
	})

	_, err := p.SignIn(context.Background(), "sid", Credentials{Email: "a@b.com", Password: "pw"})
	require.NoError(t, err)
	require.NotNil(t, seenStored, "subscriber must run before SignIn returns")
	assert.True(t, seenStored.IsAuthenticated)
}

func TestProvider_SignIn_FailureLeavesSessionUnchanged(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"rejected credentials", &AuthError{Kind: KindAuthentication, Status: 401}, ErrAuthentication},
		{"api down", &AuthError{Kind: KindNetwork}, ErrNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockClient{signInFn: func(context.Context, Credentials) (*AuthResult, error) {
				return nil, tt.err
			}}
			p, store, _ := newTestProvider(t, client)
			rec := &recorder{}
			p.Subscribe(rec.listen)

			// An existing session survives a failed attempt.
			prior, _ := NewAuthenticatedSession("t0", &User{ID: "9"}, time.Time{}, testNow)
			require.NoError(t, store.Save(context.Background(), "sid", prior))

			s, err := p.SignIn(context.Background(), "sid", Credentials{Email: "a@b.com", Password: "bad"})
			assert.Nil(t, s)
			assert.ErrorIs(t, err, tt.want)

			stored, _ := store.Load(context.Background(), "sid")
			assert.Equal(t, prior, stored)
			assert.Equal(t, []EventType{EventSignInFailed}, rec.types())
		})
	}
}

func TestProvider_SignIn_CancelledCallerDiscardsResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &mockClient{signInFn: func(context.Context, Credentials) (*AuthResult, error) {
		// The browser navigates away while the API answers.
		cancel()
		return &AuthResult{Token: "t1", User: &User{ID: "1"}}, nil
	}}
	p, store, _ := newTestProvider(t, client)
	rec := &recorder{}
	p.Subscribe(rec.listen)

	_, err := p.SignIn(ctx, "sid", Credentials{Email: "a@b.com", Password: "pw"})
	assert.ErrorIs(t, err, context.Canceled)

	stored, _ := store.Load(context.Background(), "sid")
	assert.False(t, stored.IsAuthenticated)
	assert.Empty(t, rec.types())
}

func TestProvider_SignIn_HonoursReportedExpiry(t *testing.T) {
	exp := testNow.Add(time.Hour)
	client := &mockClient{signInFn: func(context.Context, Credentials) (*AuthResult, error) {
		return &AuthResult{Token: "opaque", User: &User{ID: "1"}, ExpiresAt: exp}, nil
	}}
	p, _, _ := newTestProvider(t, client)

	s, err := p.SignIn(context.Background(), "sid", Credentials{Email: "a@b.com", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, exp, s.ExpiresAt)
}

func TestProvider_SignUp(t *testing.T) {
	client := &mockClient{signUpFn: func(_ context.Context, in SignUpInput) (*AuthResult, error) {
		if in.Email == "taken@b.com" {
			return nil, &AuthError{Kind: KindValidation, Status: 409, Message: "Email already registered"}
		}
		return &AuthResult{Token: "t9", User: &User{ID: "9", Email: in.Email}}, nil
	}}
	p, _, _ := newTestProvider(t, client)
	rec := &recorder{}
	p.Subscribe(rec.listen)

	_, err := p.SignUp(context.Background(), "sid1", SignUpInput{Email: "taken@b.com", Password: "password1"})
	assert.ErrorIs(t, err, ErrValidation)

	s, err := p.SignUp(context.Background(), "sid2", SignUpInput{Email: "new@b.com", Password: "password1"})
	require.NoError(t, err)
	assert.True(t, s.IsAuthenticated)
	assert.Equal(t, "t9", s.Token)
	assert.Equal(t, []EventType{EventSignUpFailed, EventSignedUp}, rec.types())
}

func TestProvider_SignOut_FromAnyState(t *testing.T) {
	client := &mockClient{signInFn: acceptAll}
	p, store, _ := newTestProvider(t, client)
	ctx := context.Background()

	// From unauthenticated.
	s := p.SignOut(ctx, "")
	assert.False(t, s.IsAuthenticated)
	assert.Nil(t, s.User)
	assert.Empty(t, s.Token)

	// From authenticated.
	_, err := p.SignIn(ctx, "sid", Credentials{Email: "a@b.com", Password: "pw"})
	require.NoError(t, err)
	s = p.SignOut(ctx, "sid")
	assert.False(t, s.IsAuthenticated)
	assert.Nil(t, s.User)
	assert.Empty(t, s.Token)

	stored, _ := store.Load(ctx, "sid")
	assert.False(t, stored.IsAuthenticated)
}

func TestProvider_SignOut_TwiceEqualsOnce(t *testing.T) {
	client := &mockClient{signInFn: acceptAll}
	p, store, _ := newTestProvider(t, client)
	rec := &recorder{}
	p.Subscribe(rec.listen)
	ctx := context.Background()

	_, err := p.SignIn(ctx, "sid", Credentials{Email: "a@b.com", Password: "pw"})
	require.NoError(t, err)

	first := p.SignOut(ctx, "sid")
	second := p.SignOut(ctx, "sid")
	assert.Equal(t, first, second)

	stored, _ := store.Load(ctx, "sid")
	assert.Equal(t, UnauthenticatedSession(), stored)
	assert.Equal(t, []EventType{EventSignedIn, EventSignedOut}, rec.types())

	p.Wait()
	assert.Equal(t, []string{"t1"}, client.signOuts(), "the API is told once")
}

func TestProvider_SignOut_APIFailureDoesNotMatter(t *testing.T) {
	client := &mockClient{
		signInFn: acceptAll,
		signOutFn: func(context.Context, string) error {
			return &AuthError{Kind: KindNetwork}
		},
	}
	p, _, _ := newTestProvider(t, client)
	ctx := context.Background()

	_, err := p.SignIn(ctx, "sid", Credentials{Email: "a@b.com", Password: "pw"})
	require.NoError(t, err)

	s := p.SignOut(ctx, "sid")
	assert.False(t, s.IsAuthenticated)
	p.Wait()
}

func TestProvider_SignOut_OutlivesRequestContext(t *testing.T) {
	var apiCtxErr error
	client := &mockClient{
		signInFn: acceptAll,
		signOutFn: func(ctx context.Context, _ string) error {
			apiCtxErr = ctx.Err()
			return nil
		},
	}
	p, _, _ := newTestProvider(t, client)

	_, err := p.SignIn(context.Background(), "sid", Credentials{Email: "a@b.com", Password: "pw"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	p.SignOut(ctx, "sid")
	cancel()
	p.Wait()
	assert.NoError(t, apiCtxErr)
}

func TestProvider_Load_ClearsExpiredSession(t *testing.T) {
	p, store, clk := newTestProvider(t, &mockClient{})
	rec := &recorder{}
	p.Subscribe(rec.listen)
	ctx := context.Background()

	s, _ := NewAuthenticatedSession("t1", &User{ID: "1"}, testNow.Add(time.Minute), testNow)
	require.NoError(t, store.Save(ctx, "sid", s))

	clk.Advance(2 * time.Minute)
	got, err := p.Load(ctx, "sid")
	require.NoError(t, err)
	assert.False(t, got.IsAuthenticated)
	assert.Equal(t, []EventType{EventSessionExpired}, rec.types())

	stored, _ := store.Load(ctx, "sid")
	assert.False(t, stored.IsAuthenticated)
}

func TestProvider_Restore(t *testing.T) {
	tests := []struct {
		name     string
		meErr    error
		wantAuth bool
		wantType []EventType
	}{
		{"token still good", nil, true, []EventType{EventSessionRestored}},
		{"token revoked", &AuthError{Kind: KindAuthentication, Status: 401}, false, []EventType{EventSessionExpired}},
		{"api unreachable keeps session", &AuthError{Kind: KindNetwork}, true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockClient{meFn: func(_ context.Context, token string) (*User, error) {
				if tt.meErr != nil {
					return nil, tt.meErr
				}
				return &User{ID: "1", Email: "new@b.com"}, nil
			}}
			p, store, clk := newTestProvider(t, client)
			rec := &recorder{}
			p.Subscribe(rec.listen)
			ctx := context.Background()

			s, _ := NewAuthenticatedSession("t1", &User{ID: "1", Email: "a@b.com"}, time.Time{}, testNow)
			require.NoError(t, store.Save(ctx, "sid", s))
			clk.Advance(10 * time.Minute)

			got, err := p.Restore(ctx, "sid", s)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAuth, got.IsAuthenticated)
			assert.Equal(t, tt.wantType, rec.types())

			stored, _ := store.Load(ctx, "sid")
			assert.Equal(t, tt.wantAuth, stored.IsAuthenticated)
			if tt.meErr == nil {
				assert.Equal(t, clk.Now(), stored.ValidatedAt)
				assert.Equal(t, "new@b.com", stored.User.Email)
			}
		})
	}
}

func TestProvider_Unsubscribe(t *testing.T) {
	p, _, _ := newTestProvider(t, &mockClient{signInFn: acceptAll})
	rec := &recorder{}
	unsubscribe := p.Subscribe(rec.listen)
	unsubscribe()
	unsubscribe()

	_, err := p.SignIn(context.Background(), "sid", Credentials{Email: "a@b.com", Password: "pw"})
	require.NoError(t, err)
	assert.Empty(t, rec.types())
}

func TestProvider_EventsCarryRequestMeta(t *testing.T) {
	p, _, _ := newTestProvider(t, &mockClient{signInFn: acceptAll})
	rec := &recorder{}
	p.Subscribe(rec.listen)

	ctx := WithRequestMeta(context.Background(), RequestMeta{RemoteIP: "192.0.2.1", UserAgent: "test"})
	_, err := p.SignIn(ctx, "sid", Credentials{Email: "a@b.com", Password: "pw"})
	require.NoError(t, err)

	require.Len(t, rec.events, 1)
	assert.Equal(t, "192.0.2.1", rec.events[0].Meta.RemoteIP)
	assert.Equal(t, testNow, rec.events[0].At)
	assert.Equal(t, "1", rec.events[0].User.ID)
}

func TestProvider_SubmitLock(t *testing.T) {
	p, _, _ := newTestProvider(t, &mockClient{})
	ctx := context.Background()

	ok, err := p.AcquireSubmit(ctx, "sid")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.AcquireSubmit(ctx, "sid")
	require.NoError(t, err)
	assert.False(t, ok)

	p.ReleaseSubmit(ctx, "sid")
	ok, err = p.AcquireSubmit(ctx, "sid")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAuthError_Error(t *testing.T) {
	err := &AuthError{Kind: KindNetwork, Status: 502, Err: errors.New("dial tcp")}
	assert.Equal(t, "auth network error (status 502): dial tcp", err.Error())
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}
