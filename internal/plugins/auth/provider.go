package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// EventType names a session state change announced to subscribers.
type EventType string

const (
	EventSignedIn        EventType = "auth.signed_in"
	EventSignedUp        EventType = "auth.signed_up"
	EventSignedOut       EventType = "auth.signed_out"
	EventSignInFailed    EventType = "auth.sign_in_failed"
	EventSignUpFailed    EventType = "auth.sign_up_failed"
	EventSessionExpired  EventType = "auth.session_expired"
	EventSessionRestored EventType = "auth.session_restored"
)

// Event describes one state change. Session is the state after the change;
// User is the user it concerns (the signed-out user for EventSignedOut).
type Event struct {
	Type      EventType
	SessionID string
	Session   *Session
	User      *User

	// Email is set on failures, where there is no User.
	Email string

	// Err is the failure for EventSignInFailed and EventSignUpFailed.
	Err error

	Meta RequestMeta
	At   time.Time
}

// Listener receives events synchronously, before the operation that caused
// them returns. Listeners must not block; slow work belongs in a goroutine.
type Listener func(ctx context.Context, e Event)

// RequestMeta is request information attached to events for auditing.
type RequestMeta struct {
	RemoteIP  string
	UserAgent string
}

type requestMetaKey struct{}

// WithRequestMeta stores meta in ctx for the Provider's events.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

func requestMetaFrom(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta
}

// ProviderConfig tunes the Provider.
type ProviderConfig struct {
	// RevalidateInterval is how long a session is trusted before the guard
	// re-checks it with the API. Zero disables revalidation.
	RevalidateInterval time.Duration

	// SignOutTimeout bounds the background logout call to the API.
	SignOutTimeout time.Duration

	// SubmitLockTTL caps how long one login/signup submission holds the lock.
	SubmitLockTTL time.Duration

	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// Provider owns every session write. It calls the auth API, persists the
// outcome through the SessionStore and tells subscribers about it.
type Provider struct {
	client AuthClient
	store  SessionStore
	cfg    ProviderConfig

	mu        sync.RWMutex
	listeners map[int]Listener
	nextID    int

	// pending tracks background logout calls.
	pending sync.WaitGroup
}

// NewProvider creates a Provider. It is built once in app and shared by the
// middleware, the guard and every handler.
func NewProvider(client AuthClient, store SessionStore, cfg ProviderConfig) *Provider {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.SignOutTimeout <= 0 {
		cfg.SignOutTimeout = 5 * time.Second
	}
	if cfg.SubmitLockTTL <= 0 {
		cfg.SubmitLockTTL = 30 * time.Second
	}
	return &Provider{
		client:    client,
		store:     store,
		cfg:       cfg,
		listeners: make(map[int]Listener),
	}
}

// Subscribe registers l and returns a function that removes it.
func (p *Provider) Subscribe(l Listener) (unsubscribe func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = l
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

func (p *Provider) notify(ctx context.Context, e Event) {
	e.Meta = requestMetaFrom(ctx)
	e.At = p.cfg.Now().UTC()

	p.mu.RLock()
	listeners := make([]Listener, 0, len(p.listeners))
	for _, l := range p.listeners {
		listeners = append(listeners, l)
	}
	p.mu.RUnlock()

	for _, l := range listeners {
		l(ctx, e)
	}
}

// Now returns the Provider's clock reading.
func (p *Provider) Now() time.Time {
	return p.cfg.Now()
}

// RevalidateInterval returns how long a validated session is trusted.
func (p *Provider) RevalidateInterval() time.Duration {
	return p.cfg.RevalidateInterval
}

// Load returns the session stored under id. An expired session is cleared,
// announced and returned as unauthenticated.
func (p *Provider) Load(ctx context.Context, id string) (*Session, error) {
	session, err := p.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.IsAuthenticated && session.Expired(p.cfg.Now()) {
		return p.Expire(ctx, id, session), nil
	}
	return session, nil
}

// SignIn exchanges credentials for a token and stores the new session under
// id. On failure nothing is written and the error is an *AuthError (or the
// context error when the caller went away mid-flight).
func (p *Provider) SignIn(ctx context.Context, id string, creds Credentials) (*Session, error) {
	result, err := p.client.SignIn(ctx, creds)
	// The caller is gone; whatever the API said is not applied.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		slog.Warn("sign in failed",
			slog.String("email", normalizeEmail(creds.Email)),
			slog.String("kind", string(KindOf(err))),
			slog.Any("error", err),
		)
		p.notify(ctx, Event{Type: EventSignInFailed, SessionID: id, Email: normalizeEmail(creds.Email), Err: err})
		return nil, err
	}

	session, err := p.establish(ctx, id, result)
	if err != nil {
		return nil, err
	}
	slog.Info("user signed in",
		slog.String("user_id", session.User.ID),
		slog.String("email", session.User.Email),
	)
	p.notify(ctx, Event{Type: EventSignedIn, SessionID: id, Session: session.Clone(), User: session.User})
	return session, nil
}

// SignUp creates an account through the API and signs the new user in.
func (p *Provider) SignUp(ctx context.Context, id string, input SignUpInput) (*Session, error) {
	result, err := p.client.SignUp(ctx, input)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		slog.Warn("sign up failed",
			slog.String("email", normalizeEmail(input.Email)),
			slog.String("kind", string(KindOf(err))),
			slog.Any("error", err),
		)
		p.notify(ctx, Event{Type: EventSignUpFailed, SessionID: id, Email: normalizeEmail(input.Email), Err: err})
		return nil, err
	}

	session, err := p.establish(ctx, id, result)
	if err != nil {
		return nil, err
	}
	slog.Info("user signed up",
		slog.String("user_id", session.User.ID),
		slog.String("email", session.User.Email),
	)
	p.notify(ctx, Event{Type: EventSignedUp, SessionID: id, Session: session.Clone(), User: session.User})
	return session, nil
}

func (p *Provider) establish(ctx context.Context, id string, result *AuthResult) (*Session, error) {
	if result == nil {
		return nil, networkError(0, errors.New("empty auth result"))
	}
	expiresAt := effectiveExpiry(result.ExpiresAt, result.Token)
	session, err := NewAuthenticatedSession(result.Token, result.User, expiresAt, p.cfg.Now())
	if err != nil {
		return nil, networkError(0, err)
	}
	if err := p.store.Save(ctx, id, session); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}
	return session, nil
}

// SignOut clears the session under id and always returns the
// unauthenticated session. The API is told in the background; its answer
// only gets logged.
func (p *Provider) SignOut(ctx context.Context, id string) *Session {
	previous, err := p.store.Load(ctx, id)
	if err != nil {
		slog.Warn("loading session for sign out", slog.Any("error", err))
		previous = UnauthenticatedSession()
	}
	if err := p.store.Delete(context.WithoutCancel(ctx), id); err != nil {
		slog.Error("deleting session on sign out",
			slog.String("user_id", userID(previous)),
			slog.Any("error", err),
		)
	}

	if !previous.IsAuthenticated {
		return UnauthenticatedSession()
	}

	p.notifyAPISignOut(ctx, previous.Token)
	slog.Info("user signed out", slog.String("user_id", previous.User.ID))
	p.notify(ctx, Event{Type: EventSignedOut, SessionID: id, Session: UnauthenticatedSession(), User: previous.User})
	return UnauthenticatedSession()
}

// notifyAPISignOut calls the API logout endpoint without holding up the
// caller. The call outlives the request but not SignOutTimeout.
func (p *Provider) notifyAPISignOut(ctx context.Context, token string) {
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.SignOutTimeout)
	p.pending.Add(1)
	go func() {
		defer p.pending.Done()
		defer cancel()
		if err := p.client.SignOut(bg, token); err != nil {
			slog.Warn("auth API sign out failed", slog.Any("error", err))
		}
	}()
}

// Wait blocks until background logout calls have finished.
func (p *Provider) Wait() {
	p.pending.Wait()
}

// Restore re-checks session against the API. A rejected token clears the
// session. An unreachable API keeps it: users are not signed out because
// the API blipped. Otherwise the session is refreshed.
func (p *Provider) Restore(ctx context.Context, id string, session *Session) (*Session, error) {
	if !session.IsAuthenticated {
		return session, nil
	}

	user, err := p.client.Me(ctx, session.Token)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return session, ctxErr
	}
	if errors.Is(err, ErrAuthentication) {
		return p.Expire(ctx, id, session), nil
	}
	if err != nil {
		slog.Warn("session revalidation failed, keeping session",
			slog.String("user_id", session.User.ID),
			slog.Any("error", err),
		)
		return session, nil
	}

	restored := session.Clone()
	if user != nil && user.ID == session.User.ID {
		restored.User = user
	}
	restored.ValidatedAt = p.cfg.Now().UTC()
	if err := p.store.Save(ctx, id, restored); err != nil {
		return session, fmt.Errorf("saving restored session: %w", err)
	}
	p.notify(ctx, Event{Type: EventSessionRestored, SessionID: id, Session: restored.Clone(), User: restored.User})
	return restored, nil
}

// Expire clears session under id because its token is no longer good.
func (p *Provider) Expire(ctx context.Context, id string, session *Session) *Session {
	if err := p.store.Delete(ctx, id); err != nil {
		slog.Error("deleting expired session", slog.Any("error", err))
	}
	slog.Info("session expired", slog.String("user_id", userID(session)))
	p.notify(ctx, Event{Type: EventSessionExpired, SessionID: id, Session: UnauthenticatedSession(), User: session.User})
	return UnauthenticatedSession()
}

// Discard drops the entry under id without announcing anything. Used when
// a sign-in rotates the browser to a fresh session id.
func (p *Provider) Discard(ctx context.Context, id string) {
	if err := p.store.Delete(ctx, id); err != nil {
		slog.Warn("discarding rotated session", slog.Any("error", err))
	}
}

// AcquireSubmit takes the per-session submit lock.
func (p *Provider) AcquireSubmit(ctx context.Context, id string) (bool, error) {
	return p.store.AcquireSubmit(ctx, id, p.cfg.SubmitLockTTL)
}

// ReleaseSubmit drops the per-session submit lock.
func (p *Provider) ReleaseSubmit(ctx context.Context, id string) {
	if err := p.store.ReleaseSubmit(context.WithoutCancel(ctx), id); err != nil {
		slog.Warn("releasing submit lock", slog.Any("error", err))
	}
}

func userID(s *Session) string {
	if s == nil || s.User == nil {
		return ""
	}
	return s.User.ID
}
