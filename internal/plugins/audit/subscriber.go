package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/keyxmakerx/authportal/internal/plugins/auth"
	"github.com/keyxmakerx/authportal/internal/sanitize"
)

// maxUserAgentLen matches the user_agent column width.
const maxUserAgentLen = 255

// recorded maps the auth events worth keeping to their actions. Restored
// sessions are routine and left out.
var recorded = map[auth.EventType]string{
	auth.EventSignedIn:       ActionSignedIn,
	auth.EventSignedUp:       ActionSignedUp,
	auth.EventSignedOut:      ActionSignedOut,
	auth.EventSignInFailed:   ActionSignInFailed,
	auth.EventSignUpFailed:   ActionSignUpFailed,
	auth.EventSessionExpired: ActionSessionExpired,
}

// Recorder turns auth Provider events into log writes. Writes run in the
// background with their own timeout so a slow database never delays a
// sign-in.
type Recorder struct {
	service AuditService
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewRecorder creates a Recorder writing through service.
func NewRecorder(service AuditService, timeout time.Duration) *Recorder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Recorder{service: service, timeout: timeout}
}

// Listen is an auth.Listener. Register it with Provider.Subscribe.
func (r *Recorder) Listen(ctx context.Context, e auth.Event) {
	event, ok := fromAuthEvent(e)
	if !ok {
		return
	}

	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		// Service.Log already logs failures.
		_ = r.service.Log(bg, event)
	}()
}

// Wait blocks until pending writes are done.
func (r *Recorder) Wait() {
	r.wg.Wait()
}

// fromAuthEvent builds the log row for e, or reports false when e is not
// recorded.
func fromAuthEvent(e auth.Event) (*AuthEvent, bool) {
	action, ok := recorded[e.Type]
	if !ok {
		return nil, false
	}

	event := &AuthEvent{
		EventID:    uuid.NewString(),
		SessionRef: sessionRef(e.SessionID),
		Action:     action,
		RemoteIP:   e.Meta.RemoteIP,
		UserAgent:  truncate(sanitize.Text(e.Meta.UserAgent), maxUserAgentLen),
		CreatedAt:  e.At,
		Email:      e.Email,
	}
	if e.User != nil {
		event.UserID = e.User.ID
		event.Email = e.User.Email
	}
	if e.Err != nil {
		event.Details = map[string]any{"kind": string(auth.KindOf(e.Err))}
	}
	return event, true
}

// sessionRef hashes a session id down to 16 hex characters.
func sessionRef(id string) string {
	if id == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:8])
}

func truncate(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n])
	}
	return s
}
