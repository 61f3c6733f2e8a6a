package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxErrorBody caps how much of an error response body is read for its message.
const maxErrorBody = 4 << 10

// AuthClient talks to the external authentication API. Each method is one
// request/response with no retries and no state kept between calls.
type AuthClient interface {
	SignIn(ctx context.Context, creds Credentials) (*AuthResult, error)
	SignUp(ctx context.Context, input SignUpInput) (*AuthResult, error)
	SignOut(ctx context.Context, token string) error
	Me(ctx context.Context, token string) (*User, error)
}

// HTTPClient is the net/http implementation of AuthClient.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

var _ AuthClient = (*HTTPClient)(nil)

// NewHTTPClient creates a client for the API at baseURL. timeout bounds
// every call.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// authPayload is the body of a successful /login or /signup answer.
type authPayload struct {
	Token     string       `json:"token"`
	User      *userPayload `json:"user"`
	ExpiresAt string       `json:"expires_at"`
}

// userPayload accepts the user id as either a JSON number or a string.
type userPayload struct {
	ID          json.RawMessage `json:"id"`
	Email       string          `json:"email"`
	DisplayName string          `json:"display_name"`
}

type mePayload struct {
	User *userPayload `json:"user"`
}

type errorPayload struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// SignIn posts credentials to /login.
func (c *HTTPClient) SignIn(ctx context.Context, creds Credentials) (*AuthResult, error) {
	body := map[string]string{
		"email":    normalizeEmail(creds.Email),
		"password": creds.Password,
	}
	return c.authenticate(ctx, "login", body)
}

// SignUp posts a new account to /signup.
func (c *HTTPClient) SignUp(ctx context.Context, input SignUpInput) (*AuthResult, error) {
	body := map[string]string{
		"email":        normalizeEmail(input.Email),
		"password":     input.Password,
		"display_name": strings.TrimSpace(input.DisplayName),
	}
	return c.authenticate(ctx, "signup", body)
}

// SignOut tells the API to invalidate token.
func (c *HTTPClient) SignOut(ctx context.Context, token string) error {
	resp, err := c.do(ctx, http.MethodPost, "logout", token, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	// A token the API no longer knows is already signed out.
	if resp.StatusCode == http.StatusUnauthorized {
		return nil
	}
	if resp.StatusCode >= 400 {
		return classify(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Me returns the user the API associates with token.
func (c *HTTPClient) Me(ctx context.Context, token string) (*User, error) {
	resp, err := c.do(ctx, http.MethodGet, "me", token, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, classify(resp)
	}

	var payload mePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, networkError(resp.StatusCode, fmt.Errorf("decoding /me response: %w", err))
	}
	user, err := payload.User.toUser()
	if err != nil {
		return nil, networkError(resp.StatusCode, err)
	}
	return user, nil
}

func (c *HTTPClient) authenticate(ctx context.Context, path string, body map[string]string) (*AuthResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, http.MethodPost, path, "", payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, classify(resp)
	}

	var out authPayload
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, networkError(resp.StatusCode, fmt.Errorf("decoding /%s response: %w", path, err))
	}
	if strings.TrimSpace(out.Token) == "" {
		return nil, networkError(resp.StatusCode, fmt.Errorf("/%s response carried no token", path))
	}
	user, err := out.User.toUser()
	if err != nil {
		return nil, networkError(resp.StatusCode, err)
	}

	return &AuthResult{
		Token:     out.Token,
		User:      user,
		ExpiresAt: parseExpiry(out.ExpiresAt),
	}, nil
}

// do sends one request. Transport failures come back as network errors.
func (c *HTTPClient) do(ctx context.Context, method, path, token string, payload []byte) (*http.Response, error) {
	endpoint, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return nil, fmt.Errorf("building %s url: %w", path, err)
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Cancellation belongs to the caller, not the API.
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, ctxErr
		}
		return nil, networkError(0, err)
	}
	return resp, nil
}

// classify maps an error status to an AuthError.
func classify(resp *http.Response) error {
	msg := readMessage(resp.Body)
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AuthError{Kind: KindAuthentication, Status: resp.StatusCode, Message: msg}
	case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
		return &AuthError{Kind: KindValidation, Status: resp.StatusCode, Message: msg}
	}
	// 5xx, and any 4xx outside the contract, count as the service failing.
	return &AuthError{Kind: KindNetwork, Status: resp.StatusCode, Message: msg}
}

// readMessage extracts "message" (or "error") from a JSON error body, or
// the trimmed body text when it is not JSON.
func readMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload errorPayload
	if json.Unmarshal(data, &payload) == nil {
		if payload.Message != "" {
			return strings.TrimSpace(payload.Message)
		}
		return strings.TrimSpace(payload.Error)
	}
	return strings.TrimSpace(string(data))
}

func (p *userPayload) toUser() (*User, error) {
	if p == nil {
		return nil, errors.New("response carried no user")
	}
	id := strings.Trim(strings.TrimSpace(string(p.ID)), `"`)
	if id == "" || id == "null" {
		return nil, errors.New("response user has no id")
	}
	return &User{
		ID:          id,
		Email:       strings.TrimSpace(p.Email),
		DisplayName: strings.TrimSpace(p.DisplayName),
	}, nil
}

// parseExpiry reads an RFC 3339 timestamp; anything else means "unknown".
func parseExpiry(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
