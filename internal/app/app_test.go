package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/authportal/internal/config"
	"github.com/keyxmakerx/authportal/internal/testutil"
)

// fakeAPI is a stand-in for the external auth API. It accepts a@b.com with
// password "pw" and records logouts.
type fakeAPI struct {
	mu      sync.Mutex
	logouts []string
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", onlyMethod(http.MethodPost, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		if body["email"] != "a@b.com" || body["password"] != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"invalid email or password"}`))
			return
		}
		_, _ = w.Write([]byte(`{"token":"t1","user":{"id":1,"email":"a@b.com"}}`))
	}))
	mux.HandleFunc("/logout", onlyMethod(http.MethodPost, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.logouts = append(f.logouts, r.Header.Get("Authorization"))
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	mux.HandleFunc("/me", onlyMethod(http.MethodGet, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"user":{"id":1,"email":"a@b.com"}}`))
	}))
	return mux
}

// onlyMethod restricts h to a single HTTP method, mirroring method-qualified
// ServeMux patterns (which require Go 1.22+).
func onlyMethod(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func (f *fakeAPI) loggedOut() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.logouts...)
}

type testApp struct {
	app *App
	api *fakeAPI
	srv *httptest.Server
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	api := &fakeAPI{}
	apiSrv := httptest.NewServer(api.handler())
	t.Cleanup(apiSrv.Close)

	_, rdb := testutil.NewRedis(t)
	cfg := &config.Config{
		Env:     "test",
		BaseURL: "http://portal.test",
		Auth: config.AuthConfig{
			SecretKey:            "test-secret-test-secret-test-secret!",
			SessionTTL:           time.Hour,
			APIURL:               apiSrv.URL,
			APITimeout:           2 * time.Second,
			RevalidateInterval:   5 * time.Minute,
			SignOutNotifyTimeout: time.Second,
			SubmitLockTTL:        10 * time.Second,
		},
	}

	a := New(cfg, nil, rdb)
	a.RegisterRoutes()
	srv := httptest.NewServer(a.Echo)
	t.Cleanup(func() {
		srv.Close()
		a.Provider.Wait()
	})
	return &testApp{app: a, api: api, srv: srv}
}

// client returns a cookie-keeping client that does not follow redirects.
func (ta *testApp) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (ta *testApp) get(t *testing.T, c *http.Client, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := c.Get(ta.srv.URL + path)
	require.NoError(t, err)
	return readBody(t, resp)
}

func (ta *testApp) post(t *testing.T, c *http.Client, path string, form url.Values) (*http.Response, []byte) {
	t.Helper()
	resp, err := c.PostForm(ta.srv.URL+path, form)
	require.NoError(t, err)
	return readBody(t, resp)
}

func readBody(t *testing.T, resp *http.Response) (*http.Response, []byte) {
	t.Helper()
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, []byte(buf.String())
}

// csrfToken loads the login page and reads the hidden CSRF field.
func (ta *testApp) csrfToken(t *testing.T, c *http.Client) string {
	t.Helper()
	resp, body := ta.get(t, c, "/login")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token, ok := testutil.ParseHTML(t, body).Find(`input[name="csrf_token"]`).First().Attr("value")
	require.True(t, ok)
	require.NotEmpty(t, token)
	return token
}

func (ta *testApp) login(t *testing.T, c *http.Client, email, password string) (*http.Response, []byte) {
	t.Helper()
	return ta.post(t, c, "/login", url.Values{
		"csrf_token": {ta.csrfToken(t, c)},
		"email":      {email},
		"password":   {password},
	})
}

// --- Tests ---

func TestRoot_RedirectsToDashboard(t *testing.T) {
	ta := newTestApp(t)
	resp, _ := ta.get(t, ta.client(t), "/")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))
}

func TestDashboard_RequiresSignIn(t *testing.T) {
	ta := newTestApp(t)
	resp, _ := ta.get(t, ta.client(t), "/dashboard")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login?next=%2Fdashboard", resp.Header.Get("Location"))
}

func TestSignInFlow(t *testing.T) {
	ta := newTestApp(t)
	c := ta.client(t)

	resp, _ := ta.login(t, c, "a@b.com", "pw")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))

	resp, body := ta.get(t, c, "/dashboard")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc := testutil.ParseHTML(t, body)
	assert.Equal(t, "a@b.com", doc.Find("#nav-user").Text())
	assert.Equal(t, "page", doc.Find(`#nav a[href="/dashboard"]`).AttrOr("aria-current", ""))
	assert.Equal(t, "a@b.com", doc.Find("#user-email").Text())
	assert.Equal(t, "1", doc.Find("#user-id").Text())

	resp, body = ta.get(t, c, "/api/v1/session")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, string(body), "t1")
	var view map[string]any
	require.NoError(t, json.Unmarshal(body, &view))
	assert.Equal(t, true, view["isAuthenticated"])
}

func TestSignIn_Rejected(t *testing.T) {
	ta := newTestApp(t)
	c := ta.client(t)

	resp, body := ta.login(t, c, "a@b.com", "wrong")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc := testutil.ParseHTML(t, body)
	assert.Equal(t, "Failed to log in", doc.Find(".form-error").Text())
	assert.Equal(t, "a@b.com", doc.Find("#email").AttrOr("value", ""))

	resp, _ = ta.get(t, c, "/dashboard")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestSignIn_RateLimitedRendersErrorPage(t *testing.T) {
	ta := newTestApp(t)
	c := ta.client(t)

	for i := 0; i < 10; i++ {
		resp, _ := ta.login(t, c, "a@b.com", "wrong")
		require.Equal(t, http.StatusOK, resp.StatusCode, "attempt %d", i+1)
	}

	resp, body := ta.login(t, c, "a@b.com", "pw")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))
	doc := testutil.ParseHTML(t, body)
	assert.Equal(t, "429", doc.Find("#error h1").Text())
	assert.Contains(t, doc.Find(".error-message").Text(), "Too many attempts")
}

func TestNav_MarksCurrentPage(t *testing.T) {
	ta := newTestApp(t)
	_, body := ta.get(t, ta.client(t), "/signup")
	doc := testutil.ParseHTML(t, body)
	assert.Equal(t, "page", doc.Find(`#nav a[href="/signup"]`).AttrOr("aria-current", ""))
	_, marked := doc.Find(`#nav a[href="/login"]`).Attr("aria-current")
	assert.False(t, marked)
}

func TestSignIn_RequiresCSRF(t *testing.T) {
	ta := newTestApp(t)
	c := ta.client(t)

	resp, body := ta.post(t, c, "/login", url.Values{"email": {"a@b.com"}, "password": {"pw"}})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "403", testutil.ParseHTML(t, body).Find("#error h1").Text())
}

func TestSignOutFlow(t *testing.T) {
	ta := newTestApp(t)
	c := ta.client(t)

	resp, _ := ta.login(t, c, "a@b.com", "pw")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	_, body := ta.get(t, c, "/dashboard")
	token, ok := testutil.ParseHTML(t, body).Find(`#logout input[name="csrf_token"]`).Attr("value")
	require.True(t, ok)

	resp, _ = ta.post(t, c, "/logout", url.Values{"csrf_token": {token}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	resp, _ = ta.get(t, c, "/dashboard")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	ta.app.Provider.Wait()
	assert.Equal(t, []string{"Bearer t1"}, ta.api.loggedOut())
}

func TestErrors_PageAndJSON(t *testing.T) {
	ta := newTestApp(t)
	c := ta.client(t)

	resp, body := ta.get(t, c, "/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	doc := testutil.ParseHTML(t, body)
	assert.Equal(t, "404", doc.Find("#error h1").Text())
	assert.NotEmpty(t, doc.Find(".request-id code").Text())

	resp, body = ta.get(t, c, "/api/v1/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "Not Found", payload["error"])
}

func TestErrors_DeadlineExceeded(t *testing.T) {
	ta := newTestApp(t)
	timedOut := func(echo.Context) error { return context.DeadlineExceeded }
	ta.app.Echo.GET("/slow", timedOut)
	ta.app.Echo.GET("/api/v1/slow", timedOut)
	c := ta.client(t)

	resp, body := ta.get(t, c, "/slow")
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
	assert.Equal(t, "504", testutil.ParseHTML(t, body).Find("#error h1").Text())

	resp, body = ta.get(t, c, "/api/v1/slow")
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "Gateway Timeout", payload["error"])
}

func TestActivityRoute_AbsentWithoutAudit(t *testing.T) {
	ta := newTestApp(t)
	resp, _ := ta.get(t, ta.client(t), "/api/v1/activity")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	ta := newTestApp(t)
	resp, body := ta.get(t, ta.client(t), "/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "ok", payload.Status)
	assert.Equal(t, "ok", payload.Checks["redis"])
	assert.NotContains(t, payload.Checks, "database")
}

func TestSecurityHeaders(t *testing.T) {
	ta := newTestApp(t)
	resp, _ := ta.get(t, ta.client(t), "/login")
	assert.NotEmpty(t, resp.Header.Get("Content-Security-Policy"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Empty(t, resp.Header.Get("Strict-Transport-Security"))
}
