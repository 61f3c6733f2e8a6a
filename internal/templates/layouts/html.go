package layouts

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// HTML writes markup for hand-built templ components. The first write error
// sticks and every later call becomes a no-op, so components can write
// freely and check Err once at the end.
type HTML struct {
	w   io.Writer
	err error
}

// NewHTML wraps w.
func NewHTML(w io.Writer) *HTML {
	return &HTML{w: w}
}

// Raw writes trusted markup as-is. Never pass user or API data here.
func (h *HTML) Raw(s string) *HTML {
	if h.err == nil {
		_, h.err = io.WriteString(h.w, s)
	}
	return h
}

// Text writes s escaped for element content and attribute values.
func (h *HTML) Text(s string) *HTML {
	return h.Raw(templ.EscapeString(s))
}

// Component renders a child component in place.
func (h *HTML) Component(ctx context.Context, c templ.Component) *HTML {
	if h.err == nil && c != nil {
		h.err = c.Render(ctx, h.w)
	}
	return h
}

// Err returns the first write error.
func (h *HTML) Err() error {
	return h.err
}

// CSRFField renders the hidden CSRF input every POST form needs.
func CSRFField(ctx context.Context) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		h := NewHTML(w)
		h.Raw(`<input type="hidden" name="csrf_token" value="`).Text(GetCSRFToken(ctx)).Raw(`">`)
		return h.Err()
	})
}

// Base is the page shell: document head, a minimal nav reflecting the
// session, and the page body.
func Base(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := NewHTML(w)
		h.Raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		h.Raw(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		h.Raw(`<title>`).Text(title).Raw(` · authportal</title></head><body>`)

		h.Raw(`<nav id="nav">`)
		if IsAuthenticated(ctx) {
			h.Raw(`<span id="nav-user" title="`).Text(GetUserEmail(ctx)).Raw(`">`).Text(GetUserName(ctx)).Raw(`</span> `)
			navLink(ctx, h, "/dashboard", "Dashboard")
			h.Raw(`<form method="post" action="/logout" id="nav-logout">`)
			h.Component(ctx, CSRFField(ctx))
			h.Raw(`<button type="submit">Sign out</button></form>`)
		} else {
			navLink(ctx, h, "/login", "Log in")
			navLink(ctx, h, "/signup", "Sign up")
		}
		h.Raw(`</nav><main>`)

		h.Component(ctx, body)

		h.Raw(`</main></body></html>`)
		return h.Err()
	})
}

// navLink writes a nav anchor, marking it current when it matches the
// request path.
func navLink(ctx context.Context, h *HTML, href, label string) {
	h.Raw(`<a href="`).Text(href).Raw(`"`)
	if GetActivePath(ctx) == href {
		h.Raw(` aria-current="page"`)
	}
	h.Raw(`>`).Text(label).Raw(`</a> `)
}
