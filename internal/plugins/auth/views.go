package auth

import (
	"context"
	"io"

	"github.com/a-h/templ"

	"github.com/keyxmakerx/authportal/internal/templates/layouts"
)

// loginView is what the login form shows.
type loginView struct {
	Email string
	Next  string
	Error string
}

// signupView is what the signup form shows. Passwords are never echoed back.
type signupView struct {
	Email       string
	DisplayName string
	Error       string
}

// LoginPage renders the full login page.
func LoginPage(v loginView) templ.Component {
	return layouts.Base("Log in", LoginForm(v))
}

// LoginForm renders the login form alone, for HTMX swaps.
func LoginForm(v loginView) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := layouts.NewHTML(w)
		h.Raw(`<section id="login"><h1>Log in</h1>`)
		formError(h, v.Error)
		h.Raw(`<form method="post" action="/login" hx-post="/login" hx-target="#login" hx-swap="outerHTML">`)
		h.Component(ctx, layouts.CSRFField(ctx))
		if v.Next != "" {
			h.Raw(`<input type="hidden" name="next" value="`).Text(v.Next).Raw(`">`)
		}
		h.Raw(`<label for="email">Email</label>`)
		h.Raw(`<input type="email" id="email" name="email" autocomplete="username" required value="`).Text(v.Email).Raw(`">`)
		h.Raw(`<label for="password">Password</label>`)
		h.Raw(`<input type="password" id="password" name="password" autocomplete="current-password" required>`)
		h.Raw(`<button type="submit">Log in</button></form>`)
		h.Raw(`<p>No account yet? <a href="/signup">Sign up</a></p></section>`)
		return h.Err()
	})
}

// SignupPage renders the full signup page.
func SignupPage(v signupView) templ.Component {
	return layouts.Base("Sign up", SignupForm(v))
}

// SignupForm renders the signup form alone, for HTMX swaps.
func SignupForm(v signupView) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := layouts.NewHTML(w)
		h.Raw(`<section id="signup"><h1>Sign up</h1>`)
		formError(h, v.Error)
		h.Raw(`<form method="post" action="/signup" hx-post="/signup" hx-target="#signup" hx-swap="outerHTML">`)
		h.Component(ctx, layouts.CSRFField(ctx))
		h.Raw(`<label for="email">Email</label>`)
		h.Raw(`<input type="email" id="email" name="email" autocomplete="email" required value="`).Text(v.Email).Raw(`">`)
		h.Raw(`<label for="display_name">Display name</label>`)
		h.Raw(`<input type="text" id="display_name" name="display_name" autocomplete="nickname" value="`).Text(v.DisplayName).Raw(`">`)
		h.Raw(`<label for="password">Password</label>`)
		h.Raw(`<input type="password" id="password" name="password" autocomplete="new-password" required>`)
		h.Raw(`<label for="confirm">Confirm password</label>`)
		h.Raw(`<input type="password" id="confirm" name="confirm" autocomplete="new-password" required>`)
		h.Raw(`<button type="submit">Sign up</button></form>`)
		h.Raw(`<p>Already registered? <a href="/login">Log in</a></p></section>`)
		return h.Err()
	})
}

func formError(h *layouts.HTML, msg string) {
	if msg == "" {
		return
	}
	h.Raw(`<p class="form-error" role="alert">`).Text(msg).Raw(`</p>`)
}
