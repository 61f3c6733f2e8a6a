// Package pages holds app-wide pages that belong to no plugin.
package pages

import (
	"context"
	"io"
	"strconv"

	"github.com/a-h/templ"

	"github.com/keyxmakerx/authportal/internal/templates/layouts"
)

// ErrorPage renders a full error page for browser requests.
func ErrorPage(code int, message string) templ.Component {
	return layouts.Base("Error", ErrorFragment(code, message))
}

// ErrorFragment renders the error box alone, for HTMX swaps.
func ErrorFragment(code int, message string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := layouts.NewHTML(w)
		h.Raw(`<section class="error" id="error"><h1>`).Text(strconv.Itoa(code)).Raw(`</h1>`)
		h.Raw(`<p class="error-message">`).Text(message).Raw(`</p>`)
		if id := layouts.GetRequestID(ctx); id != "" {
			h.Raw(`<p class="request-id">Request ID: <code>`).Text(id).Raw(`</code></p>`)
		}
		h.Raw(`<p><a href="/">Back to safety</a></p></section>`)
		return h.Err()
	})
}
