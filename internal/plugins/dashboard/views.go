package dashboard

import (
	"context"
	"io"
	"strconv"
	"time"

	"github.com/a-h/templ"

	"github.com/keyxmakerx/authportal/internal/plugins/audit"
	"github.com/keyxmakerx/authportal/internal/plugins/auth"
	"github.com/keyxmakerx/authportal/internal/templates/layouts"
)

// timeFormat is how event and expiry times are shown.
const timeFormat = "2006-01-02 15:04 MST"

// dashboardView is what the dashboard shows.
type dashboardView struct {
	User      *auth.User
	ExpiresAt time.Time

	ShowActivity   bool
	Events         []audit.AuthEvent
	RecentFailures int
}

// DashboardPage renders the full dashboard page.
func DashboardPage(v dashboardView) templ.Component {
	return layouts.Base("Dashboard", dashboardBody(v))
}

func dashboardBody(v dashboardView) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := layouts.NewHTML(w)
		h.Raw(`<section id="dashboard"><h1>Welcome, <span id="user-name">`).Text(v.User.Name()).Raw(`</span></h1>`)
		h.Raw(`<dl id="profile"><dt>Email</dt><dd id="user-email">`).Text(v.User.Email).Raw(`</dd>`)
		h.Raw(`<dt>User ID</dt><dd id="user-id">`).Text(v.User.ID).Raw(`</dd>`)
		if !v.ExpiresAt.IsZero() {
			h.Raw(`<dt>Session expires</dt><dd id="session-expires">`).Text(v.ExpiresAt.UTC().Format(timeFormat)).Raw(`</dd>`)
		}
		h.Raw(`</dl>`)

		if v.ShowActivity {
			activitySection(h, v)
		}

		h.Raw(`<form method="post" action="/logout" id="logout">`)
		h.Component(ctx, layouts.CSRFField(ctx))
		h.Raw(`<button type="submit">Sign out</button></form></section>`)
		return h.Err()
	})
}

func activitySection(h *layouts.HTML, v dashboardView) {
	h.Raw(`<section id="activity"><h2>Recent activity</h2>`)
	if v.RecentFailures > 0 {
		h.Raw(`<p class="warning" id="recent-failures">`).
			Text(strconv.Itoa(v.RecentFailures)).
			Raw(` failed sign-in attempt(s) in the last 24 hours.</p>`)
	}
	if len(v.Events) == 0 {
		h.Raw(`<p class="empty">No activity yet.</p></section>`)
		return
	}
	h.Raw(`<ul>`)
	for _, e := range v.Events {
		h.Raw(`<li class="event" data-action="`).Text(e.Action).Raw(`">`)
		h.Raw(`<time datetime="`).Text(e.CreatedAt.UTC().Format(time.RFC3339)).Raw(`">`).
			Text(e.CreatedAt.UTC().Format(timeFormat)).Raw(`</time> `)
		h.Text(e.Label())
		if e.RemoteIP != "" {
			h.Raw(` <span class="ip">from `).Text(e.RemoteIP).Raw(`</span>`)
		}
		h.Raw(`</li>`)
	}
	h.Raw(`</ul></section>`)
}
