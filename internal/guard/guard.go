package guard

import (
	"fmt"
	"log/slog"

	"eduhub/internal/session"
	"eduhub/internal/tokenfile"
)

// State is the externally observable authentication state. There is no
// loading state; during resolution the guard still reports unauthenticated,
// and the transition fires only once resolution has succeeded.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticated   State = "authenticated"
)

// Route names a front-end view.
type Route string

const (
	RouteLanding   Route = "landing"
	RouteLogin     Route = "login"
	RouteSignup    Route = "signup"
	RouteDashboard Route = "dashboard"
	RouteCourse    Route = "course"
)

func isProtected(r Route) bool {
	return r == RouteDashboard || r == RouteCourse
}

func isEntry(r Route) bool {
	return r == RouteLanding || r == RouteLogin || r == RouteSignup
}

// Guard gates navigation on the session state and drives startup
// rehydration. Token presence alone never authenticates; a persisted token
// only counts once the session store has resolved it.
type Guard struct {
	sessions *session.Store
	tokens   *tokenfile.Store
}

// New constructs the route guard.
func New(sessions *session.Store, tokens *tokenfile.Store) *Guard {
	return &Guard{sessions: sessions, tokens: tokens}
}

// State reports the current authentication state.
func (g *Guard) State() State {
	if _, _, ok := g.sessions.Current(); ok {
		return StateAuthenticated
	}
	return StateUnauthenticated
}

// Bootstrap runs at application start: if a token was persisted, it is
// handed to the session store for rehydration. A failed rehydration is a
// normal unauthenticated start, not an error; the session store has already
// discarded the bad token.
func (g *Guard) Bootstrap() error {
	token, err := g.tokens.Load()
	if err != nil {
		return fmt.Errorf("load persisted token: %w", err)
	}
	if token == "" {
		return nil
	}
	if err := g.sessions.Rehydrate(token); err != nil {
		slog.Info("persisted token did not resolve, starting unauthenticated")
	}
	return nil
}

// Resolve maps a requested route to the route to actually show.
// Unauthenticated access to a protected view redirects to the landing page;
// an authenticated visitor asking for an entry view lands on the dashboard.
// Both are routing decisions, never reported as failures.
func (g *Guard) Resolve(requested Route) Route {
	authenticated := g.State() == StateAuthenticated
	if isProtected(requested) && !authenticated {
		return RouteLanding
	}
	if isEntry(requested) && authenticated {
		return RouteDashboard
	}
	return requested
}
