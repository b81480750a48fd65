package session

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"eduhub/internal/backend"
	"eduhub/internal/tokenfile"
	"eduhub/pkg/domain"
)

var (
	// ErrNotAuthenticated indicates an operation that needs a resolved session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrStaleResponse indicates a completion that arrived after logout and
	// was discarded instead of applied.
	ErrStaleResponse = errors.New("stale response discarded")
)

// Config holds the collaborators of the session store.
type Config struct {
	Backend      *backend.Client
	Tokens       *tokenfile.Store
	WelcomeDelay time.Duration
	// OnWelcome fires once after a completed login, after WelcomeDelay.
	OnWelcome func(user domain.User)
	// OnNavigate signals the front end to move to the protected area. It
	// fires together with OnWelcome; the delay lets the welcome render first.
	OnNavigate func()
}

// Store owns the session: the bearer token, the credential record and the
// user profile. Credential and profile are only ever populated together,
// after the token resolved successfully; any resolution failure clears all
// three. No other component writes this state.
type Store struct {
	backend      *backend.Client
	tokens       *tokenfile.Store
	welcomeDelay time.Duration
	onWelcome    func(domain.User)
	onNavigate   func()

	mu            sync.Mutex
	token         string
	credential    domain.Credential
	profile       domain.User
	authenticated bool
	generation    uint64
	subscribers   []func()
}

// New constructs the session store.
func New(cfg Config) *Store {
	return &Store{
		backend:      cfg.Backend,
		tokens:       cfg.Tokens,
		welcomeDelay: cfg.WelcomeDelay,
		onWelcome:    cfg.OnWelcome,
		onNavigate:   cfg.OnNavigate,
	}
}

// Subscribe registers fn to run after every state change. Subscribers
// re-read derived state through the accessors.
func (s *Store) Subscribe(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// Current returns the resolved credential and profile, if any.
func (s *Store) Current() (domain.Credential, domain.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credential, s.profile, s.authenticated
}

// Token returns the installed bearer token, empty when unauthenticated.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Generation increments on every logout. Completions captured under an older
// generation must not be applied.
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Rehydrate resolves a persisted token back into a full session: credential
// first, then profile, both over authenticated calls. On any failure the
// token is discarded, partial state is cleared and the session ends up fully
// unauthenticated.
func (s *Store) Rehydrate(token string) error {
	return s.resolve(token, false)
}

// CompleteLogin persists the token, resolves the session like Rehydrate and,
// on success, schedules the one-time welcome notification plus navigation
// after the configured delay. A logout inside that window cancels both.
func (s *Store) CompleteLogin(token string) error {
	if s.tokens != nil {
		if err := s.tokens.Save(token); err != nil {
			return err
		}
	}
	return s.resolve(token, true)
}

// Logout synchronously discards the persisted token and clears credential
// and profile. It never calls the backend.
func (s *Store) Logout() {
	s.mu.Lock()
	s.token = ""
	s.credential = domain.Credential{}
	s.profile = domain.User{}
	s.authenticated = false
	s.generation++
	s.mu.Unlock()
	if s.tokens != nil {
		if err := s.tokens.Clear(); err != nil {
			slog.Warn("clear persisted token", "err", err)
		}
	}
	slog.Debug("session cleared")
	s.notify()
}

// EditProfile submits a partial profile update and, on success, re-resolves
// the profile from the backend rather than trusting the echoed payload. A
// failure leaves the prior profile untouched; unlike rehydration, a 401 here
// is recoverable and does not end the session.
func (s *Store) EditProfile(fields map[string]any) error {
	s.mu.Lock()
	if !s.authenticated {
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	token := s.token
	gen := s.generation
	s.mu.Unlock()

	if err := s.backend.EditUser(token, fields); err != nil {
		return err
	}
	profile, err := s.backend.UserByEmail(token)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return ErrStaleResponse
	}
	s.profile = profile
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *Store) resolve(token string, isLogin bool) error {
	gen := s.Generation()

	credential, err := s.backend.CredentialByEmail(token)
	if err != nil {
		s.failResolution(gen, err)
		return err
	}
	profile, err := s.backend.UserByEmail(token)
	if err != nil {
		s.failResolution(gen, err)
		return err
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		slog.Debug("resolution completed after logout, discarded")
		return ErrStaleResponse
	}
	s.token = token
	s.credential = credential
	s.profile = profile
	s.authenticated = true
	s.mu.Unlock()
	slog.Info("session resolved", "userId", profile.ID, "role", profile.Role)
	s.notify()

	if isLogin {
		s.scheduleWelcome(gen, profile)
	}
	return nil
}

// failResolution enforces the all-or-nothing session invariant: a failed
// resolution leaves no token and no partial credential/profile behind.
func (s *Store) failResolution(gen uint64, cause error) {
	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return
	}
	s.token = ""
	s.credential = domain.Credential{}
	s.profile = domain.User{}
	s.authenticated = false
	s.mu.Unlock()
	if s.tokens != nil {
		if err := s.tokens.Clear(); err != nil {
			slog.Warn("clear persisted token", "err", err)
		}
	}
	slog.Info("session resolution failed", "category", backend.Classify(cause))
	s.notify()
}

func (s *Store) scheduleWelcome(gen uint64, user domain.User) {
	time.AfterFunc(s.welcomeDelay, func() {
		if s.Generation() != gen {
			return
		}
		if s.onWelcome != nil {
			s.onWelcome(user)
		}
		if s.onNavigate != nil {
			s.onNavigate()
		}
	})
}

func (s *Store) notify() {
	s.mu.Lock()
	subs := make([]func(), len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}
