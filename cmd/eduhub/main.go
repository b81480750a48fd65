package main

import (
	"log"
	"os"

	"eduhub/internal/backend"
	"eduhub/internal/config"
	"eduhub/internal/course"
	"eduhub/internal/forms"
	"eduhub/internal/guard"
	"eduhub/internal/notify"
	"eduhub/internal/session"
	"eduhub/internal/tokenfile"
	"eduhub/internal/util"
	"eduhub/pkg/domain"
)

func main() {
	cfg, err := config.Load(os.Getenv("EDUHUB_CONFIG"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	timeout, err := config.ParseRequestTimeout(cfg)
	if err != nil {
		log.Fatalf("failed to parse request timeout: %v", err)
	}
	welcomeDelay, err := config.ParseWelcomeDelay(cfg)
	if err != nil {
		log.Fatalf("failed to parse welcome delay: %v", err)
	}

	util.InitLogger(cfg.LogLevel)

	tokens, err := tokenfile.New(cfg.TokenFile)
	if err != nil {
		log.Fatalf("failed to init token store: %v", err)
	}
	client := backend.NewClient(cfg.BackendURL, timeout)

	app := newApp()
	sessions := session.New(session.Config{
		Backend:      client,
		Tokens:       tokens,
		WelcomeDelay: welcomeDelay,
		OnWelcome: func(user domain.User) {
			app.welcome(user)
		},
		OnNavigate: func() {
			app.navigate(guard.RouteDashboard)
		},
	})
	app.sessions = sessions
	app.guard = guard.New(sessions, tokens)
	app.courses = course.New(course.Config{
		Backend:           client,
		Sessions:          sessions,
		UploadConcurrency: cfg.UploadConcurrency,
	})
	app.feed = notify.New(client, sessions)
	app.login = &forms.LoginFlow{Backend: client, Sessions: sessions}
	app.registration = &forms.RegistrationFlow{Backend: client}

	// Re-render on any store change, the way the browser UI re-rendered on
	// context updates.
	sessions.Subscribe(app.markDirty)
	app.courses.Subscribe(app.markDirty)
	app.feed.Subscribe(app.markDirty)

	if err := app.guard.Bootstrap(); err != nil {
		log.Fatalf("failed to bootstrap: %v", err)
	}

	if err := app.run(); err != nil {
		log.Fatalf("eduhub: %v", err)
	}
}
