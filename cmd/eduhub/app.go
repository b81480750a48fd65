package main

import (
	"bufio"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/term"

	"eduhub/internal/course"
	"eduhub/internal/forms"
	"eduhub/internal/guard"
	"eduhub/internal/notify"
	"eduhub/internal/session"
	"eduhub/pkg/domain"
)

// app is the terminal stand-in for the browser UI. It renders views and
// forwards user input to the stores; it never mutates store state directly.
type app struct {
	sessions     *session.Store
	guard        *guard.Guard
	courses      *course.Store
	feed         *notify.Feed
	login        *forms.LoginFlow
	registration *forms.RegistrationFlow

	in    *bufio.Reader
	route atomic.Value // guard.Route
	dirty atomic.Bool
}

func newApp() *app {
	a := &app{in: bufio.NewReader(os.Stdin)}
	a.route.Store(guard.RouteLanding)
	return a
}

func (a *app) navigate(to guard.Route) {
	a.route.Store(to)
	a.dirty.Store(true)
}

func (a *app) markDirty() {
	a.dirty.Store(true)
}

func (a *app) welcome(user domain.User) {
	a.feed.PushLocal("Logged in successfully!", fmt.Sprintf("Welcome back to EduHub, %s.", user.Name))
}

func (a *app) run() error {
	if a.guard.State() == guard.StateAuthenticated {
		a.navigate(guard.RouteDashboard)
	}
	for {
		route := a.guard.Resolve(a.route.Load().(guard.Route))
		a.route.Store(route)
		a.dirty.Store(false)

		var err error
		switch route {
		case guard.RouteLanding:
			err = a.landingView()
		case guard.RouteLogin:
			err = a.loginView()
		case guard.RouteSignup:
			err = a.signupView()
		case guard.RouteDashboard:
			err = a.dashboardView()
		case guard.RouteCourse:
			// course views are entered from the dashboard; falling through
			// here means the selection was lost, go back
			a.navigate(guard.RouteDashboard)
		}
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			return err
		}
		if a.dirty.Load() {
			// a store changed while the view was open; the next loop pass
			// re-reads derived state and redraws
			continue
		}
	}
}

var errQuit = errors.New("quit")

func (a *app) landingView() error {
	fmt.Println("\n== EduHub ==")
	fmt.Println("[1] Log in  [2] Sign up  [q] Quit")
	switch a.prompt("> ") {
	case "1":
		a.navigate(guard.RouteLogin)
	case "2":
		a.navigate(guard.RouteSignup)
	case "q":
		return errQuit
	}
	return nil
}

func (a *app) loginView() error {
	fmt.Println("\n== Log in ==")
	form := forms.LoginForm{
		Email:    a.prompt("Email: "),
		Password: a.promptPassword("Password: "),
	}
	fieldErrs, err := a.login.Submit(form)
	if len(fieldErrs) > 0 {
		printFieldErrors(fieldErrs)
		return nil
	}
	if errors.Is(err, forms.ErrInvalidCredentials) {
		fmt.Println("Invalid credentials: the provided credentials are not correct.")
		return nil
	}
	if err != nil {
		fmt.Println("There was an error during login action.")
		return nil
	}
	fmt.Println("Logging in...")
	// navigation to the dashboard arrives via OnNavigate after the welcome
	// delay; wait for it here instead of spinning
	a.awaitNavigation(guard.RouteDashboard)
	return nil
}

func (a *app) signupView() error {
	fmt.Println("\n== Sign up ==")
	form := forms.RegistrationForm{
		Name:      a.prompt("Name: "),
		Surname:   a.prompt("Surname: "),
		Birthdate: a.prompt("Birthdate (YYYY-MM-DD): "),
		Role:      strings.ToUpper(a.prompt("Role (STUDENT/TEACHER): ")),
		Email:     a.prompt("Email: "),
		Password:  a.promptPassword("Password: "),
	}
	fieldErrs, err := a.registration.Submit(form)
	if len(fieldErrs) > 0 {
		printFieldErrors(fieldErrs)
		return nil
	}
	var partial *forms.PartialRegistrationError
	if errors.As(err, &partial) {
		fmt.Println("Sign up did not complete: the account was only partially created. Contact support before retrying.")
		return nil
	}
	if err != nil {
		fmt.Println("There was an error during sign up.")
		return nil
	}
	fmt.Println("Account created successfully! You can now log in.")
	a.navigate(guard.RouteLogin)
	return nil
}

func (a *app) dashboardView() error {
	_, user, ok := a.sessions.Current()
	if !ok {
		a.navigate(guard.RouteLanding)
		return nil
	}
	memberships, err := a.courses.FetchMemberships(user.ID)
	if err != nil {
		fmt.Println("Could not load your courses.")
	} else if _, err := a.courses.ResolveCourseDetails(memberships); err != nil {
		fmt.Println("Could not load your courses.")
	}

	fmt.Printf("\n== Dashboard — %s %s (%s) ==\n", user.Name, user.Surname, user.Role)
	list := a.courses.Courses()
	for i, c := range list {
		fmt.Printf("[%d] %s — %s (%s)\n", i+1, c.Subject, c.CourseName, c.Section)
	}
	if len(list) == 0 {
		fmt.Println("No courses yet.")
	}
	fmt.Println("[n] Notifications  [p] Edit profile  [r] Refresh  [x] Log out  [q] Quit")
	input := a.prompt("> ")
	switch input {
	case "n":
		a.notificationsView()
	case "p":
		a.editProfileView()
	case "r":
		a.courses.Invalidate()
	case "x":
		a.sessions.Logout()
		a.courses.Invalidate()
		a.feed.Clear()
		a.navigate(guard.RouteLanding)
	case "q":
		return errQuit
	default:
		if idx, err := strconv.Atoi(input); err == nil && idx >= 1 && idx <= len(list) {
			return a.courseView(list[idx-1])
		}
	}
	return nil
}

func (a *app) courseView(c domain.Course) error {
	fmt.Printf("\n== %s — %s (%s) ==\n", c.Subject, c.CourseName, c.Section)
	fmt.Println("Documents:")
	docs := a.courses.Documents(c.ID)
	for _, d := range docs {
		fmt.Printf("  - %s (%d files)\n", d.Title, len(d.Files))
	}
	if len(docs) == 0 {
		fmt.Println("  (none)")
	}
	fmt.Println("Quizzes:")
	fmt.Println("  (coming soon)")
	fmt.Println("[u] Upload document  [b] Back")
	if a.prompt("> ") == "u" {
		a.uploadDocumentView(c)
	}
	a.navigate(guard.RouteDashboard)
	return nil
}

func (a *app) uploadDocumentView(c domain.Course) {
	title := a.prompt("Title: ")
	content := a.prompt("Content: ")
	var staged []course.StagedFile
	for {
		path := a.prompt("Attach file (empty to finish): ")
		if path == "" {
			break
		}
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Printf("Cannot read %s: %v\n", path, err)
			continue
		}
		mimetype := mime.TypeByExtension(filepath.Ext(path))
		staged = append(staged, course.Stage(filepath.Base(path), mimetype, data))
	}
	if _, err := a.courses.SubmitDocument(c.ID, title, content, staged); err != nil {
		var uploadErr *course.UploadError
		if errors.As(err, &uploadErr) {
			fmt.Printf("Upload failed; the document was not added (%d files already stored).\n", len(uploadErr.Uploaded))
		} else {
			fmt.Println("Upload failed; the document was not added.")
		}
		return
	}
	fmt.Println("Document uploaded.")
}

func (a *app) notificationsView() {
	if err := a.feed.Refresh(); err != nil {
		fmt.Println("Could not refresh notifications.")
	}
	items := a.feed.Items()
	if len(items) == 0 {
		fmt.Println("No notifications.")
		return
	}
	for _, n := range items {
		fmt.Printf("  - %s: %s\n", n.Title, n.Body)
	}
}

func (a *app) editProfileView() {
	fields := map[string]any{}
	if v := a.prompt("New name (empty to keep): "); v != "" {
		fields["name"] = v
	}
	if v := a.prompt("New surname (empty to keep): "); v != "" {
		fields["surname"] = v
	}
	if len(fields) == 0 {
		return
	}
	if err := a.sessions.EditProfile(fields); err != nil {
		fmt.Println("Profile update failed; nothing was changed.")
		return
	}
	fmt.Println("Profile updated.")
}

// awaitNavigation blocks until OnNavigate moved the app to the wanted route,
// or the session turned out not to resolve after all.
func (a *app) awaitNavigation(to guard.Route) {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if a.route.Load().(guard.Route) == to {
			return
		}
		if _, _, ok := a.sessions.Current(); !ok {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
}

func (a *app) prompt(label string) string {
	fmt.Print(label)
	line, err := a.in.ReadString('\n')
	if err != nil {
		return ""
	}
	return strings.TrimSpace(line)
}

func (a *app) promptPassword(label string) string {
	fmt.Print(label)
	data, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func printFieldErrors(fieldErrs forms.FieldErrors) {
	for field, msg := range fieldErrs {
		fmt.Printf("  %s: %s\n", field, msg)
	}
}
