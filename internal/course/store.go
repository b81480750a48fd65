package course

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"eduhub/internal/backend"
	"eduhub/pkg/domain"
)

var (
	// ErrUserMismatch indicates a fetch for a user id other than the one the
	// current session resolved to.
	ErrUserMismatch = errors.New("user id does not match current session")
	// ErrNotAuthenticated indicates a course operation without a session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrStaleResponse indicates a completion that arrived after logout and
	// was discarded instead of applied.
	ErrStaleResponse = errors.New("stale response discarded")
)

// Sessions is the slice of session state the course store reads. The session
// store implements it.
type Sessions interface {
	Current() (domain.Credential, domain.User, bool)
	Token() string
	Generation() uint64
}

// Config holds the collaborators of the course store.
type Config struct {
	Backend  *backend.Client
	Sessions Sessions
	// UploadConcurrency caps concurrent attachment uploads per submission.
	UploadConcurrency int
}

// Store owns the membership list, the resolved course list and the
// per-course document lists for the current user. The visible course list is
// always the set of courses resolved from the membership list; it is
// published all-or-nothing so a partial batch failure never shows through.
type Store struct {
	backend           *backend.Client
	sessions          Sessions
	uploadConcurrency int

	mu             sync.Mutex
	membershipsFor int // user id the cached memberships belong to, 0 = none
	memberships    []domain.CourseMembership
	courses        []domain.Course
	documents      map[int][]domain.Document
	nextDocID      int
	subscribers    []func()
}

// New constructs the course store.
func New(cfg Config) *Store {
	concurrency := cfg.UploadConcurrency
	if concurrency < 1 {
		concurrency = 4
	}
	return &Store{
		backend:           cfg.Backend,
		sessions:          cfg.Sessions,
		uploadConcurrency: concurrency,
		documents:         make(map[int][]domain.Document),
		nextDocID:         1,
	}
}

// Subscribe registers fn to run after every state change.
func (s *Store) Subscribe(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// Memberships returns the cached membership list.
func (s *Store) Memberships() []domain.CourseMembership {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.CourseMembership, len(s.memberships))
	copy(out, s.memberships)
	return out
}

// Courses returns the published course list.
func (s *Store) Courses() []domain.Course {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Course, len(s.courses))
	copy(out, s.courses)
	return out
}

// Documents returns the document list of a course, newest first.
func (s *Store) Documents(courseID int) []domain.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := s.documents[courseID]
	out := make([]domain.Document, len(docs))
	copy(out, docs)
	return out
}

// FetchMemberships loads the membership list for userID. The fetch is
// idempotent per user: cached results are returned without a network call
// until Invalidate, which guards against redundant fetches on re-render.
// A user id that does not belong to the current session is refused.
func (s *Store) FetchMemberships(userID int) ([]domain.CourseMembership, error) {
	_, user, ok := s.sessions.Current()
	if !ok {
		return nil, ErrNotAuthenticated
	}
	if user.ID != userID {
		return nil, ErrUserMismatch
	}

	s.mu.Lock()
	if s.membershipsFor == userID {
		cached := make([]domain.CourseMembership, len(s.memberships))
		copy(cached, s.memberships)
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	gen := s.sessions.Generation()
	memberships, err := s.backend.UserCourses(s.sessions.Token(), userID)
	if err != nil {
		return nil, fmt.Errorf("fetch memberships: %w", err)
	}

	s.mu.Lock()
	if s.sessions.Generation() != gen {
		s.mu.Unlock()
		return nil, ErrStaleResponse
	}
	s.membershipsFor = userID
	s.memberships = memberships
	s.mu.Unlock()
	slog.Debug("memberships fetched", "userId", userID, "count", len(memberships))
	s.notify()
	return memberships, nil
}

// Invalidate drops the cached memberships, the published course list and the
// document lists so the next fetch hits the backend again.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.membershipsFor = 0
	s.memberships = nil
	s.courses = nil
	s.documents = make(map[int][]domain.Document)
	s.mu.Unlock()
	s.notify()
}

// ResolveCourseDetails fetches the course record behind each membership in
// parallel and publishes the merged list only once every lookup succeeded.
// If any single lookup fails the whole batch fails and the previously
// published list stays unchanged; the caller never observes a partial or
// growing list.
func (s *Store) ResolveCourseDetails(memberships []domain.CourseMembership) ([]domain.Course, error) {
	_, user, ok := s.sessions.Current()
	if !ok {
		return nil, ErrNotAuthenticated
	}
	for _, m := range memberships {
		if m.UserID != user.ID {
			return nil, ErrUserMismatch
		}
	}

	gen := s.sessions.Generation()
	token := s.sessions.Token()
	resolved := make([]domain.Course, len(memberships))
	var g errgroup.Group
	for i, m := range memberships {
		g.Go(func() error {
			course, err := s.backend.Course(token, m.CourseID)
			if err != nil {
				return fmt.Errorf("resolve course %d: %w", m.CourseID, err)
			}
			resolved[i] = course
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.sessions.Generation() != gen {
		s.mu.Unlock()
		return nil, ErrStaleResponse
	}
	s.courses = resolved
	s.mu.Unlock()
	slog.Debug("course list published", "count", len(resolved))
	s.notify()
	return resolved, nil
}

// CreateCourse creates a course and appends it to the local list only after
// the backend acknowledged the write.
func (s *Store) CreateCourse(course domain.Course) (domain.Course, error) {
	if _, _, ok := s.sessions.Current(); !ok {
		return domain.Course{}, ErrNotAuthenticated
	}
	gen := s.sessions.Generation()
	created, err := s.backend.CreateCourse(s.sessions.Token(), course)
	if err != nil {
		return domain.Course{}, fmt.Errorf("create course: %w", err)
	}

	s.mu.Lock()
	if s.sessions.Generation() != gen {
		s.mu.Unlock()
		return domain.Course{}, ErrStaleResponse
	}
	s.courses = append(s.courses, created)
	s.mu.Unlock()
	s.notify()
	return created, nil
}

// EditCourse merges the supplied fields into the matching local record by id
// after the backend acknowledged the write. Fields not supplied keep their
// previous values.
func (s *Store) EditCourse(id int, fields map[string]any) error {
	if _, _, ok := s.sessions.Current(); !ok {
		return ErrNotAuthenticated
	}
	gen := s.sessions.Generation()
	if err := s.backend.EditCourse(s.sessions.Token(), id, fields); err != nil {
		return fmt.Errorf("edit course: %w", err)
	}

	s.mu.Lock()
	if s.sessions.Generation() != gen {
		s.mu.Unlock()
		return ErrStaleResponse
	}
	for i := range s.courses {
		if s.courses[i].ID != id {
			continue
		}
		if v, ok := fields["subject"].(string); ok {
			s.courses[i].Subject = v
		}
		if v, ok := fields["coursename"].(string); ok {
			s.courses[i].CourseName = v
		}
		if v, ok := fields["section"].(string); ok {
			s.courses[i].Section = v
		}
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// DeleteCourse removes a course from the local list by id after the backend
// acknowledged the delete.
func (s *Store) DeleteCourse(id int) error {
	if _, _, ok := s.sessions.Current(); !ok {
		return ErrNotAuthenticated
	}
	gen := s.sessions.Generation()
	if err := s.backend.DeleteCourse(s.sessions.Token(), id); err != nil {
		return fmt.Errorf("delete course: %w", err)
	}

	s.mu.Lock()
	if s.sessions.Generation() != gen {
		s.mu.Unlock()
		return ErrStaleResponse
	}
	kept := s.courses[:0]
	for _, c := range s.courses {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	s.courses = kept
	s.mu.Unlock()
	s.notify()
	return nil
}

// SubmitDocument uploads every staged file concurrently and appends the
// document to the course's list only after all uploads were acknowledged.
// One failed upload aborts the publish entirely; files acknowledged before
// the failure are reported through UploadError so they are not silently
// orphaned.
func (s *Store) SubmitDocument(courseID int, title, content string, staged []StagedFile) (domain.Document, error) {
	if _, _, ok := s.sessions.Current(); !ok {
		return domain.Document{}, ErrNotAuthenticated
	}
	gen := s.sessions.Generation()
	token := s.sessions.Token()

	uploaded := make([]domain.File, len(staged))
	succeeded := make([]bool, len(staged))
	var g errgroup.Group
	g.SetLimit(s.uploadConcurrency)
	for i, sf := range staged {
		g.Go(func() error {
			file, err := s.backend.UploadFile(token, courseID, sf.Filename, sf.Reader())
			if err != nil {
				return fmt.Errorf("upload %s: %w", sf.Filename, err)
			}
			uploaded[i] = file
			succeeded[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		var orphans []domain.File
		for i, ok := range succeeded {
			if ok {
				orphans = append(orphans, uploaded[i])
			}
		}
		slog.Warn("document submission aborted", "courseId", courseID, "orphanedUploads", len(orphans))
		return domain.Document{}, &UploadError{Cause: err, Uploaded: orphans}
	}

	s.mu.Lock()
	if s.sessions.Generation() != gen {
		s.mu.Unlock()
		return domain.Document{}, ErrStaleResponse
	}
	doc := domain.Document{
		ID:        s.nextDocID,
		Title:     title,
		Content:   content,
		Files:     uploaded,
		CreatedAt: time.Now().UTC(),
	}
	s.nextDocID++
	s.documents[courseID] = append([]domain.Document{doc}, s.documents[courseID]...)
	s.mu.Unlock()
	s.notify()
	return doc, nil
}

// UploadError reports a document submission aborted by a failed upload.
// Uploaded lists the sibling files the backend had already acknowledged;
// they remain stored server-side but are attached to no document.
type UploadError struct {
	Cause    error
	Uploaded []domain.File
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("document submission failed (%d uploads orphaned): %v", len(e.Uploaded), e.Cause)
}

func (e *UploadError) Unwrap() error {
	return e.Cause
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
