package course

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"eduhub/internal/backend"
	"eduhub/pkg/domain"
)

// sessionStub stands in for the session store.
type sessionStub struct {
	user   domain.User
	token  string
	authed atomic.Bool
	gen    atomic.Uint64
}

func newSessionStub(user domain.User) *sessionStub {
	s := &sessionStub{user: user, token: "tok-1"}
	s.authed.Store(true)
	return s
}

func (s *sessionStub) Current() (domain.Credential, domain.User, bool) {
	if !s.authed.Load() {
		return domain.Credential{}, domain.User{}, false
	}
	return domain.Credential{ID: s.user.ID}, s.user, true
}

func (s *sessionStub) Token() string { return s.token }

func (s *sessionStub) Generation() uint64 { return s.gen.Load() }

func (s *sessionStub) logout() {
	s.authed.Store(false)
	s.gen.Add(1)
}

// fakeBackend serves memberships, course details and file uploads with
// per-resource failure switches.
type fakeBackend struct {
	memberships     []domain.CourseMembership
	courses         map[int]domain.Course
	failCourse      map[int]bool
	failFile        map[string]bool
	membershipCalls atomic.Int32
	uploadCalls     atomic.Int32
	nextFileID      atomic.Int32
	onUpload        func()
}

func (f *fakeBackend) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/usercourses-by-userid/"):
			f.membershipCalls.Add(1)
			_ = json.NewEncoder(w).Encode(f.memberships)
		case strings.HasPrefix(r.URL.Path, "/course/create"):
			var c domain.Course
			_ = json.NewDecoder(r.Body).Decode(&c)
			c.ID = 99
			_ = json.NewEncoder(w).Encode(c)
		case strings.HasPrefix(r.URL.Path, "/course/"):
			id, _ := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/course/"))
			switch r.Method {
			case http.MethodGet:
				if f.failCourse[id] {
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{"error": "boom"})
					return
				}
				_ = json.NewEncoder(w).Encode(f.courses[id])
			case http.MethodPut, http.MethodDelete:
				w.WriteHeader(http.StatusOK)
			}
		case r.URL.Path == "/file":
			f.uploadCalls.Add(1)
			if f.onUpload != nil {
				f.onUpload()
			}
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_, header, err := r.FormFile("file")
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if f.failFile[header.Filename] {
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "storage full"})
				return
			}
			_ = json.NewEncoder(w).Encode(domain.File{
				ID:       int(f.nextFileID.Add(1)),
				Filename: header.Filename,
				Size:     header.Size,
			})
		default:
			http.NotFound(w, r)
		}
	})
}

func newTestStore(t *testing.T, f *fakeBackend, sessions Sessions) *Store {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return New(Config{
		Backend:           backend.NewClient(srv.URL, 2*time.Second),
		Sessions:          sessions,
		UploadConcurrency: 2,
	})
}

func TestFetchMembershipsIsIdempotentUntilInvalidate(t *testing.T) {
	stub := newSessionStub(domain.User{ID: 3})
	f := &fakeBackend{
		memberships: []domain.CourseMembership{{ID: 1, CourseID: 10, UserID: 3}},
	}
	store := newTestStore(t, f, stub)

	first, err := store.FetchMemberships(3)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	second, err := store.FetchMemberships(3)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("memberships = %v / %v", first, second)
	}
	if f.membershipCalls.Load() != 1 {
		t.Fatalf("membership calls = %d, want 1 (second fetch must hit the cache)", f.membershipCalls.Load())
	}

	store.Invalidate()
	if _, err := store.FetchMemberships(3); err != nil {
		t.Fatalf("fetch after invalidate: %v", err)
	}
	if f.membershipCalls.Load() != 2 {
		t.Fatalf("membership calls = %d, want 2 after invalidate", f.membershipCalls.Load())
	}
}

func TestFetchMembershipsRejectsForeignUser(t *testing.T) {
	stub := newSessionStub(domain.User{ID: 3})
	f := &fakeBackend{}
	store := newTestStore(t, f, stub)

	if _, err := store.FetchMemberships(4); !errors.Is(err, ErrUserMismatch) {
		t.Fatalf("expected ErrUserMismatch, got %v", err)
	}
	if f.membershipCalls.Load() != 0 {
		t.Fatalf("no network call expected on mismatch")
	}
}

func TestResolveCourseDetailsPublishesAllOrNothing(t *testing.T) {
	stub := newSessionStub(domain.User{ID: 3})
	f := &fakeBackend{
		courses: map[int]domain.Course{
			1: {ID: 1, Subject: "Math", CourseName: "Analysis I", Section: "A"},
			2: {ID: 2, Subject: "CS", CourseName: "Algorithms", Section: "B"},
		},
		failCourse: map[int]bool{},
	}
	store := newTestStore(t, f, stub)

	published, err := store.ResolveCourseDetails([]domain.CourseMembership{
		{ID: 1, CourseID: 1, UserID: 3},
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(published) != 1 || published[0].Subject != "Math" {
		t.Fatalf("published = %+v", published)
	}

	// one of the two lookups now fails: the whole batch fails and the
	// previously published list stays exactly as it was
	f.failCourse[2] = true
	_, err = store.ResolveCourseDetails([]domain.CourseMembership{
		{ID: 1, CourseID: 1, UserID: 3},
		{ID: 2, CourseID: 2, UserID: 3},
	})
	if err == nil {
		t.Fatalf("expected batch resolution to fail")
	}
	got := store.Courses()
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("published list changed on partial failure: %+v", got)
	}

	// once the lookup recovers the full batch publishes in membership order
	f.failCourse[2] = false
	published, err = store.ResolveCourseDetails([]domain.CourseMembership{
		{ID: 1, CourseID: 1, UserID: 3},
		{ID: 2, CourseID: 2, UserID: 3},
	})
	if err != nil {
		t.Fatalf("resolve after recovery: %v", err)
	}
	if len(published) != 2 || published[0].ID != 1 || published[1].ID != 2 {
		t.Fatalf("published = %+v", published)
	}
}

func TestResolveCourseDetailsRejectsForeignMemberships(t *testing.T) {
	stub := newSessionStub(domain.User{ID: 3})
	store := newTestStore(t, &fakeBackend{}, stub)

	_, err := store.ResolveCourseDetails([]domain.CourseMembership{
		{ID: 1, CourseID: 1, UserID: 4},
	})
	if !errors.Is(err, ErrUserMismatch) {
		t.Fatalf("expected ErrUserMismatch, got %v", err)
	}
}

func TestCourseCRUDMutatesOnlyAfterAck(t *testing.T) {
	stub := newSessionStub(domain.User{ID: 3})
	f := &fakeBackend{
		courses: map[int]domain.Course{1: {ID: 1, Subject: "Math", CourseName: "Analysis I", Section: "A"}},
	}
	store := newTestStore(t, f, stub)
	if _, err := store.ResolveCourseDetails([]domain.CourseMembership{{ID: 1, CourseID: 1, UserID: 3}}); err != nil {
		t.Fatalf("seed courses: %v", err)
	}

	created, err := store.CreateCourse(domain.Course{Subject: "CS", CourseName: "Algorithms", Section: "B"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID != 99 {
		t.Fatalf("created id = %d, want backend-assigned 99", created.ID)
	}
	if len(store.Courses()) != 2 {
		t.Fatalf("courses = %+v", store.Courses())
	}

	// edit merges only the supplied fields
	if err := store.EditCourse(1, map[string]any{"section": "C"}); err != nil {
		t.Fatalf("edit: %v", err)
	}
	courses := store.Courses()
	if courses[0].Section != "C" || courses[0].Subject != "Math" || courses[0].CourseName != "Analysis I" {
		t.Fatalf("edit merged wrong: %+v", courses[0])
	}

	if err := store.DeleteCourse(1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	courses = store.Courses()
	if len(courses) != 1 || courses[0].ID != 99 {
		t.Fatalf("courses after delete = %+v", courses)
	}
}

func TestSubmitDocumentPublishesOnlyWhenAllUploadsSucceed(t *testing.T) {
	stub := newSessionStub(domain.User{ID: 3})
	f := &fakeBackend{
		failFile: map[string]bool{"b.pdf": true},
	}
	store := newTestStore(t, f, stub)

	staged := []StagedFile{
		Stage("a.pdf", "application/pdf", []byte("aaa")),
		Stage("b.pdf", "application/pdf", []byte("bbb")),
	}
	_, err := store.SubmitDocument(10, "Notes", "Week 1", staged)
	if err == nil {
		t.Fatalf("expected submission to fail")
	}
	var uploadErr *UploadError
	if !errors.As(err, &uploadErr) {
		t.Fatalf("expected UploadError, got %v", err)
	}
	if len(uploadErr.Uploaded) != 1 || uploadErr.Uploaded[0].Filename != "a.pdf" {
		t.Fatalf("orphans = %+v, want the acknowledged a.pdf", uploadErr.Uploaded)
	}
	if docs := store.Documents(10); len(docs) != 0 {
		t.Fatalf("no document may be published on partial upload failure, got %+v", docs)
	}
	if f.uploadCalls.Load() != 2 {
		t.Fatalf("upload calls = %d, want 2", f.uploadCalls.Load())
	}

	// with the storage recovered the document publishes with both files
	f.failFile["b.pdf"] = false
	doc, err := store.SubmitDocument(10, "Notes", "Week 1", staged)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(doc.Files) != 2 {
		t.Fatalf("doc files = %+v", doc.Files)
	}
	docs := store.Documents(10)
	if len(docs) != 1 || docs[0].Title != "Notes" {
		t.Fatalf("documents = %+v", docs)
	}
}

func TestSubmitDocumentNewestFirst(t *testing.T) {
	stub := newSessionStub(domain.User{ID: 3})
	store := newTestStore(t, &fakeBackend{}, stub)

	if _, err := store.SubmitDocument(10, "First", "", nil); err != nil {
		t.Fatalf("submit first: %v", err)
	}
	if _, err := store.SubmitDocument(10, "Second", "", nil); err != nil {
		t.Fatalf("submit second: %v", err)
	}
	docs := store.Documents(10)
	if len(docs) != 2 || docs[0].Title != "Second" || docs[1].Title != "First" {
		t.Fatalf("documents = %+v", docs)
	}
}

func TestLogoutDuringSubmitDiscardsResult(t *testing.T) {
	stub := newSessionStub(domain.User{ID: 3})
	f := &fakeBackend{}
	f.onUpload = func() { stub.logout() }
	store := newTestStore(t, f, stub)

	staged := []StagedFile{Stage("a.pdf", "application/pdf", []byte("aaa"))}
	_, err := store.SubmitDocument(10, "Notes", "", staged)
	if !errors.Is(err, ErrStaleResponse) {
		t.Fatalf("expected stale response, got %v", err)
	}
	if docs := store.Documents(10); len(docs) != 0 {
		t.Fatalf("late result must not be applied after logout, got %+v", docs)
	}
}

func TestOperationsRequireSession(t *testing.T) {
	stub := newSessionStub(domain.User{ID: 3})
	stub.logout()
	store := newTestStore(t, &fakeBackend{}, stub)

	if _, err := store.FetchMemberships(3); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("fetch: %v", err)
	}
	if _, err := store.ResolveCourseDetails(nil); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := store.SubmitDocument(1, "t", "c", nil); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("submit: %v", err)
	}
	if err := store.DeleteCourse(1); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("delete: %v", err)
	}
}

func TestStagedFilesCarryMetadata(t *testing.T) {
	sf := Stage("notes.pdf", "application/pdf", []byte("12345"))
	if sf.ID == "" {
		t.Fatalf("staged file needs an id")
	}
	if sf.Size != 5 {
		t.Fatalf("size = %d, want 5", sf.Size)
	}
	data := make([]byte, 5)
	if _, err := sf.Reader().Read(data); err != nil {
		t.Fatalf("read staged content: %v", err)
	}
	if string(data) != "12345" {
		t.Fatalf("content = %q", data)
	}
	other := Stage("notes.pdf", "application/pdf", []byte("12345"))
	if other.ID == sf.ID {
		t.Fatalf("staged ids must be unique")
	}
}
