package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"eduhub/internal/backend"
	"eduhub/pkg/domain"
)

// Sessions is the slice of session state the feed reads.
type Sessions interface {
	Current() (domain.Credential, domain.User, bool)
	Token() string
	Generation() uint64
}

// Feed holds the header's notification list: the backend feed plus locally
// scheduled notifications such as the post-login welcome.
type Feed struct {
	backend  *backend.Client
	sessions Sessions

	mu          sync.Mutex
	local       []domain.Notification
	remote      []domain.Notification
	subscribers []func()
}

// New constructs the notification feed.
func New(client *backend.Client, sessions Sessions) *Feed {
	return &Feed{backend: client, sessions: sessions}
}

// Subscribe registers fn to run after every feed change.
func (f *Feed) Subscribe(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribers = append(f.subscribers, fn)
}

// Items returns local notifications first, then the backend feed.
func (f *Feed) Items() []domain.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Notification, 0, len(f.local)+len(f.remote))
	out = append(out, f.local...)
	out = append(out, f.remote...)
	return out
}

// Refresh fetches the backend feed for the current user. A refresh that
// completes after logout is discarded.
func (f *Feed) Refresh() error {
	_, user, ok := f.sessions.Current()
	if !ok {
		return fmt.Errorf("refresh notifications: no session")
	}
	gen := f.sessions.Generation()
	items, err := f.backend.Notifications(f.sessions.Token(), user.ID)
	if err != nil {
		return fmt.Errorf("refresh notifications: %w", err)
	}
	f.mu.Lock()
	if f.sessions.Generation() != gen {
		f.mu.Unlock()
		return nil
	}
	f.remote = items
	f.mu.Unlock()
	f.notify()
	return nil
}

// PushLocal adds a client-only notification such as the welcome banner.
func (f *Feed) PushLocal(title, body string) {
	item := domain.Notification{
		ID:        uuid.NewString(),
		Title:     title,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	f.mu.Lock()
	f.local = append([]domain.Notification{item}, f.local...)
	f.mu.Unlock()
	f.notify()
}

// Clear drops all notifications; called on logout.
func (f *Feed) Clear() {
	f.mu.Lock()
	f.local = nil
	f.remote = nil
	f.mu.Unlock()
	f.notify()
}

func (f *Feed) notify() {
	f.mu.Lock()
	subs := make([]func(), len(f.subscribers))
	copy(subs, f.subscribers)
	f.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}
