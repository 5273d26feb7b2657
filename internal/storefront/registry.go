package storefront

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mmynk/storefront/internal/auth"
	"github.com/mmynk/storefront/internal/notify"
	"github.com/mmynk/storefront/internal/storage"
)

const (
	DefaultIdleTTL     = 30 * time.Minute
	DefaultMaxSessions = 1024
)

// Entry is one live session of the server.
type Entry struct {
	*Storefront

	// Notices is nil for the anonymous session, whose notices are logged
	// only: it is shared by every client without a token.
	Notices *notify.Queue

	key      string
	lastSeen time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithIdleTTL closes sessions unused for longer than d. Zero disables it.
func WithIdleTTL(d time.Duration) Option {
	return func(r *Registry) { r.idleTTL = d }
}

// WithMaxSessions bounds the number of live sessions; the least recently
// used one is closed to make room. Zero disables the bound.
func WithMaxSessions(n int) Option {
	return func(r *Registry) { r.maxSessions = n }
}

func withClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// Registry keeps one Storefront per bearer token for the server.
//
// Sessions and their durable mirrors are keyed by auth.Fingerprint of the
// whole token, never by a claim inside it: a token naming someone else's
// user ID still only reaches its own state.
type Registry struct {
	deps        Deps
	scope       func(key string) storage.Store
	noticeSize  int
	idleTTL     time.Duration
	maxSessions int
	now         func() time.Time

	mu        sync.Mutex
	sessions  map[string]*Entry
	anonymous *Entry
}

// NewRegistry creates a registry. scope returns the durable store for a
// token fingerprint; deps.Store backs the anonymous session.
func NewRegistry(deps Deps, scope func(key string) storage.Store, noticeSize int, opts ...Option) *Registry {
	if deps.ReadSession == nil {
		deps.ReadSession = auth.ReadSession
	}
	r := &Registry{
		deps:        deps,
		scope:       scope,
		noticeSize:  noticeSize,
		idleTTL:     DefaultIdleTTL,
		maxSessions: DefaultMaxSessions,
		now:         time.Now,
		sessions:    make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the session for token, creating it on first use. Missing or
// rejected tokens get the anonymous session; a rejection is also returned as
// the error so the caller can tell that one request about it.
func (r *Registry) Get(ctx context.Context, token string) (*Entry, error) {
	session, err := r.deps.ReadSession(token)
	if err != nil || session == nil {
		return r.anonymousEntry(ctx), err
	}

	key := auth.Fingerprint(token)

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.evictIdleLocked(now)

	if entry, ok := r.sessions[key]; ok {
		entry.lastSeen = now
		return entry, nil
	}
	if r.maxSessions > 0 && len(r.sessions) >= r.maxSessions {
		r.evictOldestLocked()
	}

	queue := notify.NewQueue(r.noticeSize)
	deps := r.deps
	deps.Store = r.scope(key)
	deps.Notifier = notify.Multi{queue, r.deps.Notifier}
	entry := &Entry{
		Storefront: New(ctx, deps, token),
		Notices:    queue,
		key:        key,
		lastSeen:   now,
	}
	r.sessions[key] = entry
	return entry, nil
}

// Logout tears down the session of token and clears its durable state.
func (r *Registry) Logout(ctx context.Context, token string) error {
	key := auth.Fingerprint(token)

	r.mu.Lock()
	entry, ok := r.sessions[key]
	delete(r.sessions, key)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return entry.Logout(ctx)
}

// Len returns the number of authenticated sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close tears every session down.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, entry := range r.sessions {
		entry.Close()
		delete(r.sessions, key)
	}
	if r.anonymous != nil {
		r.anonymous.Close()
		r.anonymous = nil
	}
}

func (r *Registry) anonymousEntry(ctx context.Context) *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.anonymous == nil {
		r.anonymous = &Entry{Storefront: New(ctx, r.deps, "")}
	}
	return r.anonymous
}

// Evicted sessions are closed, not logged out: their durable mirror stays
// and is restored if the token comes back.
func (r *Registry) evictIdleLocked(now time.Time) {
	if r.idleTTL <= 0 {
		return
	}
	for key, entry := range r.sessions {
		if now.Sub(entry.lastSeen) > r.idleTTL {
			r.evictLocked(key, entry, "idle")
		}
	}
}

func (r *Registry) evictOldestLocked() {
	var oldest *Entry
	for _, entry := range r.sessions {
		if oldest == nil || entry.lastSeen.Before(oldest.lastSeen) {
			oldest = entry
		}
	}
	if oldest != nil {
		r.evictLocked(oldest.key, oldest, "capacity")
	}
}

func (r *Registry) evictLocked(key string, entry *Entry, reason string) {
	delete(r.sessions, key)
	entry.Close()
	slog.Debug("Session evicted", "reason", reason, "user_id", entry.Session().UserID)
}
