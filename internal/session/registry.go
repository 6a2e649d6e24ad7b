package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"hrchat/internal/models"
)

// ErrNotFound reports an operation on a session id the registry does not know.
var ErrNotFound = errors.New("session not found")

// entry is the live state of one session. Its mutex serializes every
// history mutation and is also taken before the entry is deleted, so a sweep
// can never remove a session out from under an in-flight request.
type entry struct {
	mu      sync.Mutex
	session models.Session
	history []models.Turn
}

// Registry holds all live sessions in memory. Sessions are capped by an LRU:
// creating a session past the cap evicts the least recently used one, which
// behaves like a forced reset (the evict hook clears the session's files).
type Registry struct {
	mu       sync.Mutex
	cache    *lru.Cache[string, *entry]
	max      int
	maxTurns int
	onEvict  func(sessionID string)
	now      func() time.Time
}

// NewRegistry builds a registry capped at maxSessions live sessions, each
// keeping at most maxTurns turns of history.
func NewRegistry(maxSessions, maxTurns int) *Registry {
	if maxSessions <= 0 {
		maxSessions = 100
	}
	if maxTurns <= 0 {
		maxTurns = 20
	}
	cache, err := lru.New[string, *entry](maxSessions)
	if err != nil {
		// only reachable with a non-positive size, which is guarded above
		panic(err)
	}
	return &Registry{
		cache:    cache,
		max:      maxSessions,
		maxTurns: maxTurns,
		now:      time.Now,
	}
}

// OnEvict registers a hook invoked with the session id whenever the LRU cap
// forces a session out. Explicit resets and sweeps do not trigger it; their
// callers clear the file store themselves.
func (r *Registry) OnEvict(fn func(sessionID string)) {
	r.mu.Lock()
	r.onEvict = fn
	r.mu.Unlock()
}

// GetOrCreate returns the session for id, creating an empty one when unknown,
// and touches its activity timestamp.
func (r *Registry) GetOrCreate(id string) models.Session {
	r.mu.Lock()
	if e, ok := r.cache.Get(id); ok {
		r.mu.Unlock()
		e.mu.Lock()
		e.session.LastActivityAt = r.now()
		s := e.session
		e.mu.Unlock()
		return s
	}

	now := r.now()
	fresh := models.Session{ID: id, CreatedAt: now, LastActivityAt: now}
	evicted := r.makeRoomLocked()
	r.cache.Add(id, &entry{session: fresh})
	hook := r.onEvict
	r.mu.Unlock()

	r.notifyEvicted(hook, evicted)
	return fresh
}

// AppendTurn appends one turn to an existing session's history, trimming to
// the per-session cap. The append is atomic with respect to concurrent
// callers on the same session.
func (r *Registry) AppendTurn(id string, role models.Role, content string) error {
	e, ok := r.cache.Get(id)
	if !ok {
		return ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.appendLocked(role, content, r.now(), r.maxTurns)
	return nil
}

// Window returns a copy of the last n turns for prompt assembly. Older turns
// remain stored but are never resent.
func (r *Registry) Window(id string, n int) ([]models.Turn, error) {
	e, ok := r.cache.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.windowLocked(n), nil
}

// Reset discards the session for id (a no-op when unknown) and mints a fresh
// id for the conversation that replaces it. Minting rather than clearing in
// place matches the frontend convention for "new chat".
func (r *Registry) Reset(id string) string {
	r.mu.Lock()
	if e, ok := r.cache.Peek(id); ok {
		e.mu.Lock()
		r.cache.Remove(id)
		e.mu.Unlock()
	}

	newID := uuid.NewString()
	now := r.now()
	evicted := r.makeRoomLocked()
	r.cache.Add(newID, &entry{session: models.Session{ID: newID, CreatedAt: now, LastActivityAt: now}})
	hook := r.onEvict
	r.mu.Unlock()

	r.notifyEvicted(hook, evicted)
	return newID
}

// Remove drops a session without a replacement. Used by the best-effort
// browser-unload cleanup.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.cache.Peek(id)
	if !ok {
		return false
	}
	e.mu.Lock()
	r.cache.Remove(id)
	e.mu.Unlock()
	return true
}

// Sweep removes every session whose last activity is older than maxAge and
// returns the removed ids so the caller can clear their files. It takes no
// registry-wide lock: the cache is internally synchronized, so request paths
// stay unblocked while the sweep runs. Busy entries are skipped rather than
// waited on; a session with a turn in flight has fresh activity and is never
// a victim.
func (r *Registry) Sweep(maxAge time.Duration) []string {
	cutoff := r.now().Add(-maxAge)
	var removed []string
	for _, key := range r.cache.Keys() {
		e, ok := r.cache.Peek(key)
		if !ok {
			continue
		}
		if !e.mu.TryLock() {
			continue
		}
		if e.session.LastActivityAt.Before(cutoff) {
			r.cache.Remove(key)
			removed = append(removed, key)
		}
		e.mu.Unlock()
	}
	return removed
}

// Do runs fn while holding the session's mutex, so a whole
// read-context/complete/append sequence is atomic against sweeps, resets and
// concurrent turns on the same session.
func (r *Registry) Do(id string, fn func(h *Handle) error) error {
	e, ok := r.cache.Get(id)
	if !ok {
		return ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(&Handle{r: r, e: e})
}

// Stats returns the inspection view of one session.
func (r *Registry) Stats(id string) (models.SessionStats, error) {
	e, ok := r.cache.Peek(id)
	if !ok {
		return models.SessionStats{}, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statsLocked(), nil
}

// AllStats returns stats for every live session, most recently used last.
func (r *Registry) AllStats() []models.SessionStats {
	keys := r.cache.Keys()
	stats := make([]models.SessionStats, 0, len(keys))
	for _, key := range keys {
		e, ok := r.cache.Peek(key)
		if !ok {
			continue
		}
		e.mu.Lock()
		stats = append(stats, e.statsLocked())
		e.mu.Unlock()
	}
	return stats
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	return r.cache.Len()
}

// makeRoomLocked evicts least-recently-used sessions until one slot is free.
// Caller holds r.mu. The victim's mutex is taken before removal so a session
// with a turn in flight cannot be yanked out from under it.
func (r *Registry) makeRoomLocked() []string {
	var evicted []string
	for r.cache.Len() >= r.max {
		key, e, ok := r.cache.GetOldest()
		if !ok {
			break
		}
		e.mu.Lock()
		r.cache.Remove(key)
		e.mu.Unlock()
		evicted = append(evicted, key)
	}
	return evicted
}

func (r *Registry) notifyEvicted(hook func(string), ids []string) {
	if hook == nil {
		return
	}
	for _, id := range ids {
		hook(id)
	}
}

func (e *entry) appendLocked(role models.Role, content string, now time.Time, maxTurns int) {
	e.history = append(e.history, models.Turn{Role: role, Content: content, CreatedAt: now})
	if len(e.history) > maxTurns {
		e.history = e.history[len(e.history)-maxTurns:]
	}
	e.session.LastActivityAt = now
}

func (e *entry) windowLocked(n int) []models.Turn {
	history := e.history
	if n > 0 && len(history) > n {
		history = history[len(history)-n:]
	}
	out := make([]models.Turn, len(history))
	copy(out, history)
	return out
}

func (e *entry) statsLocked() models.SessionStats {
	return models.SessionStats{
		SessionID:      e.session.ID,
		MessageCount:   len(e.history),
		CreatedAt:      e.session.CreatedAt,
		LastActivityAt: e.session.LastActivityAt,
	}
}

// Handle exposes session operations to a function running inside Do. It must
// not escape the callback.
type Handle struct {
	r *Registry
	e *entry
}

// Window returns a copy of the last n turns.
func (h *Handle) Window(n int) []models.Turn {
	return h.e.windowLocked(n)
}

// Append adds one turn to the history.
func (h *Handle) Append(role models.Role, content string) {
	h.e.appendLocked(role, content, h.r.now(), h.r.maxTurns)
}

// Stats returns the session's current stats.
func (h *Handle) Stats() models.SessionStats {
	return h.e.statsLocked()
}
