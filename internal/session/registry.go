package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/text/cases"
)

var (
	ErrAlreadyRegistered = errors.New("connection already registered")
	ErrNotRegistered     = errors.New("connection not registered")
)

// Registry maps live connections to their sessions. It is the single source
// of truth for who is online. All returned sessions are copies.
type Registry struct {
	mu       sync.RWMutex
	sessions map[Conn]*Session
	now      func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[Conn]*Session),
		now:      time.Now,
	}
}

func (r *Registry) Register(conn Conn) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[conn]; ok {
		return nil, ErrAlreadyRegistered
	}
	s := &Session{
		ID:          uuid.NewString(),
		ConnectedAt: r.now(),
		Conn:        conn,
	}
	r.sessions[conn] = s
	cp := *s
	return &cp, nil
}

func (r *Registry) Get(conn Conn) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[conn]
	if !ok {
		return nil, false
	}
	cp := *s
	return &cp, true
}

// SetDisplayName stores name without validating it. Callers must have run the
// nickname policy while holding the same lock that serializes writers.
func (r *Registry) SetDisplayName(conn Conn, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[conn]
	if !ok {
		return ErrNotRegistered
	}
	s.DisplayName = name
	return nil
}

func (r *Registry) Remove(conn Conn) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[conn]
	if !ok {
		return nil, false
	}
	delete(r.sessions, conn)
	cp := *s
	return &cp, true
}

// ListDisplayNames returns every set display name, sorted alphabetically
// without regard to case.
func (r *Registry) ListDisplayNames() []string {
	r.mu.RLock()
	names := lo.FilterMap(lo.Values(r.sessions), func(s *Session, _ int) (string, bool) {
		return s.DisplayName, s.DisplayName != ""
	})
	r.mu.RUnlock()

	SortNames(names)
	return names
}

// AllConns returns a point-in-time copy of every registered connection.
func (r *Registry) AllConns() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.sessions)
}

// Sessions returns copies of all sessions ordered by connect time.
func (r *Registry) Sessions() []Session {
	r.mu.RLock()
	result := lo.MapToSlice(r.sessions, func(_ Conn, s *Session) Session {
		return *s
	})
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].ConnectedAt.Equal(result[j].ConnectedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].ConnectedAt.Before(result[j].ConnectedAt)
	})
	return result
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) NamedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.CountBy(lo.Values(r.sessions), func(s *Session) bool {
		return s.DisplayName != ""
	})
}

// FoldName returns the case-folded form used to compare display names.
func FoldName(name string) string {
	// A Caser is stateful, so one is built per call.
	return cases.Fold().String(name)
}

// SortNames orders names by folded value, breaking ties on the raw string.
func SortNames(names []string) {
	folded := make(map[string]string, len(names))
	for _, n := range names {
		folded[n] = FoldName(n)
	}
	sort.Slice(names, func(i, j int) bool {
		fi, fj := folded[names[i]], folded[names[j]]
		if fi != fj {
			return fi < fj
		}
		return names[i] < names[j]
	})
}
