package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"docsign/pkg/domain"
)

// ErrNoToken indicates that no bearer token is held.
var ErrNoToken = errors.New("not logged in")

// Scope distinguishes the owner's session from a signing-link session.
type Scope string

const (
	ScopeOwner  Scope = "owner"
	ScopeSigner Scope = "signer"
)

// ProfileFetcher loads the profile of the token holder.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context) (domain.User, error)
}

// ProfileFetcherFunc adapts a function to ProfileFetcher.
type ProfileFetcherFunc func(ctx context.Context) (domain.User, error)

func (f ProfileFetcherFunc) FetchProfile(ctx context.Context) (domain.User, error) {
	return f(ctx)
}

// Session holds the bearer token and the cached profile of its holder.
// Token changes are written through to the backend.
type Session struct {
	backend Backend
	scope   Scope
	now     func() time.Time

	mu    sync.RWMutex
	token string
	user  *domain.User
}

// New restores an owner session from backend.
func New(backend Backend) (*Session, error) {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	s := &Session{backend: backend, scope: ScopeOwner, now: time.Now}
	token, ok, err := backend.Load()
	if err != nil {
		return nil, err
	}
	if ok {
		s.token = token
	}
	return s, nil
}

// NewSigner builds a signer-scoped session for a signing-link token. It is
// kept in memory only and never touches the owner's persisted session.
func NewSigner(token string) *Session {
	return &Session{
		backend: NewMemoryBackend(),
		scope:   ScopeSigner,
		now:     time.Now,
		token:   strings.TrimSpace(token),
	}
}

func (s *Session) Scope() Scope {
	return s.scope
}

// Token returns the held token or "".
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) HasToken() bool {
	return s.Token() != ""
}

// SetToken stores token and persists it. Any cached profile is dropped since
// it may belong to a different user. A token whose exp has already passed is
// held in memory only and any persisted token is removed.
func (s *Session) SetToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return s.ClearToken()
	}
	var ttl time.Duration
	persist := true
	if exp, ok := TokenExpiry(token); ok {
		ttl = exp.Sub(s.now())
		persist = ttl > 0
	}
	var err error
	if persist {
		err = s.backend.Save(token, ttl)
	} else {
		err = s.backend.Delete()
	}
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.token = token
	s.user = nil
	s.mu.Unlock()
	return nil
}

// ClearToken removes the token and cached profile from memory and backend.
func (s *Session) ClearToken() error {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.mu.Unlock()
	return s.backend.Delete()
}

// Expired reports whether the held token carries an exp claim in the past.
func (s *Session) Expired() bool {
	token := s.Token()
	if token == "" {
		return false
	}
	exp, ok := TokenExpiry(token)
	if !ok {
		return false
	}
	return !s.now().Before(exp)
}

// SetUser caches the profile of the token holder.
func (s *Session) SetUser(u domain.User) {
	s.mu.Lock()
	s.user = &u
	s.mu.Unlock()
}

// CachedUser returns the cached profile without fetching.
func (s *Session) CachedUser() (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return domain.User{}, false
	}
	return *s.user, true
}

// CurrentUser returns the cached profile, fetching it when a token is held
// but no profile has been cached yet.
func (s *Session) CurrentUser(ctx context.Context, fetcher ProfileFetcher) (domain.User, error) {
	if u, ok := s.CachedUser(); ok {
		return u, nil
	}
	if !s.HasToken() {
		return domain.User{}, ErrNoToken
	}
	u, err := fetcher.FetchProfile(ctx)
	if err != nil {
		return domain.User{}, err
	}
	if s.HasToken() {
		s.SetUser(u)
	}
	return u, nil
}
