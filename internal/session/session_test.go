package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"docsign/pkg/domain"
	"github.com/alicebob/miniredis/v2"
	jwt "github.com/golang-jwt/jwt/v5"
)

func mustToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(exp),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	})
	signed, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestSetAndClearTokenPersistsThroughFileBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	backend, err := NewFileBackend(path)
	if err != nil {
		t.Fatalf("new file backend: %v", err)
	}
	s, err := New(backend)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if s.HasToken() {
		t.Fatalf("fresh session should not hold a token")
	}
	if err := s.SetToken("opaque-token"); err != nil {
		t.Fatalf("set token: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat session file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("session file perm = %o, want 600", perm)
	}

	reloaded, err := New(backend)
	if err != nil {
		t.Fatalf("reload session: %v", err)
	}
	if got := reloaded.Token(); got != "opaque-token" {
		t.Fatalf("reloaded token = %q", got)
	}

	if err := reloaded.ClearToken(); err != nil {
		t.Fatalf("clear token: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected session file removed, got %v", err)
	}
	if err := reloaded.ClearToken(); err != nil {
		t.Fatalf("second clear should be a no-op: %v", err)
	}
}

func TestExpiredInspectsExpClaim(t *testing.T) {
	s, _ := New(NewMemoryBackend())
	if s.Expired() {
		t.Fatalf("empty session cannot be expired")
	}
	if err := s.SetToken(mustToken(t, "7", time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("set token: %v", err)
	}
	if s.Expired() {
		t.Fatalf("fresh token reported expired")
	}
	if err := s.SetToken(mustToken(t, "7", time.Now().Add(-time.Minute))); err != nil {
		t.Fatalf("set token: %v", err)
	}
	if !s.Expired() {
		t.Fatalf("expired token not detected")
	}
	if err := s.SetToken("not-a-jwt"); err != nil {
		t.Fatalf("set token: %v", err)
	}
	if s.Expired() {
		t.Fatalf("opaque token should never be considered expired")
	}
}

func TestTokenSubject(t *testing.T) {
	if got := TokenSubject(mustToken(t, "signer-9", time.Now().Add(time.Hour))); got != "signer-9" {
		t.Fatalf("subject = %q", got)
	}
	if got := TokenSubject("opaque"); got != "" {
		t.Fatalf("opaque subject = %q", got)
	}
}

func TestCurrentUserFetchesOnceAndCaches(t *testing.T) {
	s, _ := New(NewMemoryBackend())
	calls := 0
	fetch := ProfileFetcherFunc(func(context.Context) (domain.User, error) {
		calls++
		return domain.User{Username: "owner"}, nil
	})

	if _, err := s.CurrentUser(context.Background(), fetch); !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken without token, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("fetcher called without token")
	}

	_ = s.SetToken("tok")
	for i := 0; i < 2; i++ {
		u, err := s.CurrentUser(context.Background(), fetch)
		if err != nil {
			t.Fatalf("current user: %v", err)
		}
		if u.Username != "owner" {
			t.Fatalf("username = %q", u.Username)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one profile fetch, got %d", calls)
	}

	_ = s.ClearToken()
	if _, ok := s.CachedUser(); ok {
		t.Fatalf("clear token must drop cached profile")
	}
}

func TestCurrentUserPropagatesFetchError(t *testing.T) {
	s, _ := New(NewMemoryBackend())
	_ = s.SetToken("tok")
	boom := errors.New("boom")
	_, err := s.CurrentUser(context.Background(), ProfileFetcherFunc(func(context.Context) (domain.User, error) {
		return domain.User{}, boom
	}))
	if !errors.Is(err, boom) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if _, ok := s.CachedUser(); ok {
		t.Fatalf("failed fetch must not cache a profile")
	}
}

func TestSignerSessionIsIsolated(t *testing.T) {
	owner, _ := New(NewMemoryBackend())
	_ = owner.SetToken("owner-token")

	signer := NewSigner(" signer-token ")
	if signer.Scope() != ScopeSigner {
		t.Fatalf("scope = %q", signer.Scope())
	}
	if signer.Token() != "signer-token" {
		t.Fatalf("signer token = %q", signer.Token())
	}
	_ = signer.ClearToken()
	if owner.Token() != "owner-token" {
		t.Fatalf("clearing signer session touched owner session")
	}
}

func TestRedisBackendExpiresWithToken(t *testing.T) {
	mr := miniredis.RunT(t)
	backend, err := NewRedisBackend(mr.Addr(), "", "test:session")
	if err != nil {
		t.Fatalf("new redis backend: %v", err)
	}
	s, err := New(backend)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.SetToken(mustToken(t, "1", time.Now().Add(10*time.Minute))); err != nil {
		t.Fatalf("set token: %v", err)
	}
	ttl := mr.TTL("test:session")
	if ttl <= 0 || ttl > 10*time.Minute {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	reloaded, err := New(backend)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reloaded.HasToken() {
		t.Fatalf("token not restored from redis")
	}

	mr.FastForward(11 * time.Minute)
	expired, err := New(backend)
	if err != nil {
		t.Fatalf("reload after expiry: %v", err)
	}
	if expired.HasToken() {
		t.Fatalf("token should expire with its exp claim")
	}
}

func TestExpiredTokenIsNotPersisted(t *testing.T) {
	mr := miniredis.RunT(t)
	backend, err := NewRedisBackend(mr.Addr(), "", "test:session")
	if err != nil {
		t.Fatalf("new redis backend: %v", err)
	}
	s, err := New(backend)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.SetToken(mustToken(t, "1", time.Now().Add(10*time.Minute))); err != nil {
		t.Fatalf("set token: %v", err)
	}
	if err := s.SetToken(mustToken(t, "1", time.Now().Add(-time.Minute))); err != nil {
		t.Fatalf("set expired token: %v", err)
	}
	if mr.Exists("test:session") {
		t.Fatalf("expired token was written to redis with ttl %v", mr.TTL("test:session"))
	}
	if !s.HasToken() || !s.Expired() {
		t.Fatalf("expired token should stay held in memory")
	}

	reloaded, err := New(backend)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.HasToken() {
		t.Fatalf("expired token restored from redis")
	}

	if err := backend.Save("tok", -time.Second); err != nil {
		t.Fatalf("save negative ttl: %v", err)
	}
	if mr.Exists("test:session") {
		t.Fatalf("negative ttl save left a key without expiry")
	}
}

func TestRedisBackendRequiresAddr(t *testing.T) {
	if _, err := NewRedisBackend("", "", ""); err == nil {
		t.Fatalf("expected error for empty redis addr")
	}
}
