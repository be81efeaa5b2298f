package account

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"docsign/internal/fakeservice"
	"docsign/internal/session"
	"docsign/internal/transport"
	"docsign/pkg/domain"
)

func newService(t *testing.T) (*Service, *fakeservice.Service, *atomic.Int32) {
	t.Helper()
	fake := fakeservice.New()
	router := fake.Router()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		router.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	sess, err := session.New(session.NewMemoryBackend())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return NewService(transport.NewClient(srv.URL, sess)), fake, &hits
}

func validRegistration() RegisterRequest {
	return RegisterRequest{
		Username:        "alice",
		Email:           "alice@example.com",
		FirstName:       "Alice",
		LastName:        "Smith",
		Password:        "correct-horse",
		ConfirmPassword: "correct-horse",
		Role:            domain.RoleUser,
	}
}

func TestRegisterRejectsMismatchedConfirmationLocally(t *testing.T) {
	svc, _, hits := newService(t)
	req := validRegistration()
	req.ConfirmPassword = "something-else"

	err := svc.Register(context.Background(), req)
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok := verr.Malformed["confirm_password"]; !ok {
		t.Fatalf("expected confirm_password to be flagged, got %v", verr)
	}
	if hits.Load() != 0 {
		t.Fatalf("expected no requests, got %d", hits.Load())
	}
}

func TestRegisterLoginLogout(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	if err := svc.Register(ctx, validRegistration()); err != nil {
		t.Fatalf("register: %v", err)
	}

	err := svc.Register(ctx, validRegistration())
	var reqErr *transport.RequestError
	if !errors.As(err, &reqErr) || reqErr.Details["username"] == nil {
		t.Fatalf("expected duplicate username error, got %v", err)
	}

	u, err := svc.Login(ctx, "alice", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if u.Username != "alice" || u.Role != domain.RoleUser || u.FirstName != "Alice" {
		t.Fatalf("unexpected profile %+v", u)
	}
	if !svc.client.Session().HasToken() {
		t.Fatalf("expected token after login")
	}
	if cached, ok := svc.client.Session().CachedUser(); !ok || cached.Username != "alice" {
		t.Fatalf("profile not cached: %+v %v", cached, ok)
	}

	if err := svc.Logout(); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.CurrentUser(ctx); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn after logout, got %v", err)
	}
}

func TestLoginWithBadCredentials(t *testing.T) {
	svc, fake, _ := newService(t)
	fake.AddUser(domain.User{Username: "bob", Role: domain.RoleUser}, "right-password")

	_, err := svc.Login(context.Background(), "bob", "wrong-password")
	var authErr *transport.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if authErr.Message != "No active account found with the given credentials" {
		t.Fatalf("message = %q", authErr.Message)
	}
	if svc.client.Session().HasToken() {
		t.Fatalf("failed login must not store a token")
	}
}

func TestRestore(t *testing.T) {
	svc, fake, _ := newService(t)
	fake.AddUser(domain.User{Username: "carol", Role: domain.RoleSigner}, "carol-password")
	sess := svc.client.Session()

	if _, ok := svc.Restore(context.Background()); ok {
		t.Fatalf("restore without token should report not logged in")
	}

	token, err := fake.IssueToken("carol", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if err := sess.SetToken(token); err != nil {
		t.Fatalf("set token: %v", err)
	}
	u, ok := svc.Restore(context.Background())
	if !ok || u.Username != "carol" {
		t.Fatalf("restore = %+v, %v", u, ok)
	}

	ghost, err := fake.IssueToken("ghost", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if err := sess.SetToken(ghost); err != nil {
		t.Fatalf("set token: %v", err)
	}
	if _, ok := svc.Restore(context.Background()); ok {
		t.Fatalf("restore with rejected token should fail")
	}
	if sess.HasToken() {
		t.Fatalf("rejected token should be cleared")
	}
}

func TestRestoreClearsSessionOnServerError(t *testing.T) {
	svc, fake, _ := newService(t)
	fake.AddUser(domain.User{Username: "dave", Role: domain.RoleUser}, "dave-password")
	token, err := fake.IssueToken("dave", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if err := svc.client.Session().SetToken(token); err != nil {
		t.Fatalf("set token: %v", err)
	}
	fake.FailNext(http.MethodGet, "/users/v1/profile/", http.StatusInternalServerError, `{"error":"boom"}`)

	if _, ok := svc.Restore(context.Background()); ok {
		t.Fatalf("restore should fail on server error")
	}
	if svc.client.Session().HasToken() {
		t.Fatalf("session should be cleared after failed restore")
	}
}
