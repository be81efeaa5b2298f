package account

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"docsign/internal/session"
	"docsign/internal/transport"
	"docsign/pkg/domain"
)

// ErrNotLoggedIn indicates that no session token is held.
var ErrNotLoggedIn = session.ErrNoToken

// Service handles registration, login and session restore.
type Service struct {
	client *transport.Client
}

// NewService builds an account service over client and its session.
func NewService(client *transport.Client) *Service {
	return &Service{client: client}
}

type RegisterRequest struct {
	Username        string          `json:"username"`
	Email           string          `json:"email"`
	FirstName       string          `json:"first_name"`
	LastName        string          `json:"last_name"`
	Password        string          `json:"password"`
	ConfirmPassword string          `json:"confirm_password"`
	Role            domain.UserRole `json:"role"`
}

// Validate checks the form before any request is made.
func (r RegisterRequest) Validate() error {
	verr := &domain.ValidationError{}
	for _, f := range []struct {
		name  string
		value string
	}{
		{"username", r.Username},
		{"email", r.Email},
		{"first_name", r.FirstName},
		{"last_name", r.LastName},
		{"password", r.Password},
		{"confirm_password", r.ConfirmPassword},
		{"role", string(r.Role)},
	} {
		if strings.TrimSpace(f.value) == "" {
			verr.Missing = append(verr.Missing, f.name)
		}
	}
	malformed := map[string]string{}
	if r.Password != "" && r.ConfirmPassword != "" && r.Password != r.ConfirmPassword {
		malformed["confirm_password"] = "passwords do not match"
	}
	switch r.Role {
	case "", domain.RoleAdmin, domain.RoleUser, domain.RoleSigner:
	default:
		malformed["role"] = "unknown role"
	}
	if len(malformed) > 0 {
		verr.Malformed = malformed
	}
	if len(verr.Missing) == 0 && len(verr.Malformed) == 0 {
		return nil
	}
	return verr
}

// Register creates an account. It does not log in.
func (s *Service) Register(ctx context.Context, req RegisterRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	return s.client.SendPublic(ctx, http.MethodPost, "/users/v1/register/", req, nil)
}

type loginResponse struct {
	Access string `json:"access"`
}

// Login exchanges credentials for a bearer token, stores it and loads the
// profile of the new session.
func (s *Service) Login(ctx context.Context, username, password string) (domain.User, error) {
	body := map[string]string{"username": username, "password": password}
	var resp loginResponse
	if err := s.client.SendPublic(ctx, http.MethodPost, "/users/v1/login/", body, &resp); err != nil {
		return domain.User{}, err
	}
	if strings.TrimSpace(resp.Access) == "" {
		return domain.User{}, &transport.ParseError{Path: "/users/v1/login/", Err: errors.New("response carries no access token")}
	}
	if err := s.client.Session().SetToken(resp.Access); err != nil {
		return domain.User{}, err
	}
	return s.CurrentUser(ctx)
}

// FetchProfile loads the profile of the token holder.
func (s *Service) FetchProfile(ctx context.Context) (domain.User, error) {
	var u domain.User
	if err := s.client.Send(ctx, http.MethodGet, "/users/v1/profile/", nil, &u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// CurrentUser returns the cached profile, fetching it once per token.
func (s *Service) CurrentUser(ctx context.Context) (domain.User, error) {
	return s.client.Session().CurrentUser(ctx, s)
}

// Logout drops the token and cached profile.
func (s *Service) Logout() error {
	return s.client.Session().ClearToken()
}

// Restore resumes a persisted session at startup. Any failure to load the
// profile clears the session instead of being reported; ok is false when no
// usable session remains.
func (s *Service) Restore(ctx context.Context) (domain.User, bool) {
	sess := s.client.Session()
	if !sess.HasToken() {
		return domain.User{}, false
	}
	u, err := s.CurrentUser(ctx)
	if err == nil {
		return u, true
	}
	slog.Debug("discarding stored session", "err", err)
	if err := sess.ClearToken(); err != nil {
		slog.Warn("failed to clear session", "err", err)
	}
	return domain.User{}, false
}
