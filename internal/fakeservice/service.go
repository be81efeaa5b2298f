// Package fakeservice is an in-memory document service speaking the same
// HTTP contract as the real backend. Tests use it in-process and the CLI
// serves it for local demos.
package fakeservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"docsign/internal/ratelimit"
	"docsign/internal/util"
	"docsign/pkg/auth"
	"docsign/pkg/domain"
	"github.com/go-chi/chi/v5"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultTokenTTL    = time.Hour
	defaultFrontendURL = "http://localhost:3000"
)

// Service holds users, documents and summaries in memory.
type Service struct {
	secret       []byte
	frontendURL  string
	tokenTTL     time.Duration
	summaryDelay time.Duration
	now          func() time.Time
	limiter      ratelimit.Limiter

	mu        sync.Mutex
	users     map[string]*userEntry
	documents map[int64]*documentEntry
	nextID    int64
	faults    map[string][]fault
}

type userEntry struct {
	user         domain.User
	passwordHash string
}

type documentEntry struct {
	record    domain.DocumentRecord
	owner     string
	draft     domain.Draft
	pdf       []byte
	signedPDF []byte
	signedBy  string
	links     []string
	summary   *domain.Summary
	readyAt   time.Time
}

type fault struct {
	status int
	body   string
}

type Option func(*Service)

// WithSecret sets the HS256 key used to issue and verify tokens.
func WithSecret(secret []byte) Option {
	return func(s *Service) { s.secret = secret }
}

// WithFrontendURL sets the base of generated signing links.
func WithFrontendURL(u string) Option {
	return func(s *Service) { s.frontendURL = strings.TrimRight(u, "/") }
}

func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) { s.tokenTTL = ttl }
}

// WithSummaryDelay makes summary generation asynchronous: the generate call
// is accepted immediately and the summary becomes visible after d.
func WithSummaryDelay(d time.Duration) Option {
	return func(s *Service) { s.summaryDelay = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLoginLimiter throttles login attempts per username.
func WithLoginLimiter(l ratelimit.Limiter) Option {
	return func(s *Service) { s.limiter = l }
}

// New constructs an empty service.
func New(opts ...Option) *Service {
	s := &Service{
		secret:      []byte(uuid.NewString()),
		frontendURL: defaultFrontendURL,
		tokenTTL:    defaultTokenTTL,
		now:         time.Now,
		users:       make(map[string]*userEntry),
		documents:   make(map[int64]*documentEntry),
		faults:      make(map[string][]fault),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the HTTP handler for the service.
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.injectFaults)
	r.Use(util.WithRequestID)
	r.Use(func(next http.Handler) http.Handler { return util.WithRequestLog("fakeservice", next) })

	r.Post("/users/v1/register/", s.handleRegister)
	r.Post("/users/v1/login/", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/users/v1/profile/", s.handleProfile)

		r.Post("/documents/v1/generate/", s.handleGenerate)
		r.Get("/documents/v1/list/", s.handleList)
		r.Get("/documents/v1/view/{id}/", s.handleViewPDF)
		r.Post("/documents/v1/send/{id}/", s.handleSend)

		r.Post("/signature/v1/sign/{id}/", s.handleSign)
		r.Get("/signature/v1/view/{id}/", s.handleViewSignedPDF)
		r.Get("/signature/v1/status/{id}/", s.handleStatus)
		r.Get("/signature/v1/document/{id}/", s.handleSignerDocument)

		r.Post("/summary/v1/generate/{id}/", s.handleGenerateSummary)
		r.Get("/summary/v1/view/{id}/", s.handleViewSummary)
	})
	return r
}

// AddUser registers a user directly, bypassing validation.
func (s *Service) AddUser(u domain.User, password string) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		slog.Error("seed user rejected", "username", u.Username, "err", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.Username] = &userEntry{user: u, passwordHash: hash}
}

// IssueToken signs an access token for username valid for ttl.
func (s *Service) IssueToken(username string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// SigningLinks returns the links delivered to the signer of id, oldest first.
func (s *Service) SigningLinks(id int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil
	}
	return append([]string(nil), doc.links...)
}

// FailNext makes the next request matching method and path fail. A zero
// status drops the connection without a response.
func (s *Service) FailNext(method, path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	s.faults[key] = append(s.faults[key], fault{status: status, body: body})
}

func (s *Service) injectFaults(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		s.mu.Lock()
		queue := s.faults[key]
		var f *fault
		if len(queue) > 0 {
			f = &queue[0]
			s.faults[key] = queue[1:]
		}
		s.mu.Unlock()
		if f == nil {
			next.ServeHTTP(w, r)
			return
		}
		if f.status == 0 {
			dropConnection(w)
			return
		}
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(f.body))
	})
}

func dropConnection(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		panic(http.ErrAbortHandler)
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		panic(http.ErrAbortHandler)
	}
	_ = conn.Close()
}

type ctxKey struct{}

func withUser(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, ctxKey{}, username)
}

func userFrom(ctx context.Context) string {
	v, _ := ctx.Value(ctxKey{}).(string)
	return v
}

func (s *Service) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication credentials were not provided."})
			return
		}
		claims := &jwt.RegisteredClaims{}
		_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(t *jwt.Token) (any, error) {
			return s.secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"detail": "Given token not valid for any token type",
				"code":   "token_not_valid",
			})
			return
		}
		s.mu.Lock()
		_, known := s.users[claims.Subject]
		s.mu.Unlock()
		if !known {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "User not found", "code": "user_not_found"})
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), claims.Subject)))
	})
}

func (s *Service) signingLink(token string, id int64) string {
	q := url.Values{}
	q.Set("token", token)
	q.Set("doc", strconv.FormatInt(id, 10))
	return s.frontendURL + "/sign?" + q.Encode()
}

// sortedDocuments returns the owner's documents, newest first.
func (s *Service) sortedDocuments(owner string) []domain.DocumentRecord {
	out := make([]domain.DocumentRecord, 0)
	for _, doc := range s.documents {
		if doc.owner == owner {
			out = append(out, doc.record)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func docID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

func fullName(u domain.User) string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeNotFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
}

func writePDF(w http.ResponseWriter, name string, data []byte) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// ListenAndServe serves the service on addr until ctx is done.
func (s *Service) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("fake document service listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
