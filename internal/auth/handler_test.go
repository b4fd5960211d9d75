package auth_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/pelita-foundation/pelita/internal/auth"
	"github.com/pelita-foundation/pelita/internal/shared"
	"github.com/pelita-foundation/pelita/internal/view"
	_ "github.com/pelita-foundation/pelita/testing"
)

type stubRepo struct {
	user     *auth.User
	sessions map[string]int64
	deleted  []string
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	if s.sessions == nil {
		s.sessions = make(map[string]int64)
	}
	s.sessions[id] = userID
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

// commitWriter flushes session state before the first response byte so
// tests observe the Set-Cookie headers the browser would.
type commitWriter struct {
	http.ResponseWriter
	sessions  *shared.SessionManager
	sess      *shared.Session
	req       *http.Request
	committed bool
}

func (w *commitWriter) WriteHeader(statusCode int) {
	if !w.committed {
		w.committed = true
		_ = w.sessions.Commit(w.req.Context(), w.ResponseWriter, w.req, w.sess)
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *commitWriter) Write(data []byte) (int, error) {
	if !w.committed {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(data)
}

type authFixture struct {
	router   chi.Router
	sessions *shared.SessionManager
	repo     *stubRepo
}

func newAuthFixture(t *testing.T, repo *stubRepo) *authFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	templates, err := view.NewEngine()
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := auth.NewHandler(logger, auth.NewService(repo), templates, sessionManager, csrfManager)

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := sessionManager.Load(r.Context(), r)
			if err != nil {
				t.Fatalf("load session: %v", err)
			}
			r = r.WithContext(shared.ContextWithSession(r.Context(), sess))
			next.ServeHTTP(&commitWriter{ResponseWriter: w, sessions: sessionManager, sess: sess, req: r}, r)
		})
	})
	router.Route("/auth", handler.MountRoutes)
	return &authFixture{router: router, sessions: sessionManager, repo: repo}
}

func activeUser(t *testing.T, password string) *auth.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return &auth.User{ID: 1, Email: "petugas@pelita.test", Name: "Petugas", PasswordHash: string(hashed), IsActive: true}
}

func TestLoginPage(t *testing.T) {
	fix := newAuthFixture(t, &stubRepo{})

	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	res := httptest.NewRecorder()
	fix.router.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "<form") {
		t.Fatalf("expected login form in body")
	}
}

func postLogin(t *testing.T, fix *authFixture, email, password string) *httptest.ResponseRecorder {
	t.Helper()

	// Prime session cookie via GET.
	getReq := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	getRes := httptest.NewRecorder()
	fix.router.ServeHTTP(getRes, getReq)
	cookies := getRes.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("expected session cookie from GET")
	}

	form := url.Values{}
	form.Set("email", email)
	form.Set("password", password)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	res := httptest.NewRecorder()
	fix.router.ServeHTTP(res, req)
	return res
}

func TestLoginSuccessRedirects(t *testing.T) {
	repo := &stubRepo{user: activeUser(t, "rahasia-kuat")}
	fix := newAuthFixture(t, repo)

	res := postLogin(t, fix, "petugas@pelita.test", "rahasia-kuat")
	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", res.Code)
	}
	if loc := res.Header().Get("Location"); loc != "/" {
		t.Fatalf("expected redirect to /, got %q", loc)
	}
	if len(repo.sessions) != 1 {
		t.Fatalf("expected session record, got %d", len(repo.sessions))
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	fix := newAuthFixture(t, &stubRepo{user: activeUser(t, "rahasia-kuat")})

	res := postLogin(t, fix, "petugas@pelita.test", "password-salah")
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "Email atau password tidak valid") {
		t.Fatalf("expected error message in response")
	}
}

func TestLoginInactiveUserRejected(t *testing.T) {
	user := activeUser(t, "rahasia-kuat")
	user.IsActive = false
	fix := newAuthFixture(t, &stubRepo{user: user})

	res := postLogin(t, fix, "petugas@pelita.test", "rahasia-kuat")
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestLogoutDestroysSession(t *testing.T) {
	repo := &stubRepo{user: activeUser(t, "rahasia-kuat")}
	fix := newAuthFixture(t, repo)

	loginRes := postLogin(t, fix, "petugas@pelita.test", "rahasia-kuat")
	cookies := loginRes.Result().Cookies()

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	res := httptest.NewRecorder()
	fix.router.ServeHTTP(res, req)

	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", res.Code)
	}
	if len(repo.deleted) == 0 {
		t.Fatalf("expected session delete")
	}
}
