package http

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mpetrov/gatehouse/internal/domain"
	"github.com/mpetrov/gatehouse/internal/service"
	"github.com/mpetrov/gatehouse/internal/util"
)

// memUserRepo and memResetRepo are in-memory stands-in for the Postgres
// repositories so the full handler -> service -> store path runs in tests.

type memUserRepo struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*domain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byID: make(map[uuid.UUID]*domain.User)}
}

func (m *memUserRepo) Create(ctx context.Context, email, username string, passwordHash []byte) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := username
	user := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		Username:     &name,
		PasswordHash: append([]byte(nil), passwordHash...),
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	m.byID[user.ID] = user
	return user, nil
}

func (m *memUserRepo) UpsertGoogleUser(ctx context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	user := &domain.User{ID: uuid.New(), Email: email, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	m.byID[user.ID] = user
	return user, nil
}

func (m *memUserRepo) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memUserRepo) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Username != nil && *u.Username == username {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memUserRepo) FindByEmailOrUsername(ctx context.Context, email, username string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email || (u.Username != nil && *u.Username == username) {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memUserRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

type memResetRepo struct {
	mu      sync.Mutex
	byToken map[string]*domain.ResetToken
	users   *memUserRepo
}

func newMemResetRepo(users *memUserRepo) *memResetRepo {
	return &memResetRepo{byToken: make(map[string]*domain.ResetToken), users: users}
}

func (m *memResetRepo) Create(ctx context.Context, token string, userID uuid.UUID, expiresAt time.Time) (*domain.ResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reset := &domain.ResetToken{Token: token, UserID: userID, ExpiresAt: expiresAt, CreatedAt: time.Now()}
	m.byToken[token] = reset
	return reset, nil
}

func (m *memResetRepo) FindByToken(ctx context.Context, token string) (*domain.ResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if reset, ok := m.byToken[token]; ok {
		clone := *reset
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memResetRepo) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for token, reset := range m.byToken {
		if reset.UserID == userID {
			delete(m.byToken, token)
		}
	}
	return nil
}

func (m *memResetRepo) Consume(ctx context.Context, token string, userID uuid.UUID, passwordHash []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byToken[token]; !ok {
		return sql.ErrNoRows
	}
	if u, ok := m.users.byID[userID]; ok {
		u.PasswordHash = append([]byte(nil), passwordHash...)
	}
	delete(m.byToken, token)
	return nil
}

type memMailer struct {
	mu   sync.Mutex
	sent []struct {
		email    string
		resetURL string
	}
}

func (m *memMailer) SendPasswordReset(ctx context.Context, email, resetURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, struct {
		email    string
		resetURL string
	}{email: email, resetURL: resetURL})
	return nil
}

type testEnv struct {
	e      *echo.Echo
	users  *memUserRepo
	resets *memResetRepo
	mailer *memMailer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	users := newMemUserRepo()
	resets := newMemResetRepo(users)
	mailer := &memMailer{}

	hasher := util.NewPasswordHasher(4)
	tokens := util.NewJWTManager("test-secret", time.Hour)
	manager := service.NewResetTokenManager(resets, users, hasher, time.Hour)
	svc := service.NewAuthService(users, manager, hasher, tokens, mailer, "", "http://localhost:8080")

	e := NewRouter([]string{"*"})
	RegisterAuth(e, svc)
	return &testEnv{e: e, users: users, resets: resets, mailer: mailer}
}

func (env *testEnv) do(method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %q", body["status"])
	}
}

func TestRegisterLoginFlow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/register", `{"email":"a@x.com","username":"alice","password":"secret1"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var registered AuthTokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &registered); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if registered.Token == "" {
		t.Fatal("expected session token")
	}
	if registered.User.Email != "a@x.com" {
		t.Fatalf("unexpected email %q", registered.User.Email)
	}
	if strings.Contains(rec.Body.String(), "password") || strings.Contains(rec.Body.String(), "hash") {
		t.Fatalf("response must not leak credential material: %s", rec.Body.String())
	}

	rec = env.do(http.MethodPost, "/api/login", `{"username":"alice","password":"secret1"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var loggedIn AuthTokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &loggedIn); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if loggedIn.Token == "" {
		t.Fatal("expected session token")
	}

	rec = env.do(http.MethodPost, "/api/login", `{"username":"alice","password":"wrong12"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRegisterDuplicateConflict(t *testing.T) {
	env := newTestEnv(t)

	first := env.do(http.MethodPost, "/api/register", `{"email":"a@x.com","username":"alice","password":"secret1"}`, nil)
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", first.Code)
	}

	t.Run("same email", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/api/register", `{"email":"a@x.com","username":"bob","password":"secret1"}`, nil)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
	})

	t.Run("same username", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/api/register", `{"email":"b@x.com","username":"alice","password":"secret1"}`, nil)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
	})
}

func TestRegisterValidationListsEveryViolation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/register", `{"email":"nope","username":"ab","password":"123"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body struct {
		Errors []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Errors) != 3 {
		t.Fatalf("expected 3 violations, got %d: %s", len(body.Errors), rec.Body.String())
	}
}

func TestLoginFailuresAreByteIdentical(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.do(http.MethodPost, "/api/register", `{"email":"a@x.com","username":"alice","password":"secret1"}`, nil); rec.Code != http.StatusCreated {
		t.Fatalf("register failed: %d", rec.Code)
	}

	unknown := env.do(http.MethodPost, "/api/login", `{"username":"nobody1","password":"secret1"}`, nil)
	wrongPwd := env.do(http.MethodPost, "/api/login", `{"username":"alice","password":"wrong12"}`, nil)

	if unknown.Code != http.StatusUnauthorized || wrongPwd.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401/401, got %d/%d", unknown.Code, wrongPwd.Code)
	}
	if unknown.Body.String() != wrongPwd.Body.String() {
		t.Fatalf("login failure bodies must be identical:\n%s\n%s", unknown.Body.String(), wrongPwd.Body.String())
	}
}

func TestForgotPasswordAntiEnumeration(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.do(http.MethodPost, "/api/register", `{"email":"a@x.com","username":"alice","password":"secret1"}`, nil); rec.Code != http.StatusCreated {
		t.Fatalf("register failed: %d", rec.Code)
	}

	known := env.do(http.MethodPost, "/api/forgot-password", `{"email":"a@x.com"}`, nil)
	unknown := env.do(http.MethodPost, "/api/forgot-password", `{"email":"ghost@x.com"}`, nil)

	if known.Code != http.StatusOK || unknown.Code != http.StatusOK {
		t.Fatalf("expected 200/200, got %d/%d", known.Code, unknown.Code)
	}
	if known.Body.String() != unknown.Body.String() {
		t.Fatalf("responses must be identical regardless of existence:\n%s\n%s", known.Body.String(), unknown.Body.String())
	}

	if len(env.mailer.sent) != 1 {
		t.Fatalf("expected exactly one mail (for the known email), got %d", len(env.mailer.sent))
	}
	if env.mailer.sent[0].email != "a@x.com" {
		t.Fatalf("mail went to %q", env.mailer.sent[0].email)
	}
	if len(env.resets.byToken) != 1 {
		t.Fatalf("expected one token outstanding, got %d", len(env.resets.byToken))
	}
	if !strings.Contains(env.mailer.sent[0].resetURL, "/api/reset-password?token=") {
		t.Fatalf("unexpected reset URL %q", env.mailer.sent[0].resetURL)
	}
}

func TestPasswordResetEndToEnd(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.do(http.MethodPost, "/api/register", `{"email":"a@x.com","username":"alice","password":"secret1"}`, nil); rec.Code != http.StatusCreated {
		t.Fatalf("register failed: %d", rec.Code)
	}
	if rec := env.do(http.MethodPost, "/api/forgot-password", `{"email":"a@x.com"}`, nil); rec.Code != http.StatusOK {
		t.Fatalf("forgot-password failed: %d", rec.Code)
	}

	url := env.mailer.sent[0].resetURL
	token := url[strings.Index(url, "token=")+len("token="):]

	rec := env.do(http.MethodPost, "/api/reset-password?token="+token, `{"password":"newsecret1"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// Old password no longer works, new one does.
	if rec := env.do(http.MethodPost, "/api/login", `{"username":"alice","password":"secret1"}`, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("old password should fail, got %d", rec.Code)
	}
	if rec := env.do(http.MethodPost, "/api/login", `{"username":"alice","password":"newsecret1"}`, nil); rec.Code != http.StatusOK {
		t.Fatalf("new password should log in, got %d", rec.Code)
	}

	// The token is spent: a second consumption fails.
	if rec := env.do(http.MethodPost, "/api/reset-password?token="+token, `{"password":"thirdsecret1"}`, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on reuse, got %d", rec.Code)
	}
}

func TestPasswordResetExpiredToken(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.do(http.MethodPost, "/api/register", `{"email":"a@x.com","username":"alice","password":"secret1"}`, nil); rec.Code != http.StatusCreated {
		t.Fatalf("register failed: %d", rec.Code)
	}
	if rec := env.do(http.MethodPost, "/api/forgot-password", `{"email":"a@x.com"}`, nil); rec.Code != http.StatusOK {
		t.Fatalf("forgot-password failed: %d", rec.Code)
	}

	var token string
	for tok, reset := range env.resets.byToken {
		token = tok
		reset.ExpiresAt = time.Now().Add(-time.Minute)
	}

	rec := env.do(http.MethodPost, "/api/reset-password?token="+token, `{"password":"newsecret1"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for expired token, got %d", rec.Code)
	}
}

func TestMeRequiresBearerToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/register", `{"email":"a@x.com","username":"alice","password":"secret1"}`, nil)
	var registered AuthTokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &registered); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	t.Run("missing header", func(t *testing.T) {
		if rec := env.do(http.MethodGet, "/api/me", "", nil); rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		header := map[string]string{"Authorization": "Bearer garbage"}
		if rec := env.do(http.MethodGet, "/api/me", "", header); rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("valid token", func(t *testing.T) {
		header := map[string]string{"Authorization": "Bearer " + registered.Token}
		rec := env.do(http.MethodGet, "/api/me", "", header)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), registered.User.ID) {
			t.Fatal("expected the registered user in the response")
		}
	})
}
