package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/hitoshi/docman/internal/auth"
	"github.com/hitoshi/docman/internal/model"
)

// --- モック定義 ---

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	registerFn func(ctx context.Context, in auth.RegisterInput) (*model.User, error)
	loginFn    func(ctx context.Context, email, password string) (*auth.AccessToken, error)
}

func (m *mockAuthService) Register(ctx context.Context, in auth.RegisterInput) (*model.User, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, in)
	}
	return &model.User{ID: "user-1", Email: in.Email}, nil
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*auth.AccessToken, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return &auth.AccessToken{AccessToken: "token", TokenType: "bearer", ExpiresIn: 1800}, nil
}

// --- POST /api/v1/auth/register テスト ---

func TestAuthHandler_Register_Success(t *testing.T) {
	var got auth.RegisterInput
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, in auth.RegisterInput) (*model.User, error) {
			got = in
			return &model.User{ID: "user-1", Email: "ann@example.com", FullName: in.FullName, PasswordHash: "secret-hash"}, nil
		},
	}
	h := NewAuthHandler(svc, &mockResolver{})

	body := `{"email":"Ann@Example.com","password":"pw","full_name":"Ann"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.Register(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if got.Email != "Ann@Example.com" || got.Password != "pw" || got.FullName != "Ann" {
		t.Errorf("RegisterInput = %+v", got)
	}
	if strings.Contains(w.Body.String(), "secret-hash") || strings.Contains(w.Body.String(), "password") {
		t.Errorf("response must not expose the password hash: %s", w.Body.String())
	}

	var resp userResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ID != "user-1" || resp.Email != "ann@example.com" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestAuthHandler_Register_AlreadyRegistered_ReturnsConflict(t *testing.T) {
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, in auth.RegisterInput) (*model.User, error) {
			return nil, model.NewEmailAlreadyRegisteredError()
		},
	}
	h := NewAuthHandler(svc, &mockResolver{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(`{"email":"a@example.com","password":"pw"}`))
	w := httptest.NewRecorder()

	h.Register(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestAuthHandler_Register_InvalidJSON_ReturnsBadRequest(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, &mockResolver{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(`{`))
	w := httptest.NewRecorder()

	h.Register(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// --- POST /api/v1/auth/login テスト ---

func TestAuthHandler_Login_JSON(t *testing.T) {
	var gotEmail, gotPassword string
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, email, password string) (*auth.AccessToken, error) {
			gotEmail, gotPassword = email, password
			return &auth.AccessToken{AccessToken: "jwt", TokenType: "bearer", ExpiresIn: 1800}, nil
		},
	}
	h := NewAuthHandler(svc, &mockResolver{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"a@example.com","password":"pw"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	w := httptest.NewRecorder()

	h.Login(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotEmail != "a@example.com" || gotPassword != "pw" {
		t.Errorf("Login(%q, %q)", gotEmail, gotPassword)
	}

	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["access_token"] != "jwt" || resp["token_type"] != "bearer" {
		t.Errorf("unexpected response: %v", resp)
	}
}

func TestAuthHandler_Login_Form(t *testing.T) {
	var gotEmail string
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, email, password string) (*auth.AccessToken, error) {
			gotEmail = email
			return &auth.AccessToken{AccessToken: "jwt", TokenType: "bearer"}, nil
		},
	}
	h := NewAuthHandler(svc, &mockResolver{})

	form := url.Values{"username": {"form@example.com"}, "password": {"pw"}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	h.Login(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotEmail != "form@example.com" {
		t.Errorf("email = %q, want %q", gotEmail, "form@example.com")
	}
}

func TestAuthHandler_Login_InvalidCredentials_ReturnsUnauthorized(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, email, password string) (*auth.AccessToken, error) {
			return nil, model.NewInvalidCredentialsError()
		},
	}
	h := NewAuthHandler(svc, &mockResolver{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"a@example.com","password":"wrong"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.Login(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if w.Header().Get("WWW-Authenticate") != "Bearer" {
		t.Error("expected WWW-Authenticate: Bearer")
	}
	if code := decodeErrorCode(t, w); code != model.ErrCodeInvalidCredentials {
		t.Errorf("code = %q, want %q", code, model.ErrCodeInvalidCredentials)
	}
}

// --- GET /api/v1/auth/me テスト ---

func TestAuthHandler_Me_Authenticated_ReturnsUserJSON(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, resolverFor("user-me"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	w := httptest.NewRecorder()

	h.Me(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}
	if !strings.Contains(w.Body.String(), `"email":"user-me@example.com"`) {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestAuthHandler_Me_PrincipalMissing_ReturnsUnauthorized(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, &mockResolver{err: model.NewPrincipalNotFoundError()})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	w := httptest.NewRecorder()

	h.Me(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}
