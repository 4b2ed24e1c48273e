package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/docman/internal/model"
	"github.com/hitoshi/docman/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByEmailFn func(ctx context.Context, email string) (*model.User, error)
	createFn      func(ctx context.Context, user *model.User) error
	findCalls     int
}

func (m *mockUserRepo) FindByID(_ context.Context, _ string) (*model.User, error) {
	return nil, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	m.findCalls++
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) List(_ context.Context, _ model.Page) ([]*model.User, error) {
	return nil, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) UpdateFunc(_ context.Context, _ string, _ func(*model.User) error) (*model.User, error) {
	return nil, nil
}

func (m *mockUserRepo) DeleteByID(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}

var _ repository.UserRepository = (*mockUserRepo)(nil)

func newTestService(t *testing.T, repo *mockUserRepo) (*Service, *TokenService) {
	t.Helper()
	tokens := newTestTokenService(t, "service-secret")
	return NewService(repo, NewHasher(bcrypt.MinCost), tokens), tokens
}

func requireAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	require.True(t, errors.As(err, &apiErr), "error type = %T (%v), want *model.APIError", err, err)
	assert.Equal(t, code, apiErr.Code)
}

// --- Register ---

func TestService_Register_NormalizesEmailAndHashesPassword(t *testing.T) {
	var created *model.User
	repo := &mockUserRepo{
		createFn: func(_ context.Context, user *model.User) error {
			created = user
			return nil
		},
	}
	svc, _ := newTestService(t, repo)

	user, err := svc.Register(context.Background(), RegisterInput{
		Email:    "  Ann@Example.COM ",
		Password: "s3cret",
		FullName: "Ann",
	})
	require.NoError(t, err)
	require.NotNil(t, created)

	assert.Equal(t, "ann@example.com", user.Email)
	assert.Equal(t, "Ann", user.FullName)
	assert.NotEmpty(t, user.ID)
	assert.NotEqual(t, "s3cret", user.PasswordHash)
	assert.True(t, NewHasher(bcrypt.MinCost).Verify("s3cret", user.PasswordHash))
}

func TestService_Register_DuplicateEmail(t *testing.T) {
	repo := &mockUserRepo{
		findByEmailFn: func(_ context.Context, email string) (*model.User, error) {
			return &model.User{ID: "u1", Email: email}, nil
		},
		createFn: func(_ context.Context, _ *model.User) error {
			t.Fatal("create should not be called")
			return nil
		},
	}
	svc, _ := newTestService(t, repo)

	_, err := svc.Register(context.Background(), RegisterInput{Email: "ANN@example.com", Password: "x"})
	requireAPIErrorCode(t, err, model.ErrCodeEmailAlreadyRegistered)
}

func TestService_Register_ConcurrentDuplicateFromStore(t *testing.T) {
	repo := &mockUserRepo{
		createFn: func(_ context.Context, _ *model.User) error {
			return repository.ErrDuplicate
		},
	}
	svc, _ := newTestService(t, repo)

	_, err := svc.Register(context.Background(), RegisterInput{Email: "ann@example.com", Password: "x"})
	requireAPIErrorCode(t, err, model.ErrCodeEmailAlreadyRegistered)
}

func TestService_Register_InvalidInput(t *testing.T) {
	svc, _ := newTestService(t, &mockUserRepo{})

	tests := []struct {
		name string
		in   RegisterInput
	}{
		{"empty email", RegisterInput{Email: "", Password: "x"}},
		{"not an email", RegisterInput{Email: "ann", Password: "x"}},
		{"display name form", RegisterInput{Email: "Ann <ann@example.com>", Password: "x"}},
		{"empty password", RegisterInput{Email: "ann@example.com", Password: ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.in)
			requireAPIErrorCode(t, err, model.ErrCodeInvalidRequest)
		})
	}
}

func TestService_Register_StoreFailure(t *testing.T) {
	repo := &mockUserRepo{
		findByEmailFn: func(_ context.Context, _ string) (*model.User, error) {
			return nil, errors.New("connection refused")
		},
	}
	svc, _ := newTestService(t, repo)

	_, err := svc.Register(context.Background(), RegisterInput{Email: "ann@example.com", Password: "x"})
	require.Error(t, err)

	var apiErr *model.APIError
	assert.False(t, errors.As(err, &apiErr), "store failure should not be an APIError")
}

// --- Login ---

func TestService_Login_IssuesTokenForNormalizedEmail(t *testing.T) {
	hash, err := NewHasher(bcrypt.MinCost).Hash("s3cret")
	require.NoError(t, err)

	repo := &mockUserRepo{
		findByEmailFn: func(_ context.Context, email string) (*model.User, error) {
			if email == "ann@example.com" {
				return &model.User{ID: "u1", Email: email, PasswordHash: hash}, nil
			}
			return nil, nil
		},
	}
	svc, tokens := newTestService(t, repo)

	tok, err := svc.Login(context.Background(), " ANN@example.com", "s3cret")
	require.NoError(t, err)

	assert.Equal(t, "bearer", tok.TokenType)
	assert.Equal(t, int((30 * time.Minute).Seconds()), tok.ExpiresIn)

	subject, err := tokens.Verify(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", subject)
}

func TestService_Login_InvalidCredentials(t *testing.T) {
	hash, err := NewHasher(bcrypt.MinCost).Hash("s3cret")
	require.NoError(t, err)

	repo := &mockUserRepo{
		findByEmailFn: func(_ context.Context, email string) (*model.User, error) {
			if email == "ann@example.com" {
				return &model.User{ID: "u1", Email: email, PasswordHash: hash}, nil
			}
			return nil, nil
		},
	}
	svc, _ := newTestService(t, repo)

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"wrong password", "ann@example.com", "wrong"},
		{"unknown user", "bob@example.com", "s3cret"},
		{"empty password", "ann@example.com", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Login(context.Background(), tt.email, tt.password)
			requireAPIErrorCode(t, err, model.ErrCodeInvalidCredentials)
		})
	}
}
