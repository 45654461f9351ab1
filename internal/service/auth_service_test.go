package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unidesk/request-service/internal/auth"
	"github.com/unidesk/request-service/internal/config"
	"github.com/unidesk/request-service/internal/domain"
	"github.com/unidesk/request-service/internal/repository"
)

type fakeLoginHistoryRepo struct {
	mu      sync.Mutex
	entries []domain.LoginHistory
}

func (r *fakeLoginHistoryRepo) Create(_ context.Context, entry *domain.LoginHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ID = uuid.NewString()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *fakeLoginHistoryRepo) CloseOpenSessions(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for i := range r.entries {
		if r.entries[i].UserID == userID && r.entries[i].LogoutAt == nil {
			r.entries[i].LogoutAt = &now
		}
	}
	return nil
}

func (r *fakeLoginHistoryRepo) ListByUser(_ context.Context, userID string, _ int) ([]domain.LoginHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.LoginHistory
	for _, entry := range r.entries {
		if entry.UserID == userID {
			result = append(result, entry)
		}
	}
	return result, nil
}

type fakePasswordResetRepo struct {
	mu     sync.Mutex
	tokens map[string]*repository.PasswordResetToken
}

func newFakePasswordResetRepo() *fakePasswordResetRepo {
	return &fakePasswordResetRepo{tokens: make(map[string]*repository.PasswordResetToken)}
}

func (r *fakePasswordResetRepo) Create(_ context.Context, token *repository.PasswordResetToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	token.ID = uuid.NewString()
	token.CreatedAt = time.Now()
	clone := *token
	r.tokens[token.Token] = &clone
	return nil
}

func (r *fakePasswordResetRepo) GetByToken(_ context.Context, tokenStr string) (*repository.PasswordResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[tokenStr]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *token
	return &clone, nil
}

func (r *fakePasswordResetRepo) MarkUsed(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, token := range r.tokens {
		if token.ID == id {
			token.UsedAt = &now
		}
	}
	return nil
}

type authFixture struct {
	users   *fakeUserRepo
	history *fakeLoginHistoryRepo
	resets  *fakePasswordResetRepo
	service *AuthService
}

func newAuthFixture(t *testing.T, users ...*domain.User) *authFixture {
	t.Helper()
	fx := &authFixture{
		users:   newFakeUserRepo(users...),
		history: &fakeLoginHistoryRepo{},
		resets:  newFakePasswordResetRepo(),
	}
	fx.service = NewAuthService(config.AuthConfig{
		JWTSecret:               "test-secret",
		AccessTokenTTLMinutes:   60,
		PasswordResetTTLMinutes: 30,
		BcryptCost:              4,
	}, AuthDependencies{
		UserRepo:          fx.users,
		LoginHistoryRepo:  fx.history,
		PasswordResetRepo: fx.resets,
		Logger:            zap.NewNop(),
	})
	return fx
}

func seedAccount(t *testing.T, username, email, password string) *domain.User {
	t.Helper()
	hash, err := auth.HashPassword(password, 4)
	require.NoError(t, err)
	return &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		FullName:     "Test Account",
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleEmployee,
		Active:       true,
	}
}

func TestLoginByUsernameRecordsSession(t *testing.T) {
	account := seedAccount(t, "jdoe", "jdoe@example.edu", "hunter22")
	fx := newAuthFixture(t, account)

	user, token, expiresAt, err := fx.service.Login(
		context.Background(), "jdoe", "hunter22", "10.0.0.9", "curl/8.0")
	require.NoError(t, err)
	assert.Equal(t, account.ID, user.ID)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := fx.service.TokenManager().ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, account.ID, claims.UserID)

	sessions, err := fx.history.ListByUser(context.Background(), account.ID, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "10.0.0.9", sessions[0].IPAddress)

	stored, err := fx.users.GetByID(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.LoginCount)
	assert.NotNil(t, stored.FirstLoginAt)
}

func TestLoginFallsBackToEmail(t *testing.T) {
	account := seedAccount(t, "jdoe", "jdoe@example.edu", "hunter22")
	fx := newAuthFixture(t, account)

	user, _, _, err := fx.service.Login(
		context.Background(), "jdoe@example.edu", "hunter22", "", "")
	require.NoError(t, err)
	assert.Equal(t, account.ID, user.ID)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	account := seedAccount(t, "jdoe", "jdoe@example.edu", "hunter22")
	fx := newAuthFixture(t, account)

	_, _, _, err := fx.service.Login(context.Background(), "jdoe", "wrong", "", "")
	assert.Equal(t, "UNAUTHORIZED", errCode(t, err))
}

func TestLoginRejectsDisabledAccount(t *testing.T) {
	account := seedAccount(t, "jdoe", "jdoe@example.edu", "hunter22")
	account.Active = false
	fx := newAuthFixture(t, account)

	_, _, _, err := fx.service.Login(context.Background(), "jdoe", "hunter22", "", "")
	assert.Equal(t, "UNAUTHORIZED", errCode(t, err))
}

func TestLogoutClosesOpenSessions(t *testing.T) {
	account := seedAccount(t, "jdoe", "jdoe@example.edu", "hunter22")
	fx := newAuthFixture(t, account)

	_, _, _, err := fx.service.Login(context.Background(), "jdoe", "hunter22", "", "")
	require.NoError(t, err)
	require.NoError(t, fx.service.Logout(context.Background(), account.ID))

	sessions, err := fx.history.ListByUser(context.Background(), account.ID, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.NotNil(t, sessions[0].LogoutAt)
}

func TestRegisterUserRejectsDuplicates(t *testing.T) {
	account := seedAccount(t, "jdoe", "jdoe@example.edu", "hunter22")
	fx := newAuthFixture(t, account)

	_, err := fx.service.RegisterUser(context.Background(), &domain.User{
		Username: "jdoe", Email: "other@example.edu", FullName: "Other",
	}, "password1")
	assert.Equal(t, "CONFLICT", errCode(t, err))

	created, err := fx.service.RegisterUser(context.Background(), &domain.User{
		Username: "fresh", Email: "fresh@example.edu", FullName: "Fresh",
	}, "password1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleEmployee, created.Role)
	assert.True(t, created.Active)
	assert.NoError(t, auth.ComparePassword(created.PasswordHash, "password1"))
}

func TestPasswordResetFlow(t *testing.T) {
	account := seedAccount(t, "jdoe", "jdoe@example.edu", "hunter22")
	fx := newAuthFixture(t, account)

	token, err := fx.service.RequestPasswordReset(context.Background(), "jdoe@example.edu")
	require.NoError(t, err)
	require.NotEmpty(t, token.Token)

	require.NoError(t, fx.service.ConfirmPasswordReset(context.Background(), token.Token, "brand-new-pass"))

	_, _, _, err = fx.service.Login(context.Background(), "jdoe", "brand-new-pass", "", "")
	require.NoError(t, err)

	// tokens are single use
	err = fx.service.ConfirmPasswordReset(context.Background(), token.Token, "again")
	assert.Equal(t, "VALIDATION_FAILED", errCode(t, err))
}

func TestChangePasswordVerifiesCurrent(t *testing.T) {
	account := seedAccount(t, "jdoe", "jdoe@example.edu", "hunter22")
	fx := newAuthFixture(t, account)

	err := fx.service.ChangePassword(context.Background(), account.ID, "wrong", "new-pass-123")
	assert.Equal(t, "UNAUTHORIZED", errCode(t, err))

	require.NoError(t, fx.service.ChangePassword(context.Background(), account.ID, "hunter22", "new-pass-123"))
	_, _, _, err = fx.service.Login(context.Background(), "jdoe", "new-pass-123", "", "")
	require.NoError(t, err)
}
