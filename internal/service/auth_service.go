package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/unidesk/request-service/internal/auth"
	"github.com/unidesk/request-service/internal/config"
	"github.com/unidesk/request-service/internal/domain"
	"github.com/unidesk/request-service/internal/repository"
	apperrors "github.com/unidesk/request-service/pkg/util"
)

// AuthService coordinates login, session history, and password flows.
type AuthService struct {
	users      repository.UserRepository
	history    repository.LoginHistoryRepository
	resets     repository.PasswordResetRepository
	tokenMgr   *auth.TokenManager
	logger     *zap.Logger
	bcryptCost int
	resetTTL   time.Duration
	now        func() time.Time
}

// AuthDependencies wires repository requirements for the auth service.
type AuthDependencies struct {
	UserRepo          repository.UserRepository
	LoginHistoryRepo  repository.LoginHistoryRepository
	PasswordResetRepo repository.PasswordResetRepository
	Logger            *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) *AuthService {
	return &AuthService{
		users:      deps.UserRepo,
		history:    deps.LoginHistoryRepo,
		resets:     deps.PasswordResetRepo,
		tokenMgr:   auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		logger:     deps.Logger,
		bcryptCost: cfg.BcryptCost,
		resetTTL:   time.Duration(cfg.PasswordResetTTLMinutes) * time.Minute,
		now:        time.Now,
	}
}

// Login authenticates by username or email and records the session.
func (s *AuthService) Login(ctx context.Context, identifier, password, ipAddress, userAgent string) (*domain.User, string, time.Time, error) {
	identifier = strings.TrimSpace(identifier)

	user, err := s.users.GetByUsername(ctx, identifier)
	if errors.Is(err, pgx.ErrNoRows) && strings.Contains(identifier, "@") {
		user, err = s.users.GetByEmail(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, "", time.Time{}, apperrors.MapError(err)
	}
	if !user.Active {
		return nil, "", time.Time{}, apperrors.NewUnauthorized("account disabled")
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}

	token, expiresAt, err := s.tokenMgr.GenerateToken(user.ID, user.Role)
	if err != nil {
		return nil, "", time.Time{}, apperrors.MapError(err)
	}

	now := s.now()
	if err := s.users.RecordLogin(ctx, user.ID, now); err != nil {
		s.logger.Error("login counter update failed",
			zap.String("user_id", user.ID), zap.Error(err))
	}
	entry := &domain.LoginHistory{
		UserID:    user.ID,
		LoginAt:   now,
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Error("login history write failed",
			zap.String("user_id", user.ID), zap.Error(err))
	}
	return user, token, expiresAt, nil
}

// Logout closes the user's open sessions in the login history. JWTs stay
// valid until expiry; this only records the event.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	if err := s.history.CloseOpenSessions(ctx, userID); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

// RegisterUser creates a new account with a hashed password.
func (s *AuthService) RegisterUser(ctx context.Context, user *domain.User, password string) (*domain.User, error) {
	if _, err := s.users.GetByUsername(ctx, user.Username); err == nil {
		return nil, apperrors.NewConflict("username already taken", nil)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}
	if _, err := s.users.GetByEmail(ctx, user.Email); err == nil {
		return nil, apperrors.NewConflict("email already registered", nil)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	user.PasswordHash = hash
	if user.Role == "" {
		user.Role = domain.RoleEmployee
	}
	user.Active = true
	if err := s.users.Create(ctx, user); err != nil {
		return nil, apperrors.MapError(err)
	}
	return user, nil
}

// ChangePassword verifies the current password before updating.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return apperrors.MapError(err)
	}
	if err := auth.ComparePassword(user.PasswordHash, currentPassword); err != nil {
		return apperrors.NewUnauthorized("invalid credentials")
	}
	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return apperrors.MapError(err)
	}
	user.PasswordHash = hash
	if err := s.users.Update(ctx, user); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

// RequestPasswordReset persists a one-time reset token for the email.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (*repository.PasswordResetToken, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	token := &repository.PasswordResetToken{
		UserID:    user.ID,
		Token:     uuid.NewString(),
		ExpiresAt: s.now().Add(s.resetTTL),
	}
	if err := s.resets.Create(ctx, token); err != nil {
		return nil, apperrors.MapError(err)
	}
	return token, nil
}

// ConfirmPasswordReset validates the token and updates the password.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, tokenStr, newPassword string) error {
	token, err := s.resets.GetByToken(ctx, tokenStr)
	if err != nil {
		return apperrors.MapError(err)
	}
	if token.UsedAt != nil || s.now().After(token.ExpiresAt) {
		return apperrors.NewValidationError("reset token expired or already used", nil)
	}

	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return apperrors.MapError(err)
	}
	user, err := s.users.GetByID(ctx, token.UserID)
	if err != nil {
		return apperrors.MapError(err)
	}
	user.PasswordHash = hash
	if err := s.users.Update(ctx, user); err != nil {
		return apperrors.MapError(err)
	}
	if err := s.resets.MarkUsed(ctx, token.ID); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

// LoginHistory returns the user's recent sessions.
func (s *AuthService) LoginHistory(ctx context.Context, userID string, limit int) ([]domain.LoginHistory, error) {
	history, err := s.history.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return history, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
