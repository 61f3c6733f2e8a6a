package devauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/authportal/internal/apperror"
)

const (
	minPasswordLen    = 8
	maxPasswordLen    = 128
	maxEmailLen       = 255
	maxDisplayNameLen = 100
)

// msgInvalidCredentials is deliberately the same for unknown email and
// wrong password.
const msgInvalidCredentials = "invalid email or password"

// Service is the dev API's business logic.
type Service interface {
	SignUp(ctx context.Context, req SignupRequest) (*Session, error)
	SignIn(ctx context.Context, req LoginRequest) (*Session, error)
	SignOut(ctx context.Context, token string) error
	Me(ctx context.Context, token string) (*User, error)
}

// ServiceConfig holds the signing settings.
type ServiceConfig struct {
	SigningKey string
	TokenTTL   time.Duration

	// Now overrides the clock in tests.
	Now func() time.Time
}

// service implements Service.
type service struct {
	repo    UserRepository
	tokens  *tokens
	revoked *revocations
	now     func() time.Time
}

// NewService creates the dev API service.
func NewService(repo UserRepository, rdb *redis.Client, cfg ServiceConfig) Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	return &service{
		repo:    repo,
		tokens:  &tokens{key: []byte(cfg.SigningKey), ttl: cfg.TokenTTL, now: cfg.Now},
		revoked: &revocations{rdb: rdb},
		now:     cfg.Now,
	}
}

// SignUp creates an account and signs it in.
func (s *service) SignUp(ctx context.Context, req SignupRequest) (*Session, error) {
	email := normalizeEmail(req.Email)
	displayName := strings.TrimSpace(req.DisplayName)
	if err := validateSignup(email, req.Password, displayName); err != nil {
		return nil, err
	}

	// Check before doing expensive hashing.
	exists, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	if exists {
		return nil, apperror.NewConflict("an account with this email already exists")
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}

	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperror.NewInternal(err)
	}

	slog.Info("dev user registered", slog.String("user_id", user.ID), slog.String("email", user.Email))
	return s.issue(user)
}

// SignIn checks credentials and issues a token.
func (s *service) SignIn(ctx context.Context, req LoginRequest) (*Session, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, apperror.NewBadRequest("email and password are required")
	}

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.Code == 404 {
			return nil, apperror.NewUnauthorized(msgInvalidCredentials)
		}
		return nil, apperror.NewInternal(err)
	}
	if !verifyPassword(req.Password, user.PasswordHash) {
		return nil, apperror.NewUnauthorized(msgInvalidCredentials)
	}

	if err := s.repo.UpdateLastLogin(ctx, user.ID, s.now().UTC()); err != nil {
		// Non-fatal.
		slog.Warn("failed to update last login", slog.String("user_id", user.ID), slog.Any("error", err))
	}
	return s.issue(user)
}

// SignOut revokes token until it expires. Signing out an already revoked
// token succeeds.
func (s *service) SignOut(ctx context.Context, token string) error {
	claims, err := s.tokens.parse(token)
	if err != nil {
		return apperror.NewUnauthorized("invalid or expired token")
	}
	ttl := claims.ExpiresAt.Time.Sub(s.now())
	if err := s.revoked.revoke(ctx, claims.ID, ttl); err != nil {
		return apperror.NewInternal(err)
	}
	return nil
}

// Me returns the user behind a live token.
func (s *service) Me(ctx context.Context, token string) (*User, error) {
	claims, err := s.tokens.parse(token)
	if err != nil {
		return nil, apperror.NewUnauthorized("invalid or expired token")
	}

	revoked, err := s.revoked.revoked(ctx, claims.ID)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	if revoked {
		return nil, apperror.NewUnauthorized("token has been revoked")
	}

	user, err := s.repo.FindByID(ctx, claims.Subject)
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.Code == 404 {
			return nil, apperror.NewUnauthorized("user no longer exists")
		}
		return nil, apperror.NewInternal(err)
	}
	return user, nil
}

func (s *service) issue(user *User) (*Session, error) {
	token, expiresAt, err := s.tokens.issue(user)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	return &Session{Token: token, User: user, ExpiresAt: expiresAt}, nil
}

// validateSignup returns a 422 naming the first problem found.
func validateSignup(email, password, displayName string) error {
	if email == "" {
		return apperror.NewValidation("email is required")
	}
	if len(email) > maxEmailLen {
		return apperror.NewValidation("email is too long")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return apperror.NewValidation("email is not a valid address")
	}
	if utf8.RuneCountInString(password) < minPasswordLen {
		return apperror.NewValidation(fmt.Sprintf("password must be at least %d characters", minPasswordLen))
	}
	if utf8.RuneCountInString(password) > maxPasswordLen {
		return apperror.NewValidation(fmt.Sprintf("password must be at most %d characters", maxPasswordLen))
	}
	if utf8.RuneCountInString(displayName) > maxDisplayNameLen {
		return apperror.NewValidation(fmt.Sprintf("display name must be at most %d characters", maxDisplayNameLen))
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
