package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"knitkart/internal/credential"
	"knitkart/internal/ids"
	"knitkart/internal/models"
	"knitkart/internal/repository"
	"knitkart/internal/security"
)

var (
	ErrMissingCredentials = errors.New("email and password are required")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
	ErrEmailTaken         = errors.New("email already registered")
)

const bookkeepingTimeout = 5 * time.Second

type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	RecordLogin(ctx context.Context, id string, at time.Time) error
}

type ResetStore interface {
	Create(ctx context.Context, reset models.PasswordReset) error
	Redeem(ctx context.Context, tokenHash []byte, now time.Time, passwordHash []byte) (models.PasswordReset, error)
}

// ResetNotifier delivers a password reset token to the account owner.
type ResetNotifier interface {
	SendPasswordReset(ctx context.Context, user models.User, token string, expiresAt time.Time) error
}

type AuthConfig struct {
	SessionTTL     time.Duration
	RenewThreshold time.Duration
	ResetTTL       time.Duration
}

type AuthService struct {
	users    UserStore
	resets   ResetStore
	notifier ResetNotifier
	codec    *credential.Codec
	cfg      AuthConfig
	log      zerolog.Logger
	now      func() time.Time

	bookkeeping sync.WaitGroup
}

func NewAuthService(
	users UserStore,
	resets ResetStore,
	notifier ResetNotifier,
	codec *credential.Codec,
	cfg AuthConfig,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		resets:   resets,
		notifier: notifier,
		codec:    codec,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

type AuthResult struct {
	Token string
	User  models.User
}

type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	input.Email = normalizeEmail(input.Email)
	if input.Email == "" || input.Password == "" {
		return AuthResult{}, ErrMissingCredentials
	}
	if err := security.ValidatePassword(input.Password); err != nil {
		return AuthResult{}, err
	}

	passwordHash, err := security.HashPassword(input.Password)
	if err != nil {
		return AuthResult{}, err
	}

	user := models.User{
		ID:           ids.New(),
		Email:        input.Email,
		PasswordHash: passwordHash,
		Name:         strings.TrimSpace(input.Name),
		Role:         models.UserRoleUser,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return AuthResult{}, ErrEmailTaken
		}
		return AuthResult{}, fmt.Errorf("create user: %w", err)
	}

	return s.startSession(user)
}

func (s *AuthService) Login(ctx context.Context, email string, password string) (AuthResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return AuthResult{}, ErrMissingCredentials
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, fmt.Errorf("find user: %w", err)
	}

	ok, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("stored password hash unreadable")
		return AuthResult{}, ErrInvalidCredentials
	}
	if !ok {
		return AuthResult{}, ErrInvalidCredentials
	}

	s.recordLogin(user.ID)
	return s.startSession(user)
}

// RequestPasswordReset never reveals whether the email is registered.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return ErrMissingCredentials
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil
		}
		return fmt.Errorf("find user: %w", err)
	}

	token, digest, err := security.GenerateResetToken()
	if err != nil {
		return err
	}
	reset := models.PasswordReset{
		ID:        ids.New(),
		UserID:    user.ID,
		TokenHash: digest,
		ExpiresAt: s.now().Add(s.cfg.ResetTTL),
	}
	if err := s.resets.Create(ctx, reset); err != nil {
		return fmt.Errorf("store reset: %w", err)
	}

	if err := s.notifier.SendPasswordReset(ctx, user, token, reset.ExpiresAt); err != nil {
		return fmt.Errorf("send reset: %w", err)
	}
	return nil
}

func (s *AuthService) ResetPassword(ctx context.Context, token string, password string) (AuthResult, error) {
	if strings.TrimSpace(token) == "" {
		return AuthResult{}, ErrInvalidResetToken
	}
	if err := security.ValidatePassword(password); err != nil {
		return AuthResult{}, err
	}

	passwordHash, err := security.HashPassword(password)
	if err != nil {
		return AuthResult{}, err
	}
	reset, err := s.resets.Redeem(ctx, security.HashResetToken(token), s.now(), passwordHash)
	if err != nil {
		if errors.Is(err, repository.ErrResetNotFound) || errors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, ErrInvalidResetToken
		}
		return AuthResult{}, fmt.Errorf("redeem reset: %w", err)
	}

	user, err := s.users.GetByID(ctx, reset.UserID)
	if err != nil {
		return AuthResult{}, fmt.Errorf("load user: %w", err)
	}
	return s.startSession(user)
}

func (s *AuthService) startSession(user models.User) (AuthResult, error) {
	token, err := s.codec.Issue(user.ID, user.Email, user.Role, s.cfg.SessionTTL)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Token: token, User: user}, nil
}

// ResolvePrincipal turns a raw session token into the request principal.
// Missing, invalid, expired and orphaned tokens all yield nil.
func (s *AuthService) ResolvePrincipal(ctx context.Context, rawToken string) (*models.Principal, *credential.Claims) {
	claims, err := s.codec.Verify(rawToken)
	if err != nil {
		return nil, nil
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			s.log.Error().Err(err).Str("user_id", claims.UserID).Msg("session user lookup failed")
		}
		return nil, nil
	}

	s.recordLogin(user.ID)
	return models.PrincipalFromUser(user), claims
}

// ShouldRenew is true once less than the renew threshold remains.
func (s *AuthService) ShouldRenew(claims *credential.Claims) bool {
	if claims == nil {
		return false
	}
	return claims.Remaining(s.now()) < s.cfg.RenewThreshold
}

// MaybeRenew reissues the token with a full lifetime when renewal is due.
// It returns an empty token when the current one should be kept.
func (s *AuthService) MaybeRenew(claims *credential.Claims) (string, error) {
	if !s.ShouldRenew(claims) {
		return "", nil
	}
	return s.codec.Issue(claims.UserID, claims.Email, claims.Role, s.cfg.SessionTTL)
}

func (s *AuthService) recordLogin(userID string) {
	at := s.now()
	s.bookkeeping.Add(1)
	go func() {
		defer s.bookkeeping.Done()
		ctx, cancel := context.WithTimeout(context.Background(), bookkeepingTimeout)
		defer cancel()
		if err := s.users.RecordLogin(ctx, userID, at); err != nil {
			s.log.Warn().Err(err).Str("user_id", userID).Msg("record login failed")
		}
	}()
}

// Drain waits for pending login bookkeeping writes.
func (s *AuthService) Drain() {
	s.bookkeeping.Wait()
}

type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) SendPasswordReset(_ context.Context, user models.User, token string, expiresAt time.Time) error {
	n.log.Info().
		Str("user_id", user.ID).
		Str("reset_token", token).
		Time("expires_at", expiresAt).
		Msg("password reset issued")
	return nil
}
