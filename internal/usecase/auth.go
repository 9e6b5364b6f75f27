package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/accounts-iam/internal/core/domain"
	"github.com/arklim/accounts-iam/internal/core/port"
	"github.com/arklim/accounts-iam/internal/infra/security"
	"github.com/arklim/accounts-iam/internal/repository"
)

var (
	// ErrInvalidCredentials indicates the provided identifier or password are incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidAccessToken indicates the provided access token is malformed or signature validation failed.
	ErrInvalidAccessToken = errors.New("invalid access token")
	// ErrExpiredAccessToken indicates the provided access token has expired.
	ErrExpiredAccessToken = errors.New("access token expired")
	// ErrAccessTokenRevoked indicates the token was revoked before it expired.
	ErrAccessTokenRevoked = errors.New("access token revoked")
)

// RegisterInput captures a self-service registration.
type RegisterInput struct {
	Name                 string
	Email                string
	Password             string
	PasswordConfirmation string
}

// LoginResult is returned after successful authentication.
type LoginResult struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
	User        domain.User
	Roles       []string
}

type rehashChecker interface {
	NeedsRehash(encoded string) bool
}

// AuthService coordinates registration, login and access token checks.
type AuthService struct {
	accounts    *UserService
	users       port.UserRepository
	roles       port.RoleRepository
	hasher      port.PasswordHasher
	tokens      *security.JWTManager
	revocations port.TokenRevocationStore
	guard       string
	logger      *zap.Logger
	now         func() time.Time
}

// NewAuthService constructs an AuthService. revocations may be nil, which disables logout.
func NewAuthService(
	accounts *UserService,
	users port.UserRepository,
	roles port.RoleRepository,
	hasher port.PasswordHasher,
	tokens *security.JWTManager,
	revocations port.TokenRevocationStore,
	guard string,
	logger *zap.Logger,
) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		accounts:    accounts,
		users:       users,
		roles:       roles,
		hasher:      hasher,
		tokens:      tokens,
		revocations: revocations,
		guard:       defaultGuard(guard),
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Register creates an account with a generated username.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	if input.Password != input.PasswordConfirmation {
		return nil, invalidInput("password confirmation does not match")
	}
	return s.accounts.Create(ctx, CreateUserInput{
		Name:     input.Name,
		Email:    input.Email,
		Password: input.Password,
	})
}

// Login verifies credentials and issues an access token. An identifier containing "@" is
// looked up as an email, anything else as a username.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	var (
		user *domain.User
		err  error
	)
	if strings.Contains(identifier, "@") {
		user, err = s.users.GetByEmail(ctx, strings.ToLower(identifier))
	} else {
		user, err = s.users.GetByUsername(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	ok, err := s.hasher.Verify(password, user.AuthPasswordHash())
	if err != nil {
		s.logger.Warn("password verification failed", zap.String("user_id", user.ID), zap.Error(err))
		return nil, ErrInvalidCredentials
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	s.upgradeHash(ctx, user, password)

	roles, err := s.roles.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list user roles: %w", err)
	}
	roleNames := domain.RoleNames(roles)

	claims, err := s.tokens.NewAccessTokenClaims(security.AccessTokenOptions{
		UserID:   user.AuthIdentifier(),
		Username: user.Username,
		Guard:    s.guard,
		Roles:    roleNames,
	})
	if err != nil {
		return nil, fmt.Errorf("build access token claims: %w", err)
	}
	token, err := s.tokens.Sign(claims)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	s.logger.Info("user logged in", zap.String("user_id", user.ID))
	return &LoginResult{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   claims.ExpiresAt.Time,
		User:        user.Sanitized(),
		Roles:       roleNames,
	}, nil
}

func (s *AuthService) upgradeHash(ctx context.Context, user *domain.User, password string) {
	checker, ok := s.hasher.(rehashChecker)
	if !ok || !checker.NeedsRehash(user.PasswordHash) {
		return
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Warn("rehash password failed", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	upgraded := *user
	upgraded.PasswordHash = hash
	if _, err := s.users.Update(ctx, upgraded); err != nil {
		s.logger.Warn("store rehashed password failed", zap.String("user_id", user.ID), zap.Error(err))
	}
}

// Authenticate verifies an access token and rejects revoked ones.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*security.AccessTokenClaims, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			return nil, ErrExpiredAccessToken
		}
		return nil, ErrInvalidAccessToken
	}

	if s.revocations != nil {
		revoked, _, err := s.revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("check token revocation: %w", err)
		}
		if revoked {
			return nil, ErrAccessTokenRevoked
		}
	}
	return claims, nil
}

// Logout revokes the token's jti until the token would have expired anyway.
func (s *AuthService) Logout(ctx context.Context, claims *security.AccessTokenClaims) error {
	if claims == nil || claims.ID == "" {
		return ErrInvalidAccessToken
	}
	if s.revocations == nil {
		return fmt.Errorf("token revocation is not configured")
	}

	ttl := time.Duration(0)
	if claims.ExpiresAt != nil {
		ttl = claims.ExpiresAt.Time.Sub(s.now())
	}
	if err := s.revocations.MarkRevoked(ctx, claims.ID, "logout", ttl); err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	s.logger.Info("user logged out", zap.String("user_id", claims.UserID))
	return nil
}

// Me returns the account behind the token.
func (s *AuthService) Me(ctx context.Context, claims *security.AccessTokenClaims) (*domain.User, error) {
	if claims == nil {
		return nil, ErrInvalidAccessToken
	}
	user, err := s.accounts.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	sanitized := user.Sanitized()
	return &sanitized, nil
}
