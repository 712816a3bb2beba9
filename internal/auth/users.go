package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/spbu-ds-practicum-2025/ledger-service/internal/domain"
	"github.com/spbu-ds-practicum-2025/ledger-service/internal/logger"
)

// UserService creates API users and exchanges credentials for tokens.
type UserService struct {
	userRepo      domain.UserRepository
	issuer        *TokenIssuer
	adminUsername string
}

func NewUserService(userRepo domain.UserRepository, issuer *TokenIssuer, adminUsername string) *UserService {
	return &UserService{
		userRepo:      userRepo,
		issuer:        issuer,
		adminUsername: adminUsername,
	}
}

// CreateUser registers a new user. Only the admin may call it.
func (s *UserService) CreateUser(ctx context.Context, caller, username, password string) (*domain.User, error) {
	if caller != s.adminUsername {
		logger.Warn("user service create user rejected", logger.Fields{"caller": caller})
		return nil, domain.ErrAdminOnly
	}

	username = strings.TrimSpace(username)
	if username == "" {
		return nil, domain.NewError(domain.KindInvalidArgument, "Username is required", nil)
	}
	if password == "" {
		return nil, domain.NewError(domain.KindInvalidArgument, "Password is required", nil)
	}

	hash, err := hashPassword(password)
	if err != nil {
		logger.Error("user service hash password failed", err, nil)
		return nil, err
	}

	user := &domain.User{Username: username, PasswordHash: hash}
	if err := s.userRepo.Create(ctx, user); err != nil {
		logger.Error("user service create user failed", err, logger.Fields{"username": username})
		return nil, fmt.Errorf("create user: %w", err)
	}

	logger.Info("user service create user success", logger.Fields{"username": username})
	return user, nil
}

// Login verifies the credentials and returns a signed bearer token.
func (s *UserService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			logger.Info("user service login unknown user", logger.Fields{"username": username})
			return "", domain.ErrUnauthorized
		}
		return "", fmt.Errorf("get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			logger.Info("user service login password mismatch", logger.Fields{"username": username})
			return "", domain.ErrUnauthorized
		}
		return "", fmt.Errorf("verify password: %w", err)
	}

	token, err := s.issuer.Issue(user.Username)
	if err != nil {
		return "", err
	}
	logger.Info("user service login success", logger.Fields{"username": username})
	return token, nil
}

// Authenticate resolves a bearer token to its username.
func (s *UserService) Authenticate(token string) (string, error) {
	return s.issuer.Verify(token)
}

// EnsureAdmin creates the admin user with the given password unless it already exists.
func (s *UserService) EnsureAdmin(ctx context.Context, password string) error {
	_, err := s.userRepo.GetByUsername(ctx, s.adminUsername)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return fmt.Errorf("look up admin: %w", err)
	}

	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	err = s.userRepo.Create(ctx, &domain.User{Username: s.adminUsername, PasswordHash: hash})
	if err != nil && !errors.Is(err, domain.ErrUserExists) {
		return fmt.Errorf("create admin: %w", err)
	}

	logger.Info("admin user bootstrapped", logger.Fields{"username": s.adminUsername})
	return nil
}

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", domain.NewError(domain.KindInvalidArgument, "Password must not exceed 72 bytes", err)
	}
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}
