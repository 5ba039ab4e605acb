package services

import (
	"context"
	"dm-lab/auth"
	"dm-lab/contract"
	"dm-lab/domain"
	"dm-lab/errors"
	"fmt"
	"time"
)

type AuthService struct {
	userRepository contract.IUserRepository
	tokens         *auth.TokenManager
}

func NewAuthService(repo contract.IUserRepository, secret string, authTokenDuration time.Duration) *AuthService {
	return &AuthService{userRepository: repo, tokens: auth.NewTokenManager(secret, authTokenDuration)}
}

// Register validates the credentials before any hashing, stores the argon2id
// hash and returns a first token.
func (s *AuthService) Register(ctx context.Context, username, password string) (string, error) {
	if err := auth.ValidateRegister(auth.RegisterRequest{Username: username, Password: password}); err != nil {
		return "", err
	}

	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing failed: %w", err)
	}

	user, err := s.userRepository.CreateUser(ctx, username, hashedPassword)
	if err != nil {
		return "", err
	}
	return s.tokens.Generate(user.Username, user.Roles)
}

// Login answers ErrInvalidCredentials for an unknown user as well as for a
// wrong password, so usernames cannot be enumerated.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.userRepository.GetUser(ctx, username)
	if errors.Is(err, errors.ErrStorageUnavailable) {
		return "", err
	}
	if err != nil {
		return "", errors.ErrInvalidCredentials
	}

	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		return "", errors.ErrInvalidCredentials
	}
	return s.tokens.Generate(user.Username, user.Roles)
}

func (s *AuthService) Verify(token string) (domain.Identity, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
