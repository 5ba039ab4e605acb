package services

import (
	"context"
	"dm-lab/auth"
	"dm-lab/contract"
	"dm-lab/errors"
	"dm-lab/mocks"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const testSecret = "test-secret"

func TestAuthService_Register(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()

	mockRepo := mocks.NewMockIUserRepository(ctrl)
	svc := NewAuthService(mockRepo, testSecret, 24*time.Hour)

	t.Run("should register successfully when input is valid", func(t *testing.T) {
		req := require.New(t)

		// Expect CreateUser to be called with a hashed password, not the plain one
		mockRepo.EXPECT().
			CreateUser(gomock.Any(), "alice", gomock.Not("ComplexPass123!")).
			Return(contract.User{Username: "alice", Roles: []string{"user"}}, nil).
			Times(1)

		token, err := svc.Register(ctx, "alice", "ComplexPass123!")

		req.NoError(err)
		identity, err := svc.Verify(token)
		req.NoError(err)
		req.Equal("alice", identity)
	})

	t.Run("should fail when password complexity is not met", func(t *testing.T) {
		req := require.New(t)

		// Repository should never be called
		mockRepo.EXPECT().CreateUser(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		token, err := svc.Register(ctx, "alice", "simple")

		req.ErrorIs(err, errors.ErrInvalidPassword)
		req.Empty(token)
	})

	t.Run("should fail when username is invalid", func(t *testing.T) {
		req := require.New(t)

		mockRepo.EXPECT().CreateUser(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		_, err := svc.Register(ctx, "a b", "ComplexPass123!")

		req.ErrorIs(err, errors.ErrInvalidUsername)
	})

	t.Run("should fail when user already exists in repository", func(t *testing.T) {
		req := require.New(t)

		mockRepo.EXPECT().
			CreateUser(gomock.Any(), "bob", gomock.Any()).
			Return(contract.User{}, errors.ErrUserAlreadyExists).
			Times(1)

		_, err := svc.Register(ctx, "bob", "ComplexPass123!")

		req.ErrorIs(err, errors.ErrUserAlreadyExists)
	})
}

func TestAuthService_Login(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()

	mockRepo := mocks.NewMockIUserRepository(ctrl)
	svc := NewAuthService(mockRepo, testSecret, 24*time.Hour)

	hashedPassword, err := auth.HashPassword("Secret123456!")
	require.NoError(t, err)
	storedUser := contract.User{Username: "alice", PasswordHash: hashedPassword, Roles: []string{"user"}}

	t.Run("should login successfully with correct credentials", func(t *testing.T) {
		req := require.New(t)

		mockRepo.EXPECT().GetUser(gomock.Any(), "alice").Return(storedUser, nil).Times(1)

		token, err := svc.Login(ctx, "alice", "Secret123456!")

		req.NoError(err)
		claims, err := auth.NewTokenManager(testSecret, time.Hour).Validate(token)
		req.NoError(err)
		req.Equal("alice", claims.Subject)
	})

	t.Run("should return invalid credentials when password matches nothing", func(t *testing.T) {
		req := require.New(t)

		mockRepo.EXPECT().GetUser(gomock.Any(), "alice").Return(storedUser, nil).Times(1)

		_, err := svc.Login(ctx, "alice", "WrongPassword123!")

		req.ErrorIs(err, errors.ErrInvalidCredentials)
	})

	t.Run("should return invalid credentials when user is not found", func(t *testing.T) {
		req := require.New(t)

		mockRepo.EXPECT().GetUser(gomock.Any(), "ghost").Return(contract.User{}, errors.ErrUserNotFound).Times(1)

		_, err := svc.Login(ctx, "ghost", "anyPassword")

		req.ErrorIs(err, errors.ErrInvalidCredentials)
	})

	t.Run("should surface storage failures", func(t *testing.T) {
		req := require.New(t)

		mockRepo.EXPECT().GetUser(gomock.Any(), "alice").Return(contract.User{}, errors.ErrStorageUnavailable).Times(1)

		_, err := svc.Login(ctx, "alice", "Secret123456!")

		req.ErrorIs(err, errors.ErrStorageUnavailable)
	})
}

func TestAuthService_Verify(t *testing.T) {
	req := require.New(t)
	svc := NewAuthService(nil, testSecret, time.Hour)

	_, err := svc.Verify("not-a-jwt")

	req.ErrorIs(err, errors.ErrUnauthenticated)
}
