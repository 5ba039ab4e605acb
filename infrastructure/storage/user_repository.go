package storage

import (
	"context"
	"dm-lab/codec"
	"dm-lab/contract"
	"dm-lab/errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) *UserRepository {
	return &UserRepository{db: db}
}

type diskUser struct {
	Username     string   `cbor:"1,keyasint"`
	PasswordHash string   `cbor:"2,keyasint"`
	Roles        []string `cbor:"3,keyasint"`
	CreatedAt    int64    `cbor:"4,keyasint"`
}

// CreateUser persists a new account. The password must already be hashed.
func (u *UserRepository) CreateUser(_ context.Context, username, hashedPassword string) (contract.User, error) {
	user := contract.User{
		Username:     username,
		PasswordHash: hashedPassword,
		Roles:        []string{"user"},
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	data, err := codec.Marshal(fromUser(user))
	if err != nil {
		return contract.User{}, fmt.Errorf("marshal failed: %w", err)
	}

	err = u.db.Update(func(txn *badger.Txn) error {
		key := userKey(username)
		if _, err := txn.Get(key); err == nil {
			return errors.ErrUserAlreadyExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, data)
	})
	if errors.Is(err, errors.ErrUserAlreadyExists) {
		return contract.User{}, err
	}
	if err != nil {
		return contract.User{}, fmt.Errorf("%w: %v", errors.ErrStorageUnavailable, err)
	}
	return user, nil
}

// GetUser returns ErrUserNotFound when no account exists for username.
func (u *UserRepository) GetUser(_ context.Context, username string) (contract.User, error) {
	var du diskUser
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(username))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return codec.Unmarshal(val, &du)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return contract.User{}, errors.ErrUserNotFound
	}
	if err != nil {
		return contract.User{}, fmt.Errorf("%w: %v", errors.ErrStorageUnavailable, err)
	}
	return toUser(du), nil
}

func fromUser(user contract.User) diskUser {
	return diskUser{
		Username:     user.Username,
		PasswordHash: user.PasswordHash,
		Roles:        user.Roles,
		CreatedAt:    user.CreatedAt.Unix(),
	}
}

func toUser(du diskUser) contract.User {
	return contract.User{
		Username:     du.Username,
		PasswordHash: du.PasswordHash,
		Roles:        du.Roles,
		CreatedAt:    time.Unix(du.CreatedAt, 0).UTC(),
	}
}
