// ABOUTME: Initial admin user provisioning
// ABOUTME: Creates the configured superuser on first start

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/convo-gateway/internal/auth"
	"github.com/2389/convo-gateway/internal/store"
)

// UserCreator is the subset of the store needed to provision users.
type UserCreator interface {
	GetUserByUsername(ctx context.Context, username string) (*store.User, error)
	CreateUser(ctx context.Context, user *store.User) error
}

// EnsureInitialAdmin creates the superuser named username unless it already
// exists. The existing or new user is returned.
func EnsureInitialAdmin(ctx context.Context, users UserCreator, username, password string, logger *slog.Logger) (*store.User, error) {
	existing, err := users.GetUserByUsername(ctx, username)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("looking up initial admin: %w", err)
	}

	user, err := CreateUser(ctx, users, username, password, true)
	if err != nil {
		return nil, fmt.Errorf("creating initial admin: %w", err)
	}
	if logger != nil {
		logger.Info("created initial admin user", "username", username, "user_id", user.ID)
	}
	return user, nil
}

// CreateUser hashes password and stores a new active user.
func CreateUser(ctx context.Context, users UserCreator, username, password string, superuser bool) (*store.User, error) {
	if username == "" {
		return nil, errors.New("username is required")
	}
	if password == "" {
		return nil, errors.New("password is required")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &store.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: hash,
		IsActive:     true,
		IsSuperuser:  superuser,
		CreatedAt:    time.Now().UTC(),
	}
	if err := users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
