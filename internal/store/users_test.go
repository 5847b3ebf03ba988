// ABOUTME: Tests for user store methods
// ABOUTME: Runs against both SQLiteStore and MockStore

package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeImpls returns every Store implementation so behavior stays aligned.
func storeImpls(t *testing.T) map[string]Store {
	return map[string]Store{
		"sqlite": newTestStore(t),
		"mock":   NewMockStore(),
	}
}

func newTestUser(username string, superuser bool) *User {
	return &User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: "$2a$10$hash",
		IsActive:     true,
		IsSuperuser:  superuser,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
}

func TestUsers_CreateAndGet(t *testing.T) {
	for name, s := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			user := newTestUser("alice", true)
			require.NoError(t, s.CreateUser(ctx, user))

			got, err := s.GetUser(ctx, user.ID)
			require.NoError(t, err)
			assert.Equal(t, user.Username, got.Username)
			assert.True(t, got.IsActive)
			assert.True(t, got.IsSuperuser)
			assert.True(t, user.CreatedAt.Equal(got.CreatedAt))

			got, err = s.GetUserByUsername(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, user.ID, got.ID)
		})
	}
}

func TestUsers_DuplicateUsername(t *testing.T) {
	for name, s := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.CreateUser(ctx, newTestUser("bob", false)))

			err := s.CreateUser(ctx, newTestUser("bob", false))
			assert.ErrorIs(t, err, ErrUsernameExists)
		})
	}
}

func TestUsers_NotFound(t *testing.T) {
	for name, s := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.GetUser(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = s.GetUserByUsername(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestUsers_ListAndCount(t *testing.T) {
	for name, s := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			count, err := s.CountUsers(ctx)
			require.NoError(t, err)
			assert.Equal(t, 0, count)

			first := newTestUser("first", false)
			first.CreatedAt = time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
			require.NoError(t, s.CreateUser(ctx, first))
			require.NoError(t, s.CreateUser(ctx, newTestUser("second", false)))

			count, err = s.CountUsers(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, count)

			users, err := s.ListUsers(ctx)
			require.NoError(t, err)
			require.Len(t, users, 2)
			assert.Equal(t, "first", users[0].Username)
			assert.Equal(t, "second", users[1].Username)
		})
	}
}
