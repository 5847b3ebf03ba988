// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject failures

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu            sync.RWMutex
	users         map[string]*User         // keyed by user ID
	conversations map[string]*Conversation // keyed by conversation_id

	// Err, when set, is returned by every method.
	Err error
}

var _ Store = (*MockStore)(nil)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		users:         make(map[string]*User),
		conversations: make(map[string]*Conversation),
	}
}

// CreateUser stores a new user.
func (m *MockStore) CreateUser(ctx context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}

	for _, u := range m.users {
		if u.Username == user.Username {
			return ErrUsernameExists
		}
	}
	u := *user
	m.users[u.ID] = &u
	return nil
}

// GetUser retrieves a user by ID.
func (m *MockStore) GetUser(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// GetUserByUsername retrieves a user by username.
func (m *MockStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}

	for _, u := range m.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// ListUsers returns all users ordered by creation time.
func (m *MockStore) ListUsers(ctx context.Context) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}

	users := make([]*User, 0, len(m.users))
	for _, u := range m.users {
		cp := *u
		users = append(users, &cp)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

// CountUsers returns the number of users.
func (m *MockStore) CountUsers(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return 0, m.Err
	}
	return len(m.users), nil
}

// CreateConversation stores a new conversation.
func (m *MockStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if !conv.Type.Valid() {
		return fmt.Errorf("invalid conversation type %q", conv.Type)
	}

	if _, ok := m.conversations[conv.ConversationID]; ok {
		return ErrDuplicateConversation
	}
	c := *conv
	m.conversations[c.ConversationID] = &c
	return nil
}

// GetConversation retrieves a conversation by upstream id and type.
func (m *MockStore) GetConversation(ctx context.Context, conversationID string, typ ConversationType) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}

	c, ok := m.conversations[conversationID]
	if !ok || c.Type != typ {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// ListConversations returns conversations matching the filter, newest first.
func (m *MockStore) ListConversations(ctx context.Context, filter ConversationFilter) ([]*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}

	convs := []*Conversation{}
	for _, c := range m.conversations {
		if filter.UserID != "" && c.UserID != filter.UserID {
			continue
		}
		if filter.Type != "" && c.Type != filter.Type {
			continue
		}
		if filter.ValidOnly && !c.IsValid {
			continue
		}
		cp := *c
		convs = append(convs, &cp)
	}
	sort.Slice(convs, func(i, j int) bool {
		return convs[i].CreateTime.After(convs[j].CreateTime)
	})
	return convs, nil
}

// UpdateConversation replaces the mutable fields of a stored conversation.
func (m *MockStore) UpdateConversation(ctx context.Context, conv *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}

	for _, c := range m.conversations {
		if c.ID == conv.ID {
			c.Title = conv.Title
			c.UserID = conv.UserID
			c.IsValid = conv.IsValid
			c.Model = conv.Model
			c.UpdateTime = conv.UpdateTime
			return nil
		}
	}
	return ErrNotFound
}

// DeleteConversation removes a conversation.
func (m *MockStore) DeleteConversation(ctx context.Context, conversationID string, typ ConversationType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}

	c, ok := m.conversations[conversationID]
	if !ok || c.Type != typ {
		return ErrNotFound
	}
	delete(m.conversations, conversationID)
	return nil
}

// DeleteConversationsByType removes every conversation of the given type.
func (m *MockStore) DeleteConversationsByType(ctx context.Context, typ ConversationType) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}

	var n int64
	for id, c := range m.conversations {
		if c.Type == typ {
			delete(m.conversations, id)
			n++
		}
	}
	return n, nil
}

// Ping reports Err.
func (m *MockStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Err
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}
