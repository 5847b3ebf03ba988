// ABOUTME: Store interface and data types for convo-gateway persistence
// ABOUTME: Defines User, Conversation and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrUsernameExists is returned when trying to create a user with an existing username.
var ErrUsernameExists = errors.New("username already exists")

// ErrDuplicateConversation is returned when a conversation_id is already recorded
var ErrDuplicateConversation = errors.New("conversation already exists")

// ErrSchemaOutdated is returned when the database predates the current schema
// and data.run_migration is off.
var ErrSchemaOutdated = errors.New("database schema is outdated")

// ConversationType distinguishes mirrored upstream conversations from API ones
type ConversationType string

const (
	ConversationTypeRev ConversationType = "rev" // mirrored from the upstream web service
	ConversationTypeAPI ConversationType = "api" // backed by the OpenAI API
)

// Valid reports whether t is a known conversation type.
func (t ConversationType) Valid() bool {
	return t == ConversationTypeRev || t == ConversationTypeAPI
}

// User is an account allowed to use the gateway
type User struct {
	ID           string
	Username     string
	PasswordHash string // bcrypt
	IsActive     bool
	IsSuperuser  bool
	CreatedAt    time.Time
}

// Conversation is the local record of an upstream conversation.
// Title and Model are empty when unset.
type Conversation struct {
	ID             string
	ConversationID string // upstream id, unique
	Type           ConversationType
	Title          string
	UserID         string
	IsValid        bool // false once soft deleted
	Model          string
	CreateTime     time.Time
	UpdateTime     time.Time
}

// ConversationFilter narrows ListConversations. Zero values match everything.
type ConversationFilter struct {
	UserID    string
	Type      ConversationType
	ValidOnly bool
}

// Store defines the persistence operations used by the gateway
type Store interface {
	// Users
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
	CountUsers(ctx context.Context) (int, error)

	// Conversations
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, conversationID string, typ ConversationType) (*Conversation, error)
	ListConversations(ctx context.Context, filter ConversationFilter) ([]*Conversation, error)
	UpdateConversation(ctx context.Context, conv *Conversation) error
	DeleteConversation(ctx context.Context, conversationID string, typ ConversationType) error
	DeleteConversationsByType(ctx context.Context, typ ConversationType) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}
