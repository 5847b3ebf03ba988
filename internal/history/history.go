// ABOUTME: Conversation history documents and the Store interface that caches them
// ABOUTME: Documents are fetched from upstream on demand and kept until they expire or are evicted

package history

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no usable document is stored for an id
var ErrNotFound = errors.New("history document not found")

// Document is the full message tree of one upstream conversation
type Document struct {
	ID                string           `json:"id"`
	Type              string           `json:"type"`
	Title             string           `json:"title"`
	CurrentNode       string           `json:"current_node"`
	CreateTime        time.Time        `json:"create_time"`
	UpdateTime        time.Time        `json:"update_time"`
	Mapping           map[string]Node  `json:"mapping"`
	ModerationResults []map[string]any `json:"moderation_results"`
	FetchedAt         time.Time        `json:"fetched_at"`
}

// Node is one message slot in the conversation tree
type Node struct {
	ID       string         `json:"id"`
	Message  map[string]any `json:"message,omitempty"`
	Parent   string         `json:"parent,omitempty"`
	Children []string       `json:"children"`
}

// Store keeps fetched documents keyed by upstream conversation id
type Store interface {
	// Get returns ErrNotFound for missing or expired documents.
	Get(ctx context.Context, id string) (*Document, error)
	Put(ctx context.Context, doc *Document) error
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
	Close() error
}
