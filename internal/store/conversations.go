// ABOUTME: Conversation store methods
// ABOUTME: Ownership, soft delete via is_valid, and hard delete of conversation records

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const conversationColumns = `id, conversation_id, type, title, user_id, is_valid, model, create_time, update_time`

// CreateConversation records a new conversation.
// Returns ErrDuplicateConversation if conversation_id is already recorded.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	if !conv.Type.Valid() {
		return fmt.Errorf("invalid conversation type %q", conv.Type)
	}

	query := `
		INSERT INTO conversations (` + conversationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.exec(ctx, query,
		conv.ID,
		conv.ConversationID,
		string(conv.Type),
		nullString(conv.Title),
		conv.UserID,
		conv.IsValid,
		nullString(conv.Model),
		formatTime(conv.CreateTime),
		formatTime(conv.UpdateTime),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateConversation
		}
		return fmt.Errorf("inserting conversation: %w", err)
	}

	s.logger.Debug("created conversation", "conversation_id", conv.ConversationID, "type", conv.Type, "user_id", conv.UserID)
	return nil
}

// GetConversation retrieves a conversation of the given type by its upstream id.
// Returns ErrNotFound when no such conversation exists.
func (s *SQLiteStore) GetConversation(ctx context.Context, conversationID string, typ ConversationType) (*Conversation, error) {
	row := s.queryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE conversation_id = ? AND type = ?
	`, conversationID, string(typ))
	return scanConversation(row)
}

// ListConversations returns conversations matching the filter, newest first.
func (s *SQLiteStore) ListConversations(ctx context.Context, filter ConversationFilter) ([]*Conversation, error) {
	var where []string
	var args []any
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.ValidOnly {
		where = append(where, "is_valid = 1")
	}

	query := `SELECT ` + conversationColumns + ` FROM conversations`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY create_time DESC`

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	convs := []*Conversation{}
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}
	return convs, nil
}

// UpdateConversation writes the mutable fields (title, owner, validity,
// model, update_time) of an existing conversation.
func (s *SQLiteStore) UpdateConversation(ctx context.Context, conv *Conversation) error {
	query := `
		UPDATE conversations
		SET title = ?, user_id = ?, is_valid = ?, model = ?, update_time = ?
		WHERE id = ?
	`
	result, err := s.exec(ctx, query,
		nullString(conv.Title),
		conv.UserID,
		conv.IsValid,
		nullString(conv.Model),
		formatTime(conv.UpdateTime),
		conv.ID,
	)
	if err != nil {
		return fmt.Errorf("updating conversation: %w", err)
	}
	return requireAffected(result)
}

// DeleteConversation removes a conversation row.
// Returns ErrNotFound if nothing was deleted.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, conversationID string, typ ConversationType) error {
	result, err := s.exec(ctx, `DELETE FROM conversations WHERE conversation_id = ? AND type = ?`, conversationID, string(typ))
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return err
	}
	s.logger.Debug("deleted conversation", "conversation_id", conversationID)
	return nil
}

// DeleteConversationsByType removes every conversation of the given type and
// returns how many rows were deleted.
func (s *SQLiteStore) DeleteConversationsByType(ctx context.Context, typ ConversationType) (int64, error) {
	result, err := s.exec(ctx, `DELETE FROM conversations WHERE type = ?`, string(typ))
	if err != nil {
		return 0, fmt.Errorf("deleting conversations: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	s.logger.Info("deleted conversations", "type", typ, "count", n)
	return n, nil
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var conv Conversation
	var typ string
	var title, model sql.NullString
	var createStr, updateStr string

	err := row.Scan(
		&conv.ID,
		&conv.ConversationID,
		&typ,
		&title,
		&conv.UserID,
		&conv.IsValid,
		&model,
		&createStr,
		&updateStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}

	conv.Type = ConversationType(typ)
	conv.Title = title.String
	conv.Model = model.String

	if conv.CreateTime, err = parseTime("create_time", createStr); err != nil {
		return nil, err
	}
	if conv.UpdateTime, err = parseTime("update_time", updateStr); err != nil {
		return nil, err
	}
	return &conv, nil
}
