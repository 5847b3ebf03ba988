// ABOUTME: Wire types for the upstream conversation service
// ABOUTME: Timestamps arrive as epoch seconds or RFC3339 strings depending on the endpoint

package upstream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/2389/convo-gateway/internal/history"
)

// Timestamp decodes epoch seconds, RFC3339 strings, or null.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			t.Time = time.Time{}
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("parsing timestamp %q: %w", s, err)
		}
		t.Time = parsed.UTC()
		return nil
	}
	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		return fmt.Errorf("parsing timestamp %s: %w", data, err)
	}
	whole, frac := math.Modf(secs)
	t.Time = time.Unix(int64(whole), int64(frac*1e9)).UTC()
	return nil
}

// conversationPayload is the body of GET /conversation/{id}.
type conversationPayload struct {
	Title             string                  `json:"title"`
	CreateTime        Timestamp               `json:"create_time"`
	UpdateTime        Timestamp               `json:"update_time"`
	Mapping           map[string]history.Node `json:"mapping"`
	ModerationResults []map[string]any        `json:"moderation_results"`
	CurrentNode       string                  `json:"current_node"`
	ConversationID    string                  `json:"conversation_id"`
}

// ConversationSummary is one entry of the conversation list.
type ConversationSummary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	CreateTime Timestamp `json:"create_time"`
	UpdateTime Timestamp `json:"update_time"`
}

// ConversationPage is one page of GET /conversations.
type ConversationPage struct {
	Items  []ConversationSummary `json:"items"`
	Total  int                   `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

// TitleResult is the answer of the title generation endpoint. Title is empty
// when the upstream declined, in which case Message explains why.
type TitleResult struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// ackResponse is the body of PATCH endpoints.
type ackResponse struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
}
