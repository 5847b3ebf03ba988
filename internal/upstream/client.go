// ABOUTME: Conversation manager client for the upstream ChatGPT-style backend API
// ABOUTME: Fetches history through the history store and performs delete, rename, clear and title calls

package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/2389/convo-gateway/internal/history"
)

// maxErrorBody bounds how much of a failed response is kept in StatusError.
const maxErrorBody = 4096

// DefaultPageSize is the page size used when listing conversations.
const DefaultPageSize = 100

// Manager is the set of upstream operations the gateway depends on.
type Manager interface {
	GetConversationHistory(ctx context.Context, conversationID string, refresh bool) (*history.Document, error)
	DeleteConversation(ctx context.Context, conversationID string) error
	SetConversationTitle(ctx context.Context, conversationID, title string) error
	ClearConversations(ctx context.Context) error
	GenerateConversationTitle(ctx context.Context, conversationID, messageID string) (*TitleResult, error)
	ListConversations(ctx context.Context, offset, limit int) (*ConversationPage, error)
	ListAllConversations(ctx context.Context) ([]ConversationSummary, error)
	ForgetHistory(ctx context.Context, conversationID string) error
}

// Config configures a Client.
type Config struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
	HTTPClient  *http.Client // optional, overrides Timeout
}

// Client talks to the upstream service and caches history documents.
type Client struct {
	baseURL     *url.URL
	accessToken string
	http        *http.Client
	history     history.Store
	logger      *slog.Logger
	now         func() time.Time
}

var _ Manager = (*Client)(nil)

// New creates a Client. hist receives fetched history documents.
func New(cfg Config, hist history.Store, logger *slog.Logger) (*Client, error) {
	base := cfg.BaseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parsing upstream base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("upstream base URL %q must be absolute", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:     u,
		accessToken: cfg.AccessToken,
		http:        httpClient,
		history:     hist,
		logger:      logger.With("component", "upstream"),
		now:         time.Now,
	}, nil
}

// GetConversationHistory returns the message tree of a conversation. Without
// refresh a stored document is returned when available; with refresh the
// upstream is always asked and the stored copy replaced.
func (c *Client) GetConversationHistory(ctx context.Context, conversationID string, refresh bool) (*history.Document, error) {
	if refresh {
		historyLookups.WithLabelValues("refresh").Inc()
	} else {
		doc, err := c.history.Get(ctx, conversationID)
		if err == nil {
			historyLookups.WithLabelValues("hit").Inc()
			return doc, nil
		}
		if !errors.Is(err, history.ErrNotFound) {
			c.logger.Warn("reading history store failed", "conversation_id", conversationID, "error", err)
		}
		historyLookups.WithLabelValues("miss").Inc()
	}

	var payload conversationPayload
	if err := c.do(ctx, "get_history", http.MethodGet, "conversation/"+url.PathEscape(conversationID), nil, &payload); err != nil {
		return nil, err
	}
	if payload.Mapping == nil {
		return nil, fmt.Errorf("%w: conversation %s has no mapping", ErrInvalidDocument, conversationID)
	}

	doc := &history.Document{
		ID:                conversationID,
		Type:              "rev",
		Title:             payload.Title,
		CurrentNode:       payload.CurrentNode,
		CreateTime:        payload.CreateTime.Time,
		UpdateTime:        payload.UpdateTime.Time,
		Mapping:           payload.Mapping,
		ModerationResults: payload.ModerationResults,
		FetchedAt:         c.now().UTC(),
	}
	if doc.ModerationResults == nil {
		doc.ModerationResults = []map[string]any{}
	}

	if err := c.history.Put(ctx, doc); err != nil {
		c.logger.Warn("storing history document failed", "conversation_id", conversationID, "error", err)
	}
	return doc, nil
}

// DeleteConversation hides a conversation upstream and drops its stored history.
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	if err := c.patch(ctx, "delete", "conversation/"+url.PathEscape(conversationID), map[string]any{"is_visible": false}); err != nil {
		return err
	}
	c.forget(ctx, conversationID)
	return nil
}

// SetConversationTitle renames a conversation upstream.
func (c *Client) SetConversationTitle(ctx context.Context, conversationID, title string) error {
	if err := c.patch(ctx, "set_title", "conversation/"+url.PathEscape(conversationID), map[string]any{"title": title}); err != nil {
		return err
	}
	c.forget(ctx, conversationID)
	return nil
}

// ClearConversations hides every conversation upstream and empties the history store.
func (c *Client) ClearConversations(ctx context.Context) error {
	if err := c.patch(ctx, "clear", "conversations", map[string]any{"is_visible": false}); err != nil {
		return err
	}
	if err := c.history.Clear(ctx); err != nil {
		c.logger.Warn("clearing history store failed", "error", err)
	}
	return nil
}

// GenerateConversationTitle asks the upstream to title a conversation from
// the given message.
func (c *Client) GenerateConversationTitle(ctx context.Context, conversationID, messageID string) (*TitleResult, error) {
	var result TitleResult
	body := map[string]any{"message_id": messageID}
	if err := c.do(ctx, "gen_title", http.MethodPost, "conversation/gen_title/"+url.PathEscape(conversationID), body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListConversations returns one page of the upstream conversation list.
func (c *Client) ListConversations(ctx context.Context, offset, limit int) (*ConversationPage, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))

	var page ConversationPage
	if err := c.do(ctx, "list", http.MethodGet, "conversations?"+q.Encode(), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ListAllConversations walks every page of the conversation list.
func (c *Client) ListAllConversations(ctx context.Context) ([]ConversationSummary, error) {
	var all []ConversationSummary
	offset := 0
	for {
		page, err := c.ListConversations(ctx, offset, DefaultPageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		offset += len(page.Items)
		if len(page.Items) == 0 || offset >= page.Total {
			return all, nil
		}
	}
}

// ForgetHistory drops the stored history document of a conversation.
func (c *Client) ForgetHistory(ctx context.Context, conversationID string) error {
	return c.history.Delete(ctx, conversationID)
}

func (c *Client) forget(ctx context.Context, conversationID string) {
	if err := c.history.Delete(ctx, conversationID); err != nil {
		c.logger.Warn("evicting history document failed", "conversation_id", conversationID, "error", err)
	}
}

// patch sends a PATCH and checks the {"success": bool} acknowledgement.
func (c *Client) patch(ctx context.Context, op, path string, body any) error {
	var ack ackResponse
	if err := c.do(ctx, op, http.MethodPatch, path, body, &ack); err != nil {
		return err
	}
	if ack.Success != nil && !*ack.Success {
		msg := ack.Message
		if msg == "" {
			msg = op + " was not acknowledged"
		}
		return &Error{Code: http.StatusOK, Message: msg}
	}
	return nil
}

// do performs a JSON request against the upstream and decodes the response into out.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) (err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		var se *StatusError
		var ue *Error
		switch {
		case errors.As(err, &se):
			outcome = strconv.Itoa(se.StatusCode)
		case errors.As(err, &ue):
			outcome = "error"
		case errors.Is(err, ErrInvalidDocument):
			outcome = "invalid"
		}
		requestsTotal.WithLabelValues(op, outcome).Inc()
		requestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	ref, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("building upstream URL: %w", err)
	}
	target := c.baseURL.ResolveReference(ref)

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return fmt.Errorf("creating upstream request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &Error{Code: -1, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Debug("upstream request failed", "op", op, "status", resp.StatusCode)
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Code: resp.StatusCode, Message: fmt.Sprintf("reading response: %v", err)}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return nil
}
