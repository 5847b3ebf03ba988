// ABOUTME: Conversation API handlers backed by the store and the upstream manager
// ABOUTME: Implements list, history, delete, vanish, rename, assign, clear and title generation

package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/2389/convo-gateway/internal/auth"
	"github.com/2389/convo-gateway/internal/store"
	"github.com/2389/convo-gateway/internal/upstream"
)

// API serves the conversation routes.
type API struct {
	store   store.Store
	manager upstream.Manager
	logger  *slog.Logger
	now     func() time.Time
}

// New creates an API.
func New(s store.Store, manager upstream.Manager, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		store:   s,
		manager: manager,
		logger:  logger.With("component", "api"),
		now:     time.Now,
	}
}

// handleListConversations returns the caller's valid conversations, or every
// recorded conversation when a superuser passes fetch_all=true.
func (a *API) handleListConversations(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustFromContext(r.Context())

	fetchAll, apiErr := boolParam(r, "fetch_all")
	if apiErr != nil {
		sendAPIError(w, apiErr)
		return
	}
	if fetchAll && !authCtx.IsAdmin() {
		sendAPIError(w, authorityDenied())
		return
	}

	filter := store.ConversationFilter{UserID: authCtx.UserID, ValidOnly: true}
	if fetchAll {
		filter = store.ConversationFilter{}
	}

	convs, err := a.store.ListConversations(r.Context(), filter)
	if err != nil {
		a.logger.Error("failed to list conversations", "error", err)
		sendAPIError(w, internalError(""))
		return
	}

	result := make([]ConversationResponse, 0, len(convs))
	for _, c := range convs {
		result = append(result, newConversationResponse(c))
	}
	sendJSON(w, http.StatusOK, result)
}

// handleGetConversation returns the message history of a conversation.
func (a *API) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, apiErr := a.ownedConversation(r)
	if apiErr != nil {
		sendAPIError(w, apiErr)
		return
	}
	refresh, apiErr := boolParam(r, "refresh")
	if apiErr != nil {
		sendAPIError(w, apiErr)
		return
	}

	doc, err := a.manager.GetConversationHistory(r.Context(), conv.ConversationID, refresh)
	if err != nil {
		var se *upstream.StatusError
		switch {
		case upstream.IsNotFound(err):
			sendAPIError(w, invalidParams(msgConversationNotFound))
		case errors.Is(err, upstream.ErrInvalidDocument):
			a.logger.Error("invalid conversation history", "conversation_id", conv.ConversationID, "error", err)
			sendAPIError(w, internalError(err.Error()))
		case errors.As(err, &se):
			a.logger.Error("upstream rejected history request", "conversation_id", conv.ConversationID, "status", se.StatusCode)
			sendAPIError(w, internalError(""))
		default:
			a.logger.Error("failed to fetch conversation history", "conversation_id", conv.ConversationID, "error", err)
			sendAPIError(w, internalError(""))
		}
		return
	}
	sendJSON(w, http.StatusOK, doc)
}

// handleDeleteConversation hides the conversation upstream and marks the
// record invalid.
func (a *API) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	conv, apiErr := a.ownedConversation(r)
	if apiErr != nil {
		sendAPIError(w, apiErr)
		return
	}
	if !conv.IsValid {
		sendAPIError(w, invalidParams(msgConversationAlreadyDeleted))
		return
	}

	if apiErr := a.deleteUpstream(r.Context(), conv); apiErr != nil {
		sendAPIError(w, apiErr)
		return
	}

	conv.IsValid = false
	conv.UpdateTime = a.now().UTC()
	if err := a.store.UpdateConversation(r.Context(), conv); err != nil {
		a.logger.Error("failed to invalidate conversation", "conversation_id", conv.ConversationID, "error", err)
		sendAPIError(w, internalError(""))
		return
	}

	ConversationActions.WithLabelValues("delete").Inc()
	a.logger.Info("deleted conversation", "conversation_id", conv.ConversationID)
	sendSuccess(w)
}

// handleVanishConversation deletes the conversation upstream when it is still
// valid, then removes the record entirely.
func (a *API) handleVanishConversation(w http.ResponseWriter, r *http.Request) {
	conv, apiErr := a.ownedConversation(r)
	if apiErr != nil {
		sendAPIError(w, apiErr)
		return
	}

	if conv.IsValid {
		if apiErr := a.deleteUpstream(r.Context(), conv); apiErr != nil {
			sendAPIError(w, apiErr)
			return
		}
	}

	if err := a.store.DeleteConversation(r.Context(), conv.ConversationID, store.ConversationTypeRev); err != nil && !errors.Is(err, store.ErrNotFound) {
		a.logger.Error("failed to remove conversation", "conversation_id", conv.ConversationID, "error", err)
		sendAPIError(w, internalError(""))
		return
	}

	ConversationActions.WithLabelValues("vanish").Inc()
	a.logger.Info("vanished conversation", "conversation_id", conv.ConversationID)
	sendSuccess(w)
}

// handleRenameConversation sets a new title upstream and on the record.
func (a *API) handleRenameConversation(w http.ResponseWriter, r *http.Request) {
	conv, apiErr := a.ownedConversation(r)
	if apiErr != nil {
		sendAPIError(w, apiErr)
		return
	}

	title := strings.TrimSpace(r.URL.Query().Get("title"))
	if title == "" {
		sendAPIError(w, invalidParams(msgInvalidTitle))
		return
	}

	if err := a.manager.SetConversationTitle(r.Context(), conv.ConversationID, title); err != nil {
		if upstream.IsNotFound(err) {
			sendAPIError(w, invalidParams(msgConversationNotFound))
			return
		}
		a.logger.Error("failed to rename conversation upstream", "conversation_id", conv.ConversationID, "error", err)
		sendAPIError(w, internalError(""))
		return
	}

	conv.Title = title
	conv.UpdateTime = a.now().UTC()
	if err := a.store.UpdateConversation(r.Context(), conv); err != nil {
		a.logger.Error("failed to save conversation title", "conversation_id", conv.ConversationID, "error", err)
		sendAPIError(w, internalError(""))
		return
	}

	ConversationActions.WithLabelValues("rename").Inc()
	sendJSON(w, http.StatusOK, newConversationResponse(conv))
}

// handleAssignConversation transfers a conversation to another user.
func (a *API) handleAssignConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	username := chi.URLParam(r, "username")

	user, err := a.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			sendAPIError(w, invalidParams(msgUserNotFound))
			return
		}
		a.logger.Error("failed to load user", "username", username, "error", err)
		sendAPIError(w, internalError(""))
		return
	}

	conv, apiErr := a.lookupConversation(ctx, chi.URLParam(r, "id"))
	if apiErr != nil {
		sendAPIError(w, apiErr)
		return
	}

	conv.UserID = user.ID
	conv.UpdateTime = a.now().UTC()
	if err := a.store.UpdateConversation(ctx, conv); err != nil {
		a.logger.Error("failed to assign conversation", "conversation_id", conv.ConversationID, "error", err)
		sendAPIError(w, internalError(""))
		return
	}

	ConversationActions.WithLabelValues("assign").Inc()
	a.logger.Info("assigned conversation", "conversation_id", conv.ConversationID, "user_id", user.ID)
	sendSuccess(w)
}

// handleClearConversations hides every upstream conversation and removes all
// rev records.
func (a *API) handleClearConversations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := a.manager.ClearConversations(ctx); err != nil {
		a.logger.Error("failed to clear upstream conversations", "error", err)
		sendAPIError(w, internalError(""))
		return
	}

	n, err := a.store.DeleteConversationsByType(ctx, store.ConversationTypeRev)
	if err != nil {
		a.logger.Error("failed to remove conversations", "error", err)
		sendAPIError(w, internalError(""))
		return
	}

	ConversationActions.WithLabelValues("clear").Inc()
	a.logger.Info("cleared conversations", "count", n)
	sendSuccess(w)
}

// handleGenerateTitle asks the upstream to title an untitled conversation.
func (a *API) handleGenerateTitle(w http.ResponseWriter, r *http.Request) {
	conv, apiErr := a.ownedConversation(r)
	if apiErr != nil {
		sendAPIError(w, apiErr)
		return
	}

	messageID := strings.TrimSpace(r.URL.Query().Get("message_id"))
	if messageID == "" {
		sendAPIError(w, invalidParams(msgInvalidParams))
		return
	}
	if conv.Title != "" {
		sendAPIError(w, invalidParams(msgTitleAlreadyGenerated))
		return
	}

	result, err := a.manager.GenerateConversationTitle(r.Context(), conv.ConversationID, messageID)
	if err != nil {
		a.logger.Error("failed to generate title", "conversation_id", conv.ConversationID, "error", err)
		sendAPIError(w, internalError(""))
		return
	}
	if result.Title == "" {
		msg := result.Message
		if msg == "" {
			msg = msgInvalidParams
		}
		sendAPIError(w, invalidParams(msg))
		return
	}

	conv.Title = result.Title
	conv.UpdateTime = a.now().UTC()
	if err := a.store.UpdateConversation(r.Context(), conv); err != nil {
		a.logger.Error("failed to save generated title", "conversation_id", conv.ConversationID, "error", err)
		sendAPIError(w, internalError(""))
		return
	}

	ConversationActions.WithLabelValues("gen_title").Inc()
	sendJSON(w, http.StatusOK, newConversationResponse(conv))
}

// ownedConversation resolves {id} to a rev conversation the caller may act on.
// Superusers may act on any conversation.
func (a *API) ownedConversation(r *http.Request) (*store.Conversation, *apiError) {
	conv, apiErr := a.lookupConversation(r.Context(), chi.URLParam(r, "id"))
	if apiErr != nil {
		return nil, apiErr
	}
	authCtx := auth.MustFromContext(r.Context())
	if !authCtx.IsAdmin() && conv.UserID != authCtx.UserID {
		return nil, authorityDenied()
	}
	return conv, nil
}

func (a *API) lookupConversation(ctx context.Context, conversationID string) (*store.Conversation, *apiError) {
	conv, err := a.store.GetConversation(ctx, conversationID, store.ConversationTypeRev)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, invalidParams(msgConversationNotFound)
		}
		a.logger.Error("failed to load conversation", "conversation_id", conversationID, "error", err)
		return nil, internalError("")
	}
	return conv, nil
}

// deleteUpstream hides a conversation upstream. Rejections from the upstream
// and missing conversations are logged and ignored; any other HTTP failure
// aborts the request.
func (a *API) deleteUpstream(ctx context.Context, conv *store.Conversation) *apiError {
	err := a.manager.DeleteConversation(ctx, conv.ConversationID)
	if err == nil {
		return nil
	}

	var ue *upstream.Error
	if errors.As(err, &ue) || upstream.IsNotFound(err) {
		a.logger.Warn("ignoring upstream delete failure", "conversation_id", conv.ConversationID, "error", err)
		if ferr := a.manager.ForgetHistory(ctx, conv.ConversationID); ferr != nil {
			a.logger.Warn("failed to forget history", "conversation_id", conv.ConversationID, "error", ferr)
		}
		return nil
	}

	a.logger.Error("failed to delete conversation upstream", "conversation_id", conv.ConversationID, "error", err)
	return internalError("")
}

// boolParam parses an optional boolean query parameter. It accepts the
// spellings HTML forms and query strings commonly use (yes/no, on/off, 1/0).
func boolParam(r *http.Request, name string) (bool, *apiError) {
	raw := strings.ToLower(strings.TrimSpace(r.URL.Query().Get(name)))
	switch raw {
	case "":
		return false, nil
	case "1", "t", "true", "y", "yes", "on":
		return true, nil
	case "0", "f", "false", "n", "no", "off":
		return false, nil
	}
	return false, invalidParams(msgInvalidParams)
}
