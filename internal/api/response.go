// ABOUTME: JSON response helpers and error mapping for the HTTP API
// ABOUTME: Actions and errors share the {"code", "message", "result"} envelope

package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/2389/convo-gateway/internal/store"
)

// Error message keys understood by the frontend.
const (
	msgSuccess                    = "success"
	msgConversationNotFound       = "errors.conversationNotFound"
	msgConversationAlreadyDeleted = "errors.conversationAlreadyDeleted"
	msgTitleAlreadyGenerated      = "errors.conversationTitleAlreadyGenerated"
	msgUserNotFound               = "errors.userNotFound"
	msgAuthorityDenied            = "errors.authorityDenied"
	msgInvalidTitle               = "errors.invalidTitle"
	msgInvalidParams              = "errors.invalidParams"
	msgInternal                   = "errors.internal"
	msgTooManyRequests            = "errors.tooManyRequests"
)

// Envelope is the body of action and error responses.
type Envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Result  any    `json:"result"`
}

// apiError is a failure with the status and message to report.
type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string {
	return e.message
}

func invalidParams(message string) *apiError {
	return &apiError{status: http.StatusBadRequest, message: message}
}

func authorityDenied() *apiError {
	return &apiError{status: http.StatusForbidden, message: msgAuthorityDenied}
}

func internalError(message string) *apiError {
	if message == "" {
		message = msgInternal
	}
	return &apiError{status: http.StatusInternalServerError, message: message}
}

// ConversationResponse is the JSON form of a conversation record.
type ConversationResponse struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Type           string    `json:"type"`
	Title          *string   `json:"title"`
	UserID         string    `json:"user_id"`
	IsValid        bool      `json:"is_valid"`
	Model          *string   `json:"model"`
	CreateTime     time.Time `json:"create_time"`
	UpdateTime     time.Time `json:"update_time"`
}

func newConversationResponse(c *store.Conversation) ConversationResponse {
	return ConversationResponse{
		ID:             c.ID,
		ConversationID: c.ConversationID,
		Type:           string(c.Type),
		Title:          optional(c.Title),
		UserID:         c.UserID,
		IsValid:        c.IsValid,
		Model:          optional(c.Model),
		CreateTime:     c.CreateTime,
		UpdateTime:     c.UpdateTime,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// sendJSON writes v as a JSON body with the given status.
func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sendJSONError writes an error envelope.
func sendJSONError(w http.ResponseWriter, status int, message string) {
	sendJSON(w, status, Envelope{Code: status, Message: message})
}

// sendAPIError writes the envelope for err.
func sendAPIError(w http.ResponseWriter, err *apiError) {
	sendJSONError(w, err.status, err.message)
}

// sendSuccess writes a 200 envelope with an empty result.
func sendSuccess(w http.ResponseWriter) {
	sendJSON(w, http.StatusOK, Envelope{Code: http.StatusOK, Message: msgSuccess})
}
