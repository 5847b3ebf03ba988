// ABOUTME: Error types returned by the upstream conversation manager
// ABOUTME: Distinguishes HTTP status failures, in-band rejections and malformed payloads

package upstream

import (
	"errors"
	"fmt"
)

// ErrInvalidDocument wraps decoding failures of upstream payloads.
var ErrInvalidDocument = errors.New("invalid upstream document")

// StatusError is returned when the upstream answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Body)
}

// Error is returned when a request could not be completed or the upstream
// rejected it in its response body.
type Error struct {
	Code    int // HTTP status when known, -1 for transport failures
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("upstream error %d: %s", e.Code, e.Message)
}

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == 404
}
