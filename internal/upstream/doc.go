// Package upstream is the conversation manager: the gateway's only client of
// the upstream ChatGPT-style backend API.
//
// Failures come back as one of three kinds:
//
//   - *StatusError: the upstream answered with a non-2xx status
//   - *Error: the request could not be completed, or the upstream rejected it
//     in the response body ({"success": false})
//   - ErrInvalidDocument: the response could not be decoded
//
// History documents pass through a history.Store so repeated reads of the same
// conversation do not hit the upstream.
package upstream
