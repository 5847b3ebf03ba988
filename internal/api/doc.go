// Package api implements the gateway's HTTP surface.
//
// Every /conv route requires an authenticated active user. A conversation is
// addressed by its upstream conversation id and only rev conversations are
// reachable. Users act on their own conversations; superusers act on any and
// may also assign conversations or clear them all.
//
// Errors and actions without a payload respond with an envelope:
//
//	{"code": 400, "message": "errors.conversationNotFound", "result": null}
package api
