// Package auth resolves the current user of an HTTP request.
//
// # Tokens
//
// Users authenticate with HS256 JWTs signed with auth.jwt_secret. The "sub"
// claim carries the user ID and the "aud" claim must be DefaultAudience.
// The token is read from the Authorization header:
//
//	Authorization: Bearer <token>
//
// or, when the header is absent, from the cookie named by auth.cookie_name.
//
// # Middleware
//
//	HTTPAuthMiddleware(users, verifier, cookieName, logger) // current active user
//	RequireSuperuserHTTP()                                  // current super user
//
// HTTPAuthMiddleware answers 401 for missing or invalid tokens, unknown users
// and inactive users. RequireSuperuserHTTP answers 403 for regular users.
// Handlers read the user with FromContext.
//
// # Passwords
//
// HashPassword and Authenticate wrap bcrypt. Authenticate spends the same time
// on unknown usernames as on wrong passwords.
package auth
