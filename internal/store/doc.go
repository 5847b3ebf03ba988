// Package store provides persistent storage for the gateway using SQLite.
//
// # Data Models
//
//   - User: account with a bcrypt password hash and active/superuser flags
//   - Conversation: local record of an upstream conversation, owned by one user
//
// Conversations have a type: "rev" records mirror conversations living in the
// upstream web service, "api" records are backed by the OpenAI API. Lookups by
// upstream id are always scoped to a type.
//
// Deleting a conversation is either soft (IsValid set to false through
// UpdateConversation) or hard (DeleteConversation removes the row).
//
// # Schema Versioning
//
// A fresh database is created at the current schema version. An older database
// is upgraded in place when Options.RunMigration is set; otherwise
// NewSQLiteStore fails with ErrSchemaOutdated.
//
// # Testing
//
// MockStore is an in-memory Store with an Err field for failure injection.
package store
