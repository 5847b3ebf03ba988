// Package history stores conversation history documents fetched from the
// upstream service.
//
// Fetching a full message tree is slow, so the gateway keeps the last fetched
// copy and serves it until it expires, the caller asks for a refresh, or the
// conversation is deleted. MemoryStore keeps documents in process with a TTL
// and an LRU size bound. MongoStore keeps them in MongoDB with a TTL index.
package history
