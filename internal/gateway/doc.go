// Package gateway assembles the convo-gateway server.
//
// New opens the SQLite store and the history store, provisions the initial
// admin user and builds the HTTP handler. Run serves it, performs the startup
// conversation sync and keeps the periodic sync running until the context is
// canceled.
package gateway
