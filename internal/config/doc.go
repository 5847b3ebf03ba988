// Package config handles settings loading for convo-gateway.
//
// # Overview
//
// Settings are loaded from a YAML file on top of built-in defaults, so a
// file only needs the keys it wants to change. The loaded value is installed
// as a process-wide singleton that other packages read with Get.
//
// # Configuration File
//
// The path comes from the CONVO_CONFIG environment variable, falling back to
// ./config.yaml. `convo-gateway init` writes a file with every default.
//
// # Environment Variable Expansion
//
//	auth:
//	  jwt_secret: "${CONVO_JWT_SECRET}"
//	revchatgpt:
//	  access_token: "${CHATGPT_ACCESS_TOKEN}"
//
// Unset variables expand to the empty string.
//
// # Configuration Sections
//
//	common:      initial admin user, startup/periodic sync, SQL logging
//	http:        listen host/port, CORS origins, per-user rate limit
//	data:        SQLite path and optional MongoDB URL for history documents
//	auth:        JWT secret and lifetime, cookie name
//	revchatgpt:  upstream base URL, access token, request timeout
//	api:         OpenAI API base URL and timeouts
//	log:         log directory, console level, format
//	stats:       metrics switch, history cache size and TTL
//
// Durations (sync_conversations_interval, rate_limit_window,
// history_cache_ttl) use Go's time.ParseDuration syntax.
//
// # Validation
//
// Parse validates the port range, the database path, the JWT secret length
// (32 bytes), the JWT lifetime, the cookie name, the upstream timeout and the
// log format.
package config
