// Package app wires the relay together and runs it.
//
// # Bootstrap
//
// NewApplication performs the start-up sequence:
//
//  1. Configures logging from the --debug flag and the logging section
//  2. Loads the YAML configuration (defaults, file, environment expansion)
//  3. Validates it, reporting every problem at once
//  4. Builds the services in dependency order
//
// # Service Graph
//
// The services are built bottom-up so that each receives its collaborators
// through its constructor:
//
//	oauth client ─► oauth service ─► session store ─┐
//	incident fetcher ───────────────────────────────┼─► poller ─► hub
//	                                                └─► HTTP server
//
// The session store notifies the poller of state changes, which starts a poll
// loop when a session authenticates and stops it on expiry or logout. The
// hook is installed after both exist since each refers to the other.
//
// # Lifecycle
//
// Run blocks until ctx is cancelled or the HTTP server fails. On the way out
// it stops the poll loops, closes every WebSocket connection and stops the
// session cleanup loop, in that order.
package app
