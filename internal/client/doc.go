// Package client is the desktop side of the relay: an HTTP client for the
// login, session, incident, user and logout endpoints, and a Watcher that keeps
// a WebSocket connection to the relay open and reconnects with exponential
// backoff when it drops.
//
// Watcher states:
//
//	DISCONNECTED -> CONNECTING -> CONNECTED
//	      ^              |             |
//	      +--- backoff --+---- drop ---+
//
// The backoff is reset after every successful connection. With MaxAttempts set,
// Run gives up after that many consecutive failed dials.
package client
