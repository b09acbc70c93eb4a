// Package session implements the process-wide session store.
//
// A session is created PENDING when a login starts, holding the PKCE verifier
// for that attempt. Exchanging an authorization code promotes it to
// AUTHENTICATED exactly once; a failed refresh moves it to EXPIRED; logout or
// garbage collection removes it (REVOKED).
//
//	PENDING --exchange--> AUTHENTICATED --refresh failed--> EXPIRED
//	   |                        |                             |
//	   +--------- revoke / cleanup ---------------------------+--> REVOKED
//
// # Concurrency
//
// The session map is guarded by a read/write mutex and each session by its own
// mutex. Neither lock is held while talking to the identity provider: an
// exchange marks the session in flight, releases the lock, performs the call and
// re-acquires the lock to commit. Concurrent refreshes of one session are
// collapsed into a single provider call.
//
// The store is in memory and therefore only suitable for a single relay instance.
package session
