// Package poller drives the poll/notify cycle: for every authenticated session
// it periodically fetches incidents with the session's token and broadcasts the
// resulting snapshot.
//
// A cycle that hits a 401 refreshes the session's token once and retries the
// fetch once. If either fails the session is expired and its poll loop stops
// until the user logs in again. Snapshots are always broadcast; a notification
// event is only added when the number of incidents changed.
package poller
