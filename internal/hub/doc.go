// Package hub maintains the set of live real-time connections and fans
// incident events out to all of them.
//
// Broadcast copies the connection set under a read lock and then delivers to
// each connection outside the lock, so Register and Unregister never wait on a
// broadcast. Connections whose transport is closed are pruned during delivery
// and counted in the Result; they are never reported as errors.
//
// The WebSocket transport gives every connection its own writer goroutine and
// a small bounded queue. Send only enqueues, so a slow client cannot delay
// delivery to the others. When the queue is full the oldest queued event is
// dropped: every update-incidents event is a full snapshot, so only the newest
// one matters.
package hub
