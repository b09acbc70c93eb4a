// Package server exposes the relay's HTTP surface: the login/callback pair
// that drives the OAuth flow, the user and incident proxies, logout, the
// WebSocket channel and the operational endpoints (/health, /metrics).
//
// Session ids are passed as the sessionId query parameter. They are bearer
// secrets and only ever logged in truncated form.
package server
