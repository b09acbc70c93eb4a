// Package logging provides subsystem-tagged structured logging for incidentrelay,
// built on Go's standard slog package.
//
// # Log Levels
//   - **Debug**: Detailed information for debugging and development
//   - **Info**: General informational messages about relay operation
//   - **Warn**: Conditions that degrade functionality but are recoverable
//   - **Error**: Failures of an operation
//
// # Usage
//
//	logging.Init(logging.LevelInfo, logging.FormatText, os.Stderr)
//
//	logging.Info("Server", "Listening on %s", addr)
//	logging.Debug("Poller", "Fetched %d incidents", n)
//	logging.Error("Session", err, "Token refresh failed for session=%s",
//	    logging.TruncateSessionID(id))
//
// # Subsystems
//
//   - **Bootstrap**: Application initialization and startup
//   - **Config**: Configuration loading and validation
//   - **Session**: Session lifecycle and token storage
//   - **OAuth**: Identity provider calls
//   - **Incidents**: Upstream incident fetches
//   - **Hub**: Real-time connections and broadcasts
//   - **Poller**: Periodic fetch/notify cycles
//   - **Server**: HTTP surface
//   - **Watch**: Desktop-side transport
//
// # Security
//
// Session IDs are bearer-equivalent and must be passed through
// TruncateSessionID before logging. Access and refresh tokens are never logged.
// Security events go through Audit, which prefixes entries with [AUDIT].
package logging
