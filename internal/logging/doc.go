// Package logging provides structured logging for the screenlink appliance.
//
// This package wraps a global zap logger with convenience functions. Besides
// the level helpers it offers domain-specific functions for the events the
// appliance cares about.
//
// # Log Levels
//
//   - Debug: portal requests, DNS queries, countdown updates
//   - Info: state transitions, radio mode switches, saves
//   - Warn: recoverable failures (AP start, static IP fallback, link loss)
//   - Error: failures that need an operator (store write, restart)
//
// # Specialized Logging
//
//	logging.LogTransition("portal_active", "connecting", "countdown_expired")
//	logging.LogRadioMode("access_point", "station", nil)
//	logging.LogPortalRequest(r, http.StatusOK)
//	logging.LogDNSQuery(remoteAddr, "connectivitycheck.gstatic.com.", "A", true)
//
// # Configuration
//
// Initialize logging once at startup:
//
//	if err := logging.Initialize(level); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// An empty level falls back to SCREENLINK_LOG_LEVEL; when that is unset too
// the logger stays silent.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use. The portal's HTTP and DNS
// goroutines log through the same logger as the tick loop.
package logging
