// Package logging provides structured logging for the bridge.
//
// It wraps log/slog so every component logs the same way:
//
//   - JSON output for production, text for development
//   - Default fields (service, version) on all entries
//   - Level-based filtering (debug, info, warn, error)
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Component("poller").Info("cycle complete", "accessories", 4)
//
// Never log secrets such as the JWT secret, InfluxDB token or HomeKit pin.
package logging
