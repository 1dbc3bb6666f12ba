// Package observability provides logging, metrics, and context support for
// the funding discovery service.
//
// # Logging
//
// Create a logger from configuration:
//
//	logger := observability.NewLogger(observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	})
//	logger = observability.WithSessionContext(logger, sessionID, "SCHEDULED")
//
// Values stored with WithSessionID, WithProvider and WithRequestID are folded
// into a logger by LoggerFromContext.
//
// # Metrics
//
// NewMetrics registers every collector with the default registry under the
// given namespace. Callers treat a nil *Metrics as "metrics disabled" and skip
// the Record calls.
//
// # Temporal
//
// NewTemporalLogger adapts a zerolog.Logger to the Temporal SDK logger so
// client, worker and workflow logs share one format.
package observability
