// Package logger provides structured logging for statekit using zerolog.
//
// Storage and auth components never return persistence failures to their
// callers; they report them here instead, so the logger is the side channel
// for everything the fail-soft policy swallows.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.New(&cfg.Logging, "statekitd").WithComponent("persisted")
//	log.Warn("durable write failed", logger.Fields(logger.FieldKey, "draft"))
package logger
