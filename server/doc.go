// Package server provides the statekit HTTP server: Gin behind an h2c
// handler, wrapped in the standard middleware stack and managed as a
// component.
//
// # Middleware
//
// Built-in middleware (server/middleware):
//
//   - Recovery: panic recovery with structured logging
//   - RequestID: request ID generation and propagation
//   - CORS: cross-origin resource sharing for the browser extension
//   - BodySizeLimit: request body size limits
//   - RequestLogger: request logging with duration tracking
//   - Bearer: access token check for the inspection routes
//
// # Endpoints
//
// Built-in endpoints (server/endpoint):
//
//   - /health, /alive: component health and liveness
//   - /v1/state/:key, /v1/state/:key/freshness: persisted entry inspection
//   - /v1/auth, /v1/auth/initialize, /v1/auth/session, /v1/auth/events: auth cache
package server
