// Package errors provides the structured error type shared by statekit packages.
//
// Storage and provider failures are wrapped into an AppError carrying a
// machine-readable code so callers can decide between falling back
// (serialization, storage, provider) and surfacing the failure (input errors).
// The HTTP layer renders AppErrors with ToResponse.
package errors
