// Package component defines the lifecycle contract for statekit
// infrastructure such as the sqlite and redis storage backends and the
// inspection server.
//
// Components are registered with a Registry, started in registration order,
// and stopped in reverse order.
package component
