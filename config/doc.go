// Package config loads service configuration from a YAML file, an optional
// .env file and the process environment.
//
// Files are searched in the usual service locations (cmd/<service>/,
// config/, the working directory) unless given explicitly. Environment
// variables override file values; with WithEnvPrefix("STATEKIT") the
// variable STATEKIT_AUTH_JWT_SECRET sets auth.jwt.secret.
//
//	var cfg app.Config
//	err := config.LoadConfig("statekitd", &cfg, config.WithEnvPrefix("STATEKIT"))
package config
