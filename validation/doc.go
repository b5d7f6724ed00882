// Package validation checks option and configuration structs before statekit
// components are built from them.
//
// Struct tag validation uses go-playground/validator:
//
//	type Options struct {
//	    Key     string `validate:"required"`
//	    Version int    `validate:"gte=1"`
//	}
//	err := validation.Validate(opts)
//
// Values outside a struct, such as route parameters and token claims, go
// through a Validator:
//
//	err := validation.New().
//	    StorageKey("key", c.Param("key")).
//	    Validate()
package validation
