package logger

// Standard field key constants for structured logging.
const (
	FieldComponent   = "component"
	FieldKey         = "key"
	FieldComponentID = "component_id"
	FieldVersion     = "version"
	FieldBackend     = "backend"
	FieldOperation   = "operation"
	FieldEvent       = "event"
	FieldUserID      = "user_id"
	FieldSessionID   = "session_id"
	FieldError       = "error"
	FieldAgeMs       = "age_ms"
)

// Fields builds a map[string]interface{} from alternating key-value pairs.
//
//	log.Info("restored", logger.Fields(logger.FieldComponentID, "grant-form", logger.FieldAgeMs, 1200))
func Fields(kvs ...interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(kvs)/2)
	for i := 0; i < len(kvs)-1; i += 2 {
		if key, ok := kvs[i].(string); ok {
			m[key] = kvs[i+1]
		}
	}
	return m
}

// ErrorFields creates fields for an operation that failed.
func ErrorFields(op string, err error) map[string]interface{} {
	return map[string]interface{}{
		FieldOperation: op,
		FieldError:     err.Error(),
	}
}
