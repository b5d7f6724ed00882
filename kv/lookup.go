package kv

// Status tags the outcome of a cache or storage lookup.
type Status int

const (
	StatusOK Status = iota
	StatusNotFound
	StatusStale
	StatusVersionMismatch
	StatusCorrupt
	StatusStorageError
	StatusProviderError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not_found"
	case StatusStale:
		return "stale"
	case StatusVersionMismatch:
		return "version_mismatch"
	case StatusCorrupt:
		return "corrupt"
	case StatusStorageError:
		return "storage_error"
	case StatusProviderError:
		return "provider_error"
	default:
		return "unknown"
	}
}

// Lookup is the result of reading a cached value. Value is only meaningful
// when Status is StatusOK; Err carries the cause for the error statuses.
type Lookup[T any] struct {
	Value  T
	Status Status
	Err    error
}

// Found returns a successful lookup.
func Found[T any](v T) Lookup[T] {
	return Lookup[T]{Value: v, Status: StatusOK}
}

// Miss returns a lookup that found nothing usable.
func Miss[T any](status Status, err error) Lookup[T] {
	return Lookup[T]{Status: status, Err: err}
}

// OK reports whether the lookup produced a usable value.
func (l Lookup[T]) OK() bool { return l.Status == StatusOK }

// OrElse returns the value, or fallback for every non-OK status.
func (l Lookup[T]) OrElse(fallback T) T {
	if l.Status == StatusOK {
		return l.Value
	}
	return fallback
}
