package persisted

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Entry is the durable record stored under a store's key.
type Entry[T any] struct {
	Data      T     `json:"data"`
	Timestamp int64 `json:"timestamp"`
	Version   int   `json:"version"`
}

// Time returns the write time of the entry.
func (e Entry[T]) Time() time.Time { return time.UnixMilli(e.Timestamp) }

// MarkerKey returns the companion key holding only the last write time.
func MarkerKey(key string) string { return key + ".timestamp" }

// FormatMarker renders a write time the way it is stored under MarkerKey.
func FormatMarker(t time.Time) string { return strconv.FormatInt(t.UnixMilli(), 10) }

// ParseMarker parses a value read from MarkerKey.
func ParseMarker(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("persisted: invalid timestamp marker %q: %w", s, err)
	}
	return time.UnixMilli(ms), nil
}

// envelope decodes the version before the payload so that data written
// under an older schema is reported as a version mismatch, not as corrupt.
type envelope struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
	Version   *int            `json:"version"`
}

func decodeEnvelope(raw string) (envelope, error) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return env, err
	}
	if env.Version == nil {
		return env, fmt.Errorf("persisted: entry has no version")
	}
	return env, nil
}

func (env envelope) decode(dst any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("persisted: entry has no data")
	}
	return json.Unmarshal(env.Data, dst)
}
