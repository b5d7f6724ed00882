package endpoint

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/grantsnap/statekit/clock"
	apperrors "github.com/grantsnap/statekit/errors"
	"github.com/grantsnap/statekit/kv"
	"github.com/grantsnap/statekit/persisted"
	"github.com/grantsnap/statekit/server"
	"github.com/grantsnap/statekit/validation"
)

var errInvalidJSON = errors.New("stored value is not valid JSON")

// Freshness is the body of the freshness route.
type Freshness struct {
	Key       string    `json:"key"`
	Timestamp int64     `json:"timestamp"`
	WrittenAt time.Time `json:"written_at"`
	AgeMs     int64     `json:"age_ms"`
}

// State serves read-only views of persisted entries held in a storage
// backend.
type State struct {
	storage kv.Storage
	clock   clock.Clock
	hidden  map[string]struct{}
}

// NewState returns the state inspection handlers over storage. Hidden keys
// are reported as not found.
func NewState(storage kv.Storage, clk clock.Clock, hidden ...string) *State {
	h := &State{storage: storage, clock: clock.OrReal(clk), hidden: make(map[string]struct{}, len(hidden))}
	for _, k := range hidden {
		h.hidden[k] = struct{}{}
	}
	return h
}

func (h *State) visible(key string) bool {
	_, hidden := h.hidden[key]
	return !hidden
}

// key returns the validated :key parameter, writing the error response
// when it is malformed or hidden.
func (h *State) key(c *gin.Context) (string, bool) {
	key := c.Param("key")
	if err := validation.New().StorageKey("key", key).Validate(); err != nil {
		server.RespondWithError(c, err)
		return "", false
	}
	if !h.visible(key) {
		server.RespondWithError(c, apperrors.NotFound("state entry", key))
		return "", false
	}
	return key, true
}

// Register mounts the routes under r.
func (h *State) Register(r gin.IRouter) {
	r.GET("/v1/state/:key", h.Entry)
	r.GET("/v1/state/:key/freshness", h.Freshness)
}

// Entry returns the raw durable entry stored under :key.
func (h *State) Entry(c *gin.Context) {
	key, ok := h.key(c)
	if !ok {
		return
	}
	raw, found, err := h.storage.Get(c.Request.Context(), key)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	if !found {
		server.RespondWithError(c, apperrors.NotFound("state entry", key))
		return
	}
	if !json.Valid([]byte(raw)) {
		server.RespondWithError(c, apperrors.Serialization(key, errInvalidJSON))
		return
	}
	server.RespondOK(c, json.RawMessage(raw))
}

// Freshness reads only the timestamp marker of :key.
func (h *State) Freshness(c *gin.Context) {
	key, ok := h.key(c)
	if !ok {
		return
	}
	raw, found, err := h.storage.Get(c.Request.Context(), persisted.MarkerKey(key))
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	if !found {
		server.RespondWithError(c, apperrors.NotFound("state entry", key))
		return
	}
	written, err := persisted.ParseMarker(raw)
	if err != nil {
		server.RespondWithError(c, apperrors.Serialization(persisted.MarkerKey(key), err))
		return
	}
	server.RespondOK(c, Freshness{
		Key:       key,
		Timestamp: written.UnixMilli(),
		WrittenAt: written.UTC(),
		AgeMs:     h.clock.Now().Sub(written).Milliseconds(),
	})
}
