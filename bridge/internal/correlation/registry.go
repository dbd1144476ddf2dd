// Package correlation generates job identifiers and matches inbound
// responses to the callers waiting for them. Every exchange over the
// shared native channel is disambiguated through this registry.
package correlation

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/smartvideo/ytdlp-bridge/bridge/internal/protocol"
)

// Handler receives the single response correlated to a job id.
type Handler func(protocol.Message)

// NewJobID returns a fresh client-generated correlation token. Ids are
// never reused.
func NewJobID() string { return uuid.NewString() }

// Registry maps a job id to at most one pending response handler.
type Registry struct {
	mu      sync.Mutex
	pending map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{pending: make(map[string]Handler)}
}

// Register stores a handler keyed by job id. Callers must guarantee id
// uniqueness; a duplicate is an invariant violation and overwrites the
// previous handler (which is then never invoked).
func (r *Registry) Register(jobID string, h Handler) {
	r.mu.Lock()
	if _, ok := r.pending[jobID]; ok {
		slog.Warn("pending handler overwritten, duplicate job id", slog.String("id", jobID))
	}
	r.pending[jobID] = h
	r.mu.Unlock()
}

// Resolve removes the handler registered for jobID, if any, and invokes
// it exactly once with msg. It reports whether a handler was found; on
// false the caller must treat msg as a broadcast event.
func (r *Registry) Resolve(jobID string, msg protocol.Message) bool {
	r.mu.Lock()
	h, ok := r.pending[jobID]
	if ok {
		delete(r.pending, jobID)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	h(msg)
	return true
}

// Discard removes a handler without invoking it. Used when a caller
// abandons its wait.
func (r *Registry) Discard(jobID string) {
	r.mu.Lock()
	delete(r.pending, jobID)
	r.mu.Unlock()
}

// DiscardAll drops every pending handler without invoking any. Called
// when the channel is torn down.
func (r *Registry) DiscardAll() {
	r.mu.Lock()
	n := len(r.pending)
	r.pending = make(map[string]Handler)
	r.mu.Unlock()

	if n > 0 {
		slog.Warn("discarded pending handlers on teardown", slog.Int("count", n))
	}
}

// Pending returns the number of outstanding handlers.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
