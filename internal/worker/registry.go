package worker

import (
	"context"
	"encoding/json"
	"time"
)

// Handler executes one job attempt. Handlers must be idempotent or
// self-check-before-act: a retry can re-run an attempt that partially
// succeeded before failing.
type Handler interface {
	Handle(ctx context.Context, payload json.RawMessage) error
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc func(ctx context.Context, payload json.RawMessage) error

// Handle calls f
func (f HandlerFunc) Handle(ctx context.Context, payload json.RawMessage) error {
	return f(ctx, payload)
}

type registration struct {
	handler Handler
	timeout time.Duration // 0 means use the pool default
}

// Registry maps job types to their handlers
type Registry struct {
	handlers map[string]registration
}

// NewRegistry creates an empty handler registry
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]registration)}
}

// RegisterOption customizes a handler registration
type RegisterOption func(*registration)

// WithTimeout sets a per-job-type execution timeout
func WithTimeout(d time.Duration) RegisterOption {
	return func(r *registration) {
		r.timeout = d
	}
}

// Register binds a handler to a job type. Registration happens once at
// startup, before the pool runs; the map is read-only afterwards.
func (r *Registry) Register(jobType string, h Handler, opts ...RegisterOption) {
	reg := registration{handler: h}
	for _, opt := range opts {
		opt(&reg)
	}
	r.handlers[jobType] = reg
}

// Lookup returns the handler and timeout override for a job type
func (r *Registry) Lookup(jobType string) (Handler, time.Duration, bool) {
	reg, ok := r.handlers[jobType]
	return reg.handler, reg.timeout, ok
}
