package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/riftrewind/rewindx/pkg/retry"
)

// Handler executes one job from its JSON payload.
type Handler func(ctx context.Context, payload json.RawMessage) (any, error)

// Typed adapts a function over a concrete payload type. A payload that does not decode is a permanent failure.
func Typed[P any, R any](fn func(ctx context.Context, in P) (R, error)) Handler {
	return func(ctx context.Context, payload json.RawMessage) (any, error) {
		var in P
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &in); err != nil {
				return nil, retry.Permanent(fmt.Errorf("decode payload: %w", err))
			}
		}
		return fn(ctx, in)
	}
}

// Registry maps job types to their definition and handler. Handlers are registered explicitly at startup.
type Registry struct {
	mu          sync.RWMutex
	definitions map[Type]Definition
	handlers    map[Type]Handler
}

// NewRegistry builds a registry over defs; nil uses DefaultDefinitions.
func NewRegistry(defs map[Type]Definition) *Registry {
	if defs == nil {
		defs = DefaultDefinitions()
	}
	return &Registry{definitions: defs, handlers: map[Type]Handler{}}
}

// Register binds h to t. It fails for types without a definition and for types already bound.
func (r *Registry) Register(t Type, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.definitions[t]; !ok {
		return fmt.Errorf("register %s: %w", t, ErrUnknownType)
	}
	if _, ok := r.handlers[t]; ok {
		return fmt.Errorf("register %s: handler already registered", t)
	}
	r.handlers[t] = h
	return nil
}

// MustRegister is Register for startup wiring.
func (r *Registry) MustRegister(t Type, h Handler) {
	if err := r.Register(t, h); err != nil {
		panic(err)
	}
}

// Definition returns the static configuration of t.
func (r *Registry) Definition(t Type) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.definitions[t]
	if !ok {
		return Definition{}, fmt.Errorf("%s: %w", t, ErrUnknownType)
	}
	return def, nil
}

// Types lists the types that have a handler, sorted.
func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Type, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Queues lists the distinct task queues of the registered types.
func (r *Registry) Queues() []string {
	seen := map[string]struct{}{}
	out := make([]string, 0)
	for _, t := range r.Types() {
		def, _ := r.Definition(t)
		if _, ok := seen[def.Queue]; ok {
			continue
		}
		seen[def.Queue] = struct{}{}
		out = append(out, def.Queue)
	}
	return out
}

// Run executes one attempt of job t and marshals its return value.
func (r *Registry) Run(ctx context.Context, t Type, payload json.RawMessage) (json.RawMessage, error) {
	r.mu.RLock()
	h, ok := r.handlers[t]
	r.mu.RUnlock()
	if !ok {
		return nil, retry.Permanent(fmt.Errorf("run %s: %w", t, ErrUnknownType))
	}
	out, err := h(ctx, payload)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, nil
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("encode %s result: %w", t, err))
	}
	return data, nil
}
