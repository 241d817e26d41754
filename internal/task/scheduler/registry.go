package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Handler is the executable side of a job. Args are passed through exactly as stored.
type Handler interface {
	Run(ctx context.Context, args json.RawMessage) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, args json.RawMessage) error

func (f HandlerFunc) Run(ctx context.Context, args json.RawMessage) error { return f(ctx, args) }

// NoArgs adapts a handler that ignores its args.
func NoArgs(fn func(ctx context.Context) error) Handler {
	return HandlerFunc(func(ctx context.Context, _ json.RawMessage) error { return fn(ctx) })
}

// DecodeArgs unmarshals job args into T. JSON null decodes to the zero value.
func DecodeArgs[T any](args json.RawMessage) (T, error) {
	var v T
	if len(args) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(args, &v); err != nil {
		return v, fmt.Errorf("decode job args: %w", err)
	}
	return v, nil
}

// Registry maps job names to handlers. It is filled at startup; registering
// an existing name replaces the previous handler.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

func (r *Registry) Register(name string, h Handler) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("job name required")
	}
	if h == nil {
		return fmt.Errorf("job %q: handler is nil", name)
	}
	if f, ok := h.(HandlerFunc); ok && f == nil {
		return fmt.Errorf("job %q: handler func is nil", name)
	}
	r.mu.Lock()
	r.handlers[name] = h
	r.mu.Unlock()
	return nil
}

func (r *Registry) Get(name string) (Handler, bool) {
	r.mu.RLock()
	h, ok := r.handlers[strings.TrimSpace(name)]
	r.mu.RUnlock()
	return h, ok
}

// Names returns the registered job names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		out = append(out, n)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}
