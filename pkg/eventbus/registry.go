package eventbus

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type Handler func(ctx context.Context, ev Event) error

type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Subscribe binds h to events called name. One handler per name.
func (r *Registry) Subscribe(name string, h Handler) error {
	if name == "" || h == nil {
		return fmt.Errorf("eventbus: subscribe needs a name and a handler")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[name]; ok {
		return fmt.Errorf("eventbus: %s already has a handler", name)
	}
	r.handlers[name] = h
	return nil
}

func (r *Registry) Handler(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
