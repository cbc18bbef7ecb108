// Package resources registers the study's visual resources (stylesheets)
// with the host. Registration is a global flag per resource and kind, so
// callers check IsRegistered before registering or unregistering.
package resources

import (
	"context"
	"sort"
	"sync"

	"github.com/juju/errors"
)

// DefaultPanelSheet is the stylesheet used by the study's panels.
const DefaultPanelSheet = "resource://pioneer-study-online-news/content/panel.css"

const (
	ErrAlreadyRegistered = errors.ConstError("resource already registered")
	ErrNotRegistered     = errors.ConstError("resource not registered")
)

// Kind is the cascade level a sheet is registered at.
type Kind int

const (
	AgentSheet Kind = iota
	UserSheet
	AuthorSheet
)

func (k Kind) String() string {
	switch k {
	case AgentSheet:
		return "agent"
	case UserSheet:
		return "user"
	case AuthorSheet:
		return "author"
	default:
		return "unknown"
	}
}

type entry struct {
	id   string
	kind Kind
}

// Registry is an in-process resource registrar.
type Registry struct {
	mu      sync.RWMutex
	entries map[entry]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[entry]struct{})}
}

// Register adds id at kind. Registering twice fails with ErrAlreadyRegistered.
func (r *Registry) Register(ctx context.Context, id string, kind Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := entry{id, kind}
	if _, ok := r.entries[e]; ok {
		return errors.Annotatef(ErrAlreadyRegistered, "%s (%s)", id, kind)
	}
	r.entries[e] = struct{}{}
	return nil
}

// Unregister removes id at kind, failing with ErrNotRegistered if absent.
func (r *Registry) Unregister(ctx context.Context, id string, kind Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := entry{id, kind}
	if _, ok := r.entries[e]; !ok {
		return errors.Annotatef(ErrNotRegistered, "%s (%s)", id, kind)
	}
	delete(r.entries, e)
	return nil
}

// IsRegistered reports whether id is registered at kind.
func (r *Registry) IsRegistered(ctx context.Context, id string, kind Kind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[entry{id, kind}]
	return ok
}

// Registered returns the registered ids in sorted order.
func (r *Registry) Registered() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for e := range r.entries {
		out = append(out, e.id)
	}
	sort.Strings(out)
	return out
}
