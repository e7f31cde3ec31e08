package registry

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// Registry owns the set of known components.
//
// Each entry is an atomic pointer to an immutable Component. Replace swaps the
// pointer to a fully built value, so a concurrent Get observes either the old
// or the new component, never a mix. The map itself is guarded by mu:
// Register and Deregister take the write lock, everything else the read lock.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*atomic.Pointer[Component]
	order   []string

	revision atomic.Uint64
}

func New() *Registry {
	return &Registry{entries: make(map[string]*atomic.Pointer[Component])}
}

// Register computes the component's checksum over its payload and stores an
// owned copy. The stored copy is returned.
func (r *Registry) Register(c Component) (Component, error) {
	if strings.TrimSpace(c.Name) == "" {
		return Component{}, fmt.Errorf("%w: empty name", ErrInvalidComponent)
	}
	stored := c.Clone()
	stored.Checksum = Checksum(stored.Payload)
	return r.insert(stored)
}

// Restore stores a component exactly as given, recorded checksum included.
// It is the inverse of Export for persistence collaborators; Verify or Sweep
// will flag a record whose payload no longer matches its checksum.
func (r *Registry) Restore(c Component) (Component, error) {
	if strings.TrimSpace(c.Name) == "" {
		return Component{}, fmt.Errorf("%w: empty name", ErrInvalidComponent)
	}
	return r.insert(c.Clone())
}

func (r *Registry) insert(stored Component) (Component, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[stored.Name]; ok {
		return Component{}, fmt.Errorf("%w: %q", ErrAlreadyRegistered, stored.Name)
	}
	p := new(atomic.Pointer[Component])
	p.Store(&stored)
	r.entries[stored.Name] = p
	r.order = append(r.order, stored.Name)
	r.revision.Add(1)
	return stored.Clone(), nil
}

func (r *Registry) Get(name string) (Component, error) {
	p, err := r.entry(name)
	if err != nil {
		return Component{}, err
	}
	return p.Load().Clone(), nil
}

// Replace installs next as the component of record for name and returns the
// previous value. next is stored as given, checksum included; callers that
// want the checksum recomputed should use Checksum beforehand.
func (r *Registry) Replace(name string, next Component) (Component, error) {
	if next.Name != name {
		return Component{}, fmt.Errorf("%w: replacement named %q for %q", ErrInvalidComponent, next.Name, name)
	}
	p, err := r.entry(name)
	if err != nil {
		return Component{}, err
	}
	stored := next.Clone()
	old := p.Swap(&stored)
	r.revision.Add(1)
	return old.Clone(), nil
}

func (r *Registry) Deregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; !ok {
		return notFound(name)
	}
	delete(r.entries, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.revision.Add(1)
	return nil
}

// Revision increases whenever a component is added, replaced or removed.
func (r *Registry) Revision() uint64 {
	return r.revision.Load()
}

// Verify re-checks the live component's checksum.
func (r *Registry) Verify(name string) error {
	p, err := r.entry(name)
	if err != nil {
		return err
	}
	return VerifyComponent(*p.Load())
}

// Sweep verifies every component and returns one error per corrupted entry,
// in registration order.
func (r *Registry) Sweep() []error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var errs []error
	for _, name := range r.order {
		if err := VerifyComponent(*r.entries[name].Load()); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Names lists registered components in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Snapshot returns copies of all components in registration order.
func (r *Registry) Snapshot() []Component {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Component, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].Load().Clone())
	}
	return out
}

func (r *Registry) entry(name string) (*atomic.Pointer[Component], error) {
	r.mu.RLock()
	p, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, notFound(name)
	}
	return p, nil
}
