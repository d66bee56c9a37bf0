// Package arena provides the reference kernel backend: solids allocated in an
// in-process arena that must be released explicitly.
package arena

import (
	"sync"

	"go.trai.ch/kbridge/internal/core/domain"
	"go.trai.ch/kbridge/internal/core/ports"
)

// Kind is the handle kind of arena solids.
const Kind = "arena-solid"

// Solid is a native handle to a solid allocated in an Arena.
type Solid struct {
	arena *Arena
	slot  uint64

	// Shape names the operation that produced the solid.
	Shape string
	// Volume is the enclosed volume of the solid.
	Volume float64
}

// Address returns the slot of the solid in its arena.
func (s *Solid) Address() domain.NativeAddress {
	return domain.NativeAddress(s.slot)
}

// IsLive reports whether the solid is still allocated.
func (s *Solid) IsLive() bool {
	return s.arena.live(s.slot)
}

// Dispose releases the solid. Releasing it twice returns domain.ErrAlreadyDisposed.
func (s *Solid) Dispose() error {
	return s.arena.release(s.slot)
}

var _ ports.NativeHandle = (*Solid)(nil)

// Arena owns every solid allocated by the kernel.
type Arena struct {
	mu        sync.Mutex
	next      uint64
	slots     map[uint64]*Solid
	allocated int
	released  int
}

// NewArena creates an empty Arena.
func NewArena() *Arena {
	return &Arena{slots: make(map[uint64]*Solid)}
}

// Alloc allocates a new solid.
func (a *Arena) Alloc(shape string, volume float64) *Solid {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.next++
	s := &Solid{arena: a, slot: a.next, Shape: shape, Volume: volume}
	a.slots[s.slot] = s
	a.allocated++
	return s
}

// Live returns the number of solids that were not released yet.
func (a *Arena) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.slots)
}

// Counts returns the number of allocations and releases so far.
func (a *Arena) Counts() (allocated, released int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocated, a.released
}

func (a *Arena) live(slot uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.slots[slot]
	return ok
}

func (a *Arena) release(slot uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.slots[slot]; !ok {
		return domain.ErrAlreadyDisposed
	}
	delete(a.slots, slot)
	a.released++
	return nil
}

// handles recognises arena solids.
type handles struct{}

func (handles) Kind() string { return Kind }

func (handles) Handle(v any) (ports.NativeHandle, bool) {
	s, ok := v.(*Solid)
	if !ok || s == nil {
		return nil, false
	}
	return s, true
}

// Backend bundles the arena kernel with its handle capability.
type Backend struct {
	arena     *Arena
	namespace domain.Namespace
}

// NewBackend creates the arena kernel backend over a.
func NewBackend(a *Arena) *Backend {
	return &Backend{arena: a, namespace: Namespace(a)}
}

// Name returns the configuration name of the backend.
func (b *Backend) Name() string { return Name }

// Kernel returns the kernel namespace.
func (b *Backend) Kernel() ports.Kernel { return b.namespace }

// Handles returns the handle capability of the backend.
func (b *Backend) Handles() ports.HandleBackend { return handles{} }

// Arena returns the arena that owns the kernel's solids.
func (b *Backend) Arena() *Arena { return b.arena }

var _ ports.KernelBackend = (*Backend)(nil)
