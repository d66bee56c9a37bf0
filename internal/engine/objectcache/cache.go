// Package objectcache implements the generational object cache that owns native
// kernel handles on the worker side of the bridge.
package objectcache

import (
	"reflect"
	"sync"
	"time"

	"go.trai.ch/kbridge/internal/core/domain"
	"go.trai.ch/kbridge/internal/core/ports"
	"go.trai.ch/kbridge/internal/engine/canonical"
	"go.trai.ch/zerr"
)

// AggregateIndex keys the grouping handle of an assembly result.
const AggregateIndex = "aggregate"

// EntryKind tells handle entries apart from plain values.
type EntryKind int

const (
	// EntryPlainValue holds a serializable value, possibly listing child entries.
	EntryPlainValue EntryKind = iota
	// EntryNativeHandle holds a native handle owned by the cache.
	EntryNativeHandle
)

// Entry is one cached computation result.
type Entry struct {
	Key     domain.CacheKey
	Payload any
	Kind    EntryKind
	// Children lists the handle entries a fanned-out result was split into.
	// The entry is only valid while all of them are.
	Children []domain.CacheKey
}

// Result is the outcome of CacheOp.
type Result struct {
	Key domain.CacheKey
	// Value is the reply form of the result: handles are replaced by references.
	Value any
	Hit   bool
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Entries   int    `json:"entries"`
	Handles   int    `json:"handles"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Flushes   uint64 `json:"flushes"`
}

// ComputeFunc produces the result of a call on a cache miss.
type ComputeFunc func() (any, error)

// Cache is a keyed store of computed results with generational eviction.
//
// Every key touched by CacheOp is marked in the current round. Sweep disposes
// entries that were used in the previous round but not in the current one.
type Cache struct {
	hasher  *canonical.Hasher
	backend ports.HandleBackend
	logger  ports.Logger
	journal ports.KeyJournal
	now     func() time.Time

	mu       sync.Mutex
	entries  map[domain.CacheKey]*Entry
	current  map[domain.CacheKey]struct{}
	previous map[domain.CacheKey]struct{}
	stats    Stats
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger used for disposal failures and key collisions.
func WithLogger(logger ports.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// WithJournal records the canonical form of every missed key.
func WithJournal(journal ports.KeyJournal) Option {
	return func(c *Cache) { c.journal = journal }
}

// New creates an empty cache that recognises handles through backend.
func New(hasher *canonical.Hasher, backend ports.HandleBackend, opts ...Option) *Cache {
	c := &Cache{
		hasher:   hasher,
		backend:  backend,
		logger:   ports.NopLogger{},
		now:      time.Now,
		entries:  make(map[domain.CacheKey]*Entry),
		current:  make(map[domain.CacheKey]struct{}),
		previous: make(map[domain.CacheKey]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ComputeHash returns the cache key of args.
func (c *Cache) ComputeHash(args domain.CallArguments) (domain.CacheKey, error) {
	return c.hasher.Key(args)
}

// Describe returns the cache key of args together with its canonical form.
func (c *Cache) Describe(args domain.CallArguments) (domain.CacheKey, string, error) {
	return c.hasher.Describe(args)
}

// CacheOp returns the cached result for args, calling compute only on a miss.
func (c *Cache) CacheOp(args domain.CallArguments, compute ComputeFunc) (Result, error) {
	key, form, err := c.hasher.Describe(args)
	if err != nil {
		return Result{}, err
	}

	c.mu.Lock()
	c.markLocked(key)
	if e, ok := c.validLocked(key); ok {
		c.stats.Hits++
		for _, child := range e.Children {
			c.markLocked(child)
		}
		value := c.replyLocked(e)
		c.mu.Unlock()
		return Result{Key: key, Value: value, Hit: true}, nil
	}
	c.stats.Misses++
	c.mu.Unlock()

	c.record(key, args.FunctionName, form)

	out, err := compute()
	if err != nil {
		return Result{Key: key}, err
	}

	value, err := c.store(args, key, out)
	if err != nil {
		return Result{Key: key}, err
	}
	return Result{Key: key, Value: value}, nil
}

// CheckCache returns a copy of the entry at key.
// A handle entry that is no longer live is purged and reported as domain.ErrCacheMiss.
func (c *Cache) CheckCache(key domain.CacheKey) (*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.validLocked(key)
	if !ok {
		return nil, zerr.With(zerr.Wrap(domain.ErrCacheMiss, "no live entry"), "key", key.String())
	}
	cp := *e
	return &cp, nil
}

// Evict disposes and removes the entry at key. It reports whether an entry existed.
func (c *Cache) Evict(key domain.CacheKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.evictLocked(key) {
		return false
	}
	c.stats.Evictions++
	return true
}

// Discard evicts the entry at key together with the entries it was split into.
// It returns the number of removed entries.
func (c *Cache) Discard(key domain.CacheKey) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return 0
	}
	n := 0
	for _, child := range e.Children {
		if c.evictLocked(child) {
			n++
		}
	}
	if c.evictLocked(key) {
		n++
	}
	c.stats.Evictions += uint64(n)
	return n
}

// Sweep evicts every entry used in the previous round but not in the current one,
// then starts a new round. It returns the number of evicted entries.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for key := range c.previous {
		if _, used := c.current[key]; used {
			continue
		}
		if c.evictLocked(key) {
			evicted++
		}
	}
	c.previous = c.current
	c.current = make(map[domain.CacheKey]struct{})
	c.stats.Evictions += uint64(evicted)

	if evicted > 0 {
		c.logger.Debug("swept cache", "evicted", evicted, "remaining", len(c.entries))
	}
	return evicted
}

// Flush disposes every handle and empties the cache. It returns the number of removed entries.
func (c *Cache) Flush() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	for key, e := range c.entries {
		c.disposeLocked(key, e)
	}
	c.entries = make(map[domain.CacheKey]*Entry)
	c.current = make(map[domain.CacheKey]struct{})
	c.previous = make(map[domain.CacheKey]struct{})
	c.stats.Flushes++
	c.stats.Evictions += uint64(n)
	return n
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Entries = len(c.entries)
	for _, e := range c.entries {
		if e.Kind == EntryNativeHandle {
			s.Handles++
		}
	}
	return s
}

func (c *Cache) markLocked(key domain.CacheKey) {
	c.current[key] = struct{}{}
	c.previous[key] = struct{}{}
}

// validLocked returns the entry at key if it can still be served.
// Invalid entries are purged.
func (c *Cache) validLocked(key domain.CacheKey) (*Entry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	valid := true
	switch {
	case e.Kind == EntryNativeHandle:
		valid = c.isLive(e.Payload)
	case len(e.Children) > 0:
		for _, child := range e.Children {
			if _, ok := c.validLocked(child); !ok {
				valid = false
				break
			}
		}
	}

	if !valid {
		c.logger.Debug("purging invalid cache entry", "key", key.String())
		c.evictLocked(key)
		return nil, false
	}
	return e, true
}

func (c *Cache) replyLocked(e *Entry) any {
	if e.Kind == EntryNativeHandle {
		return domain.HandleReference{Hash: e.Key, Kind: c.backend.Kind()}
	}
	return e.Payload
}

func (c *Cache) evictLocked(key domain.CacheKey) bool {
	e, ok := c.entries[key]
	if !ok {
		return false
	}
	delete(c.entries, key)
	c.disposeLocked(key, e)
	return true
}

func (c *Cache) disposeLocked(key domain.CacheKey, e *Entry) {
	if e.Kind != EntryNativeHandle {
		return
	}
	c.dispose(key, e.Payload)
}

// dispose releases a handle. Failures are logged and never returned.
func (c *Cache) dispose(key domain.CacheKey, payload any) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Debug("handle disposal panicked", "key", key.String(), "panic", r)
		}
	}()

	h, ok := c.backend.Handle(payload)
	if !ok || !h.IsLive() {
		return
	}
	if err := h.Dispose(); err != nil {
		c.logger.Debug("failed to dispose handle", "key", key.String(), "error", err)
	}
}

func (c *Cache) isLive(payload any) (live bool) {
	defer func() {
		if r := recover(); r != nil {
			live = false
		}
	}()

	h, ok := c.backend.Handle(payload)
	return ok && h.IsLive()
}

func (c *Cache) handle(v any) bool {
	if v == nil {
		return false
	}
	_, ok := c.backend.Handle(v)
	return ok
}

// store splits a freshly computed result into entries and returns its reply form.
func (c *Cache) store(args domain.CallArguments, key domain.CacheKey, out any) (any, error) {
	switch v := out.(type) {
	case domain.Assembly:
		return c.storeAssembly(args, key, v)
	case *domain.Assembly:
		if v != nil {
			return c.storeAssembly(args, key, *v)
		}
	}

	if c.handle(out) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.putLocked(&Entry{Key: key, Payload: out, Kind: EntryNativeHandle})
		return domain.HandleReference{Hash: key, Kind: c.backend.Kind()}, nil
	}

	if elems, ok := c.handleSequence(out); ok {
		return c.storeSequence(args, key, elems)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(&Entry{Key: key, Payload: out, Kind: EntryPlainValue})
	return out, nil
}

// handleSequence returns the elements of out when it is a sequence holding at least one handle.
func (c *Cache) handleSequence(out any) ([]any, bool) {
	if out == nil {
		return nil, false
	}
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}

	elems := make([]any, rv.Len())
	found := false
	for i := range rv.Len() {
		elems[i] = rv.Index(i).Interface()
		if c.handle(elems[i]) {
			found = true
		}
	}
	return elems, found
}

func (c *Cache) storeSequence(args domain.CallArguments, key domain.CacheKey, elems []any) (any, error) {
	reply := make([]any, len(elems))
	children := make([]*Entry, 0, len(elems))
	for i, elem := range elems {
		if !c.handle(elem) {
			reply[i] = elem
			continue
		}
		childKey, err := c.hasher.Key(args.WithIndex(i))
		if err != nil {
			c.release(elems...)
			return nil, err
		}
		children = append(children, &Entry{Key: childKey, Payload: elem, Kind: EntryNativeHandle})
		reply[i] = domain.HandleReference{Hash: childKey, Kind: c.backend.Kind()}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.putChildrenLocked(key, reply, children)
	return reply, nil
}

func (c *Cache) storeAssembly(args domain.CallArguments, key domain.CacheKey, a domain.Assembly) (any, error) {
	handles := make([]any, 0, len(a.Members)+1)
	handles = append(handles, a.Aggregate)
	for _, m := range a.Members {
		handles = append(handles, m.Handle)
	}
	for _, h := range handles {
		if !c.handle(h) {
			c.release(handles...)
			return nil, zerr.With(
				zerr.Wrap(domain.ErrKernelFailure, "assembly holds a value that is not a native handle"),
				"function", args.FunctionName,
			)
		}
	}

	aggKey, err := c.hasher.Key(args.WithIndex(AggregateIndex))
	if err != nil {
		c.release(handles...)
		return nil, err
	}

	kind := c.backend.Kind()
	reply := domain.AssemblyRef{
		Aggregate: domain.HandleReference{Hash: aggKey, Kind: kind},
		Members:   make([]domain.MemberRef, len(a.Members)),
		Data:      a.Data,
	}
	children := []*Entry{{Key: aggKey, Payload: a.Aggregate, Kind: EntryNativeHandle}}
	for i, m := range a.Members {
		memberKey, err := c.hasher.Key(args.WithIndex(i))
		if err != nil {
			c.release(handles...)
			return nil, err
		}
		children = append(children, &Entry{Key: memberKey, Payload: m.Handle, Kind: EntryNativeHandle})
		reply.Members[i] = domain.MemberRef{Name: m.Name, Ref: domain.HandleReference{Hash: memberKey, Kind: kind}}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.putChildrenLocked(key, reply, children)
	return reply, nil
}

func (c *Cache) putChildrenLocked(key domain.CacheKey, reply any, children []*Entry) {
	keys := make([]domain.CacheKey, len(children))
	for i, child := range children {
		c.putLocked(child)
		keys[i] = child.Key
	}
	c.putLocked(&Entry{Key: key, Payload: reply, Kind: EntryPlainValue, Children: keys})
}

// putLocked stores e and marks it used, disposing any handle it replaces.
func (c *Cache) putLocked(e *Entry) {
	if old, ok := c.entries[e.Key]; ok && old.Kind == EntryNativeHandle && !sameHandle(old.Payload, e.Payload) {
		c.dispose(e.Key, old.Payload)
	}
	c.entries[e.Key] = e
	c.markLocked(e.Key)
}

// sameHandle reports whether a and b are the same native handle.
// Handles that cannot be compared are treated as the same and are left alone.
func sameHandle(a, b any) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if !va.IsValid() || !vb.IsValid() || va.Type() != vb.Type() {
		return false
	}
	if !va.Comparable() || !vb.Comparable() {
		return true
	}
	return va.Equal(vb)
}

// release disposes handles of a result that could not be cached.
func (c *Cache) release(values ...any) {
	for _, v := range values {
		if c.handle(v) {
			c.dispose(0, v)
		}
	}
}

// record journals the canonical form of a missed key and reports collisions.
func (c *Cache) record(key domain.CacheKey, function, form string) {
	if c.journal == nil {
		return
	}

	existing, err := c.journal.Get(key)
	if err != nil {
		c.logger.Warn("failed to read key journal", "key", key.String(), "error", err)
		return
	}
	if existing != nil {
		if existing.Canonical != form {
			c.logger.Error(zerr.With(
				zerr.With(zerr.Wrap(domain.ErrKeyCollision, "canonical forms differ"), "key", key.String()),
				"previous", existing.Canonical,
			))
		}
		return
	}

	if err := c.journal.Put(domain.KeyRecord{
		Key:       key,
		Function:  function,
		Canonical: form,
		FirstSeen: c.now().UTC(),
	}); err != nil {
		c.logger.Warn("failed to write key journal", "key", key.String(), "error", err)
	}
}
