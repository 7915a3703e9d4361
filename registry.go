package lokadcloud

import (
	"context"
	"sync"
	"sync/atomic"
)

// inFlightKey is the content-based key under which a received message is
// tracked: the message's canonical serialized bytes, rather than the Go
// value itself, since a generic T is not guaranteed to be comparable.
type inFlightKey string

// inFlightRecord tracks the raw handles backing one or more value-identical
// in-flight deliveries of the same message.
//
// Invariants: rawHandles is non-empty for every record present in the
// registry; overflowing is immutable for the life of the record.
type inFlightRecord struct {
	rawHandles  []RawHandle
	overflowing bool
	// wrapper carries the overflow blob's coordinates for an overflowing
	// record, so Delete can recover them after Get has rekeyed the record
	// under the resolved value's key.
	wrapper messageWrapper
}

// inFlightRegistry is the concurrency-safe mapping from value-identical
// received messages to the raw handles needed for acknowledgement. No
// operation against the cloud services is ever performed while holding its
// mutex: callers copy out what they need and release the lock before any
// gateway call.
type inFlightRegistry struct {
	mu      sync.Mutex
	records map[inFlightKey]*inFlightRecord
}

func newInFlightRegistry() *inFlightRegistry {
	return &inFlightRegistry{records: make(map[inFlightKey]*inFlightRecord)}
}

// callGuard records whether the registry's mutex is held on behalf of one
// particular logical Provider call. It exists so tests can assert "this
// call never invokes a gateway while holding the registry lock" without
// probing the mutex itself: the mutex is shared across every concurrent
// call, so a TryLock on it reports true whenever *any* goroutine happens
// to be inside a critical section, not just the current call. A callGuard
// is created fresh per call and threaded through context, so it only ever
// reflects that one call's own lock/unlock pairing.
type callGuard struct {
	held atomic.Bool
}

func (g *callGuard) setHeld(v bool) {
	if g == nil {
		return
	}
	g.held.Store(v)
}

// isHeld reports whether g's call currently holds the registry mutex.
func (g *callGuard) isHeld() bool {
	return g != nil && g.held.Load()
}

type callGuardKey struct{}

// withCallGuard attaches a fresh callGuard to ctx, scoped to one logical
// Provider call, and returns both so the caller can pass the guard directly
// to registry methods and the context on to gateway calls.
func withCallGuard(ctx context.Context) (context.Context, *callGuard) {
	g := &callGuard{}
	return context.WithValue(ctx, callGuardKey{}, g), g
}

// callGuardFromContext retrieves the callGuard attached by withCallGuard,
// if any.
func callGuardFromContext(ctx context.Context) *callGuard {
	g, _ := ctx.Value(callGuardKey{}).(*callGuard)
	return g
}

// insertOrAppend creates a record for key with handle if absent, or appends
// handle to the existing record. The overflowing flag (and wrapper, if any)
// of an existing record always wins; they are set only when the record is
// first created.
func (r *inFlightRegistry) insertOrAppend(key inFlightKey, handle RawHandle, overflowing bool, wrapper messageWrapper) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertOrAppendLocked(key, handle, overflowing, wrapper)
}

func (r *inFlightRegistry) insertOrAppendLocked(key inFlightKey, handle RawHandle, overflowing bool, wrapper messageWrapper) {
	if rec, ok := r.records[key]; ok {
		rec.rawHandles = append(rec.rawHandles, handle)
		return
	}
	r.records[key] = &inFlightRecord{rawHandles: []RawHandle{handle}, overflowing: overflowing, wrapper: wrapper}
}

// batchEntry is one record insertion to apply as part of insertBatch.
type batchEntry struct {
	key         inFlightKey
	handle      RawHandle
	overflowing bool
	wrapper     messageWrapper
}

// insertBatch applies entries under a single lock acquisition. Used by
// Provider.Get so a whole received batch is registered in one critical
// section instead of one lock/unlock pair per message. g, if non-nil,
// reports the lock held for the duration of that section only.
func (r *inFlightRegistry) insertBatch(entries []batchEntry, g *callGuard) {
	r.mu.Lock()
	g.setHeld(true)
	for _, e := range entries {
		r.insertOrAppendLocked(e.key, e.handle, e.overflowing, e.wrapper)
	}
	g.setHeld(false)
	r.mu.Unlock()
}

// rekey atomically moves oldKey's record to newKey. Used when a wrapper is
// resolved to its underlying message. If oldKey has no record, rekey is a
// no-op; if newKey already has a record (e.g. a concurrent direct receive of
// the same resolved value), the handles are merged under newKey and newKey's
// wrapper coordinates win. When both records were overflowing, the losing
// wrapper's blob is not explicitly deleted; it is reclaimed later by the
// janitor sweep implied by MaxInFlightDuration.
func (r *inFlightRegistry) rekey(oldKey, newKey inFlightKey, g *callGuard) {
	r.mu.Lock()
	g.setHeld(true)
	defer func() {
		g.setHeld(false)
		r.mu.Unlock()
	}()
	rec, ok := r.records[oldKey]
	if !ok {
		return
	}
	delete(r.records, oldKey)
	if existing, ok := r.records[newKey]; ok {
		existing.rawHandles = append(existing.rawHandles, rec.rawHandles...)
		return
	}
	r.records[newKey] = rec
}

// lookupFront returns the front handle for key without removing it, along
// with the overflow blob coordinates when the record is overflowing.
func (r *inFlightRegistry) lookupFront(key inFlightKey, g *callGuard) (handle RawHandle, overflowing bool, wrapper messageWrapper, ok bool) {
	r.mu.Lock()
	g.setHeld(true)
	defer func() {
		g.setHeld(false)
		r.mu.Unlock()
	}()
	rec, ok := r.records[key]
	if !ok || len(rec.rawHandles) == 0 {
		return RawHandle{}, false, messageWrapper{}, false
	}
	return rec.rawHandles[0], rec.overflowing, rec.wrapper, true
}

// popFront removes the front handle for key. If the record's handle list
// becomes empty, the record itself is removed.
func (r *inFlightRegistry) popFront(key inFlightKey, g *callGuard) {
	r.mu.Lock()
	g.setHeld(true)
	defer func() {
		g.setHeld(false)
		r.mu.Unlock()
	}()
	rec, ok := r.records[key]
	if !ok {
		return
	}
	if len(rec.rawHandles) <= 1 {
		delete(r.records, key)
		return
	}
	rec.rawHandles = rec.rawHandles[1:]
}

// size reports the number of distinct in-flight keys currently tracked.
// Exposed for metrics and tests, not part of the public API.
func (r *inFlightRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}
