// Package faces provides the shared face registry sitting between the
// detection callback and the preview callback.
//
// Both sides are hot paths on threads this process does not own, so the
// registry never blocks: writers and readers take the rect buffer lock
// with TryLock and walk away on contention. A lost update costs nothing,
// the next detection lands tens of milliseconds later; a lost read means
// one frame ships with last frame's redaction state. Drop, never queue.
//
// The face count lives outside the lock as an atomic so the cheap
// "nothing detected" case (by far the most common) records itself without
// ever touching the mutex, and status queries can read the count
// lock-free.
package faces

import (
	"sync"
	"sync/atomic"

	"github.com/crazymi/TizenFaceFilter/internal/types"
)

// DefaultCapacity is used when a device reports no usable maximum.
const DefaultCapacity = 10

// Registry is a fixed-capacity, non-blocking store of detected face
// rectangles. The zero value is not usable; construct with NewRegistry.
//
// Thread-safety: all methods are safe for concurrent use from any
// goroutine. None of them block.
type Registry struct {
	mu    sync.Mutex
	rects []types.Rect // len == capacity, fixed at construction
	count atomic.Int32 // valid prefix of rects; always <= capacity

	updates          atomic.Uint64
	droppedUpdates   atomic.Uint64
	snapshots        atomic.Uint64
	droppedSnapshots atomic.Uint64
}

// NewRegistry allocates a registry holding at most capacity rectangles.
// Non-positive capacities fall back to DefaultCapacity.
func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Registry{rects: make([]types.Rect, capacity)}
}

// Capacity returns the fixed maximum number of rectangles.
func (r *Registry) Capacity() int {
	return len(r.rects)
}

// Count returns the number of currently valid rectangles without taking
// the lock.
func (r *Registry) Count() int {
	return int(r.count.Load())
}

// Clear records "no faces" without touching the lock. Safe to call
// concurrently with an in-flight snapshot; the snapshot then reports the
// pre-clear state, which readers already treat as best-effort.
func (r *Registry) Clear() {
	r.count.Store(0)
	r.updates.Add(1)
}

// TryUpdate replaces the registry contents with the given rectangles.
//
// An empty input takes the lock-free zero path (identical to Clear). A
// non-empty input is clamped to capacity, keeping the first entries.
// If the lock is held by a reader the update is dropped and TryUpdate
// returns false with the registry untouched, count included.
func (r *Registry) TryUpdate(rects []types.Rect) bool {
	if len(rects) == 0 {
		r.Clear()
		return true
	}
	if !r.mu.TryLock() {
		r.droppedUpdates.Add(1)
		return false
	}
	n := copy(r.rects, rects)
	r.count.Store(int32(n))
	r.mu.Unlock()
	r.updates.Add(1)
	return true
}

// TrySnapshot copies the valid rectangles into dst and returns how many
// were copied. If the lock is held by a writer nothing is copied and ok
// is false; the caller skips this frame rather than waiting.
//
// At most min(Count, len(dst)) entries are written; entries beyond the
// count are never read.
func (r *Registry) TrySnapshot(dst []types.Rect) (n int, ok bool) {
	if !r.mu.TryLock() {
		r.droppedSnapshots.Add(1)
		return 0, false
	}
	n = int(r.count.Load())
	if n > len(dst) {
		n = len(dst)
	}
	copy(dst, r.rects[:n])
	r.mu.Unlock()
	r.snapshots.Add(1)
	return n, true
}

// Stats returns the registry counters.
func (r *Registry) Stats() types.RegistryStats {
	return types.RegistryStats{
		Updates:          r.updates.Load(),
		DroppedUpdates:   r.droppedUpdates.Load(),
		Snapshots:        r.snapshots.Load(),
		DroppedSnapshots: r.droppedSnapshots.Load(),
	}
}
