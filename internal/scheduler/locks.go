package scheduler

import (
	"sort"
	"sync"
)

// ResourceLockManager provides per-path mutual exclusion for concurrent task
// execution. Each output path gets its own mutex, so tasks writing different
// outputs run in parallel while tasks declaring the same output serialize.
type ResourceLockManager struct {
	mu    sync.Mutex             // Guards the locks map itself
	locks map[string]*sync.Mutex // Per-path mutexes
}

// NewResourceLockManager creates a new ResourceLockManager.
func NewResourceLockManager() *ResourceLockManager {
	return &ResourceLockManager{
		locks: make(map[string]*sync.Mutex),
	}
}

// Lock acquires the mutex for path, creating it on first use.
func (r *ResourceLockManager) Lock(path string) {
	r.mu.Lock()
	pathLock, exists := r.locks[path]
	if !exists {
		pathLock = &sync.Mutex{}
		r.locks[path] = pathLock
	}
	r.mu.Unlock()

	// Acquired outside the manager lock to avoid contention.
	pathLock.Lock()
}

// Unlock releases the mutex for path.
func (r *ResourceLockManager) Unlock(path string) {
	r.mu.Lock()
	pathLock, exists := r.locks[path]
	r.mu.Unlock()

	if exists {
		pathLock.Unlock()
	}
}

// LockAll acquires the locks for all paths in lexical order, which rules out
// lock-order deadlocks between tasks. Duplicate paths are locked once.
func (r *ResourceLockManager) LockAll(paths []string) {
	for _, p := range sortedUnique(paths) {
		r.Lock(p)
	}
}

// UnlockAll releases the locks taken by LockAll, in reverse order.
func (r *ResourceLockManager) UnlockAll(paths []string) {
	sorted := sortedUnique(paths)
	for i := len(sorted) - 1; i >= 0; i-- {
		r.Unlock(sorted[i])
	}
}

func sortedUnique(paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	sorted := make([]string, len(paths))
	copy(sorted, paths)
	sort.Strings(sorted)

	out := sorted[:1]
	for _, p := range sorted[1:] {
		if p != out[len(out)-1] {
			out = append(out, p)
		}
	}
	return out
}
