package environ

import (
	"sort"
	"sync"
)

// ShutdownRegistry collects teardown hooks to run on process exit, so an
// interrupted run still destroys the environments it created. Hooks
// deregister themselves once run, which keeps explicit Stop calls and the
// exit path from destroying the same environment twice.
type ShutdownRegistry struct {
	mu    sync.Mutex
	next  int
	hooks map[int]func()
}

// DefaultShutdown is the process-wide registry. main defers Fire on it as
// a last resort for exits that skip the graceful shutdown path.
var DefaultShutdown = NewShutdownRegistry()

func NewShutdownRegistry() *ShutdownRegistry {
	return &ShutdownRegistry{hooks: make(map[int]func())}
}

// Register adds a hook and returns its deregistration func. Deregistering
// more than once is harmless.
func (r *ShutdownRegistry) Register(hook func()) (deregister func()) {
	r.mu.Lock()
	id := r.next
	r.next++
	r.hooks[id] = hook
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.hooks, id)
		r.mu.Unlock()
	}
}

// Fire runs all registered hooks, most recently registered first, and
// removes them. A second Fire is a no-op unless new hooks were registered
// in between.
func (r *ShutdownRegistry) Fire() {
	r.mu.Lock()
	ids := make([]int, 0, len(r.hooks))
	for id := range r.hooks {
		ids = append(ids, id)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ids)))
	hooks := make([]func(), 0, len(ids))
	for _, id := range ids {
		hooks = append(hooks, r.hooks[id])
		delete(r.hooks, id)
	}
	r.mu.Unlock()

	for _, hook := range hooks {
		hook()
	}
}
