package fetcher

import "sync"

// Registry holds the ordered list of listing sources and a rotating cursor
// so that successive fetches start from different positions, spreading load
// across the free listings.
type Registry struct {
	mu      sync.Mutex
	sources []Source
	cursor  int
}

// NewRegistry creates a registry over the given sources.
func NewRegistry(sources []Source) *Registry {
	return &Registry{sources: sources}
}

// Len returns the number of registered sources.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sources)
}

// All returns a snapshot of every registered source in order.
func (r *Registry) All() []Source {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Source, len(r.sources))
	copy(out, r.sources)
	return out
}

// Next returns up to k sources starting at the cursor and advances the
// cursor by the number returned, wrapping around the registry.
func (r *Registry) Next(k int) []Source {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.sources)
	if n == 0 {
		return nil
	}
	if k > n {
		k = n
	}

	selected := make([]Source, 0, k)
	for i := 0; i < k; i++ {
		selected = append(selected, r.sources[(r.cursor+i)%n])
	}
	r.cursor = (r.cursor + k) % n

	return selected
}

// Replace swaps the source list, keeping the cursor within bounds. Used by
// the sources-file watcher on reload.
func (r *Registry) Replace(sources []Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = sources
	if len(sources) == 0 {
		r.cursor = 0
	} else {
		r.cursor %= len(sources)
	}
}
