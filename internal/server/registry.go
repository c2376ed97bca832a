package server

import "sync"

// Registry tracks the number of live sessions bound to each room code.
// It is process-local, derived state: it is rebuilt naturally as clients
// reconnect and is not shared across instances.
type Registry struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewRegistry() *Registry {
	return &Registry{counts: make(map[string]int)}
}

// Incr adds one session for code and returns the new count.
func (r *Registry) Incr(code string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counts[code]++
	return r.counts[code]
}

// Decr removes one session for code and returns the new count. The
// count never goes below zero; a room that reaches zero is dropped from
// the map entirely.
func (r *Registry) Decr(code string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.counts[code]
	if !ok {
		return 0
	}

	n--
	if n <= 0 {
		delete(r.counts, code)
		return 0
	}

	r.counts[code] = n
	return n
}

func (r *Registry) Count(code string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.counts[code]
}
