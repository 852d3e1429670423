// Package ports tracks exclusive reservations of network ports handed to
// dedicated runtimes. State is in-memory only: the allocator resets with the
// daemon, and dedicated runtimes never outlive it.
package ports

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mdstack/conductor/internal/metrics"
)

// ErrExhausted is returned by Allocate when every port in the configured
// range is reserved. Callers decide whether to retry or surface it.
var ErrExhausted = errors.New("port range exhausted")

// Allocator hands out the lowest free port in [base, base+span).
// Safe for concurrent use.
type Allocator struct {
	mu   sync.Mutex
	base int
	span int
	used map[int]struct{}
}

func New(base, span int) (*Allocator, error) {
	if base <= 0 || base > 65535 {
		return nil, fmt.Errorf("invalid port base %d", base)
	}
	if span <= 0 || base+span-1 > 65535 {
		return nil, fmt.Errorf("invalid port span %d for base %d", span, base)
	}
	return &Allocator{base: base, span: span, used: make(map[int]struct{})}, nil
}

// Allocate reserves and returns the lowest free port in range.
func (a *Allocator) Allocate() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for p := a.base; p < a.base+a.span; p++ {
		if _, taken := a.used[p]; !taken {
			a.used[p] = struct{}{}
			metrics.SetPortsAllocated(len(a.used))
			return p, nil
		}
	}
	return 0, fmt.Errorf("no free port in [%d, %d): %w", a.base, a.base+a.span, ErrExhausted)
}

// Release frees a reservation. Releasing an unreserved or out-of-range port
// is a no-op so that cleanup paths can call it unconditionally.
func (a *Allocator) Release(port int) {
	a.mu.Lock()
	delete(a.used, port)
	metrics.SetPortsAllocated(len(a.used))
	a.mu.Unlock()
}

// IsAllocated reports whether port is currently reserved.
func (a *Allocator) IsAllocated(port int) bool {
	a.mu.Lock()
	_, ok := a.used[port]
	a.mu.Unlock()
	return ok
}

// Used returns the number of active reservations.
func (a *Allocator) Used() int {
	a.mu.Lock()
	n := len(a.used)
	a.mu.Unlock()
	return n
}
