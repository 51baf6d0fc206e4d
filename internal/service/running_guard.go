package service

import (
	"context"
	"sync"
)

// ExportedRunningGuard is an exported alias so _test packages can test the guard.
type ExportedRunningGuard = runningGuard

// ─────────────────────────────────────────────────────────────
// runningGuard: tracks navigations still waiting on the server
// ─────────────────────────────────────────────────────────────

// runningGuard records in-flight requests by ID so shutdown can wait for
// them. An ID can only be held once at a time.
type runningGuard struct {
	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup
}

// TryLock attempts to mark id as running. Returns false if it already is.
func (g *runningGuard) TryLock(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running == nil {
		g.running = make(map[string]struct{})
	}
	if _, ok := g.running[id]; ok {
		return false
	}
	g.running[id] = struct{}{}
	g.wg.Add(1)
	return true
}

// Unlock marks id as finished. Unknown ids are ignored.
func (g *runningGuard) Unlock(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.running[id]; !ok {
		return
	}
	delete(g.running, id)
	g.wg.Done()
}

// Len returns the number of requests currently running.
func (g *runningGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.running)
}

// WaitAll blocks until all running requests finish or ctx is cancelled.
func (g *runningGuard) WaitAll(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
