package service

import (
	"context"
	"sort"
	"sync"
)

// ExportedImportGuard lets _test packages exercise the guard.
type ExportedImportGuard = importGuard

// ─────────────────────────────────────────────────────────────
// importGuard: at most one import per job and per campaign
// ─────────────────────────────────────────────────────────────

// importGuard hands out sets of keys. A set is granted only when none of its
// keys is held, so two jobs writing the same campaign never overlap.
type importGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
	wg   sync.WaitGroup
}

// Acquire takes every key or none. The returned release must be called once.
func (g *importGuard) Acquire(keys ...string) (release func(), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held == nil {
		g.held = make(map[string]struct{})
	}
	for _, k := range keys {
		if _, busy := g.held[k]; busy {
			return nil, false
		}
	}
	for _, k := range keys {
		g.held[k] = struct{}{}
	}
	g.wg.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			for _, k := range keys {
				delete(g.held, k)
			}
			g.mu.Unlock()
			g.wg.Done()
		})
	}, true
}

// Held lists the keys currently taken, sorted.
func (g *importGuard) Held() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	keys := make([]string, 0, len(g.held))
	for k := range g.held {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WaitAll blocks until every granted set is released or ctx is done.
func (g *importGuard) WaitAll(ctx context.Context) {
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

func jobKey(id string) string      { return "job:" + id }
func campaignKey(id string) string { return "campaign:" + id }
