package runlock

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
)

// LocalGuard is the in-process fallback used when no Redis is configured.
// It gives the same skip-if-running behavior within a single process, which
// is all a single-instance deployment needs.
type LocalGuard struct {
	running atomic.Bool

	mu      sync.Mutex
	lastRun []byte
}

func NewLocalGuard() *LocalGuard {
	return &LocalGuard{}
}

func (g *LocalGuard) TryAcquire(ctx context.Context) (bool, error) {
	return g.running.CompareAndSwap(false, true), nil
}

func (g *LocalGuard) Release(ctx context.Context) error {
	g.running.Store(false)
	return nil
}

func (g *LocalGuard) SaveLastRun(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.lastRun = data
	g.mu.Unlock()
	return nil
}

func (g *LocalGuard) LastRun(ctx context.Context, dest any) (bool, error) {
	g.mu.Lock()
	data := g.lastRun
	g.mu.Unlock()
	if data == nil {
		return false, nil
	}
	return true, json.Unmarshal(data, dest)
}
