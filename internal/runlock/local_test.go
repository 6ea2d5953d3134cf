package runlock

import (
	"context"
	"testing"
)

func TestLocalGuardMutualExclusion(t *testing.T) {
	guard := NewLocalGuard()
	ctx := context.Background()

	if ok, _ := guard.TryAcquire(ctx); !ok {
		t.Fatal("first acquire should succeed")
	}
	if ok, _ := guard.TryAcquire(ctx); ok {
		t.Fatal("second acquire must fail while held")
	}
	if err := guard.Release(ctx); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if ok, _ := guard.TryAcquire(ctx); !ok {
		t.Fatal("acquire after release should succeed")
	}
}

func TestLocalGuardLastRun(t *testing.T) {
	guard := NewLocalGuard()
	ctx := context.Background()

	var out map[string]int
	if ok, err := guard.LastRun(ctx, &out); err != nil || ok {
		t.Fatalf("expected no last run yet, ok=%v err=%v", ok, err)
	}

	if err := guard.SaveLastRun(ctx, map[string]int{"spans": 2}); err != nil {
		t.Fatalf("SaveLastRun failed: %v", err)
	}
	if ok, err := guard.LastRun(ctx, &out); err != nil || !ok {
		t.Fatalf("expected stashed run, ok=%v err=%v", ok, err)
	}
	if out["spans"] != 2 {
		t.Fatalf("unexpected stash: %v", out)
	}
}
