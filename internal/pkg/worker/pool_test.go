package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"sitepulse.io/sitepulse/internal/pkg/logger"
)

func init() {
	// Initialize logger for tests
	_ = logger.Init("error", "json")
}

func TestNewPools(t *testing.T) {
	ctx := context.Background()
	pools, err := NewPools(ctx, DefaultPoolConfig())
	if err != nil {
		t.Fatalf("NewPools() error = %v", err)
	}
	defer pools.Shutdown()

	if pools.General == nil {
		t.Error("General pool is nil")
	}
	if pools.Cascade == nil {
		t.Error("Cascade pool is nil")
	}
}

func TestPool_Submit(t *testing.T) {
	ctx := context.Background()
	pools, err := NewPools(ctx, PoolConfig{
		GeneralPoolSize: 10,
		CascadePoolSize: 5,
	})
	if err != nil {
		t.Fatalf("NewPools() error = %v", err)
	}
	defer pools.Shutdown()

	var executed atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)

	err = pools.General.Submit(ctx, func(ctx context.Context) {
		executed.Store(true)
		wg.Done()
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	wg.Wait()
	if !executed.Load() {
		t.Error("Task was not executed")
	}
}

func TestPool_Submit_CancelledContext(t *testing.T) {
	ctx := context.Background()
	pools, err := NewPools(ctx, DefaultPoolConfig())
	if err != nil {
		t.Fatalf("NewPools() error = %v", err)
	}
	defer pools.Shutdown()

	cancelledCtx, cancel := context.WithCancel(ctx)
	cancel() // Cancel immediately

	err = pools.General.Submit(cancelledCtx, func(ctx context.Context) {
		t.Error("Task should not execute with cancelled context")
	})
	if err != context.Canceled {
		t.Errorf("Submit() error = %v, want context.Canceled", err)
	}
}

func TestPools_SubmitDetached(t *testing.T) {
	tests := []struct {
		name     string
		poolName string
	}{
		{"general pool", "general"},
		{"cascade pool", "cascade"},
		{"default fallback", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			pools, err := NewPools(ctx, DefaultPoolConfig())
			if err != nil {
				t.Fatalf("NewPools() error = %v", err)
			}

			var executed atomic.Bool
			var wg sync.WaitGroup
			wg.Add(1)

			err = pools.SubmitDetached(tt.poolName, func(ctx context.Context) {
				executed.Store(true)
				wg.Done()
			})
			if err != nil {
				t.Fatalf("SubmitDetached(%q) error = %v", tt.poolName, err)
			}

			wg.Wait()
			pools.Shutdown()

			if !executed.Load() {
				t.Errorf("SubmitDetached(%q) task was not executed", tt.poolName)
			}
		})
	}
}

func TestPools_Metrics(t *testing.T) {
	ctx := context.Background()
	pools, err := NewPools(ctx, PoolConfig{
		GeneralPoolSize: 10,
		CascadePoolSize: 5,
	})
	if err != nil {
		t.Fatalf("NewPools() error = %v", err)
	}
	defer pools.Shutdown()

	metrics := pools.Metrics()
	if metrics == nil {
		t.Fatal("Metrics() returned nil")
	}

	general, ok := metrics["general"].(map[string]int)
	if !ok {
		t.Fatal("general metrics not found or wrong type")
	}
	if general["cap"] != 10 {
		t.Errorf("general cap = %d, want 10", general["cap"])
	}

	cascade, ok := metrics["cascade"].(map[string]int)
	if !ok {
		t.Fatal("cascade metrics not found or wrong type")
	}
	if cascade["cap"] != 5 {
		t.Errorf("cascade cap = %d, want 5", cascade["cap"])
	}
}
