package observability

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestShutdownManager_RunsHooks(t *testing.T) {
	var buf bytes.Buffer
	sm := NewShutdownManager(NewLogger(InfoLevel, &buf), nil, time.Second)

	var calls int32
	sm.Register("db", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	sm.Register("redis", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("already closed")
	})

	err := sm.Shutdown(context.Background())
	if err == nil || !strings.Contains(err.Error(), "redis: already closed") {
		t.Fatalf("Expected hook error, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("Expected both hooks to run, got %d", calls)
	}
}

func TestShutdownManager_Timeout(t *testing.T) {
	sm := NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), nil, 20*time.Millisecond)
	release := make(chan struct{})
	defer close(release)

	sm.Register("stuck", func(ctx context.Context) error {
		<-release
		return nil
	})

	err := sm.Shutdown(context.Background())
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("Expected timeout, got %v", err)
	}
}

func TestShutdownManager_WaitForSignal(t *testing.T) {
	sm := NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), nil, time.Second)
	var ran int32
	sm.Register("flush", func(ctx context.Context) error {
		atomic.StoreInt32(&ran, 1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sm.WaitForSignal(ctx); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if atomic.LoadInt32(&ran) != 1 {
		t.Error("Expected hook to run")
	}
}
