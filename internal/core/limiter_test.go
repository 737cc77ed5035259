package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestBatchLimiter_AcquireRelease(t *testing.T) {
	limiter := NewBatchLimiter(2, time.Second)
	ctx := context.Background()

	if got := limiter.Status().Available; got != 2 {
		t.Errorf("initial Available = %d, want 2", got)
	}

	for i := 0; i < 2; i++ {
		if err := limiter.Acquire(ctx); err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
	}
	if st := limiter.Status(); st.Active != 2 || st.Available != 0 {
		t.Errorf("status = %+v, want 2 active and none available", st)
	}

	limiter.Release()
	limiter.Release()
	if got := limiter.Status().Active; got != 0 {
		t.Errorf("final active = %d, want 0", got)
	}
}

func TestBatchLimiter_TimesOutWhenFull(t *testing.T) {
	limiter := NewBatchLimiter(1, 50*time.Millisecond)
	ctx := context.Background()

	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer limiter.Release()

	start := time.Now()
	err := limiter.Acquire(ctx)
	if !errors.Is(err, ErrTooManyBatches) {
		t.Errorf("err = %v, want ErrTooManyBatches", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("returned after %v, expected to wait", elapsed)
	}
}

func TestBatchLimiter_NeverExceedsMax(t *testing.T) {
	const maxConcurrent = 3
	limiter := NewBatchLimiter(maxConcurrent, time.Second)

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		maxObserved int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := limiter.Acquire(context.Background()); err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			defer limiter.Release()

			mu.Lock()
			if n := limiter.Status().Active; n > maxObserved {
				maxObserved = n
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
		}()
	}
	wg.Wait()

	if maxObserved > maxConcurrent {
		t.Errorf("observed %d active, max %d", maxObserved, maxConcurrent)
	}
	if got := limiter.Status().Active; got != 0 {
		t.Errorf("final active = %d, want 0", got)
	}
}

func TestBatchLimiter_SlotReusedAfterRelease(t *testing.T) {
	limiter := NewBatchLimiter(1, 20*time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := limiter.Acquire(ctx); err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
		if err := limiter.Acquire(ctx); !errors.Is(err, ErrTooManyBatches) {
			t.Errorf("Acquire %d on a full limiter err = %v, want ErrTooManyBatches", i, err)
		}
		limiter.Release()
	}

	if err := limiter.Drain(ctx); err != nil {
		t.Errorf("Drain on idle limiter: %v", err)
	}
}

func TestBatchLimiter_ContextCancellation(t *testing.T) {
	limiter := NewBatchLimiter(1, 5*time.Second)
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer limiter.Release()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- limiter.Acquire(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Acquire did not return after cancellation")
	}
}

func TestBatchLimiter_Drain(t *testing.T) {
	limiter := NewBatchLimiter(2, time.Second)
	ctx := context.Background()
	_ = limiter.Acquire(ctx)
	_ = limiter.Acquire(ctx)

	drained := make(chan error, 1)
	go func() { drained <- limiter.Drain(context.Background()) }()

	limiter.Release()
	select {
	case <-drained:
		t.Fatal("Drain returned with one batch active")
	case <-time.After(60 * time.Millisecond):
	}

	limiter.Release()
	select {
	case err := <-drained:
		if err != nil {
			t.Errorf("Drain: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Drain did not return after all releases")
	}
}

func TestBatchLimiter_DrainCancelled(t *testing.T) {
	limiter := NewBatchLimiter(1, time.Second)
	_ = limiter.Acquire(context.Background())
	defer limiter.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := limiter.Drain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestBatchLimiter_StatusAndDefaults(t *testing.T) {
	limiter := NewBatchLimiter(0, 0)
	st := limiter.Status()
	if st.MaxConcurrent != DefaultMaxConcurrentBatches || st.Available != DefaultMaxConcurrentBatches || st.Active != 0 {
		t.Errorf("status = %+v", st)
	}

	_ = limiter.Acquire(context.Background())
	if st := limiter.Status(); st.Active != 1 || st.Available != DefaultMaxConcurrentBatches-1 {
		t.Errorf("status after Acquire = %+v", st)
	}
	limiter.Release()
}
