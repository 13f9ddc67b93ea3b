package dedupe

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestDo_ReplaysWithinWindow(t *testing.T) {
	d := New(10 * time.Second)

	calls := 0
	fn := func() (any, error) {
		calls++
		return "result", nil
	}

	v1, reused1, err := d.Do("key", fn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reused1 {
		t.Fatal("first call must not be reused")
	}

	v2, reused2, err := d.Do("key", fn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reused2 {
		t.Fatal("second call within window must be reused")
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 execution, got %d", calls)
	}
	if v1 != v2 {
		t.Fatalf("expected same value, got %v and %v", v1, v2)
	}
}

func TestDo_ExpiresAfterTTL(t *testing.T) {
	d := New(10 * time.Second)

	current := time.Now()
	d.now = func() time.Time { return current }

	calls := 0
	fn := func() (any, error) {
		calls++
		return calls, nil
	}

	if _, _, err := d.Do("key", fn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Advance past the window: the next call must execute fresh.
	current = current.Add(11 * time.Second)

	_, reused, err := d.Do("key", fn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reused {
		t.Fatal("expected fresh execution after TTL expiry")
	}
	if calls != 2 {
		t.Fatalf("expected 2 executions, got %d", calls)
	}
}

func TestDo_ExpiryIsNotSliding(t *testing.T) {
	d := New(10 * time.Second)

	current := time.Now()
	d.now = func() time.Time { return current }

	calls := 0
	fn := func() (any, error) {
		calls++
		return calls, nil
	}

	if _, _, err := d.Do("key", fn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A hit at t+6 must not extend the window past t+10.
	current = current.Add(6 * time.Second)
	if _, reused, _ := d.Do("key", fn); !reused {
		t.Fatal("expected reuse at t+6")
	}

	current = current.Add(5 * time.Second)
	if _, reused, _ := d.Do("key", fn); reused {
		t.Fatal("expected fresh execution at t+11 even after an intermediate hit")
	}
	if calls != 2 {
		t.Fatalf("expected 2 executions, got %d", calls)
	}
}

func TestDo_ErrorsNotCached(t *testing.T) {
	d := New(10 * time.Second)

	calls := 0
	failing := func() (any, error) {
		calls++
		return nil, errors.New("boom")
	}

	if _, _, err := d.Do("key", failing); err == nil {
		t.Fatal("expected error")
	}
	if _, _, err := d.Do("key", failing); err == nil {
		t.Fatal("expected error on retry")
	}
	if calls != 2 {
		t.Fatalf("expected both calls to execute, got %d", calls)
	}
}

func TestDo_DifferentKeysIndependent(t *testing.T) {
	d := New(10 * time.Second)

	calls := 0
	fn := func() (any, error) {
		calls++
		return calls, nil
	}

	d.Do("a", fn)
	d.Do("b", fn)

	if calls != 2 {
		t.Fatalf("expected independent executions, got %d", calls)
	}
}

func TestForget(t *testing.T) {
	d := New(10 * time.Second)

	calls := 0
	fn := func() (any, error) {
		calls++
		return calls, nil
	}

	d.Do("key", fn)
	d.Forget("key")

	_, reused, _ := d.Do("key", fn)
	if reused {
		t.Fatal("expected fresh execution after Forget")
	}
	if calls != 2 {
		t.Fatalf("expected 2 executions, got %d", calls)
	}
}

func TestDo_ConcurrentCallersShareExecution(t *testing.T) {
	d := New(10 * time.Second)

	started := make(chan struct{})
	release := make(chan struct{})
	calls := 0
	fn := func() (any, error) {
		calls++
		close(started)
		<-release
		return "shared", nil
	}

	var wg sync.WaitGroup
	results := make([]any, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _, _ = d.Do("key", fn)
	}()

	<-started
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], _, _ = d.Do("key", func() (any, error) {
			t.Error("second fn must not execute")
			return nil, nil
		})
	}()

	// Give the second caller time to join the in-flight group.
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls != 1 {
		t.Fatalf("expected 1 execution, got %d", calls)
	}
	if results[0] != "shared" || results[1] != "shared" {
		t.Fatalf("expected both callers to get the shared result, got %v", results)
	}
}
