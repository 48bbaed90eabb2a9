package ratelimit

import (
	"sync"
	"testing"
)

func TestBucketStartsFull(t *testing.T) {
	l := New(Config{Capacity: 20, RefillPerSecond: 10})

	for i := 0; i < 20; i++ {
		allowed, _ := l.Consume("caller-a", 1)
		if !allowed {
			t.Fatalf("request %d should be allowed from a full bucket", i+1)
		}
	}
}

func TestDenialReportsRetryAfter(t *testing.T) {
	l := New(Config{Capacity: 20, RefillPerSecond: 10})

	for i := 0; i < 20; i++ {
		l.Consume("caller-a", 1)
	}

	allowed, retryAfter := l.Consume("caller-a", 1)
	if allowed {
		t.Fatal("21st request should be denied")
	}
	// One token refills in 0.1s; allow slack for the drain loop.
	if retryAfter <= 0.05 || retryAfter > 0.11 {
		t.Fatalf("expected retry_after near 0.1s, got %f", retryAfter)
	}
}

func TestDenialDoesNotConsume(t *testing.T) {
	l := New(Config{Capacity: 5, RefillPerSecond: 0.001})

	allowed, _ := l.Consume("caller-a", 10)
	if allowed {
		t.Fatal("request larger than capacity should be denied")
	}

	// The denied request must not have drained the bucket.
	for i := 0; i < 5; i++ {
		allowed, _ := l.Consume("caller-a", 1)
		if !allowed {
			t.Fatalf("request %d should still be allowed", i+1)
		}
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := New(Config{Capacity: 3, RefillPerSecond: 0.001})

	for i := 0; i < 3; i++ {
		l.Consume("caller-a", 1)
	}
	if allowed, _ := l.Consume("caller-a", 1); allowed {
		t.Fatal("caller-a should be exhausted")
	}
	if allowed, _ := l.Consume("caller-b", 1); !allowed {
		t.Fatal("caller-b should have its own full bucket")
	}
}

func TestConcurrentConsumeGrantsCapacityOnly(t *testing.T) {
	l := New(Config{Capacity: 1, RefillPerSecond: 0.001})

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if allowed, _ := l.Consume("caller-a", 1); allowed {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if granted != 1 {
		t.Fatalf("expected exactly 1 grant, got %d", granted)
	}
}

func TestSnapshots(t *testing.T) {
	l := New(Config{Capacity: 20, RefillPerSecond: 10})
	l.Consume("caller-a", 5)

	snaps := l.Snapshots()
	if len(snaps) != 1 {
		t.Fatalf("expected 1 bucket, got %d", len(snaps))
	}
	if snaps[0].Capacity != 20 {
		t.Fatalf("expected capacity 20, got %d", snaps[0].Capacity)
	}
	if snaps[0].Available > 16 {
		t.Fatalf("expected roughly 15 tokens available, got %f", snaps[0].Available)
	}
}
