package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryStore_IncrConcurrent(t *testing.T) {
	s := NewMemoryStore(time.Minute)

	const workers, hits = 16, 50

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < hits; j++ {
				s.Incr(context.Background(), "k", time.Minute)
			}
		}()
	}
	wg.Wait()

	count, _, err := s.Incr(context.Background(), "k", time.Minute)
	assert.NoError(t, err)
	assert.Equal(t, int64(workers*hits+1), count, "expected no lost increments")
}

func TestMemoryStore_sweep(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	s := newTestMemoryStore(clock)

	s.Incr(context.Background(), "short", time.Second)
	s.Incr(context.Background(), "long", time.Hour)

	clock.Advance(2 * time.Second)

	assert.Equal(t, 1, s.sweep(), "expected one expired counter to be removed")
	assert.NotContains(t, s.counters, "short")
	assert.Contains(t, s.counters, "long")
}

func TestMemoryStore_RunStop(t *testing.T) {
	s := NewMemoryStore(10 * time.Millisecond)
	go s.Run()

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("timeout: Stop did not return")
	}
}
