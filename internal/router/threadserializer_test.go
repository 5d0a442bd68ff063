package router

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestThreadSerializer_SerializesSameThreadKey(t *testing.T) {
	ts := NewThreadSerializer()
	var active int32
	var maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ts.Run("thread-a", func() {
				n := atomic.AddInt32(&active, 1)
				for {
					cur := atomic.LoadInt32(&maxActive)
					if n <= cur || atomic.CompareAndSwapInt32(&maxActive, cur, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&active, -1)
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxActive), "calls sharing a thread key must never overlap")
}

func TestThreadSerializer_DistinctThreadKeysRunConcurrently(t *testing.T) {
	ts := NewThreadSerializer()
	start := make(chan struct{})
	var wg sync.WaitGroup
	var concurrentCount int32
	var sawConcurrency int32

	for i := 0; i < 10; i++ {
		key := string(rune('a' + i))
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			<-start
			ts.Run(key, func() {
				n := atomic.AddInt32(&concurrentCount, 1)
				if n > 1 {
					atomic.StoreInt32(&sawConcurrency, 1)
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&concurrentCount, -1)
			})
		}(key)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&sawConcurrency), "distinct thread keys must not serialize against each other")
}

func TestThreadSerializer_EmptyKeyRunsUnserialized(t *testing.T) {
	ts := NewThreadSerializer()
	ran := false
	ts.Run("", func() { ran = true })
	assert.True(t, ran)
}
