package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualClock_Frozen(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewManualClock(start)

	assert.Equal(t, start, clock.Now())
	assert.Equal(t, start, clock.Now())
}

func TestManualClock_Advance(t *testing.T) {
	clock := NewManualClockMillis(1000)

	got := clock.Advance(250 * time.Millisecond)
	assert.Equal(t, int64(1250), got.UnixMilli())
	assert.Equal(t, int64(1250), clock.Now().UnixMilli())
}

func TestManualClock_SetBackwards(t *testing.T) {
	clock := NewManualClockMillis(5000)

	clock.Set(time.UnixMilli(10))
	assert.Equal(t, int64(10), clock.Now().UnixMilli())
}

func TestManualClock_ConcurrentAdvance(t *testing.T) {
	clock := NewManualClockMillis(0)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock.Advance(time.Millisecond)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(100), clock.Now().UnixMilli())
}
