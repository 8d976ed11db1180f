package sequence

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryCounter struct {
	mu     sync.Mutex
	values map[string]int64
	err    error
}

func (c *memoryCounter) Increment(_ context.Context, name string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	if c.values == nil {
		c.values = make(map[string]int64)
	}
	c.values[name]++
	return c.values[name], nil
}

func TestNextPadsToFiveDigits(t *testing.T) {
	alloc := NewAllocator(&memoryCounter{}, OrderCounter)

	first, err := alloc.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, "00001", first)

	second, err := alloc.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, "00002", second)
}

func TestFormatOverflowsWidth(t *testing.T) {
	require.Equal(t, "00042", Format(42, 5))
	require.Equal(t, "123456", Format(123456, 5))
}

func TestNextConcurrentCallersNeverShareValue(t *testing.T) {
	alloc := NewAllocator(&memoryCounter{}, OrderCounter)
	const callers = 50

	var wg sync.WaitGroup
	ids := make(chan string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := alloc.Next(context.Background())
			require.NoError(t, err)
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]struct{}, callers)
	for id := range ids {
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
	require.Len(t, seen, callers)
}

func TestNextFailsWhenStoreUnavailable(t *testing.T) {
	alloc := NewAllocator(&memoryCounter{err: errors.New("connection refused")}, OrderCounter)

	id, err := alloc.Next(context.Background())
	require.ErrorIs(t, err, ErrCounterUnavailable)
	require.Empty(t, id)
}
