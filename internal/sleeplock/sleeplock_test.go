package sleeplock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/kcore/internal/cpu"
	"github.com/hupe1980/kcore/internal/spinlock"
)

func TestAcquireRelease(t *testing.T) {
	c := cpu.NewMachine(1, nil).CPU(0)
	l := New("buffer", nil)

	tk := l.Acquire(c)
	assert.NotZero(t, tk)
	assert.True(t, l.Holding(tk))
	assert.Zero(t, c.Depth(), "a held sleep lock does not keep interrupts off")

	l.Release(c, tk)
	assert.False(t, l.Holding(tk))

	tk2 := l.Acquire(c)
	assert.NotEqual(t, tk, tk2)
	l.Release(c, tk2)
}

func TestReleaseByNonHolderIsFatal(t *testing.T) {
	c := cpu.NewMachine(1, nil).CPU(0)
	l := New("buffer", nil)

	assert.Panics(t, func() { l.Release(c, 42) })

	tk := l.Acquire(c)
	assert.Panics(t, func() { l.Release(c, tk+1) })
	assert.True(t, l.Holding(tk))
	assert.Zero(t, c.Depth())
}

func TestAcquireWhileHoldingSpinlockIsFatal(t *testing.T) {
	c := cpu.NewMachine(1, nil).CPU(0)
	sl := spinlock.New("shard", nil)
	l := New("buffer", nil)

	sl.Acquire(c)
	assert.Panics(t, func() { l.Acquire(c) })
}

func TestBlocksUntilReleased(t *testing.T) {
	m := cpu.NewMachine(2, nil)
	l := New("buffer", nil)

	tk := l.Acquire(m.CPU(0))

	acquired := make(chan Ticket)
	go func() {
		acquired <- l.Acquire(m.CPU(1))
	}()

	require.Eventually(t, func() bool {
		return l.Waiters(m.CPU(0)) == 1
	}, time.Second, time.Millisecond)

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held lock")
	default:
	}

	l.Release(m.CPU(0), tk)

	tk2 := <-acquired
	assert.True(t, l.Holding(tk2))
	l.Release(m.CPU(1), tk2)
}

func TestFIFOHandoff(t *testing.T) {
	m := cpu.NewMachine(4, nil)
	l := New("buffer", nil)

	first := l.Acquire(m.CPU(0))

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	for i := 1; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := m.CPU(i)
			tk := l.Acquire(c)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			l.Release(c, tk)
		}()
		// Queue the waiters one at a time so arrival order is known.
		require.Eventually(t, func() bool {
			return l.Waiters(m.CPU(0)) == i
		}, time.Second, time.Millisecond)
	}

	l.Release(m.CPU(0), first)
	wg.Wait()

	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestMutualExclusion(t *testing.T) {
	m := cpu.NewMachine(4, nil)
	l := New("buffer", nil)

	inside := 0
	total := 0
	err := m.Each(t.Context(), func(_ context.Context, c *cpu.CPU) error {
		for range 500 {
			tk := l.Acquire(c)
			inside++
			if inside != 1 {
				t.Errorf("%d holders inside the critical section", inside)
			}
			total++
			inside--
			l.Release(c, tk)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2000, total)
}
