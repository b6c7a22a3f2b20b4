package spinlock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/kcore/internal/cpu"
)

func TestAcquireRelease(t *testing.T) {
	m := cpu.NewMachine(2, nil)
	c0, c1 := m.CPU(0), m.CPU(1)
	lk := New("test", nil)

	lk.Acquire(c0)
	assert.True(t, lk.Holding(c0))
	assert.False(t, lk.Holding(c1))
	assert.True(t, lk.Locked())
	assert.False(t, c0.IntrGet(), "interrupts are off while a spin lock is held")

	lk.Release(c0)
	assert.False(t, lk.Locked())
	assert.True(t, c0.IntrGet())
	assert.Zero(t, c0.Depth())
}

func TestDoubleAcquireIsFatal(t *testing.T) {
	c := cpu.NewMachine(1, nil).CPU(0)
	lk := New("bcache", nil)
	lk.Acquire(c)

	assert.PanicsWithError(t, "panic: acquire: bcache already held by cpu0", func() {
		lk.Acquire(c)
	})
}

func TestReleaseWithoutHoldingIsFatal(t *testing.T) {
	m := cpu.NewMachine(2, nil)
	lk := New("kmem", nil)

	assert.Panics(t, func() { lk.Release(m.CPU(0)) })

	lk.Acquire(m.CPU(0))
	assert.Panics(t, func() { lk.Release(m.CPU(1)) })
}

func TestTryAcquire(t *testing.T) {
	m := cpu.NewMachine(2, nil)
	c0, c1 := m.CPU(0), m.CPU(1)
	var lk Spinlock
	lk.Init("try", nil)

	require.True(t, lk.TryAcquire(c0))
	assert.False(t, lk.TryAcquire(c1))
	assert.Zero(t, c1.Depth(), "a failed TryAcquire leaves interrupts as they were")
	assert.True(t, c1.IntrGet())

	lk.Release(c0)
	assert.True(t, lk.TryAcquire(c1))
	lk.Release(c1)
}

func TestMutualExclusion(t *testing.T) {
	m := cpu.NewMachine(4, nil)
	lk := New("counter", nil)

	const perCPU = 2000
	count := 0

	err := m.Each(t.Context(), func(_ context.Context, c *cpu.CPU) error {
		for range perCPU {
			lk.Acquire(c)
			count++
			lk.Release(c)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 4*perCPU, count)
}
