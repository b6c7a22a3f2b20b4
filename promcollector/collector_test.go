package promcollector_test

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/kcore"
	"github.com/hupe1980/kcore/param"
	"github.com/hupe1980/kcore/promcollector"
)

func newCollector(t *testing.T) (*promcollector.Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	c, err := promcollector.New(func(o *promcollector.Options) { o.Registerer = reg })
	require.NoError(t, err)
	return c, reg
}

func TestCollector(t *testing.T) {
	c, reg := newCollector(t)

	c.RecordBufferGet(true)
	c.RecordBufferGet(false)
	c.RecordBufferGet(false)
	c.RecordEviction(1, 1)
	c.RecordEviction(0, 4)
	c.RecordDiskIO(false, time.Millisecond, nil)
	c.RecordDiskIO(true, time.Millisecond, errors.New("io"))
	c.RecordPageAlloc(2, false, nil)
	c.RecordPageAlloc(2, true, nil)
	c.RecordPageAlloc(3, false, kcore.ErrOutOfMemory)
	c.RecordPageFree(2)

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 11, n)

	n, err = testutil.GatherAndCount(reg, "kcore_bcache_gets_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = testutil.GatherAndCount(reg, "kcore_kalloc_allocs_total")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = testutil.GatherAndCount(reg, "kcore_disk_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCollector_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := promcollector.New(func(o *promcollector.Options) { o.Registerer = reg })
	require.NoError(t, err)

	_, err = promcollector.New(func(o *promcollector.Options) { o.Registerer = reg })
	var are prometheus.AlreadyRegisteredError
	require.ErrorAs(t, err, &are)
}

func TestCollector_WithKernel(t *testing.T) {
	c, reg := newCollector(t)

	cfg := kcore.DefaultConfig()
	cfg.NCPU = 2
	cfg.KernelSize = param.PGSIZE
	cfg.MemSize = 9 * param.PGSIZE

	k, err := kcore.Boot(t.Context(), cfg, kcore.WithLogger(kcore.NoopLogger()), kcore.WithMetrics(c))
	require.NoError(t, err)
	defer k.Close()

	cp := k.CPU(1)
	pa, err := k.Pages.Alloc(cp)
	require.NoError(t, err)
	k.Pages.Free(cp, pa)

	h, err := k.Bufs.Read(t.Context(), cp, 1, 0)
	require.NoError(t, err)
	k.Bufs.Release(cp, h)

	n, err := testutil.GatherAndCount(reg, "kcore_kalloc_allocs_total", "kcore_kalloc_frees_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = testutil.GatherAndCount(reg, "kcore_disk_transfer_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
