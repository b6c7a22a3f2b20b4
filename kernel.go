package kcore

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hupe1980/kcore/bcache"
	"github.com/hupe1980/kcore/blobstore"
	minioblob "github.com/hupe1980/kcore/blobstore/minio"
	s3blob "github.com/hupe1980/kcore/blobstore/s3"
	"github.com/hupe1980/kcore/disk"
	"github.com/hupe1980/kcore/internal/blockcodec"
	"github.com/hupe1980/kcore/internal/conv"
	"github.com/hupe1980/kcore/internal/cpu"
	"github.com/hupe1980/kcore/internal/fatal"
	"github.com/hupe1980/kcore/pagealloc"
	"github.com/hupe1980/kcore/param"
	"github.com/hupe1980/kcore/physmem"
	"github.com/hupe1980/kcore/resource"
)

// Kernel owns the cores, the physical memory and the two resource pools of one
// simulated machine.
type Kernel struct {
	Machine *cpu.Machine
	Mem     *physmem.Memory
	Pages   *pagealloc.Allocator
	Bufs    *bcache.Cache
	Disk    disk.Driver

	cfg       Config
	owned     disk.Driver // opened by Boot, closed by Close
	logger    *Logger
	rc        *resource.Controller
	singleton bool
	closeOnce sync.Once
	closeErr  error
}

// Boot maps RAM, fills the page allocator on cpu 0 and builds the buffer
// cache in front of the configured disk.
func Boot(ctx context.Context, cfg Config, optFns ...Option) (*Kernel, error) {
	var o options
	for _, fn := range optFns {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = NewTextLogger(ParseLevel(cfg.LogLevel))
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.checkedFrees != nil {
		cfg.CheckedFrees = *o.checkedFrees
	}

	k, err := boot(ctx, cfg, o)
	if err != nil {
		o.logger.LogBoot(ctx, 0, 0, 0, err)
		return nil, err
	}
	o.logger.LogBoot(ctx, k.Machine.NCPU(), k.Pages.Pages(), k.Bufs.NBuf(), nil)
	return k, nil
}

func boot(ctx context.Context, cfg Config, o options) (*Kernel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := o.logger

	rc := o.rc
	if rc == nil && (cfg.Limits != LimitsConfig{}) {
		rc = resource.NewController(resource.Config{
			MemoryLimitBytes:     cfg.Limits.MemoryBytes,
			MaxInflightTransfers: cfg.Limits.MaxInflightTransfers,
			IOLimitBytesPerSec:   cfg.Limits.IOBytesPerSec,
		})
	}

	drv := o.disk
	var owned disk.Driver
	if drv == nil {
		var err error
		if drv, err = openDisk(ctx, cfg.Disk, logger); err != nil {
			return nil, err
		}
		owned = drv
	}
	if rc != nil {
		drv = disk.NewRateLimited(drv, rc)
	}

	end, top, err := conv.PhysRange(param.KERNBASE, cfg.KernelSize, cfg.MemSize)
	if err != nil {
		_ = closeDriver(owned)
		return nil, invalidConfig("%v", err)
	}
	mem, err := physmem.New(physmem.Config{
		Base:       param.KERNBASE,
		KernelSize: end - param.KERNBASE,
		Size:       top - param.KERNBASE,
	})
	if err != nil {
		_ = closeDriver(owned)
		return nil, fmt.Errorf("kcore: map memory: %w", err)
	}

	m := cpu.NewMachine(cfg.NCPU, logger.WithComponent("cpu").Logger)
	pages := pagealloc.New(m, mem, m.CPU(0),
		pagealloc.WithLogger(logger.WithComponent("kalloc").Logger),
		pagealloc.WithMetrics(o.metricsCollector),
		pagealloc.WithResourceController(rc),
		pagealloc.WithChecked(cfg.CheckedFrees),
	)
	bufs := bcache.New(&loggedDriver{Driver: drv, logger: logger},
		bcache.WithBuffers(cfg.NBuf),
		bcache.WithBuckets(cfg.NBucket),
		bcache.WithLogger(logger.WithComponent("bio").Logger),
		bcache.WithMetrics(o.metricsCollector),
	)

	return &Kernel{
		Machine: m,
		Mem:     mem,
		Pages:   pages,
		Bufs:    bufs,
		Disk:    drv,
		cfg:     cfg,
		owned:   owned,
		logger:  logger,
		rc:      rc,
	}, nil
}

// openDisk builds the driver named by cfg.Driver.
func openDisk(ctx context.Context, cfg DiskConfig, logger *Logger) (disk.Driver, error) {
	geo, err := cfg.geometry()
	if err != nil {
		return nil, err
	}
	dopts := []disk.Option{
		disk.WithGeometry(geo),
		disk.WithLogger(logger.WithComponent("disk").Logger),
	}

	switch cfg.Driver {
	case "", DiskMemory:
		return disk.NewMemDisk(dopts...), nil
	case DiskFile:
		d, err := disk.NewFileDisk(cfg.Dir, dopts...)
		if err != nil {
			return nil, fmt.Errorf("kcore: open disk: %w", err)
		}
		return d, nil
	}

	codec, err := blockcodec.ParseCodec(cfg.Codec)
	if err != nil {
		return nil, invalidConfig("%v", err)
	}

	var store blobstore.Store
	switch cfg.Driver {
	case DiskS3:
		sopts := []s3blob.Option{s3blob.WithPrefix(cfg.Prefix)}
		if cfg.Region != "" {
			sopts = append(sopts, s3blob.WithRegion(cfg.Region))
		}
		if cfg.Endpoint != "" {
			sopts = append(sopts, s3blob.WithEndpoint(cfg.Endpoint))
		}
		s, err := s3blob.New(ctx, cfg.Bucket, sopts...)
		if err != nil {
			return nil, fmt.Errorf("kcore: open disk: %w", err)
		}
		store = s
	case DiskMinIO:
		client, err := minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.UseSSL,
			Region: cfg.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("kcore: open disk: %w", err)
		}
		store = minioblob.NewStore(client, cfg.Bucket, cfg.Prefix)
	default:
		return nil, invalidConfig("unknown disk driver %q", cfg.Driver)
	}
	return disk.NewBlobDisk(store, codec, dopts...), nil
}

func closeDriver(d disk.Driver) error {
	if c, ok := d.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// loggedDriver reports failed transfers through the kernel logger.
type loggedDriver struct {
	disk.Driver
	logger *Logger
}

func (d *loggedDriver) Transfer(ctx context.Context, req *disk.Request, write bool) error {
	err := d.Driver.Transfer(ctx, req, write)
	if err != nil {
		d.logger.LogDiskError(ctx, req.Dev, req.BlockNo, write, err)
	}
	return err
}

// CPU returns core i.
func (k *Kernel) CPU(i int) *cpu.CPU { return k.Machine.CPU(i) }

// NCPU returns the number of cores.
func (k *Kernel) NCPU() int { return k.Machine.NCPU() }

// Config returns the configuration the kernel was booted with.
func (k *Kernel) Config() Config { return k.cfg }

// Logger returns the kernel logger.
func (k *Kernel) Logger() *Logger { return k.logger }

// Resources returns the resource controller, or nil when unlimited.
func (k *Kernel) Resources() *resource.Controller { return k.rc }

// Run starts fn on every core concurrently and waits for all of them.
func (k *Kernel) Run(ctx context.Context, fn func(ctx context.Context, c *cpu.CPU) error) error {
	return k.Machine.Each(ctx, fn)
}

// CheckInvariants verifies the buffer cache and the page allocator from core c.
// The machine should be quiescent.
func (k *Kernel) CheckInvariants(c *cpu.CPU) error {
	if err := k.Bufs.CheckInvariants(c); err != nil {
		return err
	}
	return k.Pages.CheckInvariants(c)
}

// Close releases the memory mapping and any disk Boot opened. Closing the kernel returned
// by Default is a no-op: it lives as long as the process.
func (k *Kernel) Close() error {
	if k.singleton {
		return nil
	}
	k.closeOnce.Do(func() {
		start := time.Now()
		derr := closeDriver(k.owned)
		merr := k.Mem.Close()
		if derr != nil {
			k.closeErr = derr
		} else {
			k.closeErr = merr
		}
		k.logger.Debug("kernel closed", "duration", time.Since(start))
	})
	return k.closeErr
}

var (
	defaultOnce   sync.Once
	defaultKernel *Kernel
)

// Default returns the process-wide kernel, booting it with DefaultConfig on
// first use. It is never torn down.
func Default() *Kernel {
	defaultOnce.Do(func() {
		k, err := Boot(context.Background(), DefaultConfig(), WithLogger(NoopLogger()))
		if err != nil {
			fatal.Halt(nil, "main", "boot: %v", err)
		}
		k.singleton = true
		defaultKernel = k
	})
	return defaultKernel
}
