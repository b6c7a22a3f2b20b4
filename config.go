package kcore

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pelletier/go-toml"

	"github.com/hupe1980/kcore/disk"
	"github.com/hupe1980/kcore/internal/blockcodec"
	"github.com/hupe1980/kcore/internal/conv"
	"github.com/hupe1980/kcore/param"
)

// Disk driver names accepted in DiskConfig.Driver.
const (
	DiskMemory = "memory"
	DiskFile   = "file"
	DiskS3     = "s3"
	DiskMinIO  = "minio"
)

// Config sizes the machine and selects the disk backend.
//
// A zero Config is not valid; start from DefaultConfig.
type Config struct {
	// NCPU is the number of simulated cores.
	NCPU int `toml:"ncpu"`
	// NBuf is the number of buffers in the block cache.
	NBuf int `toml:"nbuf"`
	// NBucket is the number of cache shards.
	NBucket int `toml:"nbucket"`
	// KernelSize is the number of bytes reserved for the kernel image at the
	// bottom of RAM.
	KernelSize int64 `toml:"kernel_size"`
	// MemSize is the total amount of RAM in bytes.
	MemSize int64 `toml:"mem_size"`
	// CheckedFrees makes double frees and frees of never-allocated pages fatal.
	CheckedFrees bool `toml:"checked_frees"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level"`

	Disk   DiskConfig   `toml:"disk"`
	Limits LimitsConfig `toml:"limits"`
}

// DiskConfig selects and configures the block device behind the cache.
type DiskConfig struct {
	// Driver is one of memory, file, s3, minio.
	Driver string `toml:"driver"`
	// Dir holds the device images of the file driver.
	Dir string `toml:"dir"`
	// Codec compresses blocks stored as objects: none, lz4 or zstd.
	Codec string `toml:"codec"`

	Bucket    string `toml:"bucket"`
	Prefix    string `toml:"prefix"`
	Endpoint  string `toml:"endpoint"`
	Region    string `toml:"region"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key,omitempty" json:"-"`
	UseSSL    bool   `toml:"use_ssl"`

	// Devices and Blocks bound the accepted device and block numbers.
	// Zero means unbounded.
	Devices int `toml:"devices"`
	Blocks  int `toml:"blocks"`
}

// LimitsConfig bounds memory and disk bandwidth. Zero means unlimited.
type LimitsConfig struct {
	MemoryBytes          int64 `toml:"memory_bytes"`
	IOBytesPerSec        int64 `toml:"io_bytes_per_sec"`
	MaxInflightTransfers int64 `toml:"max_inflight_transfers"`
}

// DefaultConfig returns the reference machine: param.NCPU cores, param.NBUF
// buffers over param.NBUCKET shards, RAM from KERNBASE to PHYSTOP and an
// in-memory disk.
func DefaultConfig() Config {
	return Config{
		NCPU:       param.NCPU,
		NBuf:       param.NBUF,
		NBucket:    param.NBUCKET,
		KernelSize: int64(param.KERNSIZE),
		MemSize:    int64(param.PHYSTOP - param.KERNBASE),
		LogLevel:   "info",
		Disk: DiskConfig{
			Driver: DiskMemory,
			Codec:  "none",
		},
	}
}

// Validate reports the first problem with c.
func (c Config) Validate() error {
	if c.NCPU <= 0 || c.NCPU > param.NCPU {
		return invalidConfig("ncpu %d not in [1, %d]", c.NCPU, param.NCPU)
	}
	if c.NBuf <= 0 {
		return invalidConfig("nbuf must be positive, got %d", c.NBuf)
	}
	if c.NBucket <= 0 {
		return invalidConfig("nbucket must be positive, got %d", c.NBucket)
	}
	if c.KernelSize <= 0 {
		return invalidConfig("kernel_size must be positive, got %d", c.KernelSize)
	}
	if c.MemSize <= c.KernelSize {
		return invalidConfig("mem_size %d leaves no room after kernel_size %d", c.MemSize, c.KernelSize)
	}
	if c.MemSize%param.PGSIZE != 0 {
		return invalidConfig("mem_size %d is not page aligned", c.MemSize)
	}
	if _, _, err := conv.PhysRange(param.KERNBASE, c.KernelSize, c.MemSize); err != nil {
		return invalidConfig("%v", err)
	}
	if c.Limits.MemoryBytes < 0 || c.Limits.IOBytesPerSec < 0 || c.Limits.MaxInflightTransfers < 0 {
		return invalidConfig("limits must not be negative")
	}
	if c.Limits.IOBytesPerSec > 0 && c.Limits.IOBytesPerSec < param.BSIZE {
		return invalidConfig("limits.io_bytes_per_sec %d is below one block (%d bytes)", c.Limits.IOBytesPerSec, param.BSIZE)
	}
	return c.Disk.validate()
}

func (d DiskConfig) validate() error {
	if _, err := blockcodec.ParseCodec(d.Codec); err != nil {
		return invalidConfig("%v", err)
	}
	if _, err := d.geometry(); err != nil {
		return err
	}
	switch d.Driver {
	case "", DiskMemory:
	case DiskFile:
		if d.Dir == "" {
			return invalidConfig("disk.dir is required for the file driver")
		}
	case DiskS3:
		if d.Bucket == "" {
			return invalidConfig("disk.bucket is required for the s3 driver")
		}
	case DiskMinIO:
		if d.Bucket == "" || d.Endpoint == "" {
			return invalidConfig("disk.bucket and disk.endpoint are required for the minio driver")
		}
	default:
		return invalidConfig("unknown disk driver %q", d.Driver)
	}
	return nil
}

func (d DiskConfig) geometry() (disk.Geometry, error) {
	devices, err := conv.IntToUint32(d.Devices)
	if err != nil {
		return disk.Geometry{}, invalidConfig("disk.devices: %v", err)
	}
	blocks, err := conv.IntToUint32(d.Blocks)
	if err != nil {
		return disk.Geometry{}, invalidConfig("disk.blocks: %v", err)
	}
	return disk.Geometry{Devices: devices, Blocks: blocks}, nil
}

// LoadConfig reads a TOML document over DefaultConfig and validates the result.
//
//	ncpu = 4
//	nbuf = 64
//
//	[disk]
//	driver = "file"
//	dir = "/var/lib/kcore"
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	if err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WriteConfig encodes c as TOML. The disk secret key is never written.
func WriteConfig(w io.Writer, c Config) error {
	c.Disk.SecretKey = ""
	b, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, bytes.NewReader(b))
	return err
}
