package blockcodec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/kcore/internal/hash"
)

// Codec selects the compression algorithm for stored blocks.
type Codec uint8

const (
	// None stores blocks as-is.
	None Codec = 0
	// LZ4 uses LZ4 block compression.
	LZ4 Codec = 1
	// Zstd uses zstd block compression.
	Zstd Codec = 2
)

func (c Codec) String() string {
	switch c {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

// ParseCodec parses a codec name as used in configuration files.
func ParseCodec(s string) (Codec, error) {
	switch s {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	}
	return None, fmt.Errorf("blockcodec: unknown codec %q", s)
}

var (
	// ErrChecksum is returned when a stored block fails its checksum.
	ErrChecksum = errors.New("blockcodec: checksum mismatch")
	// ErrCorrupt is returned for a malformed block.
	ErrCorrupt = errors.New("blockcodec: corrupt block")
)

const headerSize = 16

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Encode frames data with codec.
func Encode(data []byte, codec Codec) ([]byte, error) {
	var packed []byte

	switch codec {
	case None:
	case LZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, fmt.Errorf("blockcodec: lz4: %w", err)
		}
		packed = buf[:n] // n == 0 means incompressible
	case Zstd:
		enc := getZstdEncoder()
		packed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("blockcodec: unknown codec %d", codec)
	}

	stored := uint32(len(packed))
	payload := packed
	if len(packed) == 0 || float64(len(packed)) > float64(len(data))*0.9 {
		stored = 0
		payload = data
	}

	out := make([]byte, headerSize+len(payload))
	out[0] = byte(codec)
	binary.LittleEndian.PutUint32(out[4:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[8:], stored)
	copy(out[headerSize:], payload)
	binary.LittleEndian.PutUint32(out[12:], checksum(out))
	return out, nil
}

// Decode verifies and unpacks a framed block into dst, which must be exactly
// the uncompressed size.
func Decode(dst, src []byte) error {
	if len(src) < headerSize {
		return fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorrupt, len(src))
	}
	if binary.LittleEndian.Uint32(src[12:]) != checksum(src) {
		return ErrChecksum
	}

	codec := Codec(src[0])
	size := binary.LittleEndian.Uint32(src[4:])
	stored := binary.LittleEndian.Uint32(src[8:])
	payload := src[headerSize:]

	if int(size) != len(dst) {
		return fmt.Errorf("%w: holds %d bytes, want %d", ErrCorrupt, size, len(dst))
	}

	if stored == 0 {
		if len(payload) != int(size) {
			return fmt.Errorf("%w: payload size %d", ErrCorrupt, len(payload))
		}
		copy(dst, payload)
		return nil
	}
	if len(payload) != int(stored) {
		return fmt.Errorf("%w: payload size %d, header says %d", ErrCorrupt, len(payload), stored)
	}

	switch codec {
	case LZ4:
		n, err := lz4.UncompressBlock(payload, dst)
		if err != nil {
			return fmt.Errorf("%w: lz4: %v", ErrCorrupt, err)
		}
		if n != len(dst) {
			return fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
	case Zstd:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)

		out, err := dec.DecodeAll(payload, dst[:0])
		if err != nil {
			return fmt.Errorf("%w: zstd: %v", ErrCorrupt, err)
		}
		if len(out) != len(dst) {
			return fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
	default:
		return fmt.Errorf("%w: unknown codec %d", ErrCorrupt, codec)
	}
	return nil
}

func checksum(block []byte) uint32 {
	return hash.Update(hash.CRC32C(block[:12]), block[headerSize:])
}
