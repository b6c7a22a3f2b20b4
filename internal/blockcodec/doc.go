// Package blockcodec frames disk blocks for storage as objects.
//
// An encoded block is a 16-byte header followed by the payload:
//
//	[Codec u8][reserved 3][UncompressedSize u32][StoredSize u32][CRC32C u32][payload...]
//
// StoredSize == 0 means the payload is stored uncompressed. The checksum
// covers the first 12 header bytes and the stored payload. Compression is
// skipped when it does not save at least 10%.
package blockcodec
