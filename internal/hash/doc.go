// Package hash provides the checksum used to detect corrupted disk blocks.
//
// Blocks written to an object store carry a CRC32-Castagnoli (CRC32C) of
// their header and payload. Go's crc32 package uses the SSE4.2 and ARM CRC
// instructions for this polynomial when they are available.
//
//	sum := hash.CRC32C(header)
//	sum = hash.Update(sum, payload)
package hash
