// Package guestmem sizes the buffers the wasip1 guest hands to its host.
package guestmem

import "math"

// BufferLen returns the length of the buffer malloc allocates for size bytes
// of host data. The extra byte keeps a zero size addressable, so every
// allocation has a unique offset.
//
// ok is false when that length is not addressable by a 32-bit linear memory
// offset, which is only the case for size math.MaxUint32.
func BufferLen(size uint32) (n uint64, ok bool) {
	n = uint64(size) + 1
	return n, n <= math.MaxUint32
}
