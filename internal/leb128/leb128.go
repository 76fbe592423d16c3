// Package leb128 encodes and decodes the variable-length integers used
// throughout the WebAssembly binary format.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#integers%E2%91%A4
package leb128

import (
	"errors"
	"fmt"
	"io"
)

var (
	errOverflow32 = errors.New("overflows a 32-bit integer")
)

// EncodeInt32 encodes the signed value into a buffer in LEB128 format
func EncodeInt32(value int32) []byte {
	return EncodeInt64(int64(value))
}

// EncodeInt64 encodes the signed value into a buffer in LEB128 format
func EncodeInt64(value int64) (buf []byte) {
	for {
		// Take 7 remaining low-order bits from the value into b.
		b := uint8(value & 0x7f)
		// Extract the sign bit.
		s := uint8(value & 0x40)
		value >>= 7

		// The encoding unit continues if the value is not fully consumed.
		if (value != -1 || s == 0) && (value != 0 || s != 0) {
			b |= 0x80
		}
		buf = append(buf, b)
		if b&0x80 == 0 {
			break
		}
	}
	return buf
}

// EncodeUint32 encodes the value into a buffer in LEB128 format
func EncodeUint32(value uint32) []byte {
	return EncodeUint64(uint64(value))
}

// EncodeUint64 encodes the value into a buffer in LEB128 format
func EncodeUint64(value uint64) (buf []byte) {
	for {
		// Take 7 remaining low-order bits from the value into b.
		b := uint8(value & 0x7f)
		value >>= 7

		// The encoding unit continues if the value is not fully consumed.
		if value != 0 {
			b |= 0x80
		}
		buf = append(buf, b)
		if b&0x80 == 0 {
			return buf
		}
	}
}

// DecodeUint32 reads an unsigned LEB128 value from r, returning it with the
// count of bytes consumed.
func DecodeUint32(r io.ByteReader) (ret uint32, num uint64, err error) {
	const (
		uint32Mask  uint32 = 1 << 7
		uint32Mask2        = ^uint32Mask
	)

	for shift := 0; shift < 35; shift += 7 {
		b, err := readByteAsUint32(r)
		if err != nil {
			return 0, 0, fmt.Errorf("readByte failed: %w", err)
		}
		num++
		if shift == 28 && b > 0x0f {
			return 0, 0, errOverflow32
		}
		ret |= (b & uint32Mask2) << shift
		if b&uint32Mask == 0 {
			return ret, num, nil
		}
	}
	return 0, 0, errOverflow32
}

func readByteAsUint32(r io.ByteReader) (uint32, error) {
	b, err := r.ReadByte()
	return uint32(b), err
}
