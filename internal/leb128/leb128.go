// Package leb128 encodes and decodes the variable-length integer encoding
// used throughout the WebAssembly binary format: unsigned and signed LEB128.
//
// See https://webassembly.github.io/spec/core/binary/values.html#integers
package leb128

import (
	"fmt"
	"io"
	"math/bits"
)

const (
	maxVarintLen32 = 5
	maxVarintLen33 = 5
	maxVarintLen64 = 10
)

// EncodeUint32 encodes v as unsigned LEB128.
func EncodeUint32(v uint32) []byte {
	return EncodeUint64(uint64(v))
}

// EncodeUint64 encodes v as unsigned LEB128.
func EncodeUint64(v uint64) []byte {
	out := make([]byte, 0, 10)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

// EncodeInt32 encodes v as signed LEB128.
func EncodeInt32(v int32) []byte {
	return EncodeInt64(int64(v))
}

// EncodeInt64 encodes v as signed LEB128.
func EncodeInt64(v int64) []byte {
	out := make([]byte, 0, 10)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			out = append(out, b)
			return out
		}
		out = append(out, b|0x80)
	}
}

// LoadUint32 decodes an unsigned LEB128 value from the head of buf, returning
// the value and the number of bytes consumed.
func LoadUint32(buf []byte) (uint32, uint64, error) {
	v, n, err := loadUvarint(buf, 32)
	return uint32(v), n, err
}

// LoadUint64 decodes an unsigned LEB128 value from the head of buf, returning
// the value and the number of bytes consumed.
func LoadUint64(buf []byte) (uint64, uint64, error) {
	return loadUvarint(buf, 64)
}

// LoadInt32 decodes a signed LEB128 value from the head of buf, returning the
// value and the number of bytes consumed.
func LoadInt32(buf []byte) (int32, uint64, error) {
	v, n, err := loadVarint(buf, 32)
	return int32(v), n, err
}

// LoadInt64 decodes a signed LEB128 value from the head of buf, returning the
// value and the number of bytes consumed.
func LoadInt64(buf []byte) (int64, uint64, error) {
	return loadVarint(buf, 64)
}

func loadUvarint(buf []byte, bitSize int) (uint64, uint64, error) {
	var result uint64
	var shift uint
	maxLen := maxVarintLen64
	if bitSize == 32 {
		maxLen = maxVarintLen32
	}
	for i := 0; ; i++ {
		if i == maxLen {
			return 0, 0, fmt.Errorf("invalid LEB128 encoding: too many bytes")
		}
		if i >= len(buf) {
			return 0, 0, io.ErrUnexpectedEOF
		}
		b := buf[i]
		if shift+7 >= 64 && b > (1<<(64-shift)-1) {
			return 0, 0, fmt.Errorf("invalid LEB128 encoding: overflow")
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			if bitSize < 64 && result>>uint(bitSize) != 0 {
				return 0, 0, fmt.Errorf("invalid LEB128 encoding: value out of range for %d bits", bitSize)
			}
			return result, uint64(i + 1), nil
		}
		shift += 7
	}
}

func loadVarint(buf []byte, bitSize int) (int64, uint64, error) {
	var result int64
	var shift uint
	maxLen := maxVarintLen64
	if bitSize == 32 {
		maxLen = maxVarintLen32
	}
	var b byte
	var i int
	for i = 0; ; i++ {
		if i == maxLen {
			return 0, 0, fmt.Errorf("invalid LEB128 encoding: too many bytes")
		}
		if i >= len(buf) {
			return 0, 0, io.ErrUnexpectedEOF
		}
		b = buf[i]
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	if shift < 64 && b&0x40 != 0 {
		result |= -1 << shift
	}
	if bitSize < 64 {
		hi := bits.LeadingZeros64(uint64(result))
		lo := bits.LeadingZeros64(^uint64(result))
		if hi < 65-bitSize && lo < 65-bitSize {
			return 0, 0, fmt.Errorf("invalid LEB128 encoding: value out of range for %d bits", bitSize)
		}
	}
	return result, uint64(i + 1), nil
}

// DecodeUint32 reads an unsigned LEB128 value from r.
func DecodeUint32(r io.ByteReader) (uint32, uint64, error) {
	v, n, err := decodeUvarint(r, 32)
	return uint32(v), n, err
}

// DecodeUint64 reads an unsigned LEB128 value from r.
func DecodeUint64(r io.ByteReader) (uint64, uint64, error) {
	return decodeUvarint(r, 64)
}

// DecodeInt32 reads a signed LEB128 value from r.
func DecodeInt32(r io.ByteReader) (int32, uint64, error) {
	v, n, err := decodeVarint(r, 32)
	return int32(v), n, err
}

// DecodeInt64 reads a signed LEB128 value from r.
func DecodeInt64(r io.ByteReader) (int64, uint64, error) {
	return decodeVarint(r, 64)
}

// DecodeInt33AsInt64 reads a signed 33-bit LEB128 value from r, as used by
// block types in the binary format (a negative value encodes a value type,
// a non-negative one a type index).
func DecodeInt33AsInt64(r io.ByteReader) (int64, uint64, error) {
	return decodeVarint(r, 33)
}

func decodeUvarint(r io.ByteReader, bitSize int) (uint64, uint64, error) {
	var result uint64
	var shift uint
	maxLen := maxVarintLen64
	if bitSize == 32 {
		maxLen = maxVarintLen32
	}
	for i := 0; ; i++ {
		if i == maxLen {
			return 0, 0, fmt.Errorf("invalid LEB128 encoding: too many bytes")
		}
		b, err := r.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			if bitSize < 64 && result>>uint(bitSize) != 0 {
				return 0, 0, fmt.Errorf("invalid LEB128 encoding: value out of range for %d bits", bitSize)
			}
			return result, uint64(i + 1), nil
		}
		shift += 7
	}
}

func decodeVarint(r io.ByteReader, bitSize int) (int64, uint64, error) {
	var result int64
	var shift uint
	maxLen := maxVarintLen64
	if bitSize == 32 {
		maxLen = maxVarintLen32
	} else if bitSize == 33 {
		maxLen = maxVarintLen33
	}
	var b byte
	var i int
	for i = 0; ; i++ {
		if i == maxLen {
			return 0, 0, fmt.Errorf("invalid LEB128 encoding: too many bytes")
		}
		var err error
		b, err = r.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	if shift < 64 && b&0x40 != 0 {
		result |= -1 << shift
	}
	if bitSize < 64 {
		hi := bits.LeadingZeros64(uint64(result))
		lo := bits.LeadingZeros64(^uint64(result))
		if hi < 65-bitSize && lo < 65-bitSize {
			return 0, 0, fmt.Errorf("invalid LEB128 encoding: value out of range for %d bits", bitSize)
		}
	}
	return result, uint64(i + 1), nil
}
