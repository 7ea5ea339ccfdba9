// Package model defines the tensor and module-tree types shared by the
// checkpoint sources, the analysis pipeline, and the UI.
package model

import (
	"encoding/binary"
	"math"
)

// DType identifies a tensor element type using the safetensors spelling.
// Unrecognized dtypes are carried through verbatim so the UI can still
// display them.
type DType string

const (
	DTypeBool   DType = "BOOL"
	DTypeU8     DType = "U8"
	DTypeI8     DType = "I8"
	DTypeF8E5M2 DType = "F8_E5M2"
	DTypeF8E4M3 DType = "F8_E4M3"
	DTypeI16    DType = "I16"
	DTypeU16    DType = "U16"
	DTypeF16    DType = "F16"
	DTypeBF16   DType = "BF16"
	DTypeF32    DType = "F32"
	DTypeF64    DType = "F64"
	DTypeI32    DType = "I32"
	DTypeU32    DType = "U32"
	DTypeI64    DType = "I64"
	DTypeU64    DType = "U64"
)

// Size returns the element size in bytes, or 0 for unknown dtypes.
func (d DType) Size() int {
	switch d {
	case DTypeBool, DTypeU8, DTypeI8, DTypeF8E5M2, DTypeF8E4M3:
		return 1
	case DTypeI16, DTypeU16, DTypeF16, DTypeBF16:
		return 2
	case DTypeF32, DTypeI32, DTypeU32:
		return 4
	case DTypeF64, DTypeI64, DTypeU64:
		return 8
	default:
		return 0
	}
}

// Float reports whether the dtype is a floating-point format convertible to
// float32 by ConvertF32.
func (d DType) Float() bool {
	switch d {
	case DTypeF8E5M2, DTypeF8E4M3, DTypeF16, DTypeBF16, DTypeF32, DTypeF64:
		return true
	default:
		return false
	}
}

// ConvertF32 decodes little-endian raw tensor bytes into float32 samples.
// Integer and bool dtypes are not statistics material and return a
// DataError wrapping ErrUnsupportedDType.
func ConvertF32(d DType, raw []byte) ([]float32, error) {
	stride := d.Size()
	if stride == 0 || !d.Float() {
		return nil, &DataError{Op: "convert", Err: ErrUnsupportedDType, DType: d}
	}
	out := make([]float32, 0, len(raw)/stride)
	switch d {
	case DTypeF32:
		for i := 0; i+4 <= len(raw); i += 4 {
			out = append(out, math.Float32frombits(binary.LittleEndian.Uint32(raw[i:])))
		}
	case DTypeF64:
		for i := 0; i+8 <= len(raw); i += 8 {
			out = append(out, float32(math.Float64frombits(binary.LittleEndian.Uint64(raw[i:]))))
		}
	case DTypeF16:
		for i := 0; i+2 <= len(raw); i += 2 {
			out = append(out, f16ToF32(binary.LittleEndian.Uint16(raw[i:])))
		}
	case DTypeBF16:
		for i := 0; i+2 <= len(raw); i += 2 {
			out = append(out, bf16ToF32(binary.LittleEndian.Uint16(raw[i:])))
		}
	case DTypeF8E5M2:
		for _, b := range raw {
			out = append(out, f8e5m2ToF32(b))
		}
	case DTypeF8E4M3:
		for _, b := range raw {
			out = append(out, f8e4m3ToF32(b))
		}
	}
	return out, nil
}

// f16ToF32 expands an IEEE 754 binary16 value.
func f16ToF32(h uint16) float32 {
	sign := uint32(h>>15) & 0x1
	exp := int32((h >> 10) & 0x1f)
	mant := uint32(h & 0x03ff)

	switch exp {
	case 0:
		if mant == 0 {
			return math.Float32frombits(sign << 31)
		}
		// Subnormal.
		for (mant & 0x0400) == 0 {
			mant <<= 1
			exp--
		}
		exp++
		mant &= 0x03ff
	case 0x1f:
		return math.Float32frombits((sign << 31) | 0x7f800000 | (mant << 13))
	}

	exp += 127 - 15
	return math.Float32frombits((sign << 31) | (uint32(exp) << 23) | (mant << 13))
}

// bf16ToF32 expands a bfloat16 value. bfloat16 is the top half of a float32,
// so widening is a shift.
func bf16ToF32(h uint16) float32 {
	return math.Float32frombits(uint32(h) << 16)
}

// f8e5m2ToF32 expands a float8 E5M2 value. E5M2 shares binary16's exponent
// range, so widen to f16 bits first.
func f8e5m2ToF32(b byte) float32 {
	return f16ToF32(uint16(b) << 8)
}

// f8e4m3ToF32 expands a float8 E4M3 value (fn variant: no infinities, one
// NaN encoding).
func f8e4m3ToF32(b byte) float32 {
	sign := uint32(b>>7) & 0x1
	exp := int32((b >> 3) & 0x0f)
	mant := uint32(b & 0x07)

	if exp == 0x0f && mant == 0x07 {
		return float32(math.NaN())
	}
	if exp == 0 {
		if mant == 0 {
			return math.Float32frombits(sign << 31)
		}
		for (mant & 0x08) == 0 {
			mant <<= 1
			exp--
		}
		exp++
		mant &= 0x07
	}

	exp += 127 - 7
	return math.Float32frombits((sign << 31) | (uint32(exp) << 23) | (mant << 20))
}
