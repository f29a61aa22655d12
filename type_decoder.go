package rosbag

import (
	"math"
	"unsafe"
)

// fieldDecodeFunc decodes a field from the start of raw. length is the fixed array length,
// or -1 when the length is stored in raw. off is the number of bytes consumed.
type fieldDecodeFunc func(raw []byte, length int) (v interface{}, off int, ok bool)

var fieldDecodeBasicHelper = map[MessageFieldType]fieldDecodeFunc{
	MessageFieldTypeBool:     fieldDecodeScalar(1, decodeBool),
	MessageFieldTypeInt8:     fieldDecodeScalar(1, decodeInt8),
	MessageFieldTypeUint8:    fieldDecodeScalar(1, decodeUint8),
	MessageFieldTypeInt16:    fieldDecodeScalar(2, decodeInt16),
	MessageFieldTypeUint16:   fieldDecodeScalar(2, decodeUint16),
	MessageFieldTypeInt32:    fieldDecodeScalar(4, decodeInt32),
	MessageFieldTypeUint32:   fieldDecodeScalar(4, decodeUint32),
	MessageFieldTypeInt64:    fieldDecodeScalar(8, decodeInt64),
	MessageFieldTypeUint64:   fieldDecodeScalar(8, decodeUint64),
	MessageFieldTypeFloat32:  fieldDecodeScalar(4, decodeFloat32),
	MessageFieldTypeFloat64:  fieldDecodeScalar(8, decodeFloat64),
	MessageFieldTypeString:   fieldDecodeString,
	MessageFieldTypeTime:     fieldDecodeScalar(8, extractTime),
	MessageFieldTypeDuration: fieldDecodeScalar(8, extractDuration),
}

var fieldDecodeSliceHelper map[MessageFieldType]fieldDecodeFunc

// initFieldSliceDecoder picks how numeric arrays are decoded. In fast mode the wire order
// matches the host order, so arrays alias the record instead of being copied.
func initFieldSliceDecoder(fastMode bool) {
	helper := map[MessageFieldType]fieldDecodeFunc{
		MessageFieldTypeBool:     fieldDecodeAliasSlice[bool](1),
		MessageFieldTypeInt8:     fieldDecodeAliasSlice[int8](1),
		MessageFieldTypeUint8:    fieldDecodeAliasSlice[uint8](1),
		MessageFieldTypeString:   fieldDecodeStringSlice,
		MessageFieldTypeTime:     fieldDecodeCopySlice(8, extractTime),
		MessageFieldTypeDuration: fieldDecodeCopySlice(8, extractDuration),
	}

	numeric := func(fieldType MessageFieldType, fast, slow fieldDecodeFunc) {
		if fastMode {
			helper[fieldType] = fast
		} else {
			helper[fieldType] = slow
		}
	}
	numeric(MessageFieldTypeInt16, fieldDecodeAliasSlice[int16](2), fieldDecodeCopySlice(2, decodeInt16))
	numeric(MessageFieldTypeUint16, fieldDecodeAliasSlice[uint16](2), fieldDecodeCopySlice(2, decodeUint16))
	numeric(MessageFieldTypeInt32, fieldDecodeAliasSlice[int32](4), fieldDecodeCopySlice(4, decodeInt32))
	numeric(MessageFieldTypeUint32, fieldDecodeAliasSlice[uint32](4), fieldDecodeCopySlice(4, decodeUint32))
	numeric(MessageFieldTypeInt64, fieldDecodeAliasSlice[int64](8), fieldDecodeCopySlice(8, decodeInt64))
	numeric(MessageFieldTypeUint64, fieldDecodeAliasSlice[uint64](8), fieldDecodeCopySlice(8, decodeUint64))
	numeric(MessageFieldTypeFloat32, fieldDecodeAliasSlice[float32](4), fieldDecodeCopySlice(4, decodeFloat32))
	numeric(MessageFieldTypeFloat64, fieldDecodeAliasSlice[float64](8), fieldDecodeCopySlice(8, decodeFloat64))

	fieldDecodeSliceHelper = helper
}

func decodeBool(b []byte) bool       { return b[0] != 0 }
func decodeInt8(b []byte) int8       { return int8(b[0]) }
func decodeUint8(b []byte) uint8     { return b[0] }
func decodeInt16(b []byte) int16     { return int16(endian.Uint16(b)) }
func decodeUint16(b []byte) uint16   { return endian.Uint16(b) }
func decodeInt32(b []byte) int32     { return int32(endian.Uint32(b)) }
func decodeUint32(b []byte) uint32   { return endian.Uint32(b) }
func decodeInt64(b []byte) int64     { return int64(endian.Uint64(b)) }
func decodeUint64(b []byte) uint64   { return endian.Uint64(b) }
func decodeFloat32(b []byte) float32 { return math.Float32frombits(endian.Uint32(b)) }
func decodeFloat64(b []byte) float64 { return math.Float64frombits(endian.Uint64(b)) }

func fieldDecodeLength(raw []byte, fixedLength int) (length int, off int, ok bool) {
	if fixedLength >= 0 {
		ok = true
		length = fixedLength
		return
	}

	if len(raw) < lenInBytes {
		return
	}

	length = int(endian.Uint32(raw))
	if len(raw) < lenInBytes+length {
		return
	}

	ok = true
	off = lenInBytes
	return
}

// fieldDecodeScalar decodes a single value that takes size bytes.
func fieldDecodeScalar[T any](size int, decode func([]byte) T) fieldDecodeFunc {
	return func(raw []byte, _ int) (v interface{}, off int, ok bool) {
		if len(raw) < size {
			return nil, 0, false
		}
		return decode(raw), size, true
	}
}

func fieldDecodeString(raw []byte, length int) (v interface{}, off int, ok bool) {
	length, off, ok = fieldDecodeLength(raw, length)
	if !ok {
		return
	}

	if length == 0 {
		v = ""
		ok = true
		return
	}

	raw = raw[off:]
	if len(raw) < length {
		ok = false
		return
	}

	// the string aliases raw, it's only valid while the record is open
	v = unsafe.String(&raw[0], length)
	off += length
	ok = true
	return
}

func fieldDecodeBasicSlice[T any](raw []byte, length int, size int) (v []T, off int, ok bool) {
	length, off, ok = fieldDecodeLength(raw, length)
	if !ok {
		return
	}

	if length == 0 {
		ok = true
		return
	}

	raw = raw[off:]
	if len(raw) < length*size {
		ok = false
		return
	}

	// the slice aliases raw, it's only valid while the record is open
	v = unsafe.Slice((*T)(unsafe.Pointer(&raw[0])), length)
	off += length * size
	ok = true
	return
}

func fieldDecodeAliasSlice[T any](size int) fieldDecodeFunc {
	return func(raw []byte, length int) (v interface{}, off int, ok bool) {
		v, off, ok = fieldDecodeBasicSlice[T](raw, length, size)
		return
	}
}

// fieldDecodeCopySlice decodes every element on its own, for arrays whose memory layout
// differs from the wire.
func fieldDecodeCopySlice[T any](size int, decode func([]byte) T) fieldDecodeFunc {
	return func(raw []byte, length int) (v interface{}, off int, ok bool) {
		length, off, ok = fieldDecodeLength(raw, length)
		if !ok {
			return
		}

		if len(raw) < off+length*size {
			return nil, 0, false
		}

		arr := make([]T, length)
		for i := range arr {
			arr[i] = decode(raw[off:])
			off += size
		}
		return arr, off, true
	}
}

func fieldDecodeStringSlice(raw []byte, length int) (v interface{}, off int, ok bool) {
	length, off, ok = fieldDecodeLength(raw, length)
	if !ok {
		return
	}

	if length == 0 {
		var s []string
		v = s
		ok = true
		return
	}

	s := make([]string, length)
	totalOff := off
	for i := 0; i < length; i++ {
		v, off, ok = fieldDecodeString(raw[totalOff:], -1)
		if !ok {
			off = 0
			return
		}

		s[i] = v.(string)
		totalOff += off
	}

	v = s
	off = totalOff
	ok = true
	return
}
