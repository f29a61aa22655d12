package rosbag

import (
	"math"
	"testing"
	"time"
	"unsafe"

	"github.com/google/go-cmp/cmp"
)

func TestFieldDecodeSlices(t *testing.T) {
	b := []byte{1, 0}
	if *(*uint16)(unsafe.Pointer(&b[0])) != endian.Uint16(b) {
		t.Skip("arrays can only alias records when the host order matches the wire order")
	}

	var raw []byte
	raw = appendLen(raw, 3)
	for _, v := range []uint32{1, math.Float32bits(-2.5), 0xfffffffe} {
		raw = appendLen(raw, int(v))
	}

	testCases := []struct {
		Name     string
		Fast     fieldDecodeFunc
		Slow     fieldDecodeFunc
		Expected interface{}
	}{
		{
			Name:     "Uint32",
			Fast:     fieldDecodeAliasSlice[uint32](4),
			Slow:     fieldDecodeCopySlice(4, decodeUint32),
			Expected: []uint32{1, math.Float32bits(-2.5), 0xfffffffe},
		},
		{
			Name:     "Int32",
			Fast:     fieldDecodeAliasSlice[int32](4),
			Slow:     fieldDecodeCopySlice(4, decodeInt32),
			Expected: []int32{1, int32(math.Float32bits(-2.5)), -2},
		},
		{
			Name:     "Float32",
			Fast:     fieldDecodeAliasSlice[float32](4),
			Slow:     fieldDecodeCopySlice(4, decodeFloat32),
			Expected: []float32{math.Float32frombits(1), -2.5, math.Float32frombits(0xfffffffe)},
		},
		{
			Name:     "Uint16",
			Fast:     fieldDecodeAliasSlice[uint16](2),
			Slow:     fieldDecodeCopySlice(2, decodeUint16),
			Expected: []uint16{endian.Uint16(raw[4:]), endian.Uint16(raw[6:]), endian.Uint16(raw[8:])},
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.Name, func(t *testing.T) {
			for _, decode := range []fieldDecodeFunc{testCase.Fast, testCase.Slow} {
				v, off, ok := decode(raw, -1)
				if !ok {
					t.Fatal("expected to succeed")
				}
				if off <= lenInBytes || off > len(raw) {
					t.Fatalf("unexpected offset %d", off)
				}
				// NaN payloads compare unequal, compare the bits instead
				if floats, isFloat := v.([]float32); isFloat {
					bits := make([]uint32, len(floats))
					expected := make([]uint32, len(floats))
					for i := range floats {
						bits[i] = math.Float32bits(floats[i])
						expected[i] = math.Float32bits(testCase.Expected.([]float32)[i])
					}
					if diff := cmp.Diff(expected, bits); diff != "" {
						t.Fatal(diff)
					}
					continue
				}
				if diff := cmp.Diff(testCase.Expected, v); diff != "" {
					t.Fatal(diff)
				}
			}
		})
	}
}

func TestFieldDecodeTruncated(t *testing.T) {
	raw := appendLen(nil, 4)
	raw = append(raw, 1, 2, 3)

	decoders := map[string]fieldDecodeFunc{
		"Alias":    fieldDecodeAliasSlice[uint16](2),
		"Copy":     fieldDecodeCopySlice(2, decodeUint16),
		"Time":     fieldDecodeCopySlice(8, extractTime),
		"Scalar":   fieldDecodeScalar(8, decodeUint64),
		"Duration": fieldDecodeScalar(8, extractDuration),
	}
	for name, decode := range decoders {
		if _, _, ok := decode(raw, -1); ok {
			t.Fatalf("%s: expected to fail", name)
		}
	}
}

func TestFieldDecodeTime(t *testing.T) {
	raw := appendLen(nil, 10)
	raw = appendLen(raw, 500)

	v, off, ok := fieldDecodeBasicHelper[MessageFieldTypeTime](raw, -1)
	if !ok || off != 8 {
		t.Fatalf("expected 8 bytes, got %d (ok %v)", off, ok)
	}
	if !v.(time.Time).Equal(time.Unix(10, 500)) {
		t.Fatalf("unexpected time %v", v)
	}

	v, _, ok = fieldDecodeBasicHelper[MessageFieldTypeDuration](raw, -1)
	if !ok || v.(time.Duration) != 10*time.Second+500 {
		t.Fatalf("unexpected duration %v", v)
	}
}
