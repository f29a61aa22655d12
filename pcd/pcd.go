// Package pcd converts sensor_msgs/PointCloud2 messages into PCD v0.7 point cloud files.
package pcd

import (
	"github.com/pkg/errors"

	"github.com/lherman-cs/rosbag-extract/sensormsgs"
)

// DataFormat is the encoding of the DATA section of a pcd file.
type DataFormat string

const (
	ASCII            DataFormat = "ascii"
	Binary           DataFormat = "binary"
	BinaryCompressed DataFormat = "binary_compressed"
)

// ParseDataFormat validates s as a DataFormat.
func ParseDataFormat(s string) (DataFormat, error) {
	switch f := DataFormat(s); f {
	case ASCII, Binary, BinaryCompressed:
		return f, nil
	default:
		return "", errors.Errorf("unknown pcd data format %q", s)
	}
}

// Field describes one named field of a point. Type is 'I', 'U' or 'F'.
type Field struct {
	Name  string
	Size  int
	Type  byte
	Count int
}

func (f Field) byteLen() int {
	return f.Size * f.Count
}

// PointCloud is an in-memory pcd. Data holds the points packed back to back in little
// endian, in row major order, without any padding.
type PointCloud struct {
	Fields    []Field
	Width     int
	Height    int
	Viewpoint [7]float64
	Data      []byte
}

var defaultViewpoint = [7]float64{0, 0, 0, 1, 0, 0, 0}

// Points returns the number of points in the cloud.
func (pc *PointCloud) Points() int {
	return pc.Width * pc.Height
}

// PointSize returns the packed size of a point in bytes.
func (pc *PointCloud) PointSize() int {
	var size int
	for _, f := range pc.Fields {
		size += f.byteLen()
	}
	return size
}

var pointFieldTypes = map[uint8]struct {
	typ  byte
	size int
}{
	sensormsgs.PointFieldInt8:    {'I', 1},
	sensormsgs.PointFieldUint8:   {'U', 1},
	sensormsgs.PointFieldInt16:   {'I', 2},
	sensormsgs.PointFieldUint16:  {'U', 2},
	sensormsgs.PointFieldInt32:   {'I', 4},
	sensormsgs.PointFieldUint32:  {'U', 4},
	sensormsgs.PointFieldFloat32: {'F', 4},
	sensormsgs.PointFieldFloat64: {'F', 8},
}

// FromPointCloud2 packs msg into a PointCloud. Padding between fields is dropped and big
// endian payloads are swapped to little endian. The message's data is copied.
func FromPointCloud2(msg *sensormsgs.PointCloud2) (*PointCloud, error) {
	if len(msg.Fields) == 0 {
		return nil, errors.New("point cloud has no fields")
	}

	pc := &PointCloud{
		Width:     int(msg.Width),
		Height:    int(msg.Height),
		Viewpoint: defaultViewpoint,
	}
	offsets := make([]int, len(msg.Fields))
	for i, pf := range msg.Fields {
		t, ok := pointFieldTypes[pf.Datatype]
		if !ok {
			return nil, errors.Errorf("field %q has unknown datatype %d", pf.Name, pf.Datatype)
		}

		count := int(pf.Count)
		if count == 0 {
			count = 1
		}
		f := Field{Name: pf.Name, Size: t.size, Type: t.typ, Count: count}
		if int(pf.Offset)+f.byteLen() > int(msg.PointStep) {
			return nil, errors.Errorf("field %q at offset %d overflows point step %d", pf.Name, pf.Offset, msg.PointStep)
		}

		pc.Fields = append(pc.Fields, f)
		offsets[i] = int(pf.Offset)
	}

	rowStep := int(msg.RowStep)
	if rowStep == 0 {
		rowStep = int(msg.PointStep) * pc.Width
	}
	if pc.Height > 0 && (pc.Height-1)*rowStep+pc.Width*int(msg.PointStep) > len(msg.Data) {
		return nil, errors.Errorf("point cloud data is %d bytes, too short for %dx%d points of %d bytes",
			len(msg.Data), pc.Width, pc.Height, msg.PointStep)
	}

	pointSize := pc.PointSize()
	pc.Data = make([]byte, 0, pc.Points()*pointSize)
	for row := 0; row < pc.Height; row++ {
		for col := 0; col < pc.Width; col++ {
			point := msg.Data[row*rowStep+col*int(msg.PointStep):]
			for i, f := range pc.Fields {
				start := len(pc.Data)
				pc.Data = append(pc.Data, point[offsets[i]:offsets[i]+f.byteLen()]...)
				if msg.IsBigendian {
					swapElements(pc.Data[start:], f.Size)
				}
			}
		}
	}

	return pc, nil
}

func swapElements(b []byte, size int) {
	if size == 1 {
		return
	}
	for i := 0; i+size <= len(b); i += size {
		e := b[i : i+size]
		for l, r := 0, size-1; l < r; l, r = l+1, r-1 {
			e[l], e[r] = e[r], e[l]
		}
	}
}
