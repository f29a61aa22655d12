package bagtest

import (
	"encoding/binary"
	"math"

	"github.com/lherman-cs/rosbag-extract/sensormsgs"
)

// encoder serializes ROS builtin types.
type encoder struct {
	buf []byte
}

func (e *encoder) uint8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *encoder) bool(v bool) {
	if v {
		e.uint8(1)
	} else {
		e.uint8(0)
	}
}

func (e *encoder) uint32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *encoder) bytes(v []byte) {
	e.uint32(uint32(len(v)))
	e.buf = append(e.buf, v...)
}

func (e *encoder) string(v string) {
	e.bytes([]byte(v))
}

func (e *encoder) header(h sensormsgs.Header) {
	e.uint32(h.Seq)
	e.buf = append(e.buf, rosTime(h.Stamp)...)
	e.string(h.FrameID)
}

// Image serializes a sensor_msgs/Image.
func Image(msg *sensormsgs.Image) []byte {
	var e encoder
	e.header(msg.Header)
	e.uint32(msg.Height)
	e.uint32(msg.Width)
	e.string(msg.Encoding)
	e.uint8(msg.IsBigendian)
	e.uint32(msg.Step)
	e.bytes(msg.Data)
	return e.buf
}

// CompressedImage serializes a sensor_msgs/CompressedImage.
func CompressedImage(msg *sensormsgs.CompressedImage) []byte {
	var e encoder
	e.header(msg.Header)
	e.string(msg.Format)
	e.bytes(msg.Data)
	return e.buf
}

// PointCloud2 serializes a sensor_msgs/PointCloud2.
func PointCloud2(msg *sensormsgs.PointCloud2) []byte {
	var e encoder
	e.header(msg.Header)
	e.uint32(msg.Height)
	e.uint32(msg.Width)
	e.uint32(uint32(len(msg.Fields)))
	for _, f := range msg.Fields {
		e.string(f.Name)
		e.uint32(f.Offset)
		e.uint8(f.Datatype)
		e.uint32(f.Count)
	}
	e.bool(msg.IsBigendian)
	e.uint32(msg.PointStep)
	e.uint32(msg.RowStep)
	e.bytes(msg.Data)
	e.bool(msg.IsDense)
	return e.buf
}

// LaserScanDefinition is a message type that can't be extracted.
var LaserScanDefinition = sensormsgs.Definition{
	Type:   "sensor_msgs/LaserScan",
	MD5Sum: "90c7ef2dc6895d81024acba2ac42f369",
	Text: `Header header
float32 angle_min
float32 angle_max
float32 angle_increment
float32 time_increment
float32 scan_time
float32 range_min
float32 range_max
float32[] ranges
float32[] intensities
================================================================================
MSG: std_msgs/Header
uint32 seq
time stamp
string frame_id
`,
}

// LaserScan serializes an empty sensor_msgs/LaserScan.
func LaserScan(h sensormsgs.Header) []byte {
	var e encoder
	e.header(h)
	// angles, increments and range limits
	for i := 0; i < 7; i++ {
		e.uint32(0)
	}
	e.bytes(nil) // ranges
	e.bytes(nil) // intensities
	return e.buf
}

// XYZ returns a dense, little endian cloud with float32 x, y and z fields.
func XYZ(points [][3]float32) *sensormsgs.PointCloud2 {
	const pointStep = 12
	data := make([]byte, 0, len(points)*pointStep)
	for _, p := range points {
		for _, v := range p {
			data = binary.LittleEndian.AppendUint32(data, math.Float32bits(v))
		}
	}

	return &sensormsgs.PointCloud2{
		Height: 1,
		Width:  uint32(len(points)),
		Fields: []sensormsgs.PointField{
			{Name: "x", Offset: 0, Datatype: sensormsgs.PointFieldFloat32, Count: 1},
			{Name: "y", Offset: 4, Datatype: sensormsgs.PointFieldFloat32, Count: 1},
			{Name: "z", Offset: 8, Datatype: sensormsgs.PointFieldFloat32, Count: 1},
		},
		PointStep: pointStep,
		RowStep:   uint32(len(points) * pointStep),
		Data:      data,
		IsDense:   true,
	}
}
