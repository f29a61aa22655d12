// Package sensormsgs contains Go views of the ROS messages that can be extracted from a
// bag, decodable with rosbag.RecordMessageData.UnmarshallTo.
package sensormsgs

import (
	"strings"
	"time"
)

const (
	TypeImage           = "sensor_msgs/Image"
	TypeCompressedImage = "sensor_msgs/CompressedImage"
	TypePointCloud2     = "sensor_msgs/PointCloud2"
)

// Family groups the message types that share a decoder.
type Family int

const (
	FamilyUnsupported Family = iota
	FamilyPointCloud
	FamilyImage
)

func (f Family) String() string {
	switch f {
	case FamilyPointCloud:
		return "pointcloud"
	case FamilyImage:
		return "image"
	default:
		return "unsupported"
	}
}

// FamilyOf classifies a message type tag. Tags are matched loosely, so both
// "sensor_msgs/PointCloud2" and "PointCloud2" are point clouds, and any tag naming an
// image, raw or compressed, is an image.
func FamilyOf(msgType string) Family {
	switch {
	case strings.Contains(msgType, "PointCloud2"):
		return FamilyPointCloud
	case strings.Contains(msgType, "Image"):
		return FamilyImage
	default:
		return FamilyUnsupported
	}
}

// IsCompressed reports whether msgType carries an encoded (jpeg, png, ...) image.
func IsCompressed(msgType string) bool {
	return strings.Contains(msgType, "Compressed")
}

type Header struct {
	Seq     uint32    `rosbag:"seq"`
	Stamp   time.Time `rosbag:"stamp"`
	FrameID string    `rosbag:"frame_id"`
}

type Image struct {
	Header      Header `rosbag:"header"`
	Height      uint32 `rosbag:"height"`
	Width       uint32 `rosbag:"width"`
	Encoding    string `rosbag:"encoding"`
	IsBigendian uint8  `rosbag:"is_bigendian"`
	Step        uint32 `rosbag:"step"`
	Data        []byte `rosbag:"data"`
}

type CompressedImage struct {
	Header Header `rosbag:"header"`
	Format string `rosbag:"format"`
	Data   []byte `rosbag:"data"`
}

// PointField datatypes.
const (
	PointFieldInt8    uint8 = 1
	PointFieldUint8   uint8 = 2
	PointFieldInt16   uint8 = 3
	PointFieldUint16  uint8 = 4
	PointFieldInt32   uint8 = 5
	PointFieldUint32  uint8 = 6
	PointFieldFloat32 uint8 = 7
	PointFieldFloat64 uint8 = 8
)

type PointField struct {
	Name     string `rosbag:"name"`
	Offset   uint32 `rosbag:"offset"`
	Datatype uint8  `rosbag:"datatype"`
	Count    uint32 `rosbag:"count"`
}

type PointCloud2 struct {
	Header      Header       `rosbag:"header"`
	Height      uint32       `rosbag:"height"`
	Width       uint32       `rosbag:"width"`
	Fields      []PointField `rosbag:"fields"`
	IsBigendian bool         `rosbag:"is_bigendian"`
	PointStep   uint32       `rosbag:"point_step"`
	RowStep     uint32       `rosbag:"row_step"`
	Data        []byte       `rosbag:"data"`
	IsDense     bool         `rosbag:"is_dense"`
}
