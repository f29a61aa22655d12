// Package imagemsg turns sensor_msgs/Image and sensor_msgs/CompressedImage messages into
// jpeg files.
package imagemsg

import (
	"bytes"
	"encoding/binary"
	"image"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	rosbag "github.com/lherman-cs/rosbag-extract"
	"github.com/lherman-cs/rosbag-extract/sensormsgs"
)

// Decode unmarshals msg, which must be an image or a compressed image, into an opaque
// pixel buffer. The returned image doesn't alias the record.
func Decode(msg *rosbag.RecordMessageData) (*image.NRGBA, error) {
	if sensormsgs.IsCompressed(msg.Type()) {
		var compressed sensormsgs.CompressedImage
		if err := msg.UnmarshallTo(&compressed); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshall %s", msg.Type())
		}
		return FromCompressed(&compressed)
	}

	var raw sensormsgs.Image
	if err := msg.UnmarshallTo(&raw); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshall %s", msg.Type())
	}
	return FromImage(&raw)
}

// FromCompressed decodes the compressed buffer of msg. Any alpha channel is dropped.
func FromCompressed(msg *sensormsgs.CompressedImage) (*image.NRGBA, error) {
	img, err := imaging.Decode(bytes.NewReader(msg.Data))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode %q compressed image", msg.Format)
	}

	out := imaging.Clone(img)
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 0xff
	}
	return out, nil
}

type channelOrder int

const (
	orderGray channelOrder = iota
	orderRGB
	orderBGR
	orderRGBA
	orderBGRA
)

type encoding struct {
	order    channelOrder
	channels int
	depth    int // bytes per channel
}

var encodings = map[string]encoding{
	"mono8":  {orderGray, 1, 1},
	"8UC1":   {orderGray, 1, 1},
	"mono16": {orderGray, 1, 2},
	"16UC1":  {orderGray, 1, 2},
	"rgb8":   {orderRGB, 3, 1},
	"bgr8":   {orderBGR, 3, 1},
	"8UC3":   {orderBGR, 3, 1},
	"rgba8":  {orderRGBA, 4, 1},
	"bgra8":  {orderBGRA, 4, 1},
	"8UC4":   {orderBGRA, 4, 1},
	"rgb16":  {orderRGB, 3, 2},
	"bgr16":  {orderBGR, 3, 2},
	"rgba16": {orderRGBA, 4, 2},
	"bgra16": {orderBGRA, 4, 2},
}

// FromImage converts a raw image into an opaque pixel buffer. 16 bit channels are
// scaled down to 8 bits.
func FromImage(msg *sensormsgs.Image) (*image.NRGBA, error) {
	enc, ok := encodings[msg.Encoding]
	if !ok {
		return nil, errors.Errorf("unsupported image encoding %q", msg.Encoding)
	}

	width, height := int(msg.Width), int(msg.Height)
	pixelSize := enc.channels * enc.depth
	step := int(msg.Step)
	if step < width*pixelSize {
		return nil, errors.Errorf("step %d is shorter than a row of %d %s pixels", step, width, msg.Encoding)
	}
	if height > 0 && len(msg.Data) < (height-1)*step+width*pixelSize {
		return nil, errors.Errorf("image data is %d bytes, too short for %dx%d %s", len(msg.Data), width, height, msg.Encoding)
	}

	var order binary.ByteOrder = binary.LittleEndian
	if msg.IsBigendian != 0 {
		order = binary.BigEndian
	}
	sample := func(b []byte, c int) uint8 {
		if enc.depth == 1 {
			return b[c]
		}
		return uint8(order.Uint16(b[c*2:]) >> 8)
	}

	out := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		row := msg.Data[y*step:]
		for x := 0; x < width; x++ {
			px := row[x*pixelSize:]
			var r, g, b uint8
			switch enc.order {
			case orderGray:
				r = sample(px, 0)
				g, b = r, r
			case orderRGB, orderRGBA:
				r, g, b = sample(px, 0), sample(px, 1), sample(px, 2)
			case orderBGR, orderBGRA:
				b, g, r = sample(px, 0), sample(px, 1), sample(px, 2)
			}

			i := out.PixOffset(x, y)
			out.Pix[i+0] = r
			out.Pix[i+1] = g
			out.Pix[i+2] = b
			out.Pix[i+3] = 0xff
		}
	}

	return out, nil
}

// Save writes img to path as a jpeg with the highest quality setting.
func Save(path string, img image.Image) error {
	return imaging.Save(img, path, imaging.JPEGQuality(100))
}
