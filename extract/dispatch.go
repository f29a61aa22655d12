package extract

import (
	"github.com/pkg/errors"

	rosbag "github.com/lherman-cs/rosbag-extract"
	"github.com/lherman-cs/rosbag-extract/calib"
	"github.com/lherman-cs/rosbag-extract/imagemsg"
	"github.com/lherman-cs/rosbag-extract/pcd"
	"github.com/lherman-cs/rosbag-extract/sensormsgs"
)

// decoder writes a single message of its family to a file.
type decoder interface {
	// ext is the extension of the files it writes, including the dot.
	ext() string
	write(path string, msg *rosbag.RecordMessageData) error
}

type pointCloudDecoder struct {
	format pcd.DataFormat
}

func (dec *pointCloudDecoder) ext() string {
	return ".pcd"
}

func (dec *pointCloudDecoder) write(path string, msg *rosbag.RecordMessageData) error {
	var cloud sensormsgs.PointCloud2
	if err := msg.UnmarshallTo(&cloud); err != nil {
		return errors.Wrapf(err, "failed to unmarshall %s", msg.Type())
	}

	pc, err := pcd.FromPointCloud2(&cloud)
	if err != nil {
		return err
	}
	return errors.Wrapf(pcd.Save(path, pc, dec.format), "failed to save %s", path)
}

type imageDecoder struct {
	calib *calib.Model
}

func (dec *imageDecoder) ext() string {
	return ".jpg"
}

func (dec *imageDecoder) write(path string, msg *rosbag.RecordMessageData) error {
	img, err := imagemsg.Decode(msg)
	if err != nil {
		return err
	}

	if dec.calib != nil {
		img, err = imagemsg.Undistort(img, dec.calib.Camera, dec.calib.Distortion)
		if err != nil {
			return errors.Wrap(err, "failed to undistort image")
		}
	}
	return errors.Wrapf(imagemsg.Save(path, img), "failed to save %s", path)
}

// decoders holds one decoder per family for a run.
type decoders struct {
	pointCloud *pointCloudDecoder
	image      *imageDecoder
}

func newDecoders(format pcd.DataFormat, model *calib.Model) *decoders {
	return &decoders{
		pointCloud: &pointCloudDecoder{format: format},
		image:      &imageDecoder{calib: model},
	}
}

// decoderFor returns the decoder of family, or false when the family can't be extracted.
func (d *decoders) decoderFor(family sensormsgs.Family) (decoder, bool) {
	switch family {
	case sensormsgs.FamilyPointCloud:
		return d.pointCloud, true
	case sensormsgs.FamilyImage:
		return d.image, true
	case sensormsgs.FamilyUnsupported:
		return nil, false
	default:
		return nil, false
	}
}
