// Package extract turns the synchronized messages of a rosbag into image and point cloud
// files, one file per candidate topic and frame.
package extract

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	rosbag "github.com/lherman-cs/rosbag-extract"
	"github.com/lherman-cs/rosbag-extract/automan"
	"github.com/lherman-cs/rosbag-extract/calib"
	"github.com/lherman-cs/rosbag-extract/pcd"
	"github.com/lherman-cs/rosbag-extract/sensormsgs"
)

// Resolver returns the requested candidates of an original bag, in the order their files
// should be written. *automan.Client is a Resolver.
type Resolver interface {
	Resolve(ctx context.Context, projectID, originalID int, wanted []int) ([]automan.Candidate, error)
}

// Request names the candidates to extract from an original bag.
type Request struct {
	ProjectID    int
	OriginalID   int
	CandidateIDs []int
}

type Options struct {
	// PCDFormat is the data format of point cloud files, binary_compressed when empty.
	PCDFormat pcd.DataFormat
}

type Extractor struct {
	resolver Resolver
	logger   golog.Logger
	opts     Options
	openBag  func(path string) (*rosbag.Bag, error)
}

func NewExtractor(resolver Resolver, logger golog.Logger, opts Options) *Extractor {
	if opts.PCDFormat == "" {
		opts.PCDFormat = pcd.BinaryCompressed
	}
	return &Extractor{
		resolver: resolver,
		logger:   logger,
		opts:     opts,
		openBag:  rosbag.Open,
	}
}

// Extract writes every frame of the bag at bagPath to outputDir, which must exist. When
// calibPath isn't empty, images are undistorted with the calibration found there. A nil
// Result is returned with every error.
func (e *Extractor) Extract(ctx context.Context, req Request, bagPath, outputDir, calibPath string) (res *Result, err error) {
	candidates, err := e.resolver.Resolve(ctx, req.ProjectID, req.OriginalID, req.CandidateIDs)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}

	var model *calib.Model
	if calibPath != "" {
		if model, err = calib.Parse(calibPath); err != nil {
			return nil, err
		}
	}

	topics := make([]string, len(candidates))
	for i, candidate := range candidates {
		topics[i] = candidate.TopicName
	}
	e.logger.Infow("extracting bag",
		"bag", bagPath,
		"output_dir", outputDir,
		"original_id", req.OriginalID,
		"topics", topics,
		"undistort", model != nil,
	)

	bag, err := e.openBag(bagPath)
	if err != nil {
		err = &StreamingError{Err: err}
		e.logger.Errorw("failed to open bag", "bag", bagPath, zap.Error(err))
		return nil, err
	}
	defer func() {
		err = multierr.Combine(err, bag.Close())
		if err != nil {
			res = nil
		}
	}()

	msgs, err := bag.Messages()
	if err != nil {
		err = &StreamingError{Err: err}
		e.logger.Errorw("failed to read bag", "bag", bagPath, zap.Error(err))
		return nil, err
	}

	sync := NewSynchronizer(msgs, topics)
	defer sync.Close()

	decs := newDecoders(e.opts.PCDFormat, model)
	count := 0
	for {
		frame, err := sync.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			e.logger.Errorw("failed to read bag", "bag", bagPath, "frame_count", count, zap.Error(err))
			return nil, err
		}

		err = e.dispatch(decs, candidates, frame, outputDir)
		frame.Close()
		if err != nil {
			return nil, err
		}
		count++
	}

	e.logger.Infow("extracted bag", "bag", bagPath, "frame_count", count)
	return &Result{
		FilePath:   outputDir,
		FrameCount: count,
		Name:       bag.Name(),
		OriginalID: req.OriginalID,
		Candidates: req.CandidateIDs,
	}, nil
}

// dispatch writes one file per candidate. Decoders are picked for every candidate before
// anything is written.
func (e *Extractor) dispatch(decs *decoders, candidates []automan.Candidate, frame *Frame, outputDir string) error {
	selected := make([]decoder, len(candidates))
	for i, candidate := range candidates {
		dec, ok := decs.decoderFor(sensormsgs.FamilyOf(candidate.MsgType))
		if !ok {
			return &UnsupportedMessageTypeError{CandidateID: candidate.CandidateID, MsgType: candidate.MsgType}
		}
		selected[i] = dec
	}

	for i, candidate := range candidates {
		msg, ok := frame.Messages[candidate.TopicName]
		if !ok {
			return errors.Errorf("frame %d has no message for %s", frame.Index, candidate.TopicName)
		}

		path := filepath.Join(outputDir, fileName(candidate.CandidateID, frame.Index)+selected[i].ext())
		if err := selected[i].write(path, msg); err != nil {
			return errors.Wrapf(err, "candidate %d, frame %d", candidate.CandidateID, frame.Index)
		}
	}

	e.logger.Debugw("wrote frame", "index", frame.Index, "files", len(candidates))
	return nil
}

func fileName(candidateID, index int) string {
	return fmt.Sprintf("%d_%06d", candidateID, index)
}
