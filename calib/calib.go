// Package calib reads camera calibration files written by OpenCV's FileStorage, such as
// the ones produced by Autoware's camera-lidar calibration tool.
package calib

import (
	"bytes"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

const (
	keyExtrinsic  = "CameraExtrinsicMat"
	keyCamera     = "CameraMat"
	keyDistortion = "DistCoeff"
)

// FormatError is returned for any calibration file that can't be turned into a Model,
// including files that can't be read.
type FormatError struct {
	Path string
	Err  error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("unknown calibration format %q: %v", e.Path, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// Model is a camera calibration. Distortion is a column vector, the transpose of the row
// stored on disk.
type Model struct {
	Extrinsic  *mat.Dense
	Camera     *mat.Dense
	Distortion *mat.Dense
}

// matrix is an !!opencv-matrix node.
type matrix struct {
	Rows int       `yaml:"rows"`
	Cols int       `yaml:"cols"`
	Dt   string    `yaml:"dt"`
	Data []float64 `yaml:"data"`
}

func (m *matrix) dense() (*mat.Dense, error) {
	if m.Rows <= 0 || m.Cols <= 0 {
		return nil, errors.Errorf("invalid shape %dx%d", m.Rows, m.Cols)
	}
	if len(m.Data) != m.Rows*m.Cols {
		return nil, errors.Errorf("shape %dx%d needs %d values, got %d", m.Rows, m.Cols, m.Rows*m.Cols, len(m.Data))
	}
	return mat.NewDense(m.Rows, m.Cols, append([]float64(nil), m.Data...)), nil
}

// Parse reads the calibration file at path.
func Parse(path string) (*Model, error) {
	//nolint:gosec
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}

	model, err := parse(raw)
	if err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}
	return model, nil
}

func parse(raw []byte) (*Model, error) {
	// OpenCV writes a "%YAML:1.0" directive, which isn't valid YAML
	if bytes.HasPrefix(raw, []byte("%YAML")) {
		if idx := bytes.IndexByte(raw, '\n'); idx != -1 {
			raw = raw[idx+1:]
		} else {
			raw = nil
		}
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "malformed yaml")
	}
	if len(doc.Content) != 1 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, errors.New("expected a mapping of named matrices")
	}

	nodes := make(map[string]*yaml.Node)
	root := doc.Content[0]
	for i := 0; i+1 < len(root.Content); i += 2 {
		nodes[root.Content[i].Value] = root.Content[i+1]
	}

	var model Model
	for _, entry := range []struct {
		key string
		dst **mat.Dense
	}{
		{keyExtrinsic, &model.Extrinsic},
		{keyCamera, &model.Camera},
		{keyDistortion, &model.Distortion},
	} {
		node, ok := nodes[entry.key]
		if !ok {
			return nil, errors.Errorf("missing %s", entry.key)
		}
		if node.Kind != yaml.MappingNode {
			return nil, errors.Errorf("%s is not a matrix", entry.key)
		}

		// the !!opencv-matrix tag is only a marker
		node.Tag = "!!map"
		var m matrix
		if err := node.Decode(&m); err != nil {
			return nil, errors.Wrapf(err, "invalid %s", entry.key)
		}
		dense, err := m.dense()
		if err != nil {
			return nil, errors.Wrapf(err, "invalid %s", entry.key)
		}
		*entry.dst = dense
	}

	if r, c := model.Camera.Dims(); r != 3 || c != 3 {
		return nil, errors.Errorf("%s must be 3x3, got %dx%d", keyCamera, r, c)
	}
	if r, c := model.Distortion.Dims(); r != 1 && c != 1 {
		return nil, errors.Errorf("%s must be a vector, got %dx%d", keyDistortion, r, c)
	}
	model.Distortion = mat.DenseCopyOf(model.Distortion.T())

	return &model, nil
}
