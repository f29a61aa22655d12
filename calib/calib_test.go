package calib

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/mat"
)

const validCalibration = `%YAML:1.0
---
CameraExtrinsicMat: !!opencv-matrix
   rows: 4
   cols: 4
   dt: d
   data: [ 1., 0., 0., 0.5, 0., 1., 0., -0.25, 0., 0., 1., 1.5, 0., 0., 0., 1. ]
CameraMat: !!opencv-matrix
   rows: 3
   cols: 3
   dt: d
   data: [ 1000., 0., 640., 0., 1000., 360., 0., 0., 1. ]
DistCoeff: !!opencv-matrix
   rows: 1
   cols: 5
   dt: d
   data: [ -0.1, 0.01, 0.001, -0.002, 0. ]
ImageSize: [ 1280, 720 ]
ReprojectionError: 0.5
`

func writeCalibration(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "calib.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func denseData(m *mat.Dense) (int, int, []float64) {
	r, c := m.Dims()
	return r, c, mat.DenseCopyOf(m).RawMatrix().Data
}

func TestParse(t *testing.T) {
	path := writeCalibration(t, validCalibration)
	model, err := Parse(path)
	if err != nil {
		t.Fatal(err)
	}

	testCases := []struct {
		Name string
		M    *mat.Dense
		Rows int
		Cols int
		Data []float64
	}{
		{
			Name: "Extrinsic",
			M:    model.Extrinsic,
			Rows: 4,
			Cols: 4,
			Data: []float64{1, 0, 0, 0.5, 0, 1, 0, -0.25, 0, 0, 1, 1.5, 0, 0, 0, 1},
		},
		{
			Name: "Camera",
			M:    model.Camera,
			Rows: 3,
			Cols: 3,
			Data: []float64{1000, 0, 640, 0, 1000, 360, 0, 0, 1},
		},
		{
			Name: "Distortion Is Transposed",
			M:    model.Distortion,
			Rows: 5,
			Cols: 1,
			Data: []float64{-0.1, 0.01, 0.001, -0.002, 0},
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.Name, func(t *testing.T) {
			r, c, data := denseData(testCase.M)
			if r != testCase.Rows || c != testCase.Cols {
				t.Fatalf("expected %dx%d, got %dx%d", testCase.Rows, testCase.Cols, r, c)
			}
			if diff := cmp.Diff(testCase.Data, data); diff != "" {
				t.Fatal(diff)
			}
		})
	}

	// parsing is deterministic
	again, err := Parse(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, pair := range [][2]*mat.Dense{
		{model.Extrinsic, again.Extrinsic},
		{model.Camera, again.Camera},
		{model.Distortion, again.Distortion},
	} {
		if !mat.Equal(pair[0], pair[1]) {
			t.Fatal("expected identical matrices")
		}
	}
}

func TestParseInvalid(t *testing.T) {
	testCases := []struct {
		Name    string
		Content string
	}{
		{
			Name: "Missing Key",
			Content: `%YAML:1.0
CameraMat: !!opencv-matrix
   rows: 3
   cols: 3
   dt: d
   data: [ 1., 0., 0., 0., 1., 0., 0., 0., 1. ]
DistCoeff: !!opencv-matrix
   rows: 1
   cols: 4
   dt: d
   data: [ 0., 0., 0., 0. ]
`,
		},
		{
			Name:    "Malformed",
			Content: "%YAML:1.0\nCameraMat: [ 1., 2.\n",
		},
		{
			Name:    "Not A Mapping",
			Content: "- 1\n- 2\n",
		},
		{
			Name: "Shape Mismatch",
			Content: `%YAML:1.0
CameraExtrinsicMat: !!opencv-matrix
   rows: 4
   cols: 4
   dt: d
   data: [ 1., 0., 0. ]
CameraMat: !!opencv-matrix
   rows: 3
   cols: 3
   dt: d
   data: [ 1., 0., 0., 0., 1., 0., 0., 0., 1. ]
DistCoeff: !!opencv-matrix
   rows: 1
   cols: 4
   dt: d
   data: [ 0., 0., 0., 0. ]
`,
		},
		{
			Name: "Camera Not 3x3",
			Content: `%YAML:1.0
CameraExtrinsicMat: !!opencv-matrix
   rows: 1
   cols: 1
   dt: d
   data: [ 1. ]
CameraMat: !!opencv-matrix
   rows: 2
   cols: 2
   dt: d
   data: [ 1., 0., 0., 1. ]
DistCoeff: !!opencv-matrix
   rows: 1
   cols: 4
   dt: d
   data: [ 0., 0., 0., 0. ]
`,
		},
		{
			Name: "Matrix Is A Scalar",
			Content: `%YAML:1.0
CameraExtrinsicMat: 1
CameraMat: 2
DistCoeff: 3
`,
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.Name, func(t *testing.T) {
			path := writeCalibration(t, testCase.Content)
			_, err := Parse(path)

			var formatErr *FormatError
			if !errors.As(err, &formatErr) {
				t.Fatalf("expected a FormatError, got %v", err)
			}
			if formatErr.Path != path || formatErr.Unwrap() == nil {
				t.Fatalf("unexpected error %+v", formatErr)
			}
		})
	}
}

func TestParseMissingFile(t *testing.T) {
	_, err := Parse(filepath.Join(t.TempDir(), "missing.yaml"))

	var formatErr *FormatError
	if !errors.As(err, &formatErr) {
		t.Fatalf("expected a FormatError, got %v", err)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected the cause to be kept, got %v", err)
	}
}
