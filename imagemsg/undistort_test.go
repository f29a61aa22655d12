package imagemsg

import (
	"image"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/mat"
)

func testCamera() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		10, 0, 10,
		0, 10, 10,
		0, 0, 1,
	})
}

func TestUndistortAbsent(t *testing.T) {
	img := gradient(21, 21)
	testCases := []struct {
		Name   string
		Camera *mat.Dense
		Dist   *mat.Dense
	}{
		{Name: "No Camera", Dist: mat.NewDense(1, 5, nil)},
		{Name: "No Distortion", Camera: testCamera()},
		{Name: "Empty Distortion", Camera: testCamera(), Dist: &mat.Dense{}},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.Name, func(t *testing.T) {
			out, err := Undistort(img, testCase.Camera, testCase.Dist)
			if err != nil {
				t.Fatal(err)
			}
			if out != img {
				t.Fatal("expected the input image")
			}
		})
	}
}

func TestUndistortIdentity(t *testing.T) {
	img := gradient(21, 21)
	out, err := Undistort(img, testCamera(), mat.NewDense(5, 1, nil))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(pixels(img), pixels(out)); diff != "" {
		t.Fatal(diff)
	}
}

func TestUndistortRadial(t *testing.T) {
	img := gradient(21, 21)
	// k1 = 0.1, stored as a column like the calibration parser does
	out, err := Undistort(img, testCamera(), mat.NewDense(5, 1, []float64{0.1, 0, 0, 0, 0}))
	if err != nil {
		t.Fatal(err)
	}

	testCases := []struct {
		Name     string
		Point    image.Point
		Expected uint8
	}{
		// the optical center doesn't move
		{Name: "Center", Point: image.Pt(10, 10), Expected: 100},
		// x = 0.5 is read from 0.5 * (1 + 0.1 * 0.25) = 0.5125, so u = 15.125
		{Name: "Interpolated", Point: image.Pt(15, 10), Expected: 151},
		// x = 1 is read from 1.1, so u = 21 which is outside of the image
		{Name: "Outside", Point: image.Pt(20, 10), Expected: 0},
		{Name: "Corner", Point: image.Pt(20, 20), Expected: 0},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.Name, func(t *testing.T) {
			c := out.NRGBAAt(testCase.Point.X, testCase.Point.Y)
			if c.R != testCase.Expected || c.G != testCase.Expected || c.B != testCase.Expected {
				t.Fatalf("expected %d, got %v", testCase.Expected, c)
			}
			if c.A != 0xff {
				t.Fatalf("expected an opaque pixel, got %v", c)
			}
		})
	}
}

func TestUndistortInvalid(t *testing.T) {
	img := gradient(4, 4)
	testCases := []struct {
		Name   string
		Camera *mat.Dense
		Dist   *mat.Dense
	}{
		{Name: "Camera Not 3x3", Camera: mat.NewDense(2, 2, []float64{1, 0, 0, 1}), Dist: mat.NewDense(1, 5, nil)},
		{Name: "Singular Camera", Camera: mat.NewDense(3, 3, nil), Dist: mat.NewDense(1, 5, nil)},
		{Name: "Three Coefficients", Camera: testCamera(), Dist: mat.NewDense(1, 3, nil)},
		{Name: "Matrix Coefficients", Camera: testCamera(), Dist: mat.NewDense(2, 4, nil)},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.Name, func(t *testing.T) {
			if _, err := Undistort(img, testCase.Camera, testCase.Dist); err == nil {
				t.Fatal("expected to fail")
			}
		})
	}
}
