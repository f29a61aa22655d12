package imagemsg

import (
	"image"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// brownConrady holds the distortion coefficients in OpenCV order: k1, k2, p1, p2, k3, k4,
// k5, k6. Missing trailing coefficients are zero.
type brownConrady [8]float64

func newBrownConrady(dist *mat.Dense) (brownConrady, error) {
	var bc brownConrady
	r, c := dist.Dims()
	if r != 1 && c != 1 {
		return bc, errors.Errorf("distortion coefficients must be a vector, got %dx%d", r, c)
	}

	n := r * c
	switch n {
	case 4, 5, 8:
	default:
		return bc, errors.Errorf("expected 4, 5 or 8 distortion coefficients, got %d", n)
	}

	for i := 0; i < n; i++ {
		if r == 1 {
			bc[i] = dist.At(0, i)
		} else {
			bc[i] = dist.At(i, 0)
		}
	}
	return bc, nil
}

// distort maps an undistorted normalized point to where the lens puts it.
func (bc brownConrady) distort(x, y float64) (float64, float64) {
	k1, k2, p1, p2, k3, k4, k5, k6 := bc[0], bc[1], bc[2], bc[3], bc[4], bc[5], bc[6], bc[7]
	r2 := x*x + y*y
	r4 := r2 * r2
	r6 := r4 * r2
	radial := (1 + k1*r2 + k2*r4 + k3*r6) / (1 + k4*r2 + k5*r4 + k6*r6)
	xd := x*radial + 2*p1*x*y + p2*(r2+2*x*x)
	yd := y*radial + p1*(r2+2*y*y) + 2*p2*x*y
	return xd, yd
}

func isAbsent(m *mat.Dense) bool {
	return m == nil || m.IsEmpty()
}

// Undistort corrects lens distortion, using camera as both the source and the
// destination projection. Pixels that map outside of img are black. When either matrix
// is absent, img is returned as is.
func Undistort(img *image.NRGBA, camera, dist *mat.Dense) (*image.NRGBA, error) {
	if isAbsent(camera) || isAbsent(dist) {
		return img, nil
	}

	if r, c := camera.Dims(); r != 3 || c != 3 {
		return nil, errors.Errorf("camera matrix must be 3x3, got %dx%d", r, c)
	}
	bc, err := newBrownConrady(dist)
	if err != nil {
		return nil, err
	}

	var inv mat.Dense
	if err := inv.Inverse(camera); err != nil {
		return nil, errors.Wrap(err, "camera matrix is not invertible")
	}

	bounds := img.Bounds()
	out := image.NewNRGBA(bounds)
	for v := bounds.Min.Y; v < bounds.Max.Y; v++ {
		for u := bounds.Min.X; u < bounds.Max.X; u++ {
			fu, fv := float64(u-bounds.Min.X), float64(v-bounds.Min.Y)
			w := inv.At(2, 0)*fu + inv.At(2, 1)*fv + inv.At(2, 2)
			x := (inv.At(0, 0)*fu + inv.At(0, 1)*fv + inv.At(0, 2)) / w
			y := (inv.At(1, 0)*fu + inv.At(1, 1)*fv + inv.At(1, 2)) / w

			xd, yd := bc.distort(x, y)
			su := camera.At(0, 0)*xd + camera.At(0, 1)*yd + camera.At(0, 2)
			sv := camera.At(1, 0)*xd + camera.At(1, 1)*yd + camera.At(1, 2)
			sw := camera.At(2, 0)*xd + camera.At(2, 1)*yd + camera.At(2, 2)

			bilinear(out, u, v, img, su/sw, sv/sw)
		}
	}
	return out, nil
}

// bilinear samples src at the sub-pixel position (x, y), relative to its origin, into
// dst at (u, v). Neighbors outside of src count as black.
func bilinear(dst *image.NRGBA, u, v int, src *image.NRGBA, x, y float64) {
	i := dst.PixOffset(u, v)
	dst.Pix[i+3] = 0xff
	b := src.Bounds()
	// also rejects NaN
	if !(x > -1 && y > -1 && x < float64(b.Dx()) && y < float64(b.Dy())) {
		return
	}

	x0, y0 := math.Floor(x), math.Floor(y)
	ax, ay := x-x0, y-y0
	ix, iy := int(x0), int(y0)
	weights := [4]float64{(1 - ax) * (1 - ay), ax * (1 - ay), (1 - ax) * ay, ax * ay}
	neighbors := [4]image.Point{{ix, iy}, {ix + 1, iy}, {ix, iy + 1}, {ix + 1, iy + 1}}

	var acc [3]float64
	for n, p := range neighbors {
		if weights[n] == 0 {
			continue
		}
		p = p.Add(b.Min)
		if !p.In(b) {
			continue
		}
		j := src.PixOffset(p.X, p.Y)
		for c := 0; c < 3; c++ {
			acc[c] += weights[n] * float64(src.Pix[j+c])
		}
	}

	for c := 0; c < 3; c++ {
		dst.Pix[i+c] = uint8(math.Min(255, math.Round(acc[c])))
	}
}
