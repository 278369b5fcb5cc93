package ssgan_go

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ResizeBilinear Resizes images (N, H, W, C) to (N, outH, outW, C).
// Source coordinate of output pixel is dst*in/out (no half-pixel centers), neighbours are clamped at the border.
func ResizeBilinear(images *tensor.Dense, outH, outW int) (*tensor.Dense, error) {
	shp := images.Shape()
	if len(shp) != 4 {
		return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("images must be (N, H, W, C), but got %v", shp))
	}
	if outH <= 0 || outW <= 0 {
		return nil, errors.Wrap(ErrBadConfig, fmt.Sprintf("target size must be positive, but got %dx%d", outH, outW))
	}
	data, err := denseFloats(images)
	if err != nil {
		return nil, err
	}
	n, inH, inW, c := shp[0], shp[1], shp[2], shp[3]
	out := make([]float64, n*outH*outW*c)
	scaleY := float64(inH) / float64(outH)
	scaleX := float64(inW) / float64(outW)
	for b := 0; b < n; b++ {
		src := data[b*inH*inW*c : (b+1)*inH*inW*c]
		dst := out[b*outH*outW*c : (b+1)*outH*outW*c]
		for y := 0; y < outH; y++ {
			fy := float64(y) * scaleY
			y0 := int(math.Floor(fy))
			y1 := minInt(y0+1, inH-1)
			dy := fy - float64(y0)
			for x := 0; x < outW; x++ {
				fx := float64(x) * scaleX
				x0 := int(math.Floor(fx))
				x1 := minInt(x0+1, inW-1)
				dx := fx - float64(x0)
				for ch := 0; ch < c; ch++ {
					topLeft := src[(y0*inW+x0)*c+ch]
					topRight := src[(y0*inW+x1)*c+ch]
					bottomLeft := src[(y1*inW+x0)*c+ch]
					bottomRight := src[(y1*inW+x1)*c+ch]
					top := topLeft + (topRight-topLeft)*dx
					bottom := bottomLeft + (bottomRight-bottomLeft)*dx
					dst[(y*outW+x)*c+ch] = top + (bottom-top)*dy
				}
			}
		}
	}
	return tensor.New(tensor.WithShape(n, outH, outW, c), tensor.WithBacking(out)), nil
}

// ScaleToSymmetric Maps [0;1] to [-1;1]: (x-0.5)/0.5. Returns new dense
func ScaleToSymmetric(images *tensor.Dense) (*tensor.Dense, error) {
	data, err := denseFloats(images)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = (v - 0.5) / 0.5
	}
	return tensor.New(tensor.WithShape(images.Shape().Clone()...), tensor.WithBacking(out)), nil
}

// PrepareImages Resizes images (if needed) to (outH, outW) and scales them to [-1;1]
func PrepareImages(images *tensor.Dense, outH, outW int) (*tensor.Dense, error) {
	shp := images.Shape()
	if len(shp) != 4 {
		return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("images must be (N, H, W, C), but got %v", shp))
	}
	if shp[1] != outH || shp[2] != outW {
		resized, err := ResizeBilinear(images, outH, outW)
		if err != nil {
			return nil, errors.Wrap(err, "Can't resize images")
		}
		images = resized
	}
	return ScaleToSymmetric(images)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
