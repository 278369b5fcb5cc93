package ssgan_go

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"gorgonia.org/tensor"
)

func TestSampleMosaic(t *testing.T) {
	// Four 1x2 grayscale images
	samples := tensor.New(tensor.WithShape(4, 1, 2, 1), tensor.WithBacking([]float64{
		-1, 1,
		0, 0,
		1, 1,
		-1, -1,
	}))
	img, err := sampleMosaic(samples, 2)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 4 || img.Bounds().Dy() != 2 {
		t.Fatalf("mosaic bounds %v", img.Bounds())
	}
	checks := []struct {
		x, y int
		v    uint8
	}{
		{0, 0, 0}, {1, 0, 255}, {2, 0, 127}, {0, 1, 255}, {3, 1, 0},
	}
	for _, c := range checks {
		got := color.RGBAModel.Convert(img.At(c.x, c.y)).(color.RGBA)
		if got.R != c.v || got.G != c.v || got.B != c.v {
			t.Errorf("pixel (%d, %d) is %v, want gray %d", c.x, c.y, got, c.v)
		}
	}
	if _, err := sampleMosaic(samples, 3); err == nil {
		t.Error("expected error for grid larger than number of samples")
	}
}

func TestPlotFiles(t *testing.T) {
	dir := t.TempDir()
	samples := NormRandDense(nil, 4, 8, 8, 1)
	if err := PlotSampleGrid(samples, 2, "Epoch 1", filepath.Join(dir, "grid.png")); err != nil {
		t.Fatal(err)
	}
	history := &History{}
	history.Append(1.5, 0.7, 0.3)
	history.Append(1.2, 0.9, 0.5)
	if err := PlotLossHistory(history, filepath.Join(dir, "hist.png")); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"grid.png", "hist.png"} {
		if info, err := os.Stat(filepath.Join(dir, name)); err != nil || info.Size() == 0 {
			t.Errorf("%s was not written", name)
		}
	}
	if err := PlotLossHistory(&History{}, filepath.Join(dir, "empty.png")); err == nil {
		t.Error("expected error for empty history")
	}
}
