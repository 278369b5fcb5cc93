package ssgan_go

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gorgonia.org/tensor"
)

// Reporter Consumer of training progress. Has no feedback into training loop
type Reporter interface {
	// EpochEnd Receives samples (grid*grid, H, W, C) generated after epoch
	EpochEnd(epoch int, samples *tensor.Dense) error
	// TrainEnd Receives full history after last epoch
	TrainEnd(history *History) error
}

type nopReporter struct{}

func (nopReporter) EpochEnd(int, *tensor.Dense) error { return nil }
func (nopReporter) TrainEnd(*History) error          { return nil }

// PlotReporter Saves sample grid of every epoch, loss history chart and history JSON into Dir
type PlotReporter struct {
	Dir      string
	GridSize int
}

// EpochEnd Saves Dir/epoch_<N>.png
func (r *PlotReporter) EpochEnd(epoch int, samples *tensor.Dense) error {
	if err := os.MkdirAll(r.Dir, 0755); err != nil {
		return errors.Wrap(err, "Can't create output directory")
	}
	return PlotSampleGrid(samples, r.GridSize, fmt.Sprintf("Epoch %d", epoch), filepath.Join(r.Dir, fmt.Sprintf("epoch_%d.png", epoch)))
}

// TrainEnd Saves Dir/train_hist.png and Dir/train_hist.json
func (r *PlotReporter) TrainEnd(history *History) error {
	if err := os.MkdirAll(r.Dir, 0755); err != nil {
		return errors.Wrap(err, "Can't create output directory")
	}
	if err := PlotLossHistory(history, filepath.Join(r.Dir, "train_hist.png")); err != nil {
		return err
	}
	return history.Save(filepath.Join(r.Dir, "train_hist.json"))
}

// PlotLossHistory Plot D_loss and G_loss per epoch. Epochs with non-finite loss are left out
func PlotLossHistory(history *History, fname string) error {
	if history == nil || len(history.DLosses) == 0 {
		return fmt.Errorf("History is empty")
	}
	p := plot.New()
	p.X.Label.Text = "Epoch"
	p.Y.Label.Text = "Loss"
	p.Add(plotter.NewGrid())
	series := []struct {
		name   string
		values []float64
		color  color.RGBA
	}{
		{"D_loss", history.DLosses, color.RGBA{B: 255, A: 255}},
		{"G_loss", history.GLosses, color.RGBA{R: 255, G: 128, A: 255}},
	}
	for _, ser := range series {
		data := finitePoints(ser.values)
		if len(data) == 0 {
			continue
		}
		line, err := plotter.NewLine(data)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("Can't init %s line", ser.name))
		}
		line.LineStyle.Color = ser.color
		p.Add(line)
		p.Legend.Add(ser.name, line)
	}
	p.Legend.Top = false
	p.Legend.Left = false
	// Save the plot to a PNG file.
	if err := p.Save(6*vg.Inch, 4*vg.Inch, fname); err != nil {
		return errors.Wrap(err, "Can't save plot")
	}
	return nil
}

// finitePoints (epoch, value) pairs of finite values
func finitePoints(values []float64) plotter.XYs {
	data := make(plotter.XYs, 0, len(values))
	for i, v := range values {
		if !isFinite(v) {
			continue
		}
		data = append(data, plotter.XY{X: float64(i), Y: v})
	}
	return data
}

// PlotSampleGrid Render first grid*grid images (N, H, W, C) with values in [-1;1] as one mosaic
func PlotSampleGrid(samples *tensor.Dense, grid int, title, fname string) error {
	mosaic, err := sampleMosaic(samples, grid)
	if err != nil {
		return err
	}
	bounds := mosaic.Bounds()
	p := plot.New()
	p.Title.Text = title
	p.HideAxes()
	p.Add(plotter.NewImage(mosaic, 0, 0, float64(bounds.Dx()), float64(bounds.Dy())))
	if err := p.Save(5*vg.Inch, 5*vg.Inch, fname); err != nil {
		return errors.Wrap(err, "Can't save plot")
	}
	return nil
}

// sampleMosaic Tiles images row by row. One channel gives grayscale image, three channels give RGB
func sampleMosaic(samples *tensor.Dense, grid int) (image.Image, error) {
	shp := samples.Shape()
	if len(shp) != 4 {
		return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("samples must be (N, H, W, C), but got %v", shp))
	}
	n, h, w, c := shp[0], shp[1], shp[2], shp[3]
	if grid <= 0 || n < grid*grid {
		return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("%d samples can't fill %dx%d grid", n, grid, grid))
	}
	if c != 1 && c != 3 {
		return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("can't render %d channels", c))
	}
	data, err := denseFloats(samples)
	if err != nil {
		return nil, err
	}
	toByte := func(v float64) uint8 {
		v = (v + 1) / 2 * 255
		if v < 0 {
			return 0
		}
		if v > 255 {
			return 255
		}
		return uint8(v)
	}
	mosaic := image.NewRGBA(image.Rect(0, 0, grid*w, grid*h))
	for k := 0; k < grid*grid; k++ {
		offY, offX := (k/grid)*h, (k%grid)*w
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				pix := data[((k*h+y)*w+x)*c:]
				var col color.RGBA
				if c == 1 {
					v := toByte(pix[0])
					col = color.RGBA{R: v, G: v, B: v, A: 255}
				} else {
					col = color.RGBA{R: toByte(pix[0]), G: toByte(pix[1]), B: toByte(pix[2]), A: 255}
				}
				mosaic.SetRGBA(offX+x, offY+y, col)
			}
		}
	}
	return mosaic, nil
}
