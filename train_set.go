package ssgan_go

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Dataset Source of (images, one-hot labels) batches
type Dataset interface {
	// NextBatch Returns images (N, H, W, C) and labels (N, K). Batches are always full
	NextBatch(batchSize int, shuffle bool) (*tensor.Dense, *tensor.Dense, error)
	// NumExamples Total number of examples
	NumExamples() int
}

// TrainSet In-memory dataset.
// When the rest of a pass is shorter than requested batch, the rest is joined with the head of the next pass (reshuffled if requested).
//
// TrainData - images (N, H, W, C) with values in [0;1]
// TrainLabel - one-hot labels (N, K)
//
type TrainSet struct {
	TrainData  *tensor.Dense
	TrainLabel *tensor.Dense
	DataLength int

	order           []int
	indexInEpoch    int
	epochsCompleted int
	rng             *rand.Rand
}

// NewTrainSet Creates dataset. rng is used for shuffling; if nil then global math/rand is used
func NewTrainSet(images, labels *tensor.Dense, rng *rand.Rand) (*TrainSet, error) {
	if images.Dims() != 4 {
		return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("images must be (N, H, W, C), but got %v", images.Shape()))
	}
	if labels.Dims() != 2 || labels.Shape()[0] != images.Shape()[0] {
		return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("labels must be (%d, K), but got %v", images.Shape()[0], labels.Shape()))
	}
	if _, err := denseFloats(images); err != nil {
		return nil, err
	}
	if _, err := denseFloats(labels); err != nil {
		return nil, err
	}
	n := images.Shape()[0]
	if n == 0 {
		return nil, fmt.Errorf("Dataset must have one example atleast")
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return &TrainSet{
		TrainData:  images,
		TrainLabel: labels,
		DataLength: n,
		order:      order,
		rng:        rng,
	}, nil
}

// NumExamples Total number of examples
func (ts *TrainSet) NumExamples() int {
	return ts.DataLength
}

// EpochsCompleted Number of full passes over data
func (ts *TrainSet) EpochsCompleted() int {
	return ts.epochsCompleted
}

// CheckConfig Verifies that examples have as many channels and classes as cfg expects.
// Image height and width may differ since batches are resized before every step
func (ts *TrainSet) CheckConfig(cfg Config) error {
	if channels := ts.TrainData.Shape()[3]; channels != cfg.ImgChannels {
		return errors.Wrap(ErrShapeMismatch, fmt.Sprintf("dataset images have %d channels, but config expects %d", channels, cfg.ImgChannels))
	}
	if classes := ts.TrainLabel.Shape()[1]; classes != cfg.NumClasses {
		return errors.Wrap(ErrShapeMismatch, fmt.Sprintf("dataset labels have %d classes, but config expects %d", classes, cfg.NumClasses))
	}
	return nil
}

func (ts *TrainSet) permute() {
	shuffle := rand.Shuffle
	if ts.rng != nil {
		shuffle = ts.rng.Shuffle
	}
	shuffle(len(ts.order), func(i, j int) {
		ts.order[i], ts.order[j] = ts.order[j], ts.order[i]
	})
}

// NextBatch Returns next batch of examples
func (ts *TrainSet) NextBatch(batchSize int, shuffle bool) (*tensor.Dense, *tensor.Dense, error) {
	if batchSize <= 0 {
		return nil, nil, errors.Wrap(ErrBadConfig, fmt.Sprintf("batch size must be positive, but got %d", batchSize))
	}
	if ts.epochsCompleted == 0 && ts.indexInEpoch == 0 && shuffle {
		ts.permute()
	}
	indices := make([]int, 0, batchSize)
	for len(indices) < batchSize {
		need := batchSize - len(indices)
		rest := ts.DataLength - ts.indexInEpoch
		if need < rest {
			indices = append(indices, ts.order[ts.indexInEpoch:ts.indexInEpoch+need]...)
			ts.indexInEpoch += need
			break
		}
		indices = append(indices, ts.order[ts.indexInEpoch:]...)
		ts.epochsCompleted++
		ts.indexInEpoch = 0
		if shuffle {
			ts.permute()
		}
	}
	images, err := gatherRows(ts.TrainData, indices)
	if err != nil {
		return nil, nil, errors.Wrap(err, "Can't gather images")
	}
	labels, err := gatherRows(ts.TrainLabel, indices)
	if err != nil {
		return nil, nil, errors.Wrap(err, "Can't gather labels")
	}
	return images, labels, nil
}

// gatherRows Copies rows (first axis) of t in given order
func gatherRows(t *tensor.Dense, indices []int) (*tensor.Dense, error) {
	data, err := denseFloats(t)
	if err != nil {
		return nil, err
	}
	shp := t.Shape().Clone()
	rowSize := shp.TotalSize() / shp[0]
	out := make([]float64, len(indices)*rowSize)
	for i, idx := range indices {
		copy(out[i*rowSize:(i+1)*rowSize], data[idx*rowSize:(idx+1)*rowSize])
	}
	shp[0] = len(indices)
	return tensor.New(tensor.WithShape(shp...), tensor.WithBacking(out)), nil
}

// SyntheticTrainSet Generates dataset of class-dependent blobs: class k is a bright spot on a circle at angle 2*pi*k/K, plus uniform noise.
// Useful for smoke runs when MNIST files are not available.
func SyntheticTrainSet(n, height, width, channels, numClasses int, rng *rand.Rand) (*TrainSet, error) {
	if n <= 0 || height <= 0 || width <= 0 || channels <= 0 || numClasses <= 0 {
		return nil, errors.Wrap(ErrBadConfig, fmt.Sprintf("synthetic dataset needs positive sizes, but got n=%d %dx%dx%d k=%d", n, height, width, channels, numClasses))
	}
	uniform := rand.Float64
	intn := rand.Intn
	if rng != nil {
		uniform = rng.Float64
		intn = rng.Intn
	}
	perImage := height * width * channels
	images := make([]float64, n*perImage)
	classes := make([]int, n)
	sigma := math.Max(float64(height), float64(width)) / 8
	for i := 0; i < n; i++ {
		class := intn(numClasses)
		classes[i] = class
		angle := 2 * math.Pi * float64(class) / float64(numClasses)
		cy := float64(height)/2 + float64(height)/4*math.Sin(angle)
		cx := float64(width)/2 + float64(width)/4*math.Cos(angle)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				d2 := (float64(y)-cy)*(float64(y)-cy) + (float64(x)-cx)*(float64(x)-cx)
				v := math.Exp(-d2/(2*sigma*sigma)) + 0.1*uniform()
				if v > 1 {
					v = 1
				}
				for c := 0; c < channels; c++ {
					images[i*perImage+(y*width+x)*channels+c] = v
				}
			}
		}
	}
	labels, err := OneHot(classes, numClasses)
	if err != nil {
		return nil, err
	}
	return NewTrainSet(tensor.New(tensor.WithShape(n, height, width, channels), tensor.WithBacking(images)), labels, rng)
}
