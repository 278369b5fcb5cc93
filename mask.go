package ssgan_go

import (
	"fmt"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gorgonia.org/tensor"
)

// SampleLabeledMask Returns binary vector of length batchSize with exactly floor(batchSize*labeledRate) ones at random positions.
// rng - source of randomness. If nil then global math/rand is used
func SampleLabeledMask(rng *rand.Rand, labeledRate float64, batchSize int) []float64 {
	mask := make([]float64, batchSize)
	count := LabeledCount(batchSize, labeledRate)
	if count > batchSize {
		count = batchSize
	}
	for i := 0; i < count; i++ {
		mask[i] = 1.0
	}
	shuffle := rand.Shuffle
	if rng != nil {
		shuffle = rng.Shuffle
	}
	shuffle(len(mask), func(i, j int) {
		mask[i], mask[j] = mask[j], mask[i]
	})
	return mask
}

// MaskDense Wraps mask into (N) tensor
func MaskDense(mask []float64) *tensor.Dense {
	return tensor.New(tensor.WithShape(len(mask)), tensor.WithBacking(mask))
}

// SupervisedDenominator Returns number of labeled examples in mask. Zero labeled examples is an error
func SupervisedDenominator(mask []float64) (float64, error) {
	denominator := floats.Sum(mask)
	if denominator < 1 {
		return 0, errors.Wrap(ErrNoLabeledExamples, fmt.Sprintf("mask of length %d selects nothing", len(mask)))
	}
	return denominator, nil
}
