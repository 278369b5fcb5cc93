package ssgan_go

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// NormRandDense Return reference to tensor.Dense filled with standard normally distributed float64 values
//
// rng - source of randomness. If nil then global math/rand is used
// shape - shape of resulting dense
//
func NormRandDense(rng *rand.Rand, shape ...int) *tensor.Dense {
	size := 1
	for _, s := range shape {
		size *= s
	}
	normal := rand.NormFloat64
	if rng != nil {
		normal = rng.NormFloat64
	}
	data := make([]float64, size)
	for i := range data {
		data[i] = normal()
	}
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
}

// glorotDense Glorot (Xavier) normal initialization: N(0, 2/(fanIn+fanOut))
func glorotDense(rng *rand.Rand, fanIn, fanOut int, shape ...int) *tensor.Dense {
	dense := NormRandDense(rng, shape...)
	std := math.Sqrt(2.0 / float64(fanIn+fanOut))
	data := dense.Data().([]float64)
	for i := range data {
		data[i] *= std
	}
	return dense
}

// newLearnable Creates weights node initialized from seeded RNG (so two models built with the same seed are identical)
func newLearnable(g *gorgonia.ExprGraph, name string, rng *rand.Rand, fanIn, fanOut int, shape ...int) *gorgonia.Node {
	return gorgonia.NewTensor(g, gorgonia.Float64, len(shape), gorgonia.WithShape(shape...), gorgonia.WithName(name), gorgonia.WithValue(glorotDense(rng, fanIn, fanOut, shape...)))
}

// newZeroLearnable Creates zero-initialized node (biases)
func newZeroLearnable(g *gorgonia.ExprGraph, name string, shape ...int) *gorgonia.Node {
	size := 1
	for _, s := range shape {
		size *= s
	}
	value := tensor.New(tensor.WithShape(shape...), tensor.WithBacking(make([]float64, size)))
	return gorgonia.NewTensor(g, gorgonia.Float64, len(shape), gorgonia.WithShape(shape...), gorgonia.WithName(name), gorgonia.WithValue(value))
}

// valueFloats Returns backing float64 slice of a value read from graph
func valueFloats(v gorgonia.Value) ([]float64, error) {
	if v == nil {
		return nil, fmt.Errorf("Value has not been computed yet")
	}
	switch data := v.Data().(type) {
	case []float64:
		return data, nil
	case float64:
		return []float64{data}, nil
	default:
		return nil, fmt.Errorf("Expected float64 data, but got %T", data)
	}
}

// scalarValue Extracts float64 from scalar value
func scalarValue(v gorgonia.Value) (float64, error) {
	data, err := valueFloats(v)
	if err != nil {
		return 0, err
	}
	if len(data) != 1 {
		return 0, fmt.Errorf("Expected scalar, but got %d elements", len(data))
	}
	return data[0], nil
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// zeroGrads Clears accumulated gradients of learnables
func zeroGrads(learnables gorgonia.Nodes) error {
	for _, n := range learnables {
		grad, err := n.Grad()
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("Can't access gradient of '%s'", n.Name()))
		}
		if z, ok := grad.(*tensor.Dense); ok {
			z.Zero()
		}
	}
	return nil
}

// denseFloats Returns backing float64 slice of dense
func denseFloats(t *tensor.Dense) ([]float64, error) {
	switch data := t.Data().(type) {
	case []float64:
		return data, nil
	case float64:
		return []float64{data}, nil
	default:
		return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("expected float64 tensor, but got %T", data))
	}
}
