package ssgan_go

import (
	"fmt"
	"math/rand"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// dropoutApplication Dropout mask of one pass. Mask values are 1/keepProb for kept units and 0 for dropped ones
type dropoutApplication struct {
	mask *gorgonia.Node
	out  *gorgonia.Node

	last *tensor.Dense
}

func newDropoutApplication(x *gorgonia.Node, name string) (*dropoutApplication, error) {
	mask := gorgonia.NewTensor(x.Graph(), gorgonia.Float64, x.Shape().Dims(), gorgonia.WithShape(x.Shape().Clone()...), gorgonia.WithName(name+"_mask"))
	out, err := gorgonia.HadamardProd(x, mask)
	if err != nil {
		return nil, errors.Wrap(err, "Can't apply dropout mask")
	}
	return &dropoutApplication{
		mask: mask,
		out:  out,
	}, nil
}

// prime Draws fresh mask. keepProb >= 1 disables dropout
func (d *dropoutApplication) prime(keepProb float64, rng *rand.Rand) error {
	size := d.mask.Shape().TotalSize()
	backing := make([]float64, size)
	if keepProb >= 1.0 {
		for i := range backing {
			backing[i] = 1.0
		}
	} else {
		if keepProb <= 0 {
			return errors.Wrap(ErrBadConfig, "keep probability must be positive")
		}
		uniform := rand.Float64
		if rng != nil {
			uniform = rng.Float64
		}
		scale := 1.0 / keepProb
		for i := range backing {
			if uniform() < keepProb {
				backing[i] = scale
			}
		}
	}
	return d.feed(tensor.New(tensor.WithShape(d.mask.Shape().Clone()...), tensor.WithBacking(backing)))
}

// mirror Feeds the mask last drawn by src
func (d *dropoutApplication) mirror(src *dropoutApplication) error {
	if src.last == nil {
		return errors.New("Source dropout mask has not been drawn yet")
	}
	if !src.last.Shape().Eq(d.mask.Shape()) {
		return errors.Wrap(ErrShapeMismatch, fmt.Sprintf("dropout mask %v can't be mirrored into %v", src.last.Shape(), d.mask.Shape()))
	}
	return d.feed(src.last)
}

func (d *dropoutApplication) feed(mask *tensor.Dense) error {
	if err := gorgonia.Let(d.mask, mask); err != nil {
		return errors.Wrap(err, "Can't feed dropout mask")
	}
	d.last = mask
	return nil
}
