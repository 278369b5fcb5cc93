package ssgan_go

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// BatchNorm State of batch normalization layer shared by every pass through it.
// Normalization is per channel for 4-D (N,C,H,W) inputs and per feature for 2-D (N,F) inputs.
//
// Gamma, Beta - learnable scale and shift, shape (Channels, 1)
// RunningMean, RunningVar - statistics used in inference mode. Updated by Commit of a pass only
//
type BatchNorm struct {
	Name     string
	Channels int
	Momentum float64
	Epsilon  float64

	Gamma *gorgonia.Node
	Beta  *gorgonia.Node

	RunningMean []float64
	RunningVar  []float64
}

// NewBatchNorm Creates batch normalization state with gamma=1, beta=0, running mean=0, running variance=1
func NewBatchNorm(g *gorgonia.ExprGraph, name string, channels int, momentum, epsilon float64) *BatchNorm {
	ones := make([]float64, channels)
	runVar := make([]float64, channels)
	for i := range ones {
		ones[i] = 1.0
		runVar[i] = 1.0
	}
	gamma := tensor.New(tensor.WithShape(channels, 1), tensor.WithBacking(ones))
	beta := tensor.New(tensor.WithShape(channels, 1), tensor.WithBacking(make([]float64, channels)))
	return &BatchNorm{
		Name:        name,
		Channels:    channels,
		Momentum:    momentum,
		Epsilon:     epsilon,
		Gamma:       gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(channels, 1), gorgonia.WithName(name+"_gamma"), gorgonia.WithValue(gamma)),
		Beta:        gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(channels, 1), gorgonia.WithName(name+"_beta"), gorgonia.WithValue(beta)),
		RunningMean: make([]float64, channels),
		RunningVar:  runVar,
	}
}

// batchNormApplication Inputs and observed statistics of one pass through batch normalization
//
// selector - 1 in training mode, 0 in inference mode
// selectorInv - 1-selector
// runMean, runVar - running statistics fed before run
//
type batchNormApplication struct {
	norm *BatchNorm
	out  *gorgonia.Node

	selector    *gorgonia.Node
	selectorInv *gorgonia.Node
	runMean     *gorgonia.Node
	runVar      *gorgonia.Node

	training  bool
	batchMean gorgonia.Value
	batchVar  gorgonia.Value
}

// apply Builds normalization of x.
// Statistics used are selector*batch + (1-selector)*running, so the same graph serves both modes.
func (bn *BatchNorm) apply(x *gorgonia.Node, name string) (*batchNormApplication, error) {
	g := x.Graph()
	shp := x.Shape()
	var xt *gorgonia.Node
	var err error
	switch len(shp) {
	case 2:
		// (N,F) -> (F,N)
		xt, err = gorgonia.Transpose(x)
		if err != nil {
			return nil, errors.Wrap(err, "Can't transpose input")
		}
	case 4:
		// (N,C,H,W) -> (C,N,H,W) -> (C,N*H*W)
		tr, err := gorgonia.Transpose(x, 1, 0, 2, 3)
		if err != nil {
			return nil, errors.Wrap(err, "Can't move channels to first axis")
		}
		xt, err = gorgonia.Reshape(tr, tensor.Shape{shp[1], shp[0] * shp[2] * shp[3]})
		if err != nil {
			return nil, errors.Wrap(err, "Can't merge batch and spatial dimensions")
		}
	default:
		return nil, fmt.Errorf("Batch normalization supports 2-D and 4-D inputs, but got %v", shp)
	}
	channels := xt.Shape()[0]
	if channels != bn.Channels {
		return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("batch normalization '%s' expects %d channels, but got %d", bn.Name, bn.Channels, channels))
	}
	colShape := tensor.Shape{channels, 1}

	app := &batchNormApplication{
		norm:        bn,
		selector:    gorgonia.NewScalar(g, gorgonia.Float64, gorgonia.WithName(name+"_selector")),
		selectorInv: gorgonia.NewScalar(g, gorgonia.Float64, gorgonia.WithName(name+"_selector_inv")),
		runMean:     gorgonia.NewVector(g, gorgonia.Float64, gorgonia.WithShape(channels), gorgonia.WithName(name+"_running_mean")),
		runVar:      gorgonia.NewVector(g, gorgonia.Float64, gorgonia.WithShape(channels), gorgonia.WithName(name+"_running_var")),
	}

	// Batch statistics
	mean, err := gorgonia.Mean(xt, 1)
	if err != nil {
		return nil, errors.Wrap(err, "Can't calculate batch mean")
	}
	meanCol, err := gorgonia.Reshape(mean, colShape)
	if err != nil {
		return nil, errors.Wrap(err, "Can't reshape batch mean")
	}
	dev, err := gorgonia.BroadcastSub(xt, meanCol, nil, []byte{1})
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (X-mean)")
	}
	sqrDev, err := gorgonia.Square(dev)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x^2)")
	}
	variance, err := gorgonia.Mean(sqrDev, 1)
	if err != nil {
		return nil, errors.Wrap(err, "Can't calculate batch variance")
	}
	gorgonia.Read(mean, &app.batchMean)
	gorgonia.Read(variance, &app.batchVar)

	// Mode-selected statistics
	mixedMean, err := mix(app.selector, mean, app.selectorInv, app.runMean)
	if err != nil {
		return nil, errors.Wrap(err, "Can't select mean")
	}
	mixedVar, err := mix(app.selector, variance, app.selectorInv, app.runVar)
	if err != nil {
		return nil, errors.Wrap(err, "Can't select variance")
	}
	mixedMeanCol, err := gorgonia.Reshape(mixedMean, colShape)
	if err != nil {
		return nil, errors.Wrap(err, "Can't reshape selected mean")
	}
	centered, err := gorgonia.BroadcastSub(xt, mixedMeanCol, nil, []byte{1})
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (X-mean)")
	}
	eps := gorgonia.NewScalar(g, gorgonia.Float64, gorgonia.WithName(name+"_epsilon"), gorgonia.WithValue(bn.Epsilon))
	varEps, err := gorgonia.Add(mixedVar, eps)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (var+eps)")
	}
	std, err := gorgonia.Sqrt(varEps)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do √x")
	}
	stdCol, err := gorgonia.Reshape(std, colShape)
	if err != nil {
		return nil, errors.Wrap(err, "Can't reshape deviation")
	}
	normed, err := gorgonia.BroadcastHadamardDiv(centered, stdCol, nil, []byte{1})
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (X/std)")
	}
	scaled, err := gorgonia.BroadcastHadamardProd(normed, bn.Gamma, nil, []byte{1})
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (gamma.*X)")
	}
	shifted, err := gorgonia.BroadcastAdd(scaled, bn.Beta, nil, []byte{1})
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (X+beta)")
	}

	// Restore input layout
	switch len(shp) {
	case 2:
		app.out, err = gorgonia.Transpose(shifted)
		if err != nil {
			return nil, errors.Wrap(err, "Can't transpose output")
		}
	case 4:
		back, err := gorgonia.Reshape(shifted, tensor.Shape{shp[1], shp[0], shp[2], shp[3]})
		if err != nil {
			return nil, errors.Wrap(err, "Can't split batch and spatial dimensions")
		}
		app.out, err = gorgonia.Transpose(back, 1, 0, 2, 3)
		if err != nil {
			return nil, errors.Wrap(err, "Can't move channels back")
		}
	}
	return app, nil
}

// mix Returns a*x + b*y for scalar a, b
func mix(a, x, b, y *gorgonia.Node) (*gorgonia.Node, error) {
	ax, err := gorgonia.Mul(a, x)
	if err != nil {
		return nil, err
	}
	by, err := gorgonia.Mul(b, y)
	if err != nil {
		return nil, err
	}
	return gorgonia.Add(ax, by)
}

func (app *batchNormApplication) prime(training bool) error {
	selector := 0.0
	if training {
		selector = 1.0
	}
	app.training = training
	if err := gorgonia.Let(app.selector, selector); err != nil {
		return errors.Wrap(err, "Can't feed mode selector")
	}
	if err := gorgonia.Let(app.selectorInv, 1.0-selector); err != nil {
		return errors.Wrap(err, "Can't feed mode selector")
	}
	runMean := make([]float64, app.norm.Channels)
	copy(runMean, app.norm.RunningMean)
	if err := gorgonia.Let(app.runMean, tensor.New(tensor.WithShape(app.norm.Channels), tensor.WithBacking(runMean))); err != nil {
		return errors.Wrap(err, "Can't feed running mean")
	}
	runVar := make([]float64, app.norm.Channels)
	copy(runVar, app.norm.RunningVar)
	if err := gorgonia.Let(app.runVar, tensor.New(tensor.WithShape(app.norm.Channels), tensor.WithBacking(runVar))); err != nil {
		return errors.Wrap(err, "Can't feed running variance")
	}
	return nil
}

// commit running = momentum*running + (1-momentum)*batch. No-op for passes run in inference mode.
func (app *batchNormApplication) commit() error {
	if !app.training {
		return nil
	}
	mean, err := valueFloats(app.batchMean)
	if err != nil {
		return errors.Wrap(err, "Can't read batch mean")
	}
	variance, err := valueFloats(app.batchVar)
	if err != nil {
		return errors.Wrap(err, "Can't read batch variance")
	}
	bn := app.norm
	if len(mean) != bn.Channels || len(variance) != bn.Channels {
		return errors.Wrap(ErrShapeMismatch, fmt.Sprintf("batch statistics have %d/%d values for %d channels", len(mean), len(variance), bn.Channels))
	}
	for i := 0; i < bn.Channels; i++ {
		bn.RunningMean[i] = bn.Momentum*bn.RunningMean[i] + (1-bn.Momentum)*mean[i]
		bn.RunningVar[i] = bn.Momentum*bn.RunningVar[i] + (1-bn.Momentum)*variance[i]
	}
	return nil
}
