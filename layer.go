package ssgan_go

import (
	"fmt"
	"math/rand"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Layer Just an alias to Weight+Bias+ActivationFunc combo (plus parameters of parameterless layers)
//
// ReshapeDims - per-example target shape for LayerReshape; batch dimension is prepended
// Axes - permutation for LayerTranspose
// Scale - upsampling factor for LayerUpsample
// Norm - shared batch normalization state for LayerBatchNorm
//
type Layer struct {
	WeightNode     *gorgonia.Node
	BiasNode       *gorgonia.Node
	Activation     ActivationFunc
	ActivationOpts Options
	Type           LayerType

	KernelHeight int
	KernelWidth  int
	Padding      []int
	Stride       []int
	Dilation     []int
	ReshapeDims  []int
	Axes         []int
	Scale        int
	Norm         *BatchNorm
}

type LayerType uint16

const (
	LayerLinear = LayerType(iota)
	LayerFlatten
	LayerConvolutional
	LayerReshape
	LayerTranspose
	LayerUpsample
	LayerDropout
	LayerBatchNorm
	LayerGlobalAvgPool
)

func (lt LayerType) String() string {
	switch lt {
	case LayerLinear:
		return "linear"
	case LayerFlatten:
		return "flatten"
	case LayerConvolutional:
		return "conv2d"
	case LayerReshape:
		return "reshape"
	case LayerTranspose:
		return "transpose"
	case LayerUpsample:
		return "upsample"
	case LayerDropout:
		return "dropout"
	case LayerBatchNorm:
		return "batchnorm"
	case LayerGlobalAvgPool:
		return "global_avg_pool"
	default:
		return fmt.Sprintf("layer(%d)", uint16(lt))
	}
}

var (
	allowedNoWeights = []LayerType{LayerFlatten, LayerReshape, LayerTranspose, LayerUpsample, LayerDropout, LayerBatchNorm, LayerGlobalAvgPool}
)

func noWeightsAllowed(checkType LayerType) bool {
	return checkLayerType(checkType, allowedNoWeights...)
}

func checkLayerType(checkType LayerType, t ...LayerType) bool {
	for _, typeOf := range t {
		if checkType == typeOf {
			return true
		}
	}
	return false
}

// Fwd Feedforward input through layer (before activation).
// Stateful layers (dropout, batch normalization) register their per-application inputs in the pass.
func (l *Layer) Fwd(pass *Pass, input *gorgonia.Node, batchSize int) (*gorgonia.Node, error) {
	var out *gorgonia.Node
	var err error
	switch l.Type {
	case LayerLinear:
		tOp, err := gorgonia.Transpose(l.WeightNode)
		if err != nil {
			return nil, errors.Wrap(err, "Can't transpose weights")
		}
		out, err = gorgonia.Mul(input, tOp)
		if err != nil {
			return nil, errors.Wrap(err, "Can't multiply input and weights")
		}
		if l.BiasNode != nil {
			if batchSize < 2 {
				out, err = gorgonia.Add(out, l.BiasNode)
				if err != nil {
					return nil, errors.Wrap(err, "Can't add bias")
				}
			} else {
				out, err = gorgonia.BroadcastAdd(out, l.BiasNode, nil, []byte{0})
				if err != nil {
					return nil, errors.Wrap(err, fmt.Sprintf("Can't add bias [in broadcast term with batch_size = %d]", batchSize))
				}
			}
		}
	case LayerConvolutional:
		out, err = gorgonia.Conv2d(input, l.WeightNode, tensor.Shape{l.KernelHeight, l.KernelWidth}, l.Padding, l.Stride, l.Dilation)
		if err != nil {
			return nil, errors.Wrap(err, "Can't convolve[2D] input by kernel")
		}
	case LayerFlatten:
		out, err = gorgonia.Reshape(input, tensor.Shape{batchSize, input.Shape().TotalSize() / batchSize})
		if err != nil {
			return nil, errors.Wrap(err, "Can't flatten input")
		}
	case LayerReshape:
		out, err = gorgonia.Reshape(input, append(tensor.Shape{batchSize}, l.ReshapeDims...))
		if err != nil {
			return nil, errors.Wrap(err, "Can't reshape input")
		}
	case LayerTranspose:
		out, err = gorgonia.Transpose(input, l.Axes...)
		if err != nil {
			return nil, errors.Wrap(err, "Can't transpose input")
		}
	case LayerUpsample:
		out, err = gorgonia.Upsample2D(input, l.Scale)
		if err != nil {
			return nil, errors.Wrap(err, "Can't upsample input")
		}
	case LayerGlobalAvgPool:
		shp := input.Shape()
		if len(shp) != 4 {
			return nil, fmt.Errorf("Global average pooling needs 4-D input, but got %v", shp)
		}
		flat, err := gorgonia.Reshape(input, tensor.Shape{shp[0], shp[1], shp[2] * shp[3]})
		if err != nil {
			return nil, errors.Wrap(err, "Can't merge spatial dimensions")
		}
		out, err = gorgonia.Mean(flat, 2)
		if err != nil {
			return nil, errors.Wrap(err, "Can't average over spatial dimensions")
		}
	case LayerDropout:
		app, err := newDropoutApplication(input, fmt.Sprintf("%s_dropout_%d", pass.name, len(pass.dropouts)))
		if err != nil {
			return nil, err
		}
		pass.dropouts = append(pass.dropouts, app)
		out = app.out
	case LayerBatchNorm:
		if l.Norm == nil {
			return nil, fmt.Errorf("Batch normalization layer has no state")
		}
		app, err := l.Norm.apply(input, fmt.Sprintf("%s_bn_%d", pass.name, len(pass.norms)))
		if err != nil {
			return nil, err
		}
		pass.norms = append(pass.norms, app)
		out = app.out
	default:
		return nil, fmt.Errorf("Layer type '%s' is not handled", l.Type)
	}
	return out, nil
}

// Learnables Returns learnables nodes of the layer
func (l *Layer) Learnables() gorgonia.Nodes {
	learnables := make(gorgonia.Nodes, 0, 2)
	if l.WeightNode != nil {
		learnables = append(learnables, l.WeightNode)
	}
	if l.BiasNode != nil {
		learnables = append(learnables, l.BiasNode)
	}
	if l.Type == LayerBatchNorm && l.Norm != nil {
		learnables = append(learnables, l.Norm.Gamma, l.Norm.Beta)
	}
	return learnables
}

// NewLinearLayer Creates fully-connected layer: weights (out, in), optional bias (1, out)
func NewLinearLayer(g *gorgonia.ExprGraph, name string, rng *rand.Rand, in, out int, withBias bool, activation ActivationFunc, opts ...Options) *Layer {
	l := &Layer{
		WeightNode: newLearnable(g, name+"_w", rng, in, out, out, in),
		Activation: activation,
		Type:       LayerLinear,
	}
	if withBias {
		l.BiasNode = newZeroLearnable(g, name+"_b", 1, out)
	}
	if len(opts) > 0 {
		l.ActivationOpts = opts[0]
	}
	return l
}

// NewConvLayer Creates square-kernel 2-D convolution without bias: weights (out, in, kernel, kernel)
func NewConvLayer(g *gorgonia.ExprGraph, name string, rng *rand.Rand, in, out, kernel, stride, pad int, activation ActivationFunc, opts ...Options) *Layer {
	l := &Layer{
		WeightNode:   newLearnable(g, name+"_w", rng, in*kernel*kernel, out*kernel*kernel, out, in, kernel, kernel),
		Activation:   activation,
		Type:         LayerConvolutional,
		KernelHeight: kernel,
		KernelWidth:  kernel,
		Padding:      []int{pad, pad},
		Stride:       []int{stride, stride},
		Dilation:     []int{1, 1},
	}
	if len(opts) > 0 {
		l.ActivationOpts = opts[0]
	}
	return l
}
