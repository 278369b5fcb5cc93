package ssgan_go

import (
	"fmt"
	"math/rand"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// GeneratorNet Abstraction for generator part of GAN.
// Maps latent batch (N, 1, 1, latent) to images (N, H, W, C) in [-1;1].
//
// Architecture: projection to (G0, H/8, W/8) followed by three x2 upsampling stages.
// Every hidden stage is ReLU -> batch normalization -> dropout.
//
type GeneratorNet struct {
	private *Network
}

// NewGenerator Creates generator learnables in provided graph
func NewGenerator(g *gorgonia.ExprGraph, cfg *Config, rng *rand.Rand) (*GeneratorNet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f := cfg.GeneratorFilters
	h0, w0 := cfg.ImgHeight/8, cfg.ImgWidth/8
	bn := func(name string, channels int) *Layer {
		return &Layer{Type: LayerBatchNorm, Norm: NewBatchNorm(g, name, channels, cfg.BatchNormMomentum, cfg.BatchNormEpsilon)}
	}
	dropout := &Layer{Type: LayerDropout}
	upsample := &Layer{Type: LayerUpsample, Scale: 2}
	layers := []*Layer{
		{Type: LayerFlatten},
		NewLinearLayer(g, "generator_project", rng, cfg.LatentDim, f[0]*h0*w0, true, NoActivation),
		{Type: LayerReshape, ReshapeDims: []int{f[0], h0, w0}, Activation: Rectify},
		bn("generator_bn1", f[0]),
		dropout,
		upsample,
		NewConvLayer(g, "generator_conv2", rng, f[0], f[1], 3, 1, 1, Rectify),
		bn("generator_bn2", f[1]),
		dropout,
		upsample,
		NewConvLayer(g, "generator_conv3", rng, f[1], f[2], 3, 1, 1, Rectify),
		bn("generator_bn3", f[2]),
		dropout,
		upsample,
		NewConvLayer(g, "generator_conv4", rng, f[2], cfg.ImgChannels, 3, 1, 1, Tanh),
		// NCHW -> NHWC
		{Type: LayerTranspose, Axes: []int{0, 2, 3, 1}},
	}
	return &GeneratorNet{private: &Network{
		Name:   "generator",
		Layers: layers,
	}}, nil
}

// Learnables Returns learnables nodes
func (net *GeneratorNet) Learnables() gorgonia.Nodes {
	return net.private.Learnables()
}

// BatchNorms Returns batch normalization states
func (net *GeneratorNet) BatchNorms() []*BatchNorm {
	return net.private.BatchNorms()
}

// Fwd Initializates feedforward for provided latent input
//
// latent - node of shape (N, 1, 1, latent)
// batchSize - batch size N
//
func (net *GeneratorNet) Fwd(latent *gorgonia.Node, batchSize int) (*Pass, error) {
	shp := latent.Shape()
	if len(shp) != 4 || shp[0] != batchSize || shp[1] != 1 || shp[2] != 1 {
		return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("generator expects latent of shape (%d, 1, 1, L), but got %v", batchSize, shp))
	}
	pass, err := net.private.Fwd(latent, batchSize)
	if err != nil {
		return nil, errors.Wrap(err, "[Generator]")
	}
	return pass, nil
}
