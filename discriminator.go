package ssgan_go

import (
	"fmt"
	"math/rand"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// DiscriminatorNet Abstraction for discriminator part of GAN.
// Maps images (N, H, W, C) to pooled features (N, F) and (1+K)-wide logits/probabilities.
// Column 0 of logits is the "fake" channel, columns 1..K are class scores.
//
// features - convolution stack ending with global average pooling. Last convolution has neither batch normalization nor dropout
// head - linear classifier over features
//
type DiscriminatorNet struct {
	features *Network
	head     *Network
}

// DiscriminatorOutput Result of one application of discriminator
type DiscriminatorOutput struct {
	Features *gorgonia.Node
	Logits   *gorgonia.Node
	Probs    *gorgonia.Node

	featuresPass *Pass
	headPass     *Pass
}

// NewDiscriminator Creates discriminator learnables in provided graph
func NewDiscriminator(g *gorgonia.ExprGraph, cfg *Config, rng *rand.Rand) (*DiscriminatorNet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f := cfg.DiscriminatorFilters
	leaky := Options{Alpha: cfg.LeakyAlpha}
	bn := func(name string, channels int) *Layer {
		return &Layer{Type: LayerBatchNorm, Norm: NewBatchNorm(g, name, channels, cfg.BatchNormMomentum, cfg.BatchNormEpsilon)}
	}
	dropout := &Layer{Type: LayerDropout}
	featureLayers := []*Layer{
		// NHWC -> NCHW
		{Type: LayerTranspose, Axes: []int{0, 3, 1, 2}},
		// No batch normalization for input layer
		NewConvLayer(g, "discriminator_conv1", rng, cfg.ImgChannels, f[0], 4, 2, 1, LeakyRelu, leaky),
		dropout,
		NewConvLayer(g, "discriminator_conv2", rng, f[0], f[1], 4, 2, 1, LeakyRelu, leaky),
		bn("discriminator_bn2", f[1]),
		dropout,
		NewConvLayer(g, "discriminator_conv3", rng, f[1], f[2], 4, 2, 1, LeakyRelu, leaky),
		bn("discriminator_bn3", f[2]),
		dropout,
		NewConvLayer(g, "discriminator_conv4", rng, f[2], f[3], 3, 1, 1, LeakyRelu, leaky),
		{Type: LayerGlobalAvgPool},
	}
	headLayers := []*Layer{
		NewLinearLayer(g, "discriminator_dense", rng, f[3], 1+cfg.NumClasses, true, NoActivation),
	}
	return &DiscriminatorNet{
		features: &Network{Name: "discriminator_features", Layers: featureLayers},
		head:     &Network{Name: "discriminator_head", Layers: headLayers},
	}, nil
}

// Learnables Returns learnables nodes
func (net *DiscriminatorNet) Learnables() gorgonia.Nodes {
	return append(net.features.Learnables(), net.head.Learnables()...)
}

// BatchNorms Returns batch normalization states
func (net *DiscriminatorNet) BatchNorms() []*BatchNorm {
	return net.features.BatchNorms()
}

// Fwd Initializates feedforward for provided images. Every call reuses the same learnables,
// so real and fake batches are scored by the same function.
//
// images - node of shape (N, H, W, C)
// batchSize - batch size N
//
func (net *DiscriminatorNet) Fwd(images *gorgonia.Node, batchSize int) (*DiscriminatorOutput, error) {
	shp := images.Shape()
	if len(shp) != 4 || shp[0] != batchSize {
		return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("discriminator expects images of shape (%d, H, W, C), but got %v", batchSize, shp))
	}
	featuresPass, err := net.features.Fwd(images, batchSize)
	if err != nil {
		return nil, errors.Wrap(err, "[Discriminator]")
	}
	headPass, err := net.head.Fwd(featuresPass.Out, batchSize)
	if err != nil {
		return nil, errors.Wrap(err, "[Discriminator]")
	}
	probs, err := Softmax(headPass.Out, Options{Axis: []int{1}})
	if err != nil {
		return nil, errors.Wrap(err, "[Discriminator] Can't apply softmax to logits")
	}
	gorgonia.WithName(headPass.name + "_probs")(probs)
	return &DiscriminatorOutput{
		Features:     featuresPass.Out,
		Logits:       headPass.Out,
		Probs:        probs,
		featuresPass: featuresPass,
		headPass:     headPass,
	}, nil
}

// Prime Feeds dropout masks and batch normalization mode. Must be called before every run
func (out *DiscriminatorOutput) Prime(mode Mode, rng *rand.Rand) error {
	if err := out.featuresPass.Prime(mode, rng); err != nil {
		return err
	}
	return out.headPass.Prime(mode, rng)
}

// Mirror Feeds the same dropout masks and batch normalization mode as src got from its last Prime
func (out *DiscriminatorOutput) Mirror(src *DiscriminatorOutput) error {
	if err := out.featuresPass.Mirror(src.featuresPass); err != nil {
		return err
	}
	return out.headPass.Mirror(src.headPass)
}

// Commit Folds observed batch statistics into running statistics
func (out *DiscriminatorOutput) Commit() error {
	if err := out.featuresPass.Commit(); err != nil {
		return err
	}
	return out.headPass.Commit()
}
