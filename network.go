package ssgan_go

import (
	"fmt"
	"math/rand"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// Mode Selects behaviour of stateful layers for one run of the graph.
//
// Training - batch normalization uses batch statistics (otherwise frozen running statistics)
// KeepProb - dropout keep-rate; 1 disables dropout
//
type Mode struct {
	Training bool
	KeepProb float64
}

// Network Abstraction for neural network.
//
// Layers - simple sequence of layers
// applications - number of times Fwd has been called (used for unique node names)
//
type Network struct {
	Name         string
	Layers       []*Layer
	applications int
}

// Pass One application of a network to an input node. Every pass of the same network shares learnables.
//
// Out - activated output of last layer
// dropouts - dropout masks fed on every run
// norms - batch normalization inputs fed on every run
//
type Pass struct {
	Out *gorgonia.Node

	name     string
	dropouts []*dropoutApplication
	norms    []*batchNormApplication
}

// Learnables Returns learnables nodes
func (net *Network) Learnables() gorgonia.Nodes {
	learnables := make(gorgonia.Nodes, 0, 2*len(net.Layers))
	for _, l := range net.Layers {
		if l != nil {
			learnables = append(learnables, l.Learnables()...)
		}
	}
	return learnables
}

// BatchNorms Returns batch normalization states of the network in layer order
func (net *Network) BatchNorms() []*BatchNorm {
	norms := []*BatchNorm{}
	for _, l := range net.Layers {
		if l != nil && l.Type == LayerBatchNorm && l.Norm != nil {
			norms = append(norms, l.Norm)
		}
	}
	return norms
}

// Fwd Initializates feedforward for provided input. Could be called several times: each call reuses the same learnables.
//
// input - Input node
// batchSize - batch size. If it's >= 2 then broadcast function will be applied
//
func (net *Network) Fwd(input *gorgonia.Node, batchSize int) (*Pass, error) {
	networkName := "network"
	if net.Name != "" {
		networkName = net.Name
	}
	if len(net.Layers) == 0 {
		return nil, fmt.Errorf("Network must have one layer atleast")
	}
	pass := &Pass{
		name: fmt.Sprintf("%s_pass%d", networkName, net.applications),
	}
	net.applications++

	lastActivatedLayer := input
	for i := range net.Layers {
		if net.Layers[i] == nil {
			return nil, fmt.Errorf("Network's layer #%d is nil", i)
		}
		if net.Layers[i].WeightNode == nil && !noWeightsAllowed(net.Layers[i].Type) {
			return nil, fmt.Errorf("Network's layer's #%d WeightNode is nil", i)
		}
		// Feedforward input through i-th layer
		layerNonActivated, err := net.Layers[i].Fwd(pass, lastActivatedLayer, batchSize)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("[%s, Layer #%d] Can't feedforward input before activation", networkName, i))
		}
		gorgonia.WithName(fmt.Sprintf("%s_%d", pass.name, i))(layerNonActivated)
		activation := net.Layers[i].Activation
		if activation == nil {
			activation = NoActivation
		}
		// Activate i-th layer's output
		layerActivated, err := activation(layerNonActivated, net.Layers[i].ActivationOpts)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't apply activation function to non-activated output of %s's layer #%d", networkName, i))
		}
		if layerActivated != layerNonActivated {
			gorgonia.WithName(fmt.Sprintf("%s_activated_%d", pass.name, i))(layerActivated)
		}
		lastActivatedLayer = layerActivated
	}
	pass.Out = lastActivatedLayer
	return pass, nil
}

// Prime Feeds stochastic and mode-dependent inputs of the pass. Must be called before every run of the graph.
func (pass *Pass) Prime(mode Mode, rng *rand.Rand) error {
	for i, d := range pass.dropouts {
		if err := d.prime(mode.KeepProb, rng); err != nil {
			return errors.Wrap(err, fmt.Sprintf("Can't feed dropout mask #%d of %s", i, pass.name))
		}
	}
	for i, n := range pass.norms {
		if err := n.prime(mode.Training); err != nil {
			return errors.Wrap(err, fmt.Sprintf("Can't feed batch normalization #%d of %s", i, pass.name))
		}
	}
	return nil
}

// Mirror Feeds the pass with the same dropout masks and batch normalization mode that src got from its last Prime.
// Both passes must be applications of the same network. A mirrored pass computes exactly what src computes for the same input
func (pass *Pass) Mirror(src *Pass) error {
	if len(pass.dropouts) != len(src.dropouts) || len(pass.norms) != len(src.norms) {
		return fmt.Errorf("Can't mirror %s into %s: passes have different layers", src.name, pass.name)
	}
	for i, d := range pass.dropouts {
		if err := d.mirror(src.dropouts[i]); err != nil {
			return errors.Wrap(err, fmt.Sprintf("Can't mirror dropout mask #%d of %s", i, src.name))
		}
	}
	for i, n := range pass.norms {
		if err := n.prime(src.norms[i].training); err != nil {
			return errors.Wrap(err, fmt.Sprintf("Can't feed batch normalization #%d of %s", i, pass.name))
		}
	}
	return nil
}

// Commit Folds batch statistics observed during last run into running statistics of every batch normalization layer
func (pass *Pass) Commit() error {
	for i, n := range pass.norms {
		if err := n.commit(); err != nil {
			return errors.Wrap(err, fmt.Sprintf("Can't update running statistics #%d of %s", i, pass.name))
		}
	}
	return nil
}
