package ssgan_go

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// SSGAN Semi-supervised GAN training context. Owns graph, both networks, both optimizers and every source of randomness.
//
// generatorPart - reference to Generator
// discriminatorPart - reference to Discriminator. The same instance scores real and fake batches
// genPass, realOut, fakeOut - applications of networks inside training graph
// fakeOutGen - second application of discriminator to generated batch. Mirrors fakeOut and feeds generator objective only
// tm - tape machine for the whole training graph (gradients of both objectives are bound to learnables)
// sampleVM - tape machine for the generator subgraph only
//
type SSGAN struct {
	cfg Config
	rng *rand.Rand

	g                 *gorgonia.ExprGraph
	generatorPart     *GeneratorNet
	discriminatorPart *DiscriminatorNet

	images        *gorgonia.Node
	latent        *gorgonia.Node
	extendedLabel *gorgonia.Node
	mask          *gorgonia.Node

	genPass    *Pass
	realOut    *DiscriminatorOutput
	fakeOut    *DiscriminatorOutput
	fakeOutGen *DiscriminatorOutput
	losses     *Losses

	dLossValue, gLossValue            gorgonia.Value
	dSupValue, dRealValue, dFakeValue gorgonia.Value
	gAdvValue, gFMValue               gorgonia.Value
	realProbsValue, generatedSamples  gorgonia.Value

	learnablesDis gorgonia.Nodes
	learnablesGen gorgonia.Nodes
	learnables    gorgonia.Nodes

	tm       gorgonia.VM
	sampleVM gorgonia.VM

	solverDis gorgonia.Solver
	solverGen gorgonia.Solver

	steps int
}

// StepResult Losses and accuracy evaluated after both updates of one step
type StepResult struct {
	DLoss    float64
	GLoss    float64
	Accuracy float64

	DSupervised       float64
	DRealUnsupervised float64
	DFakeUnsupervised float64
	GAdversarial      float64
	GFeatureMatching  float64
}

// NewSSGAN Builds training graph, initializes parameters from cfg.Seed and prepares optimizers
func NewSSGAN(cfg Config) (*SSGAN, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	g := gorgonia.NewGraph()
	n := cfg.BatchSize

	definedGenerator, err := NewGenerator(g, &cfg, rng)
	if err != nil {
		return nil, errors.Wrap(err, "Can't create generator")
	}
	definedDiscriminator, err := NewDiscriminator(g, &cfg, rng)
	if err != nil {
		return nil, errors.Wrap(err, "Can't create discriminator")
	}

	s := &SSGAN{
		cfg:               cfg,
		rng:               rng,
		g:                 g,
		generatorPart:     definedGenerator,
		discriminatorPart: definedDiscriminator,
		images:            gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(n, cfg.ImgHeight, cfg.ImgWidth, cfg.ImgChannels), gorgonia.WithName("images")),
		latent:            gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(n, 1, 1, cfg.LatentDim), gorgonia.WithName("latent")),
		extendedLabel:     gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(n, 1+cfg.NumClasses), gorgonia.WithName("extended_label")),
		mask:              gorgonia.NewVector(g, gorgonia.Float64, gorgonia.WithShape(n), gorgonia.WithName("labeled_mask")),
		learnablesGen:     definedGenerator.Learnables(),
		learnablesDis:     definedDiscriminator.Learnables(),
	}
	s.learnables = append(append(gorgonia.Nodes{}, s.learnablesDis...), s.learnablesGen...)

	s.genPass, err = definedGenerator.Fwd(s.latent, n)
	if err != nil {
		return nil, errors.Wrap(err, "Can't feedforward latent through generator")
	}
	s.realOut, err = definedDiscriminator.Fwd(s.images, n)
	if err != nil {
		return nil, errors.Wrap(err, "Can't feedforward real images through discriminator")
	}
	s.fakeOut, err = definedDiscriminator.Fwd(s.genPass.Out, n)
	if err != nil {
		return nil, errors.Wrap(err, "Can't feedforward generated images through discriminator")
	}
	s.fakeOutGen, err = definedDiscriminator.Fwd(s.genPass.Out, n)
	if err != nil {
		return nil, errors.Wrap(err, "Can't feedforward generated images through discriminator [generator objective]")
	}
	s.losses, err = ComposeLosses(s.realOut, s.fakeOut, s.fakeOutGen, s.extendedLabel, s.mask)
	if err != nil {
		return nil, errors.Wrap(err, "Can't compose losses")
	}

	gorgonia.Read(s.losses.DTotal, &s.dLossValue)
	gorgonia.Read(s.losses.GTotal, &s.gLossValue)
	gorgonia.Read(s.losses.DSupervised, &s.dSupValue)
	gorgonia.Read(s.losses.DRealUnsupervised, &s.dRealValue)
	gorgonia.Read(s.losses.DFakeUnsupervised, &s.dFakeValue)
	gorgonia.Read(s.losses.GAdversarial, &s.gAdvValue)
	gorgonia.Read(s.losses.GFeatureMatching, &s.gFMValue)
	gorgonia.Read(s.realOut.Probs, &s.realProbsValue)
	generatedRead := gorgonia.Read(s.genPass.Out, &s.generatedSamples)

	// Discriminator objective w.r.t. discriminator parameters only; generator objective w.r.t. generator parameters only.
	// Grad keeps derivatives on every node it passes through, so the two objectives must not share discriminator nodes of the fake batch
	if _, err = gorgonia.Grad(s.losses.DTotal, s.learnablesDis...); err != nil {
		return nil, errors.Wrap(err, "Can't calculate gradients of discriminator loss")
	}
	if _, err = gorgonia.Grad(s.losses.GTotal, s.learnablesGen...); err != nil {
		return nil, errors.Wrap(err, "Can't calculate gradients of generator loss")
	}

	s.sampleVM = gorgonia.NewTapeMachine(g.SubgraphRoots(generatedRead))
	s.tm = gorgonia.NewTapeMachine(g, gorgonia.BindDualValues(s.learnables...))
	s.solverDis = gorgonia.NewAdamSolver(gorgonia.WithLearnRate(cfg.LearningRate), gorgonia.WithBeta1(cfg.Beta1))
	s.solverGen = gorgonia.NewAdamSolver(gorgonia.WithLearnRate(cfg.LearningRate), gorgonia.WithBeta1(cfg.Beta1))
	return s, nil
}

// Config Returns configuration the context was built with
func (s *SSGAN) Config() Config {
	return s.cfg
}

// Generator Returns generator part
func (s *SSGAN) Generator() *GeneratorNet {
	return s.generatorPart
}

// Discriminator Returns discriminator part
func (s *SSGAN) Discriminator() *DiscriminatorNet {
	return s.discriminatorPart
}

// Close Releases tape machines
func (s *SSGAN) Close() error {
	if err := s.tm.Close(); err != nil {
		return err
	}
	return s.sampleVM.Close()
}

// Step Runs one training step on prepared batch: discriminator update, then generator update through
// the just-updated discriminator, then read-only evaluation.
// Latent batch and labeled mask are drawn from the context's RNG.
//
// images - (N, H, W, C) values in [-1;1]
// labels - (N, K) one-hot labels
//
func (s *SSGAN) Step(images, labels *tensor.Dense) (*StepResult, error) {
	n := s.cfg.BatchSize
	latent := NormRandDense(s.rng, n, 1, 1, s.cfg.LatentDim)
	mask := SampleLabeledMask(s.rng, s.cfg.LabeledRate, n)
	return s.StepWith(images, labels, latent, mask)
}

// StepWith Same as Step but with explicitly provided latent batch (N, 1, 1, latent) and labeled mask (N)
func (s *SSGAN) StepWith(images, labels, latent *tensor.Dense, mask []float64) (*StepResult, error) {
	extended, err := s.feed(images, labels, latent, mask)
	if err != nil {
		return nil, err
	}
	// Discriminator first: generator parameters are not touched
	if err := s.trainStep(s.losses.DTotal.Name(), &s.dLossValue, s.solverDis, s.learnablesDis); err != nil {
		return nil, errors.Wrap(err, "Discriminator step")
	}
	// Generator next: fresh forward pass through updated discriminator
	if err := s.trainStep(s.losses.GTotal.Name(), &s.gLossValue, s.solverGen, s.learnablesGen); err != nil {
		return nil, errors.Wrap(err, "Generator step")
	}
	s.steps++
	return s.evaluate(extended)
}

// Evaluate Computes losses and accuracy for the batch without updating anything
func (s *SSGAN) Evaluate(images, labels, latent *tensor.Dense, mask []float64) (*StepResult, error) {
	extended, err := s.feed(images, labels, latent, mask)
	if err != nil {
		return nil, err
	}
	return s.evaluate(extended)
}

// feed Validates shapes of step inputs and binds them to graph inputs
func (s *SSGAN) feed(images, labels, latent *tensor.Dense, mask []float64) (*tensor.Dense, error) {
	cfg := s.cfg
	n := cfg.BatchSize
	if want := (tensor.Shape{n, cfg.ImgHeight, cfg.ImgWidth, cfg.ImgChannels}); !images.Shape().Eq(want) {
		return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("images must be %v, but got %v", want, images.Shape()))
	}
	if want := (tensor.Shape{n, cfg.NumClasses}); !labels.Shape().Eq(want) {
		return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("labels must be %v, but got %v", want, labels.Shape()))
	}
	if want := (tensor.Shape{n, 1, 1, cfg.LatentDim}); !latent.Shape().Eq(want) {
		return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("latent must be %v, but got %v", want, latent.Shape()))
	}
	if len(mask) != n {
		return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("mask must have %d elements, but got %d", n, len(mask)))
	}
	if _, err := SupervisedDenominator(mask); err != nil {
		return nil, err
	}
	extended, err := PrepareExtendedLabel(labels)
	if err != nil {
		return nil, err
	}
	maskCopy := make([]float64, n)
	copy(maskCopy, mask)
	if err := gorgonia.Let(s.images, images); err != nil {
		return nil, errors.Wrap(err, "Can't init images value")
	}
	if err := gorgonia.Let(s.latent, latent); err != nil {
		return nil, errors.Wrap(err, "Can't init latent value")
	}
	if err := gorgonia.Let(s.extendedLabel, extended); err != nil {
		return nil, errors.Wrap(err, "Can't init extended label value")
	}
	if err := gorgonia.Let(s.mask, MaskDense(maskCopy)); err != nil {
		return nil, errors.Wrap(err, "Can't init mask value")
	}
	return extended, nil
}

// prime Feeds every pass of training graph in training mode with fresh dropout masks
func (s *SSGAN) prime() error {
	mode := Mode{Training: true, KeepProb: s.cfg.KeepProb}
	if err := s.genPass.Prime(mode, s.rng); err != nil {
		return err
	}
	if err := s.realOut.Prime(mode, s.rng); err != nil {
		return err
	}
	if err := s.fakeOut.Prime(mode, s.rng); err != nil {
		return err
	}
	return s.fakeOutGen.Mirror(s.fakeOut)
}

// commit Updates running statistics of every batch normalization application of the last run.
// fakeOutGen repeats fakeOut, so it is not committed
func (s *SSGAN) commit() error {
	if err := s.genPass.Commit(); err != nil {
		return err
	}
	if err := s.realOut.Commit(); err != nil {
		return err
	}
	return s.fakeOut.Commit()
}

// run Runs training graph once. Gradients are accumulated into learnables during run, so they are cleared afterwards
func (s *SSGAN) run(after func() error) error {
	defer s.tm.Reset()
	if err := s.prime(); err != nil {
		return errors.Wrap(err, "Can't prime graph")
	}
	if err := s.tm.RunAll(); err != nil {
		return errors.Wrap(err, "Can't run VM")
	}
	afterErr := after()
	if err := zeroGrads(s.learnables); err != nil {
		return err
	}
	return afterErr
}

// trainStep One optimizer update: run, check loss, update running statistics, apply gradients
func (s *SSGAN) trainStep(lossName string, loss *gorgonia.Value, solver gorgonia.Solver, learnables gorgonia.Nodes) error {
	return s.run(func() error {
		value, err := scalarValue(*loss)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("Can't read '%s'", lossName))
		}
		if !isFinite(value) {
			return errors.Wrap(ErrNonFiniteLoss, fmt.Sprintf("%s = %v, update skipped", lossName, value))
		}
		if err := s.commit(); err != nil {
			return errors.Wrap(err, "Can't update running statistics")
		}
		if err := solver.Step(gorgonia.NodesToValueGrads(learnables)); err != nil {
			return errors.Wrap(err, "Can't do solver step")
		}
		return nil
	})
}

// evaluate Read-only run in training mode: no running statistics update, no parameters update
func (s *SSGAN) evaluate(extended *tensor.Dense) (*StepResult, error) {
	result := &StepResult{}
	err := s.run(func() error {
		values := []struct {
			v   gorgonia.Value
			dst *float64
		}{
			{s.dLossValue, &result.DLoss},
			{s.gLossValue, &result.GLoss},
			{s.dSupValue, &result.DSupervised},
			{s.dRealValue, &result.DRealUnsupervised},
			{s.dFakeValue, &result.DFakeUnsupervised},
			{s.gAdvValue, &result.GAdversarial},
			{s.gFMValue, &result.GFeatureMatching},
		}
		for i := range values {
			value, err := scalarValue(values[i].v)
			if err != nil {
				return errors.Wrap(err, "Can't read loss")
			}
			*values[i].dst = value
		}
		probs, ok := s.realProbsValue.(*tensor.Dense)
		if !ok {
			return fmt.Errorf("Expected *tensor.Dense probabilities, but got %T", s.realProbsValue)
		}
		accuracy, err := Accuracy(probs, extended)
		if err != nil {
			return errors.Wrap(err, "Can't calculate accuracy")
		}
		result.Accuracy = accuracy
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !isFinite(result.DLoss) || !isFinite(result.GLoss) {
		return result, errors.Wrap(ErrNonFiniteLoss, fmt.Sprintf("evaluated D loss = %v, G loss = %v", result.DLoss, result.GLoss))
	}
	return result, nil
}

// Sample Generates n images (n, H, W, C) from fresh latent noise with batch normalization in inference mode.
// Dropout stays active with configured keep-rate.
func (s *SSGAN) Sample(n int) (*tensor.Dense, error) {
	if n <= 0 {
		return nil, errors.Wrap(ErrBadConfig, fmt.Sprintf("number of samples must be positive, but got %d", n))
	}
	cfg := s.cfg
	batch := cfg.BatchSize
	perImage := cfg.ImgHeight * cfg.ImgWidth * cfg.ImgChannels
	data := make([]float64, 0, n*perImage)
	mode := Mode{Training: false, KeepProb: cfg.KeepProb}
	for len(data) < n*perImage {
		latent := NormRandDense(s.rng, batch, 1, 1, cfg.LatentDim)
		if err := gorgonia.Let(s.latent, latent); err != nil {
			return nil, errors.Wrap(err, "Can't init latent value")
		}
		if err := s.genPass.Prime(mode, s.rng); err != nil {
			return nil, errors.Wrap(err, "Can't prime generator")
		}
		if err := s.sampleVM.RunAll(); err != nil {
			s.sampleVM.Reset()
			return nil, errors.Wrap(err, "Can't run generator VM")
		}
		generated, err := valueFloats(s.generatedSamples)
		s.sampleVM.Reset()
		if err != nil {
			return nil, errors.Wrap(err, "Can't read generated images")
		}
		need := n*perImage - len(data)
		if need > len(generated) {
			need = len(generated)
		}
		data = append(data, generated[:need]...)
	}
	return tensor.New(tensor.WithShape(n, cfg.ImgHeight, cfg.ImgWidth, cfg.ImgChannels), tensor.WithBacking(data)), nil
}

// Train Runs cfg.Epochs epochs over dataset. Per epoch: floor(total/batch)+1 steps, mean losses and accuracy
// appended to history, sample grid handed to reporter.
// Steps with non-finite losses are logged and skipped.
func (s *SSGAN) Train(ds Dataset, reporter Reporter) (*History, error) {
	cfg := s.cfg
	out := cfg.logWriter()
	if reporter == nil {
		reporter = nopReporter{}
	}
	history := &History{}
	numBatches := ds.NumExamples()/cfg.BatchSize + 1
	fmt.Fprintf(out, "...Training begins...\n")
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		dLosses := make([]float64, 0, numBatches)
		gLosses := make([]float64, 0, numBatches)
		accuracies := make([]float64, 0, numBatches)
		for it := 0; it < numBatches; it++ {
			images, labels, err := ds.NextBatch(cfg.BatchSize, cfg.Shuffle)
			if err != nil {
				return history, errors.Wrap(err, fmt.Sprintf("Can't get batch #%d of epoch %d", it+1, epoch))
			}
			prepared, err := PrepareImages(images, cfg.ImgHeight, cfg.ImgWidth)
			if err != nil {
				return history, errors.Wrap(err, "Can't prepare images")
			}
			result, err := s.Step(prepared, labels)
			if err != nil {
				if errors.Cause(err) == ErrNonFiniteLoss {
					fmt.Fprintf(out, "Batch %d/%d of epoch %d skipped: %s\n", it+1, numBatches, epoch, err.Error())
					continue
				}
				return history, errors.Wrap(err, fmt.Sprintf("Step #%d of epoch %d", it+1, epoch))
			}
			dLosses = append(dLosses, result.DLoss)
			gLosses = append(gLosses, result.GLoss)
			accuracies = append(accuracies, result.Accuracy)
			if cfg.Verbose {
				fmt.Fprintf(out, "Batch evaluated: %d/%d\n", it+1, numBatches)
			}
		}
		trDL, trGL, trAcc := meanOrNaN(dLosses), meanOrNaN(gLosses), meanOrNaN(accuracies)
		fmt.Fprintf(out, "After epoch: %d Generator loss: %v Discriminator loss: %v Accuracy: %v\n", epoch, trGL, trDL, trAcc)
		history.Append(trDL, trGL, trAcc)

		samples, err := s.Sample(cfg.GridSize * cfg.GridSize)
		if err != nil {
			return history, errors.Wrap(err, "Can't generate samples")
		}
		if err := reporter.EpochEnd(epoch, samples); err != nil {
			return history, errors.Wrap(err, "Can't report epoch")
		}
	}
	if err := reporter.TrainEnd(history); err != nil {
		return history, errors.Wrap(err, "Can't report training history")
	}
	return history, nil
}

// meanOrNaN Mean of values; NaN for epoch without a single successful step
func meanOrNaN(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return stat.Mean(values, nil)
}
