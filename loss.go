package ssgan_go

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

type LossReduction uint16

const (
	LossReductionSum = LossReduction(iota)
	LossReductionMean
	// LossReductionNone Keeps per-example values
	LossReductionNone
)

func reduce(x *gorgonia.Node, reduction []LossReduction) (*gorgonia.Node, error) {
	reductionDefault := LossReductionMean
	if len(reduction) != 0 {
		reductionDefault = reduction[0]
	}
	switch reductionDefault {
	case LossReductionSum:
		return gorgonia.Sum(x)
	case LossReductionMean:
		return gorgonia.Mean(x)
	case LossReductionNone:
		return x, nil
	default:
		return nil, fmt.Errorf("Reduction type %d is not supported", reductionDefault)
	}
}

// SoftmaxCrossEntropyLoss Softmax cross entropy between logits (N, C) and target distributions (N, C).
// Per example: max + log(sum(exp(logits - max))) - sum(labels .* logits), where max is taken along the row
// Default reduction is 'mean'
func SoftmaxCrossEntropyLoss(logits, labels *gorgonia.Node, reduction ...LossReduction) (*gorgonia.Node, error) {
	if !logits.Shape().Eq(labels.Shape()) || logits.Dims() != 2 {
		return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("logits %v and labels %v must be equal (N, C) matrices", logits.Shape(), labels.Shape()))
	}
	logSumExp, err := rowLogSumExp(logits)
	if err != nil {
		return nil, err
	}
	hprod, err := gorgonia.HadamardProd(labels, logits)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (A.*B)")
	}
	target, err := gorgonia.Sum(hprod, 1)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do sum(x) along classes")
	}
	perExample, err := gorgonia.Sub(logSumExp, target)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (A-B)")
	}
	return reduce(perExample, reduction)
}

// rowLogSumExp log(sum(exp(x))) along axis 1 of (N, C) matrix. Row maximum is subtracted before exp and added back after log
func rowLogSumExp(x *gorgonia.Node) (*gorgonia.Node, error) {
	rowMax, err := gorgonia.Max(x, 1)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do max(x) along classes")
	}
	rowMaxCol, err := gorgonia.Reshape(rowMax, tensor.Shape{x.Shape()[0], 1})
	if err != nil {
		return nil, errors.Wrap(err, "Can't reshape row maximum")
	}
	shifted, err := gorgonia.BroadcastSub(x, rowMaxCol, nil, []byte{1})
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (X-max)")
	}
	exp, err := gorgonia.Exp(shifted)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do exp(x)")
	}
	sumExp, err := gorgonia.Sum(exp, 1)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do sum(x) along classes")
	}
	logSum, err := gorgonia.Log(sumExp)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do log(x)")
	}
	logSumExp, err := gorgonia.Add(logSum, rowMax)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (log+max)")
	}
	return logSumExp, nil
}

// SigmoidCrossEntropyLoss Sigmoid cross entropy of logits against constant target z.
// Per element: softplus(x) - z*x, which equals -z*log(sigmoid(x)) - (1-z)*log(1-sigmoid(x))
// Default reduction is 'mean'
func SigmoidCrossEntropyLoss(logits *gorgonia.Node, target float64, reduction ...LossReduction) (*gorgonia.Node, error) {
	softplus, err := gorgonia.Softplus(logits)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do softplus(x)")
	}
	perElement := softplus
	if target != 0 {
		var zx *gorgonia.Node
		if target == 1 {
			zx = logits
		} else {
			z := gorgonia.NewScalar(logits.Graph(), gorgonia.Float64, gorgonia.WithName(logits.Name()+"_sigmoid_target"), gorgonia.WithValue(target))
			zx, err = gorgonia.Mul(z, logits)
			if err != nil {
				return nil, errors.Wrap(err, "Can't do (z*X)")
			}
		}
		perElement, err = gorgonia.Sub(softplus, zx)
		if err != nil {
			return nil, errors.Wrap(err, "Can't do (A-B)")
		}
	}
	return reduce(perElement, reduction)
}

// FeatureMatchingLoss Mean over features of squared difference between batch means of real (N, F) and fake (N, F) features
func FeatureMatchingLoss(realFeatures, fakeFeatures *gorgonia.Node) (*gorgonia.Node, error) {
	if !realFeatures.Shape().Eq(fakeFeatures.Shape()) || realFeatures.Dims() != 2 {
		return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("real features %v and fake features %v must be equal (N, F) matrices", realFeatures.Shape(), fakeFeatures.Shape()))
	}
	dataMoments, err := gorgonia.Mean(realFeatures, 0)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do mean(x) along batch [real]")
	}
	sampleMoments, err := gorgonia.Mean(fakeFeatures, 0)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do mean(x) along batch [fake]")
	}
	sub, err := gorgonia.Sub(dataMoments, sampleMoments)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (A-B)")
	}
	sqr, err := gorgonia.Square(sub)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x^2)")
	}
	return gorgonia.Mean(sqr)
}

// MaskedMeanLoss sum(values .* mask) / sum(mask) for per-example values (N) and binary mask (N)
func MaskedMeanLoss(values, mask *gorgonia.Node) (*gorgonia.Node, error) {
	if !values.Shape().Eq(mask.Shape()) {
		return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("values %v and mask %v must have the same shape", values.Shape(), mask.Shape()))
	}
	hprod, err := gorgonia.HadamardProd(values, mask)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (A.*mask)")
	}
	numerator, err := gorgonia.Sum(hprod)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do sum(x)")
	}
	denominator, err := gorgonia.Sum(mask)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do sum(mask)")
	}
	return gorgonia.Div(numerator, denominator)
}

// Losses Every term of both objectives
type Losses struct {
	DSupervised       *gorgonia.Node
	DRealUnsupervised *gorgonia.Node
	DFakeUnsupervised *gorgonia.Node
	DTotal            *gorgonia.Node

	GAdversarial     *gorgonia.Node
	GFeatureMatching *gorgonia.Node
	GTotal           *gorgonia.Node
}

// ComposeLosses Builds discriminator and generator objectives
//
// realOut - discriminator output for real batch
// fakeOut - discriminator output for generated batch, used by discriminator objective
// fakeOutGen - another application of the same discriminator to the same generated batch, used by generator objective only.
// Keeping the two objectives on separate nodes lets each of them be differentiated on its own.
// Passing fakeOut twice is fine when gradients are not needed
// extendedLabel - (N, 1+K) labels with zero "fake" column
// mask - (N) binary mask of labeled examples. Caller must guarantee sum(mask) > 0 (see SupervisedDenominator)
//
func ComposeLosses(realOut, fakeOut, fakeOutGen *DiscriminatorOutput, extendedLabel, mask *gorgonia.Node) (*Losses, error) {
	ce, err := SoftmaxCrossEntropyLoss(realOut.Logits, extendedLabel, LossReductionNone)
	if err != nil {
		return nil, errors.Wrap(err, "Can't build supervised cross entropy")
	}
	dSupervised, err := MaskedMeanLoss(ce, mask)
	if err != nil {
		return nil, errors.Wrap(err, "Can't build supervised loss")
	}

	realFakeness, err := gorgonia.Slice(realOut.Logits, nil, gorgonia.S(0))
	if err != nil {
		return nil, errors.Wrap(err, "Can't slice fake channel of real logits")
	}
	fakeFakeness, err := gorgonia.Slice(fakeOut.Logits, nil, gorgonia.S(0))
	if err != nil {
		return nil, errors.Wrap(err, "Can't slice fake channel of fake logits")
	}
	dRealUnsupervised, err := SigmoidCrossEntropyLoss(realFakeness, 0)
	if err != nil {
		return nil, errors.Wrap(err, "Can't build real unsupervised loss")
	}
	dFakeUnsupervised, err := SigmoidCrossEntropyLoss(fakeFakeness, 1)
	if err != nil {
		return nil, errors.Wrap(err, "Can't build fake unsupervised loss")
	}
	dUnsupervised, err := gorgonia.Add(dRealUnsupervised, dFakeUnsupervised)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (A+B)")
	}
	dTotal, err := gorgonia.Add(dSupervised, dUnsupervised)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (A+B)")
	}

	// Generator wants fakes to be scored as real: the opposite target of dFakeUnsupervised
	genFakeness, err := gorgonia.Slice(fakeOutGen.Logits, nil, gorgonia.S(0))
	if err != nil {
		return nil, errors.Wrap(err, "Can't slice fake channel of generator-side fake logits")
	}
	gAdversarial, err := SigmoidCrossEntropyLoss(genFakeness, 0)
	if err != nil {
		return nil, errors.Wrap(err, "Can't build adversarial loss")
	}
	gFeatureMatching, err := FeatureMatchingLoss(realOut.Features, fakeOutGen.Features)
	if err != nil {
		return nil, errors.Wrap(err, "Can't build feature matching loss")
	}
	gTotal, err := gorgonia.Add(gAdversarial, gFeatureMatching)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (A+B)")
	}

	gorgonia.WithName("d_loss")(dTotal)
	gorgonia.WithName("g_loss")(gTotal)
	return &Losses{
		DSupervised:       dSupervised,
		DRealUnsupervised: dRealUnsupervised,
		DFakeUnsupervised: dFakeUnsupervised,
		DTotal:            dTotal,
		GAdversarial:      gAdversarial,
		GFeatureMatching:  gFeatureMatching,
		GTotal:            gTotal,
	}, nil
}
