package ssgan_go

import (
	"math"
	"testing"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

const lossTolerance = 1e-9

func runAndRead(t *testing.T, g *gorgonia.ExprGraph, nodes ...*gorgonia.Node) []float64 {
	t.Helper()
	values := make([]gorgonia.Value, len(nodes))
	for i, n := range nodes {
		gorgonia.Read(n, &values[i])
	}
	tm := gorgonia.NewTapeMachine(g)
	defer tm.Close()
	if err := tm.RunAll(); err != nil {
		t.Fatal(err)
	}
	result := make([]float64, len(nodes))
	for i, v := range values {
		s, err := scalarValue(v)
		if err != nil {
			t.Fatal(err)
		}
		result[i] = s
	}
	return result
}

func matrixInput(g *gorgonia.ExprGraph, name string, rows, cols int, data []float64) *gorgonia.Node {
	return gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(rows, cols), gorgonia.WithName(name), gorgonia.WithValue(tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(data))))
}

func vectorInput(g *gorgonia.ExprGraph, name string, data []float64) *gorgonia.Node {
	return gorgonia.NewVector(g, gorgonia.Float64, gorgonia.WithShape(len(data)), gorgonia.WithName(name), gorgonia.WithValue(tensor.New(tensor.WithShape(len(data)), tensor.WithBacking(data))))
}

func softplus(x float64) float64 {
	return math.Log1p(math.Exp(x))
}

func TestSoftmaxCrossEntropyLoss(t *testing.T) {
	g := gorgonia.NewGraph()
	logits := matrixInput(g, "logits", 2, 3, []float64{1, 2, 0, 0, 0, 0})
	labels := matrixInput(g, "labels", 2, 3, []float64{0, 1, 0, 0, 0, 1})
	mean, err := SoftmaxCrossEntropyLoss(logits, labels)
	if err != nil {
		t.Fatal(err)
	}
	sum, err := SoftmaxCrossEntropyLoss(logits, labels, LossReductionSum)
	if err != nil {
		t.Fatal(err)
	}
	got := runAndRead(t, g, mean, sum)
	row0 := math.Log(math.E+math.E*math.E+1) - 2
	row1 := math.Log(3)
	if math.Abs(got[0]-(row0+row1)/2) > lossTolerance {
		t.Errorf("mean cross entropy %v, want %v", got[0], (row0+row1)/2)
	}
	if math.Abs(got[1]-(row0+row1)) > lossTolerance {
		t.Errorf("sum cross entropy %v, want %v", got[1], row0+row1)
	}
}

func TestSoftmaxCrossEntropyLossExtremeLogits(t *testing.T) {
	g := gorgonia.NewGraph()
	logits := matrixInput(g, "logits", 3, 3, []float64{
		-1000, -1000, -1000,
		1000, 1000, 1000,
		1000, 0, 0,
	})
	labels := matrixInput(g, "labels", 3, 3, []float64{
		0, 1, 0,
		0, 0, 1,
		1, 0, 0,
	})
	perExample, err := SoftmaxCrossEntropyLoss(logits, labels, LossReductionNone)
	if err != nil {
		t.Fatal(err)
	}
	var value gorgonia.Value
	gorgonia.Read(perExample, &value)
	tm := gorgonia.NewTapeMachine(g)
	defer tm.Close()
	if err := tm.RunAll(); err != nil {
		t.Fatal(err)
	}
	got, err := valueFloats(value)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{math.Log(3), math.Log(3), 0}
	for i := range want {
		if !isFinite(got[i]) || math.Abs(got[i]-want[i]) > lossTolerance {
			t.Errorf("row %d: cross entropy %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSoftmaxCrossEntropyLossGradient(t *testing.T) {
	g := gorgonia.NewGraph()
	logits := matrixInput(g, "logits", 1, 3, []float64{1, 2, 0})
	labels := matrixInput(g, "labels", 1, 3, []float64{0, 1, 0})
	loss, err := SoftmaxCrossEntropyLoss(logits, labels, LossReductionSum)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := gorgonia.Grad(loss, logits); err != nil {
		t.Fatal(err)
	}
	tm := gorgonia.NewTapeMachine(g, gorgonia.BindDualValues(logits))
	defer tm.Close()
	if err := tm.RunAll(); err != nil {
		t.Fatal(err)
	}
	grad, err := logits.Grad()
	if err != nil {
		t.Fatal(err)
	}
	got, err := valueFloats(grad)
	if err != nil {
		t.Fatal(err)
	}
	// d/dx = softmax(x) - labels
	z := math.E + math.E*math.E + 1
	want := []float64{math.E / z, math.E*math.E/z - 1, 1 / z}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("gradient[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSigmoidCrossEntropyLoss(t *testing.T) {
	g := gorgonia.NewGraph()
	x := []float64{-2, 0, 3}
	logits := vectorInput(g, "logits", x)
	zero, err := SigmoidCrossEntropyLoss(logits, 0)
	if err != nil {
		t.Fatal(err)
	}
	one, err := SigmoidCrossEntropyLoss(logits, 1)
	if err != nil {
		t.Fatal(err)
	}
	got := runAndRead(t, g, zero, one)
	var wantZero, wantOne float64
	for _, v := range x {
		sig := 1 / (1 + math.Exp(-v))
		wantZero += -math.Log(1 - sig)
		wantOne += -math.Log(sig)
	}
	wantZero /= 3
	wantOne /= 3
	if math.Abs(got[0]-wantZero) > 1e-6 {
		t.Errorf("target 0: got %v, want %v", got[0], wantZero)
	}
	if math.Abs(got[1]-wantOne) > 1e-6 {
		t.Errorf("target 1: got %v, want %v", got[1], wantOne)
	}
}

func TestFeatureMatchingLossIdentical(t *testing.T) {
	g := gorgonia.NewGraph()
	data := []float64{0.3, -1.2, 5, 2, 0.5, 7}
	realFeatures := matrixInput(g, "real", 3, 2, data)
	fakeFeatures := matrixInput(g, "fake", 3, 2, append([]float64{}, data...))
	fm, err := FeatureMatchingLoss(realFeatures, fakeFeatures)
	if err != nil {
		t.Fatal(err)
	}
	got := runAndRead(t, g, fm)
	if got[0] != 0 {
		t.Errorf("feature matching of identical batches is %v, want exactly 0", got[0])
	}
}

func TestFeatureMatchingLoss(t *testing.T) {
	g := gorgonia.NewGraph()
	// Same per-feature means with different rows still give 0
	realFeatures := matrixInput(g, "real", 2, 2, []float64{1, 2, 3, 4})
	fakeFeatures := matrixInput(g, "fake", 2, 2, []float64{3, 4, 1, 2})
	// Means (2, 3) vs (0, 0): (4 + 9) / 2
	other := matrixInput(g, "other", 2, 2, []float64{1, -1, -1, 1})
	same, err := FeatureMatchingLoss(realFeatures, fakeFeatures)
	if err != nil {
		t.Fatal(err)
	}
	diff, err := FeatureMatchingLoss(realFeatures, other)
	if err != nil {
		t.Fatal(err)
	}
	got := runAndRead(t, g, same, diff)
	if got[0] != 0 {
		t.Errorf("equal means: got %v, want 0", got[0])
	}
	if math.Abs(got[1]-6.5) > lossTolerance {
		t.Errorf("different means: got %v, want 6.5", got[1])
	}
}

func TestComposeLossesAllLabeled(t *testing.T) {
	g := gorgonia.NewGraph()
	realLogits := []float64{
		0.5, 1, -1,
		-0.3, 0.2, 0.9,
		2, -2, 0,
		0, 0, 0,
	}
	fakeLogits := []float64{
		1, 0, 0,
		-1, 0.5, 0.5,
		0.2, 0.1, 0,
		3, 1, 1,
	}
	ext := []float64{
		0, 1, 0,
		0, 0, 1,
		0, 1, 0,
		0, 0, 1,
	}
	features := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	realOut := &DiscriminatorOutput{
		Features: matrixInput(g, "real_features", 4, 2, features),
		Logits:   matrixInput(g, "real_logits", 4, 3, realLogits),
	}
	fakeOut := &DiscriminatorOutput{
		Features: matrixInput(g, "fake_features", 4, 2, append([]float64{}, features...)),
		Logits:   matrixInput(g, "fake_logits", 4, 3, fakeLogits),
	}
	label := matrixInput(g, "ext", 4, 3, ext)
	mask := vectorInput(g, "mask", SampleLabeledMask(nil, 1.0, 4))
	losses, err := ComposeLosses(realOut, fakeOut, fakeOut, label, mask)
	if err != nil {
		t.Fatal(err)
	}
	unmasked, err := SoftmaxCrossEntropyLoss(realOut.Logits, label)
	if err != nil {
		t.Fatal(err)
	}
	got := runAndRead(t, g,
		losses.DSupervised, unmasked,
		losses.DRealUnsupervised, losses.DFakeUnsupervised, losses.DTotal,
		losses.GAdversarial, losses.GFeatureMatching, losses.GTotal,
	)
	dSup, dUnmasked, dReal, dFake, dTotal, gAdv, gFM, gTotal := got[0], got[1], got[2], got[3], got[4], got[5], got[6], got[7]

	// All labeled: masked supervised loss equals plain mean cross entropy
	if math.Abs(dSup-dUnmasked) > lossTolerance {
		t.Errorf("supervised loss %v, unmasked mean %v", dSup, dUnmasked)
	}
	var wantReal, wantFake, wantAdv float64
	for i := 0; i < 4; i++ {
		wantReal += softplus(realLogits[i*3])
		wantFake += softplus(fakeLogits[i*3]) - fakeLogits[i*3]
		wantAdv += softplus(fakeLogits[i*3])
	}
	if math.Abs(dReal-wantReal/4) > 1e-6 {
		t.Errorf("real unsupervised %v, want %v", dReal, wantReal/4)
	}
	if math.Abs(dFake-wantFake/4) > 1e-6 {
		t.Errorf("fake unsupervised %v, want %v", dFake, wantFake/4)
	}
	if math.Abs(gAdv-wantAdv/4) > 1e-6 {
		t.Errorf("adversarial %v, want %v", gAdv, wantAdv/4)
	}
	if gFM != 0 {
		t.Errorf("feature matching of identical features %v, want 0", gFM)
	}
	if math.Abs(dTotal-(dSup+dReal+dFake)) > lossTolerance {
		t.Errorf("D total %v is not sum of its terms", dTotal)
	}
	if dTotal < 0 {
		t.Errorf("D total %v is negative", dTotal)
	}
	if math.Abs(gTotal-(gAdv+gFM)) > lossTolerance || !isFinite(gTotal) {
		t.Errorf("G total %v is not finite sum of its terms", gTotal)
	}
}

func TestComposeLossesPartialMask(t *testing.T) {
	g := gorgonia.NewGraph()
	realLogits := []float64{
		0.5, 1, -1,
		-0.3, 0.2, 0.9,
	}
	ext := []float64{
		0, 1, 0,
		0, 0, 1,
	}
	features := []float64{1, 2, 3, 4}
	realOut := &DiscriminatorOutput{
		Features: matrixInput(g, "real_features", 2, 2, features),
		Logits:   matrixInput(g, "real_logits", 2, 3, realLogits),
	}
	fakeOut := &DiscriminatorOutput{
		Features: matrixInput(g, "fake_features", 2, 2, []float64{0, 0, 0, 0}),
		Logits:   matrixInput(g, "fake_logits", 2, 3, []float64{0, 0, 0, 0, 0, 0}),
	}
	label := matrixInput(g, "ext", 2, 3, ext)
	mask := vectorInput(g, "mask", []float64{0, 1})
	losses, err := ComposeLosses(realOut, fakeOut, fakeOut, label, mask)
	if err != nil {
		t.Fatal(err)
	}
	got := runAndRead(t, g, losses.DSupervised, losses.GFeatureMatching)
	// Only second example counts
	row1 := math.Log(math.Exp(-0.3)+math.Exp(0.2)+math.Exp(0.9)) - 0.9
	if math.Abs(got[0]-row1) > lossTolerance {
		t.Errorf("masked supervised loss %v, want %v", got[0], row1)
	}
	// Real means (2, 3), fake means (0, 0)
	if math.Abs(got[1]-6.5) > lossTolerance {
		t.Errorf("feature matching %v, want 6.5", got[1])
	}
}
