package ssgan_go

import (
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// sequentialSet Examples whose single pixel equals their index
func sequentialSet(t *testing.T, n int, rng *rand.Rand) *TrainSet {
	t.Helper()
	pixels := make([]float64, n)
	classes := make([]int, n)
	for i := range pixels {
		pixels[i] = float64(i)
		classes[i] = i % 2
	}
	labels, err := OneHot(classes, 2)
	if err != nil {
		t.Fatal(err)
	}
	ts, err := NewTrainSet(tensor.New(tensor.WithShape(n, 1, 1, 1), tensor.WithBacking(pixels)), labels, rng)
	if err != nil {
		t.Fatal(err)
	}
	return ts
}

func TestTrainSetFixedOrderWraps(t *testing.T) {
	ts := sequentialSet(t, 5, nil)
	want := [][]float64{
		{0, 1},
		{2, 3},
		{4, 0},
		{1, 2},
	}
	for i, w := range want {
		images, labels, err := ts.NextBatch(2, false)
		if err != nil {
			t.Fatal(err)
		}
		got := images.Data().([]float64)
		if got[0] != w[0] || got[1] != w[1] {
			t.Errorf("batch %d: got %v, want %v", i, got, w)
		}
		if !labels.Shape().Eq(tensor.Shape{2, 2}) {
			t.Errorf("batch %d: labels shape %v", i, labels.Shape())
		}
		// Label follows its image
		l := labels.Data().([]float64)
		for j := 0; j < 2; j++ {
			class := int(got[j]) % 2
			if l[j*2+class] != 1 {
				t.Errorf("batch %d row %d: label %v does not match image %v", i, j, l[j*2:j*2+2], got[j])
			}
		}
	}
	if ts.EpochsCompleted() != 1 {
		t.Errorf("epochs completed %d, want 1", ts.EpochsCompleted())
	}
}

func TestTrainSetShuffleVisitsEverything(t *testing.T) {
	ts := sequentialSet(t, 6, rand.New(rand.NewSource(11)))
	seen := map[float64]int{}
	for i := 0; i < 3; i++ {
		images, _, err := ts.NextBatch(2, true)
		if err != nil {
			t.Fatal(err)
		}
		for _, v := range images.Data().([]float64) {
			seen[v]++
		}
	}
	if len(seen) != 6 {
		t.Errorf("one pass must visit every example once, got %v", seen)
	}
}

func TestTrainSetBatchLargerThanData(t *testing.T) {
	ts := sequentialSet(t, 3, nil)
	images, _, err := ts.NextBatch(7, false)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{0, 1, 2, 0, 1, 2, 0}
	got := images.Data().([]float64)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestSyntheticTrainSet(t *testing.T) {
	ts, err := SyntheticTrainSet(10, 8, 8, 1, 3, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	if ts.NumExamples() != 10 {
		t.Errorf("examples %d", ts.NumExamples())
	}
	for _, v := range ts.TrainData.Data().([]float64) {
		if v < 0 || v > 1 {
			t.Fatalf("pixel %v out of [0;1]", v)
		}
	}
}

func TestTrainSetCheckConfig(t *testing.T) {
	ts, err := SyntheticTrainSet(4, 28, 28, 1, 10, rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig()
	cfg.ImgChannels = 1
	cfg.NumClasses = 10
	// Height and width differ from config: resized later
	cfg.ImgHeight, cfg.ImgWidth = 32, 32
	if err := ts.CheckConfig(cfg); err != nil {
		t.Fatal(err)
	}
	cfg.NumClasses = 5
	if err := ts.CheckConfig(cfg); errors.Cause(err) != ErrShapeMismatch {
		t.Errorf("classes: expected ErrShapeMismatch, got %v", err)
	}
	cfg.NumClasses = 10
	cfg.ImgChannels = 3
	if err := ts.CheckConfig(cfg); errors.Cause(err) != ErrShapeMismatch {
		t.Errorf("channels: expected ErrShapeMismatch, got %v", err)
	}
}
