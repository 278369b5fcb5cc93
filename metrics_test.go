package ssgan_go

import (
	"math/rand"
	"testing"

	"gorgonia.org/tensor"
)

func TestAccuracy(t *testing.T) {
	// Column 0 is the fake channel and must be ignored even when it is the largest
	probs := tensor.New(tensor.WithShape(3, 4), tensor.WithBacking([]float64{
		0.9, 0.05, 0.03, 0.02,
		0.1, 0.1, 0.7, 0.1,
		0.0, 0.5, 0.2, 0.3,
	}))
	ext := tensor.New(tensor.WithShape(3, 4), tensor.WithBacking([]float64{
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}))
	acc, err := Accuracy(probs, ext)
	if err != nil {
		t.Fatal(err)
	}
	if acc != 2.0/3.0 {
		t.Errorf("accuracy %v, want 2/3", acc)
	}
	acc, err = Accuracy(ext, ext)
	if err != nil {
		t.Fatal(err)
	}
	if acc != 1 {
		t.Errorf("accuracy of labels against themselves %v, want 1", acc)
	}
}

func TestAccuracyRange(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for trial := 0; trial < 50; trial++ {
		probs := NormRandDense(rng, 8, 5)
		classes := make([]int, 8)
		for i := range classes {
			classes[i] = rng.Intn(4)
		}
		labels, err := OneHot(classes, 4)
		if err != nil {
			t.Fatal(err)
		}
		ext, err := PrepareExtendedLabel(labels)
		if err != nil {
			t.Fatal(err)
		}
		acc, err := Accuracy(probs, ext)
		if err != nil {
			t.Fatal(err)
		}
		if acc < 0 || acc > 1 {
			t.Fatalf("accuracy %v out of [0;1]", acc)
		}
	}
}
