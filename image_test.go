package ssgan_go

import (
	"math"
	"testing"

	"gorgonia.org/tensor"
)

func TestResizeBilinear(t *testing.T) {
	src := tensor.New(tensor.WithShape(1, 2, 2, 1), tensor.WithBacking([]float64{0, 1, 2, 3}))
	out, err := ResizeBilinear(src, 4, 4)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{
		0, 0.5, 1, 1,
		1, 1.5, 2, 2,
		2, 2.5, 3, 3,
		2, 2.5, 3, 3,
	}
	got := out.Data().([]float64)
	if !out.Shape().Eq(tensor.Shape{1, 4, 4, 1}) {
		t.Fatalf("shape %v", out.Shape())
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("pixel %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestResizeBilinearChannels(t *testing.T) {
	// Channels are interpolated independently
	src := tensor.New(tensor.WithShape(2, 1, 2, 2), tensor.WithBacking([]float64{
		0, 10, 1, 20,
		5, 5, 5, 5,
	}))
	out, err := ResizeBilinear(src, 1, 4)
	if err != nil {
		t.Fatal(err)
	}
	got := out.Data().([]float64)
	want := []float64{
		0, 10, 0.5, 15, 1, 20, 1, 20,
		5, 5, 5, 5, 5, 5, 5, 5,
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("value %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestPrepareImages(t *testing.T) {
	src := tensor.New(tensor.WithShape(1, 2, 2, 1), tensor.WithBacking([]float64{0, 0.5, 1, 0.25}))
	out, err := PrepareImages(src, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{-1, 0, 1, -0.5}
	got := out.Data().([]float64)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("value %d: got %v, want %v", i, got[i], want[i])
		}
	}
	// Source must stay untouched
	if src.Data().([]float64)[0] != 0 {
		t.Error("source was modified")
	}
	resized, err := PrepareImages(src, 8, 8)
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range resized.Data().([]float64) {
		if v < -1 || v > 1 {
			t.Fatalf("value %v out of [-1;1]", v)
		}
	}
}
