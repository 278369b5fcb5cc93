package ssgan_go

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// PrepareExtendedLabel Prepends zero "fake" column to one-hot labels: (N, K) -> (N, 1+K)
func PrepareExtendedLabel(labels *tensor.Dense) (*tensor.Dense, error) {
	shp := labels.Shape()
	if len(shp) != 2 {
		return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("labels must be (N, K), but got %v", shp))
	}
	data, err := denseFloats(labels)
	if err != nil {
		return nil, err
	}
	n, k := shp[0], shp[1]
	extended := make([]float64, n*(k+1))
	for i := 0; i < n; i++ {
		copy(extended[i*(k+1)+1:(i+1)*(k+1)], data[i*k:(i+1)*k])
	}
	return tensor.New(tensor.WithShape(n, k+1), tensor.WithBacking(extended)), nil
}

// OneHot Encodes class indices as (N, K) one-hot matrix
func OneHot(labels []int, numClasses int) (*tensor.Dense, error) {
	data := make([]float64, len(labels)*numClasses)
	for i, l := range labels {
		if l < 0 || l >= numClasses {
			return nil, fmt.Errorf("Label %d at position %d is out of range [0;%d)", l, i, numClasses)
		}
		data[i*numClasses+l] = 1.0
	}
	return tensor.New(tensor.WithShape(len(labels), numClasses), tensor.WithBacking(data)), nil
}
