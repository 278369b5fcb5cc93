package ssgan_go

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gorgonia.org/tensor"
)

// Accuracy Share of examples whose predicted class equals true class. Column 0 ("fake") of both inputs is ignored.
//
// probs - discriminator probabilities (N, 1+K)
// extendedLabel - extended labels (N, 1+K)
//
func Accuracy(probs, extendedLabel *tensor.Dense) (float64, error) {
	ps, ls := probs.Shape(), extendedLabel.Shape()
	if len(ps) != 2 || !ps.Eq(ls) || ps[1] < 2 {
		return 0, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("accuracy needs equal (N, 1+K) inputs, but got %v and %v", ps, ls))
	}
	pData, err := denseFloats(probs)
	if err != nil {
		return 0, err
	}
	lData, err := denseFloats(extendedLabel)
	if err != nil {
		return 0, err
	}
	n, width := ps[0], ps[1]
	if n == 0 {
		return 0, nil
	}
	correct := 0
	for i := 0; i < n; i++ {
		row := i * width
		if floats.MaxIdx(pData[row+1:row+width]) == floats.MaxIdx(lData[row+1:row+width]) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}
