package ssgan_go

import (
	"github.com/pkg/errors"
)

var (
	// ErrNoLabeledExamples Labeled rate and batch size produce a batch without labeled examples, so supervised loss has nothing to average over
	ErrNoLabeledExamples = errors.New("no labeled examples in batch")
	// ErrShapeMismatch Input tensor does not match the shape declared in configuration
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrNonFiniteLoss Loss became NaN or Inf during a training step
	ErrNonFiniteLoss = errors.New("non-finite loss")
	// ErrBadConfig Configuration value is out of allowed range
	ErrBadConfig = errors.New("bad configuration")
)
