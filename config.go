package ssgan_go

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
)

// Config Every hyperparameter of a training run. Fixed at run start.
//
// DiscriminatorFilters - output channels of the four discriminator convolutions (the last one produces features)
// GeneratorFilters - channels of the generator's projection and two hidden upsampling stages
// KeepProb - dropout keep-rate used by both networks, also during sampling
// Shuffle - reshuffle the dataset at every pass boundary (false reproduces a fixed order)
//
type Config struct {
	BatchSize    int
	Epochs       int
	LabeledRate  float64
	LearningRate float64
	Beta1        float64

	LatentDim   int
	ImgHeight   int
	ImgWidth    int
	ImgChannels int
	NumClasses  int
	KeepProb    float64

	DiscriminatorFilters []int
	GeneratorFilters     []int
	LeakyAlpha           float64
	BatchNormMomentum    float64
	BatchNormEpsilon     float64

	Seed     int64
	Shuffle  bool
	GridSize int

	Verbose bool
	Log     io.Writer
}

// DefaultConfig Returns configuration matching the reference MNIST setup
func DefaultConfig() Config {
	return Config{
		BatchSize:            128,
		Epochs:               7,
		LabeledRate:          0.2,
		LearningRate:         2e-4,
		Beta1:                0.5,
		LatentDim:            100,
		ImgHeight:            64,
		ImgWidth:             64,
		ImgChannels:          1,
		NumClasses:           10,
		KeepProb:             0.7,
		DiscriminatorFilters: []int{128, 256, 512, 1024},
		GeneratorFilters:     []int{512, 256, 128},
		LeakyAlpha:           0.2,
		BatchNormMomentum:    0.99,
		BatchNormEpsilon:     1e-3,
		Seed:                 1337,
		Shuffle:              true,
		GridSize:             5,
		Log:                  os.Stdout,
	}
}

// LabeledCount Number of labeled examples per batch: floor(batch_size * labeled_rate)
func LabeledCount(batchSize int, labeledRate float64) int {
	return int(math.Floor(float64(batchSize) * labeledRate))
}

// Validate Checks configuration before any graph is built
func (cfg *Config) Validate() error {
	positive := []struct {
		name string
		v    int
	}{
		{"batch size", cfg.BatchSize},
		{"epochs", cfg.Epochs},
		{"latent dimension", cfg.LatentDim},
		{"image height", cfg.ImgHeight},
		{"image width", cfg.ImgWidth},
		{"image channels", cfg.ImgChannels},
		{"number of classes", cfg.NumClasses},
		{"grid size", cfg.GridSize},
	}
	for _, p := range positive {
		if p.v <= 0 {
			return errors.Wrap(ErrBadConfig, fmt.Sprintf("%s must be positive, but got %d", p.name, p.v))
		}
	}
	if cfg.ImgHeight%8 != 0 || cfg.ImgWidth%8 != 0 {
		return errors.Wrap(ErrBadConfig, fmt.Sprintf("image size must be divisible by 8, but got %dx%d", cfg.ImgHeight, cfg.ImgWidth))
	}
	if cfg.LabeledRate < 0 || cfg.LabeledRate > 1 {
		return errors.Wrap(ErrBadConfig, fmt.Sprintf("labeled rate must be in [0;1], but got %v", cfg.LabeledRate))
	}
	if cfg.KeepProb <= 0 || cfg.KeepProb > 1 {
		return errors.Wrap(ErrBadConfig, fmt.Sprintf("dropout keep-rate must be in (0;1], but got %v", cfg.KeepProb))
	}
	if cfg.LearningRate <= 0 {
		return errors.Wrap(ErrBadConfig, fmt.Sprintf("learning rate must be positive, but got %v", cfg.LearningRate))
	}
	if cfg.Beta1 < 0 || cfg.Beta1 >= 1 {
		return errors.Wrap(ErrBadConfig, fmt.Sprintf("beta1 must be in [0;1), but got %v", cfg.Beta1))
	}
	if cfg.BatchNormMomentum < 0 || cfg.BatchNormMomentum >= 1 {
		return errors.Wrap(ErrBadConfig, fmt.Sprintf("batch norm momentum must be in [0;1), but got %v", cfg.BatchNormMomentum))
	}
	if cfg.BatchNormEpsilon <= 0 {
		return errors.Wrap(ErrBadConfig, fmt.Sprintf("batch norm epsilon must be positive, but got %v", cfg.BatchNormEpsilon))
	}
	if len(cfg.DiscriminatorFilters) != 4 {
		return errors.Wrap(ErrBadConfig, fmt.Sprintf("discriminator needs 4 filter sizes, but got %d", len(cfg.DiscriminatorFilters)))
	}
	if len(cfg.GeneratorFilters) != 3 {
		return errors.Wrap(ErrBadConfig, fmt.Sprintf("generator needs 3 filter sizes, but got %d", len(cfg.GeneratorFilters)))
	}
	for _, f := range append(append([]int{}, cfg.DiscriminatorFilters...), cfg.GeneratorFilters...) {
		if f <= 0 {
			return errors.Wrap(ErrBadConfig, fmt.Sprintf("filter sizes must be positive, but got %d", f))
		}
	}
	if LabeledCount(cfg.BatchSize, cfg.LabeledRate) < 1 {
		return errors.Wrap(ErrNoLabeledExamples, fmt.Sprintf("batch size %d with labeled rate %v gives zero labeled examples", cfg.BatchSize, cfg.LabeledRate))
	}
	return nil
}

func (cfg *Config) logWriter() io.Writer {
	if cfg.Log == nil {
		return io.Discard
	}
	return cfg.Log
}
