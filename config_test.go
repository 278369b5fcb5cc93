package ssgan_go

import (
	"testing"

	"github.com/pkg/errors"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if LabeledCount(cfg.BatchSize, cfg.LabeledRate) != 25 {
		t.Errorf("labeled count %d, want 25", LabeledCount(cfg.BatchSize, cfg.LabeledRate))
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		modify func(cfg *Config)
		want   error
	}{
		{"zero labeled", func(cfg *Config) { cfg.LabeledRate = 0 }, ErrNoLabeledExamples},
		{"tiny labeled rate", func(cfg *Config) { cfg.BatchSize = 4; cfg.LabeledRate = 0.2 }, ErrNoLabeledExamples},
		{"odd size", func(cfg *Config) { cfg.ImgHeight = 28 }, ErrBadConfig},
		{"negative batch", func(cfg *Config) { cfg.BatchSize = -1 }, ErrBadConfig},
		{"keep prob", func(cfg *Config) { cfg.KeepProb = 0 }, ErrBadConfig},
		{"filters", func(cfg *Config) { cfg.GeneratorFilters = []int{1, 2} }, ErrBadConfig},
		{"momentum", func(cfg *Config) { cfg.BatchNormMomentum = 1 }, ErrBadConfig},
	}
	for _, c := range cases {
		cfg := DefaultConfig()
		c.modify(&cfg)
		if err := cfg.Validate(); errors.Cause(err) != c.want {
			t.Errorf("%s: got %v, want %v", c.name, err, c.want)
		}
	}
}
