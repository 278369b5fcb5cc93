package main

import (
	"flag"
	"fmt"
	"math/rand"
	"path/filepath"
	"strconv"
	"strings"

	ssgan "github.com/LdDl/ssgan-go"
)

var (
	dataDir      = flag.String("data", "", "directory with MNIST IDX files (train-images-idx3-ubyte[.gz], train-labels-idx1-ubyte[.gz])")
	synthetic    = flag.Int("synthetic", 0, "use N synthetic examples instead of MNIST")
	outputFolder = flag.String("out", "./output", "directory for sample grids, loss history and checkpoint")
	resume       = flag.String("resume", "", "checkpoint to start from")
)

func main() {
	cfg := ssgan.DefaultConfig()
	flag.IntVar(&cfg.BatchSize, "batch", cfg.BatchSize, "batch size")
	flag.IntVar(&cfg.Epochs, "epochs", cfg.Epochs, "number of epochs")
	flag.Float64Var(&cfg.LabeledRate, "labeled-rate", cfg.LabeledRate, "fraction of labeled examples in every batch")
	flag.Float64Var(&cfg.LearningRate, "lr", cfg.LearningRate, "Adam learning rate")
	flag.Float64Var(&cfg.Beta1, "beta1", cfg.Beta1, "Adam beta1")
	flag.IntVar(&cfg.LatentDim, "latent", cfg.LatentDim, "latent space size")
	flag.IntVar(&cfg.ImgHeight, "height", cfg.ImgHeight, "image height (divisible by 8)")
	flag.IntVar(&cfg.ImgWidth, "width", cfg.ImgWidth, "image width (divisible by 8)")
	flag.IntVar(&cfg.ImgChannels, "channels", cfg.ImgChannels, "image channels")
	flag.IntVar(&cfg.NumClasses, "classes", cfg.NumClasses, "number of classes")
	flag.Float64Var(&cfg.KeepProb, "keep-prob", cfg.KeepProb, "dropout keep-rate")
	flag.Float64Var(&cfg.LeakyAlpha, "leaky-alpha", cfg.LeakyAlpha, "negative slope of leaky ReLU")
	flag.Float64Var(&cfg.BatchNormMomentum, "bn-momentum", cfg.BatchNormMomentum, "batch normalization momentum")
	flag.Float64Var(&cfg.BatchNormEpsilon, "bn-eps", cfg.BatchNormEpsilon, "batch normalization epsilon")
	flag.Int64Var(&cfg.Seed, "seed", cfg.Seed, "random seed")
	flag.BoolVar(&cfg.Shuffle, "shuffle", cfg.Shuffle, "reshuffle data on every pass")
	flag.IntVar(&cfg.GridSize, "grid", cfg.GridSize, "side of sample grid")
	flag.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "print every evaluated batch")
	dFilters := flag.String("d-filters", joinInts(cfg.DiscriminatorFilters), "discriminator filters, comma separated")
	gFilters := flag.String("g-filters", joinInts(cfg.GeneratorFilters), "generator filters, comma separated")
	flag.Parse()

	var err error
	cfg.DiscriminatorFilters, err = splitInts(*dFilters)
	if err != nil {
		panic(err)
	}
	cfg.GeneratorFilters, err = splitInts(*gFilters)
	if err != nil {
		panic(err)
	}

	// Initialize seed with constant value to reproduce results
	dataRng := rand.New(rand.NewSource(cfg.Seed + 1))

	var trainSet *ssgan.TrainSet
	switch {
	case *synthetic > 0:
		trainSet, err = ssgan.SyntheticTrainSet(*synthetic, 28, 28, cfg.ImgChannels, cfg.NumClasses, dataRng)
	case *dataDir != "":
		trainSet, err = ssgan.LoadMNIST(*dataDir, dataRng)
	default:
		panic("Either -data or -synthetic must be provided")
	}
	if err != nil {
		panic(err)
	}
	// MNIST is always 10 classes of grayscale images
	err = trainSet.CheckConfig(cfg)
	if err != nil {
		panic(err)
	}
	fmt.Printf("Examples: %d\n", trainSet.NumExamples())

	model, err := ssgan.NewSSGAN(cfg)
	if err != nil {
		panic(err)
	}
	defer model.Close()
	if *resume != "" {
		err = model.LoadCheckpoint(*resume)
		if err != nil {
			panic(err)
		}
	}

	reporter := &ssgan.PlotReporter{
		Dir:      *outputFolder,
		GridSize: cfg.GridSize,
	}
	history, err := model.Train(trainSet, reporter)
	if err != nil {
		panic(err)
	}
	err = model.SaveCheckpoint(filepath.Join(*outputFolder, "checkpoint.json"))
	if err != nil {
		panic(err)
	}
	fmt.Printf("Done. Epochs: %d\n", history.Len())
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func splitInts(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	values := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("Bad integer '%s' in list '%s'", p, s)
		}
		values = append(values, v)
	}
	return values, nil
}
