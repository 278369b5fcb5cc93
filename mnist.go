package ssgan_go

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

const (
	idxMagicImages = 0x00000803
	idxMagicLabels = 0x00000801

	mnistTrainImages = "train-images-idx3-ubyte"
	mnistTrainLabels = "train-labels-idx1-ubyte"
	mnistNumClasses  = 10
)

// LoadMNIST Reads MNIST training files from dir (plain or with ".gz" suffix).
// Images become (N, 28, 28, 1) with values in [0;1], labels become (N, 10) one-hot.
func LoadMNIST(dir string, rng *rand.Rand) (*TrainSet, error) {
	images, rows, cols, err := readIDXImages(filepath.Join(dir, mnistTrainImages))
	if err != nil {
		return nil, errors.Wrap(err, "Can't read MNIST images")
	}
	classes, err := readIDXLabels(filepath.Join(dir, mnistTrainLabels))
	if err != nil {
		return nil, errors.Wrap(err, "Can't read MNIST labels")
	}
	n := len(images) / (rows * cols)
	if n != len(classes) {
		return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("%d images but %d labels", n, len(classes)))
	}
	labels, err := OneHot(classes, mnistNumClasses)
	if err != nil {
		return nil, errors.Wrap(err, "Can't encode MNIST labels")
	}
	return NewTrainSet(tensor.New(tensor.WithShape(n, rows, cols, 1), tensor.WithBacking(images)), labels, rng)
}

// openIDX Opens path or path+".gz"
func openIDX(path string) (io.ReadCloser, error) {
	if f, err := os.Open(path); err == nil {
		return f, nil
	}
	f, err := os.Open(path + ".gz")
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Can't open '%s' or its gzipped version", path))
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "Can't init gzip reader")
	}
	return &gzipFile{Reader: gz, file: f}, nil
}

type gzipFile struct {
	*gzip.Reader
	file *os.File
}

func (g *gzipFile) Close() error {
	if err := g.Reader.Close(); err != nil {
		g.file.Close()
		return err
	}
	return g.file.Close()
}

func readIDXImages(path string) ([]float64, int, int, error) {
	rc, err := openIDX(path)
	if err != nil {
		return nil, 0, 0, err
	}
	defer rc.Close()
	return decodeIDXImages(bufio.NewReader(rc))
}

// decodeIDXImages Decodes IDX3 unsigned byte images scaled to [0;1]
func decodeIDXImages(r io.Reader) ([]float64, int, int, error) {
	var header [4]int32
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, 0, 0, errors.Wrap(err, "Can't read IDX header")
	}
	if header[0] != idxMagicImages {
		return nil, 0, 0, fmt.Errorf("Bad IDX images magic number %#x", header[0])
	}
	n, rows, cols := int(header[1]), int(header[2]), int(header[3])
	if n < 0 || rows <= 0 || cols <= 0 {
		return nil, 0, 0, fmt.Errorf("Bad IDX images dimensions %dx%dx%d", n, rows, cols)
	}
	raw := make([]byte, n*rows*cols)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, 0, 0, errors.Wrap(err, "Can't read IDX pixels")
	}
	images := make([]float64, len(raw))
	for i, b := range raw {
		images[i] = float64(b) / 255.0
	}
	return images, rows, cols, nil
}

func readIDXLabels(path string) ([]int, error) {
	rc, err := openIDX(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return decodeIDXLabels(bufio.NewReader(rc))
}

// decodeIDXLabels Decodes IDX1 unsigned byte labels
func decodeIDXLabels(r io.Reader) ([]int, error) {
	var header [2]int32
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, errors.Wrap(err, "Can't read IDX header")
	}
	if header[0] != idxMagicLabels {
		return nil, fmt.Errorf("Bad IDX labels magic number %#x", header[0])
	}
	if header[1] < 0 {
		return nil, fmt.Errorf("Bad IDX labels count %d", header[1])
	}
	raw := make([]byte, header[1])
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, errors.Wrap(err, "Can't read IDX labels")
	}
	labels := make([]int, len(raw))
	for i, b := range raw {
		labels[i] = int(b)
	}
	return labels, nil
}
