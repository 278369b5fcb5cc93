package ssgan_go

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"gorgonia.org/tensor"
)

func idxBytes(t *testing.T, header []int32, payload []byte) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.BigEndian, header); err != nil {
		t.Fatal(err)
	}
	buf.Write(payload)
	return buf.Bytes()
}

func TestLoadMNIST(t *testing.T) {
	dir := t.TempDir()
	pixels := []byte{0, 255, 51, 102, 0, 0, 255, 255}
	images := idxBytes(t, []int32{idxMagicImages, 2, 2, 2}, pixels)
	labels := idxBytes(t, []int32{idxMagicLabels, 2}, []byte{7, 3})

	if err := os.WriteFile(filepath.Join(dir, mnistTrainImages), images, 0644); err != nil {
		t.Fatal(err)
	}
	// Labels gzipped
	gzBuf := &bytes.Buffer{}
	gz := gzip.NewWriter(gzBuf)
	if _, err := gz.Write(labels); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, mnistTrainLabels+".gz"), gzBuf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	ts, err := LoadMNIST(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !ts.TrainData.Shape().Eq(tensor.Shape{2, 2, 2, 1}) {
		t.Fatalf("images shape %v", ts.TrainData.Shape())
	}
	data := ts.TrainData.Data().([]float64)
	if data[1] != 1 || data[2] != 0.2 || data[0] != 0 {
		t.Errorf("pixels not scaled to [0;1]: %v", data)
	}
	oh := ts.TrainLabel.Data().([]float64)
	if oh[7] != 1 || oh[10+3] != 1 {
		t.Errorf("labels not one-hot encoded: %v", oh)
	}
}

func TestDecodeIDXBadMagic(t *testing.T) {
	if _, _, _, err := decodeIDXImages(bytes.NewReader(idxBytes(t, []int32{idxMagicLabels, 1, 1, 1}, []byte{0}))); err == nil {
		t.Error("expected error for labels magic in images file")
	}
	if _, err := decodeIDXLabels(bytes.NewReader(idxBytes(t, []int32{idxMagicLabels, 3}, []byte{1}))); err == nil {
		t.Error("expected error for truncated labels")
	}
}

func TestLoadMNISTMissing(t *testing.T) {
	if _, err := LoadMNIST(t.TempDir(), nil); err == nil {
		t.Error("expected error for empty directory")
	}
}
