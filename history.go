package ssgan_go

import (
	"encoding/json"
	"math"
	"os"

	"github.com/pkg/errors"
)

// History Per-epoch means of discriminator loss, generator loss and accuracy. Append-only.
// Epoch without a single successful step is recorded as NaN and stored as null in JSON
type History struct {
	DLosses    []float64 `json:"D_losses"`
	GLosses    []float64 `json:"G_losses"`
	Accuracies []float64 `json:"accuracies"`
}

// Append Adds record of one epoch
func (h *History) Append(dLoss, gLoss, accuracy float64) {
	h.DLosses = append(h.DLosses, dLoss)
	h.GLosses = append(h.GLosses, gLoss)
	h.Accuracies = append(h.Accuracies, accuracy)
}

// Len Number of epochs recorded
func (h *History) Len() int {
	return len(h.DLosses)
}

type historyJSON struct {
	DLosses    []*float64 `json:"D_losses"`
	GLosses    []*float64 `json:"G_losses"`
	Accuracies []*float64 `json:"accuracies"`
}

func toNullable(values []float64) []*float64 {
	out := make([]*float64, len(values))
	for i := range values {
		if isFinite(values[i]) {
			v := values[i]
			out[i] = &v
		}
	}
	return out
}

func fromNullable(values []*float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		if v == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = *v
	}
	return out
}

// MarshalJSON Non-finite values become null
func (h *History) MarshalJSON() ([]byte, error) {
	return json.Marshal(historyJSON{
		DLosses:    toNullable(h.DLosses),
		GLosses:    toNullable(h.GLosses),
		Accuracies: toNullable(h.Accuracies),
	})
}

// UnmarshalJSON null values become NaN
func (h *History) UnmarshalJSON(data []byte) error {
	raw := historyJSON{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	h.DLosses = fromNullable(raw.DLosses)
	h.GLosses = fromNullable(raw.GLosses)
	h.Accuracies = fromNullable(raw.Accuracies)
	return nil
}

// Save Writes history as JSON
func (h *History) Save(fname string) error {
	bytes, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return errors.Wrap(err, "Can't marshal history")
	}
	if err := os.WriteFile(fname, bytes, 0644); err != nil {
		return errors.Wrap(err, "Can't write history")
	}
	return nil
}

// LoadHistory Reads history written by Save
func LoadHistory(fname string) (*History, error) {
	bytes, err := os.ReadFile(fname)
	if err != nil {
		return nil, errors.Wrap(err, "Can't read history")
	}
	h := &History{}
	if err := json.Unmarshal(bytes, h); err != nil {
		return nil, errors.Wrap(err, "Can't unmarshal history")
	}
	return h, nil
}
