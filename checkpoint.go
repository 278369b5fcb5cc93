package ssgan_go

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Checkpoint Serializable state of both networks
type Checkpoint struct {
	Steps  int              `json:"steps"`
	Params []ParamState     `json:"params"`
	Norms  []BatchNormState `json:"batch_norms"`
}

// ParamState Values of one learnable
type ParamState struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// BatchNormState Running statistics of one batch normalization
type BatchNormState struct {
	Name        string    `json:"name"`
	RunningMean []float64 `json:"running_mean"`
	RunningVar  []float64 `json:"running_var"`
}

func (s *SSGAN) batchNorms() []*BatchNorm {
	return append(s.generatorPart.BatchNorms(), s.discriminatorPart.BatchNorms()...)
}

// Checkpoint Captures current parameters and running statistics
func (s *SSGAN) Checkpoint() (*Checkpoint, error) {
	cp := &Checkpoint{Steps: s.steps}
	for _, n := range s.learnables {
		data, err := valueFloats(n.Value())
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't read '%s'", n.Name()))
		}
		values := make([]float64, len(data))
		copy(values, data)
		cp.Params = append(cp.Params, ParamState{Name: n.Name(), Shape: n.Shape().Clone(), Data: values})
	}
	for _, bn := range s.batchNorms() {
		cp.Norms = append(cp.Norms, BatchNormState{
			Name:        bn.Name,
			RunningMean: append([]float64{}, bn.RunningMean...),
			RunningVar:  append([]float64{}, bn.RunningVar...),
		})
	}
	return cp, nil
}

// Restore Copies checkpoint values into parameters and running statistics. Every entry must match by name and shape
func (s *SSGAN) Restore(cp *Checkpoint) error {
	params := make(map[string]ParamState, len(cp.Params))
	for _, p := range cp.Params {
		params[p.Name] = p
	}
	for _, n := range s.learnables {
		p, ok := params[n.Name()]
		if !ok {
			return fmt.Errorf("Checkpoint has no parameter '%s'", n.Name())
		}
		if !n.Shape().Eq(tensor.Shape(p.Shape)) {
			return errors.Wrap(ErrShapeMismatch, fmt.Sprintf("parameter '%s' is %v, but checkpoint has %v", n.Name(), n.Shape(), p.Shape))
		}
		dense, ok := n.Value().(*tensor.Dense)
		if !ok {
			return fmt.Errorf("Parameter '%s' holds %T", n.Name(), n.Value())
		}
		data, err := denseFloats(dense)
		if err != nil {
			return err
		}
		if len(data) != len(p.Data) {
			return errors.Wrap(ErrShapeMismatch, fmt.Sprintf("parameter '%s' has %d values, but checkpoint has %d", n.Name(), len(data), len(p.Data)))
		}
		copy(data, p.Data)
	}
	norms := make(map[string]BatchNormState, len(cp.Norms))
	for _, bn := range cp.Norms {
		norms[bn.Name] = bn
	}
	for _, bn := range s.batchNorms() {
		state, ok := norms[bn.Name]
		if !ok {
			return fmt.Errorf("Checkpoint has no batch normalization '%s'", bn.Name)
		}
		if len(state.RunningMean) != bn.Channels || len(state.RunningVar) != bn.Channels {
			return errors.Wrap(ErrShapeMismatch, fmt.Sprintf("batch normalization '%s' has %d channels", bn.Name, bn.Channels))
		}
		copy(bn.RunningMean, state.RunningMean)
		copy(bn.RunningVar, state.RunningVar)
	}
	s.steps = cp.Steps
	return nil
}

// SaveCheckpoint Writes checkpoint as JSON
func (s *SSGAN) SaveCheckpoint(fname string) error {
	cp, err := s.Checkpoint()
	if err != nil {
		return err
	}
	bytes, err := json.Marshal(cp)
	if err != nil {
		return errors.Wrap(err, "Can't marshal checkpoint")
	}
	if err := os.WriteFile(fname, bytes, 0644); err != nil {
		return errors.Wrap(err, "Can't write checkpoint")
	}
	return nil
}

// LoadCheckpoint Reads JSON checkpoint and restores it
func (s *SSGAN) LoadCheckpoint(fname string) error {
	bytes, err := os.ReadFile(fname)
	if err != nil {
		return errors.Wrap(err, "Can't read checkpoint")
	}
	cp := &Checkpoint{}
	if err := json.Unmarshal(bytes, cp); err != nil {
		return errors.Wrap(err, "Can't unmarshal checkpoint")
	}
	return s.Restore(cp)
}
