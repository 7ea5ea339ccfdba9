// Package testutil provides in-memory tensor fixtures for exercising the
// analysis pipeline without checkpoint files. All generators produce
// deterministic output for reproducible tests.
package testutil

import (
	"errors"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/samsartor/checkpointui/pkg/model"
	"github.com/samsartor/checkpointui/pkg/reclaim"
)

// MemorySource is a model.TensorSource backed by an in-memory tensor map.
// ReadDelay and FailNames let tests simulate slow reads and I/O failures;
// cancellation is polled between chunks the way a real file source would.
type MemorySource struct {
	Tensors map[string][]float32
	Shapes  map[string][]uint64

	// ReadDelay is injected per chunk of reads so cancellation races have
	// a window to land in.
	ReadDelay time.Duration
	// FailNames marks tensors whose reads fail with a DataError.
	FailNames map[string]bool

	reads atomic.Int64
}

// NewMemorySource builds a source from name -> data, with 1-D shapes
// inferred from the data lengths. Use SetShape for matrices.
func NewMemorySource(tensors map[string][]float32) *MemorySource {
	s := &MemorySource{
		Tensors:   make(map[string][]float32, len(tensors)),
		Shapes:    make(map[string][]uint64, len(tensors)),
		FailNames: make(map[string]bool),
	}
	for name, data := range tensors {
		s.Tensors[name] = data
		s.Shapes[name] = []uint64{uint64(len(data))}
	}
	return s
}

// SetShape overrides the inferred shape for one tensor.
func (s *MemorySource) SetShape(name string, shape ...uint64) {
	s.Shapes[name] = shape
}

// Info returns the TensorInfo for a named tensor, for handing to
// Session.Select.
func (s *MemorySource) Info(name string) model.TensorInfo {
	return model.TensorInfo{
		Name:  name,
		DType: model.DTypeF32,
		Shape: s.Shapes[name],
	}
}

// Reads reports how many TensorF32 calls have completed or aborted, so
// tests can assert the worker actually ran.
func (s *MemorySource) Reads() int64 { return s.reads.Load() }

func (s *MemorySource) Module(split model.PathSplit) (*model.Module, error) {
	infos := make([]model.TensorInfo, 0, len(s.Tensors))
	for name := range s.Tensors {
		infos = append(infos, s.Info(name))
	}
	return model.BuildModule(infos, split), nil
}

func (s *MemorySource) Metadata() (map[string]any, error) {
	return map[string]any{"format": "memory"}, nil
}

func (s *MemorySource) TensorF32(info model.TensorInfo, cancel reclaim.Probe) ([]float32, error) {
	defer s.reads.Add(1)
	data, ok := s.Tensors[info.Name]
	if !ok || s.FailNames[info.Name] {
		return nil, &model.DataError{
			Op:     "read",
			Tensor: info.Name,
			Err:    errors.New("tensor unavailable"),
		}
	}

	// Copy in chunks with a cancellation check between each, mirroring
	// how a file-backed source pages through large tensors.
	const chunk = 1024
	out := make([]float32, 0, len(data))
	for off := 0; off < len(data); off += chunk {
		if !cancel.Alive() {
			return nil, &model.DataError{
				Op:     "read",
				Tensor: info.Name,
				Err:    errors.New("read cancelled"),
			}
		}
		if s.ReadDelay > 0 {
			time.Sleep(s.ReadDelay)
		}
		end := off + chunk
		if end > len(data) {
			end = len(data)
		}
		out = append(out, data[off:end]...)
	}
	if len(data) == 0 && !cancel.Alive() {
		return nil, &model.DataError{Op: "read", Tensor: info.Name, Err: errors.New("read cancelled")}
	}
	return out, nil
}

func (s *MemorySource) Display() string { return "memory" }

func (s *MemorySource) Close() error { return nil }

// UniformTensor returns n deterministic pseudo-uniform samples in
// [lo, hi).
func UniformTensor(n int, lo, hi float32, seed int64) []float32 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float32, n)
	for i := range out {
		out[i] = lo + rng.Float32()*(hi-lo)
	}
	return out
}

// ConstantTensor returns n copies of v.
func ConstantTensor(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}
