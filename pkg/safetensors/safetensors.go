// Package safetensors reads tensor metadata and data from .safetensors
// checkpoint files, including sharded checkpoints with a
// *.safetensors.index.json weight map. It implements model.TensorSource;
// the analysis core never sees file formats.
package safetensors

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/samsartor/checkpointui/pkg/model"
	"github.com/samsartor/checkpointui/pkg/reclaim"
)

// headerLimit rejects absurd header sizes before allocating. A header this
// large means the file is not safetensors at all.
const headerLimit = 100 << 20

// readChunk is the granularity of tensor reads. Cancellation is checked
// between chunks, bounding how long an abandoned read keeps the worker
// busy.
const readChunk = 4 << 20

// headerEntry is the on-disk description of one tensor. DataOffsets are
// relative to the start of the data section (directly after the header).
type headerEntry struct {
	DType       model.DType `json:"dtype"`
	Shape       []uint64    `json:"shape"`
	DataOffsets [2]uint64   `json:"data_offsets"`
}

// File is one open .safetensors file.
type File struct {
	path    string
	f       *os.File
	tensors []model.TensorInfo
	meta    map[string]any
}

// OpenFile opens path and parses its header.
func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &model.DataError{Op: "open", Err: err}
	}
	file := &File{path: path, f: f}
	if err := file.parseHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return file, nil
}

func (s *File) parseHeader() error {
	var sizeBytes [8]byte
	if _, err := io.ReadFull(s.f, sizeBytes[:]); err != nil {
		return &model.DataError{Op: "header", Err: err}
	}
	n := binary.LittleEndian.Uint64(sizeBytes[:])
	if n > headerLimit {
		return &model.DataError{
			Op:  "header",
			Err: fmt.Errorf("header is %d bytes; is %s a safetensors file?", n, s.path),
		}
	}

	raw := make([]byte, n)
	if _, err := io.ReadFull(s.f, raw); err != nil {
		return &model.DataError{Op: "header", Err: err}
	}
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return &model.DataError{Op: "header", Err: err}
	}

	dataStart := 8 + n
	shard := filepath.Base(s.path)
	for name, rawEntry := range entries {
		if name == "__metadata__" {
			meta, err := parseMetadata(rawEntry)
			if err != nil {
				return err
			}
			s.meta = meta
			continue
		}
		var e headerEntry
		if err := json.Unmarshal(rawEntry, &e); err != nil {
			return &model.DataError{Op: "header", Tensor: name, Err: err}
		}
		if e.DataOffsets[1] < e.DataOffsets[0] {
			return &model.DataError{
				Op:     "header",
				Tensor: name,
				Err:    errors.New("tensor ends before it starts"),
			}
		}
		s.tensors = append(s.tensors, model.TensorInfo{
			Name:  name,
			DType: e.DType,
			Shape: e.Shape,
			Start: dataStart + e.DataOffsets[0],
			End:   dataStart + e.DataOffsets[1],
			Shard: shard,
		})
	}
	sort.Slice(s.tensors, func(i, j int) bool {
		return model.NaturalLess(s.tensors[i].Name, s.tensors[j].Name)
	})
	return nil
}

// parseMetadata decodes __metadata__. Values are strings on disk but often
// hold embedded JSON (training configs, format hints); decode those so the
// metadata panel can render structure instead of an escaped blob.
func parseMetadata(raw json.RawMessage) (map[string]any, error) {
	var flat map[string]string
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, &model.DataError{Op: "header", Tensor: "__metadata__", Err: err}
	}
	meta := make(map[string]any, len(flat))
	for k, v := range flat {
		var parsed any
		if err := json.Unmarshal([]byte(v), &parsed); err == nil {
			meta[k] = parsed
		} else {
			meta[k] = v
		}
	}
	return meta, nil
}

// Tensors returns the file's tensors in natural name order.
func (s *File) Tensors() []model.TensorInfo { return s.tensors }

// readTensor pages the tensor's byte range into memory, polling cancel
// between chunks.
func (s *File) readTensor(info model.TensorInfo, cancel reclaim.Probe) ([]byte, error) {
	if want := info.Elems() * uint64(info.DType.Size()); want != info.End-info.Start {
		return nil, &model.DataError{
			Op:     "read",
			Tensor: info.Name,
			DType:  info.DType,
			Err:    fmt.Errorf("byte range %d does not match shape (%d bytes)", info.End-info.Start, want),
		}
	}
	data := make([]byte, info.End-info.Start)
	for off := 0; off < len(data); off += readChunk {
		if !cancel.Alive() {
			return nil, &model.DataError{Op: "read", Tensor: info.Name, Err: errors.New("read cancelled")}
		}
		end := off + readChunk
		if end > len(data) {
			end = len(data)
		}
		if _, err := s.f.ReadAt(data[off:end], int64(info.Start)+int64(off)); err != nil {
			return nil, &model.DataError{Op: "read", Tensor: info.Name, DType: info.DType, Err: err}
		}
	}
	return data, nil
}

func (s *File) Close() error { return s.f.Close() }

// Source is a model.TensorSource over one safetensors file or a sharded
// set of them. Reads are serialized per shard through ReadAt, which is
// safe for concurrent use; no extra locking is needed.
type Source struct {
	display string
	files   map[string]*File // keyed by shard basename
	tensors []model.TensorInfo
	meta    map[string]any

	closeOnce sync.Once
	closeErr  error
}

// Open loads a checkpoint from path. A *.safetensors.index.json path loads
// the whole sharded checkpoint; anything else is opened as a single file.
func Open(path string) (*Source, error) {
	if strings.HasSuffix(path, ".index.json") {
		return OpenSharded(path)
	}
	f, err := OpenFile(path)
	if err != nil {
		return nil, err
	}
	return &Source{
		display: filepath.Base(path),
		files:   map[string]*File{filepath.Base(path): f},
		tensors: f.tensors,
		meta:    f.meta,
	}, nil
}

func (s *Source) Module(split model.PathSplit) (*model.Module, error) {
	return model.BuildModule(s.tensors, split), nil
}

func (s *Source) Metadata() (map[string]any, error) {
	return s.meta, nil
}

func (s *Source) TensorF32(info model.TensorInfo, cancel reclaim.Probe) ([]float32, error) {
	f, ok := s.files[info.Shard]
	if !ok {
		return nil, &model.DataError{
			Op:     "read",
			Tensor: info.Name,
			Err:    fmt.Errorf("no open shard %q", info.Shard),
		}
	}
	raw, err := f.readTensor(info, cancel)
	if err != nil {
		return nil, err
	}
	if !cancel.Alive() {
		return nil, &model.DataError{Op: "read", Tensor: info.Name, Err: errors.New("read cancelled")}
	}
	data, err := model.ConvertF32(info.DType, raw)
	if err != nil {
		var de *model.DataError
		if errors.As(err, &de) {
			de.Tensor = info.Name
		}
		return nil, err
	}
	return data, nil
}

func (s *Source) Display() string { return s.display }

func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		for _, f := range s.files {
			if err := f.Close(); err != nil && s.closeErr == nil {
				s.closeErr = err
			}
		}
	})
	return s.closeErr
}
