package model

import (
	"strings"

	"github.com/samsartor/checkpointui/pkg/reclaim"
)

// TensorSource supplies tensor metadata and float data from a checkpoint
// file. Checkpoint parsing itself lives behind this interface; the analysis
// core only ever sees TensorInfo values and float slices.
//
// TensorF32 implementations must poll cancel at bounded intervals and
// return promptly (with any error) once it reports dead. The returned slice
// is read-only for the lifetime of one analysis and may be shared by
// reference between the UI and the worker.
type TensorSource interface {
	// Module builds the module tree of all tensors in the checkpoint.
	Module(split PathSplit) (*Module, error)
	// Metadata returns checkpoint-level metadata, if any.
	Metadata() (map[string]any, error)
	// TensorF32 reads and converts one tensor's data.
	TensorF32(info TensorInfo, cancel reclaim.Probe) ([]float32, error)
	// Display names the source for the UI title bar.
	Display() string
	// Close releases the underlying files.
	Close() error
}

const maxMetadataString = 10_000

// ShortenMetadata truncates giant strings and embedded data URIs so the
// metadata panel stays renderable. It rewrites the value in place where
// possible and returns the (possibly replaced) value.
func ShortenMetadata(v any) any {
	switch val := v.(type) {
	case string:
		if len(val) > maxMetadataString || strings.HasPrefix(val, "data:image/") {
			return "..."
		}
		return val
	case []any:
		for i := range val {
			val[i] = ShortenMetadata(val[i])
		}
		return val
	case map[string]any:
		for k := range val {
			val[k] = ShortenMetadata(val[k])
		}
		return val
	default:
		return v
	}
}
