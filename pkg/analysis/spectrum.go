package analysis

import (
	"errors"

	"gonum.org/v1/gonum/mat"

	"github.com/samsartor/checkpointui/pkg/model"
	"github.com/samsartor/checkpointui/pkg/reclaim"
)

// Spectrum is the distribution of a weight matrix's singular values. A
// flat spectrum means the matrix spreads information across many
// directions; a few dominant values mean it is effectively low-rank.
type Spectrum struct {
	Chart BarChart
}

// NewSpectrum computes the singular values of a 2-D tensor and bins them
// with the left edge pinned at zero. Tensors that are not matrices return
// ErrNotMatrix; the caller skips the spectrum rather than reporting a
// failure, since vectors and scalars simply have no spectrum.
func NewSpectrum(info model.TensorInfo, data []float32, maxBins int, cancel reclaim.Probe) (Spectrum, error) {
	if len(data) == 0 {
		return Spectrum{Chart: DefaultBarChart()}, ErrEmptyTensor
	}
	rows, cols, ok := info.Matrix()
	if !ok {
		return Spectrum{}, ErrNotMatrix
	}
	if uint64(rows)*uint64(cols) != uint64(len(data)) {
		return Spectrum{}, &model.DataError{
			Op:     "spectrum",
			Tensor: info.Name,
			DType:  info.DType,
			Err:    errors.New("shape does not match data length"),
		}
	}

	wide := make([]float64, len(data))
	for i, x := range data {
		if i%cancelStride == 0 && i > 0 && !cancel.Alive() {
			return Spectrum{}, ErrCancelled
		}
		wide[i] = float64(x)
	}

	var svd mat.SVD
	if ok := svd.Factorize(mat.NewDense(rows, cols, wide), mat.SVDNone); !ok {
		return Spectrum{}, &model.DataError{
			Op:     "spectrum",
			Tensor: info.Name,
			DType:  info.DType,
			Err:    errors.New("svd did not converge"),
		}
	}
	if !cancel.Alive() {
		return Spectrum{}, ErrCancelled
	}

	values64 := svd.Values(nil)
	values := make([]float32, len(values64))
	for i, v := range values64 {
		values[i] = float32(v)
	}

	h, err := NewHistogram(values, maxBins, true, cancel)
	if err != nil {
		return Spectrum{}, err
	}
	return Spectrum{Chart: h.Chart}, nil
}
