package analysis

import (
	"github.com/samsartor/checkpointui/pkg/cell"
	"github.com/samsartor/checkpointui/pkg/model"
	"github.com/samsartor/checkpointui/pkg/reclaim"
)

// Request asks the worker for statistics over one tensor.
type Request struct {
	Tensor  model.TensorInfo
	MaxBins int
}

// Analysis is the per-selection aggregate: the request cell the worker
// takes from, a cancel cell, and one result cell per statistic. It lives
// inside a reclaim.Owner; killing the owner closes every cell, which is
// what unblocks a worker mid-wait and guarantees results for a stale
// selection can never be published.
type Analysis struct {
	Tensor  model.TensorInfo
	MaxBins int

	Request   *cell.Cell[Request]
	Cancel    *cell.Cell[struct{}]
	Histogram *cell.Cell[Histogram]
	Spectrum  *cell.Cell[Spectrum]
	Failure   *cell.Cell[error]
}

// newAnalysis builds the aggregate with every cell empty and the request
// cell pre-filled.
func newAnalysis(info model.TensorInfo, maxBins int) *Analysis {
	a := &Analysis{
		Tensor:    info,
		MaxBins:   maxBins,
		Request:   cell.New[Request](),
		Cancel:    cell.New[struct{}](),
		Histogram: cell.New[Histogram](),
		Spectrum:  cell.New[Spectrum](),
		Failure:   cell.New[error](),
	}
	a.Request.Set(Request{Tensor: info, MaxBins: maxBins})
	return a
}

// closeCells is the aggregate's kill hook. Closing is idempotent and wakes
// every waiter with absence, so it is safe whether the worker is idle,
// blocked, or mid-computation.
func (a *Analysis) closeCells() {
	a.Request.Close()
	a.Cancel.Close()
	a.Histogram.Close()
	a.Spectrum.Close()
	a.Failure.Close()
}

// cancelProbe reports cancellation for one in-flight computation. It dies
// when the owning Analysis is killed or its cancel cell is closed
// explicitly. Holding the cell pointer past the kill is fine: the probe
// never reads the value, only the closed flag the kill hook already set.
type cancelProbe struct {
	weak   reclaim.Weak[Analysis]
	cancel *cell.Cell[struct{}]
}

func (p cancelProbe) Alive() bool {
	return p.weak.Alive() && !p.cancel.Closed()
}
