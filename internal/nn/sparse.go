package nn

import (
	"time"

	"github.com/fuse-ml/fuse/internal/device"
	"github.com/fuse-ml/fuse/internal/graph"
)

// SparseProjectLayer projects the sparse feature matrix through a dense
// weight: out = F × W. The feature values are the chain's first buffer,
// which borrows the CSR value storage, so an upstream in-place layer (a
// feature dropout) is visible here without a copy.
type SparseProjectLayer struct {
	features   *graph.CSR
	weight     *device.Buffer
	weightGrad *device.Buffer
	out        *device.Buffer
	outGrad    *device.Buffer
	inGrad     *device.Buffer // nil for the first layer: no upstream consumer
	outDim     int
	timing     *Timing
}

// NewSparseProject wires the projection to its feature matrix, weight set
// and chain slots. Pass a nil inGrad when no upstream module consumes the
// gradient w.r.t. the feature values.
func NewSparseProject(features *graph.CSR, weight, weightGrad, out, outGrad, inGrad *device.Buffer, outDim int, tm *Timing) *SparseProjectLayer {
	return &SparseProjectLayer{
		features:   features,
		weight:     weight,
		weightGrad: weightGrad,
		out:        out,
		outGrad:    outGrad,
		inGrad:     inGrad,
		outDim:     outDim,
		timing:     tm,
	}
}

func (s *SparseProjectLayer) Kind() Kind { return SparseProject }

func (s *SparseProjectLayer) Forward() error {
	defer s.timing.observeForward(SparseProject, time.Now())
	s.features.MulDense(s.weight.Data(), s.outDim, s.out.Data())
	return nil
}

func (s *SparseProjectLayer) Backward() error {
	defer s.timing.observeBackward(SparseProject, time.Now())

	// Weight gradient: Fᵀ × outGrad.
	s.features.MulDenseT(s.outGrad.Data(), s.outDim, s.weightGrad.Data())

	// Gradient w.r.t. the stored feature values, one per CSR entry:
	// dVal[p] = Σ_j W[col(p), j] · outGrad[row(p), j].
	if s.inGrad == nil {
		return nil
	}
	w := s.weight.Data()
	g := s.outGrad.Data()
	ig := s.inGrad.Data()
	f := s.features
	for r := 0; r < f.Rows; r++ {
		grow := g[r*s.outDim : (r+1)*s.outDim]
		for p := f.RowPtr[r]; p < f.RowPtr[r+1]; p++ {
			c := int(f.ColIdx[p])
			wrow := w[c*s.outDim : (c+1)*s.outDim]
			var sum float32
			for j, gv := range grow {
				sum += wrow[j] * gv
			}
			ig[p] = sum
		}
	}
	return nil
}
