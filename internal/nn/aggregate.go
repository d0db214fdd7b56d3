package nn

import (
	"time"

	"github.com/fuse-ml/fuse/internal/device"
	"github.com/fuse-ml/fuse/internal/graph"
)

// AggregateLayer computes, for every node, the degree-normalized sum of
// its neighbors' feature vectors. With the symmetric normalization built
// by graph.NewAdjacency the operator is self-adjoint, so Backward applies
// the same aggregation to the incoming gradient.
type AggregateLayer struct {
	adj     *graph.CSR
	in      *device.Buffer
	out     *device.Buffer
	inGrad  *device.Buffer
	outGrad *device.Buffer
	dim     int
	timing  *Timing
}

// NewAggregate wires the aggregation over adj to distinct input and
// output slots; the scatter pattern cannot run in place.
func NewAggregate(adj *graph.CSR, in, out, inGrad, outGrad *device.Buffer, dim int, tm *Timing) *AggregateLayer {
	return &AggregateLayer{
		adj:     adj,
		in:      in,
		out:     out,
		inGrad:  inGrad,
		outGrad: outGrad,
		dim:     dim,
		timing:  tm,
	}
}

func (a *AggregateLayer) Kind() Kind { return Aggregate }

func (a *AggregateLayer) Forward() error {
	defer a.timing.observeForward(Aggregate, time.Now())
	a.adj.MulDense(a.in.Data(), a.dim, a.out.Data())
	return nil
}

func (a *AggregateLayer) Backward() error {
	defer a.timing.observeBackward(Aggregate, time.Now())
	a.adj.MulDense(a.outGrad.Data(), a.dim, a.inGrad.Data())
	return nil
}
