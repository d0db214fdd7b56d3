package nn

import (
	"time"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/fuse-ml/fuse/internal/device"
)

// DenseLayer is a standard dense product out = in × W with both weight-
// and input-gradient backward products, expressed as BLAS level-3 calls.
type DenseLayer struct {
	in         *device.Buffer
	out        *device.Buffer
	inGrad     *device.Buffer
	outGrad    *device.Buffer
	weight     *device.Buffer
	weightGrad *device.Buffer
	rows       int // node count
	inDim      int
	outDim     int
	timing     *Timing
}

// NewDense wires the product over rows×inDim input and inDim×outDim weight.
func NewDense(in, out, inGrad, outGrad, weight, weightGrad *device.Buffer, rows, inDim, outDim int, tm *Timing) *DenseLayer {
	return &DenseLayer{
		in:         in,
		out:        out,
		inGrad:     inGrad,
		outGrad:    outGrad,
		weight:     weight,
		weightGrad: weightGrad,
		rows:       rows,
		inDim:      inDim,
		outDim:     outDim,
		timing:     tm,
	}
}

func (d *DenseLayer) Kind() Kind { return Dense }

func (d *DenseLayer) general(b *device.Buffer, rows, cols int) blas32.General {
	return blas32.General{Rows: rows, Cols: cols, Stride: cols, Data: b.Data()}
}

func (d *DenseLayer) Forward() error {
	defer d.timing.observeForward(Dense, time.Now())
	x := d.general(d.in, d.rows, d.inDim)
	w := d.general(d.weight, d.inDim, d.outDim)
	y := d.general(d.out, d.rows, d.outDim)
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, x, w, 0, y)
	return nil
}

func (d *DenseLayer) Backward() error {
	defer d.timing.observeBackward(Dense, time.Now())
	x := d.general(d.in, d.rows, d.inDim)
	w := d.general(d.weight, d.inDim, d.outDim)
	g := d.general(d.outGrad, d.rows, d.outDim)

	// Weight gradient: xᵀ × g.
	wg := d.general(d.weightGrad, d.inDim, d.outDim)
	blas32.Gemm(blas.Trans, blas.NoTrans, 1, x, g, 0, wg)

	// Input gradient: g × wᵀ.
	xg := d.general(d.inGrad, d.rows, d.inDim)
	blas32.Gemm(blas.NoTrans, blas.Trans, 1, g, w, 0, xg)
	return nil
}
