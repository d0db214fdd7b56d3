package nn

import (
	"math/rand"
	"time"

	"github.com/fuse-ml/fuse/internal/device"
)

// DropoutLayer zeroes each element with probability rate and rescales the
// survivors by 1/(1-rate) (inverted dropout). It runs in place: its input
// and output buffers are the same chain position, as are the gradients.
//
// The mask drawn by Forward is retained so the paired Backward applies
// exactly the same gating. When training is disabled the layer is a
// pass-through and Backward leaves the gradient untouched.
type DropoutLayer struct {
	values *device.Buffer
	grads  *device.Buffer
	rate   float32
	scale  float32
	mask   []float32
	rng    *rand.Rand
	train  *bool
	timing *Timing
}

// NewDropout builds a dropout module over the aliased value/gradient
// buffers. The generator is owned by the replica and shared across its
// dropout layers, so masks are drawn sequentially.
func NewDropout(values, grads *device.Buffer, rate float32, rng *rand.Rand, train *bool, tm *Timing) *DropoutLayer {
	return &DropoutLayer{
		values: values,
		grads:  grads,
		rate:   rate,
		scale:  1.0 / (1.0 - rate),
		mask:   make([]float32, values.Len()),
		rng:    rng,
		train:  train,
		timing: tm,
	}
}

func (d *DropoutLayer) Kind() Kind { return Dropout }

// Mask returns the gating drawn by the last Forward. Entries are 0 for
// dropped elements and the rescale factor for kept ones.
func (d *DropoutLayer) Mask() []float32 { return d.mask }

func (d *DropoutLayer) Forward() error {
	defer d.timing.observeForward(Dropout, time.Now())
	if !*d.train {
		return nil
	}
	// The generator is not safe for concurrent use, so the mask draw and
	// the in-place apply share one sequential pass.
	data := d.values.Data()
	for i := range data {
		if d.rng.Float32() < d.rate {
			d.mask[i] = 0
			data[i] = 0
		} else {
			d.mask[i] = d.scale
			data[i] *= d.scale
		}
	}
	return nil
}

func (d *DropoutLayer) Backward() error {
	defer d.timing.observeBackward(Dropout, time.Now())
	if !*d.train {
		return nil
	}
	mask := d.mask
	d.grads.ForEach(func(i int, g float32) float32 {
		return g * mask[i]
	})
	return nil
}
