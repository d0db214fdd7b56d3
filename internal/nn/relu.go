package nn

import (
	"time"

	"github.com/fuse-ml/fuse/internal/device"
)

// ReLULayer clamps negatives to zero in place. Backward gates the
// gradient on the retained activation: zero output means the pre-activation
// was <= 0, so the gradient there is zero.
type ReLULayer struct {
	values *device.Buffer
	grads  *device.Buffer
	timing *Timing
}

// NewReLU builds the activation over the aliased value/gradient buffers.
func NewReLU(values, grads *device.Buffer, tm *Timing) *ReLULayer {
	return &ReLULayer{values: values, grads: grads, timing: tm}
}

func (r *ReLULayer) Kind() Kind { return ReLU }

func (r *ReLULayer) Forward() error {
	defer r.timing.observeForward(ReLU, time.Now())
	r.values.ForEach(func(_ int, v float32) float32 {
		if v > 0 {
			return v
		}
		return 0
	})
	return nil
}

func (r *ReLULayer) Backward() error {
	defer r.timing.observeBackward(ReLU, time.Now())
	r.grads.ForEachPeer(r.values, func(_ int, g, v float32) float32 {
		if v > 0 {
			return g
		}
		return 0
	})
	return nil
}
