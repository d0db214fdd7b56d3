package nn

import (
	"math/rand"

	"github.com/chewxy/math32"

	"github.com/fuse-ml/fuse/internal/device"
)

// XavierFill initializes a weight buffer with the Glorot bounded-uniform
// distribution U(-b, b), b = sqrt(6/(fanIn+fanOut)), which keeps the
// activation variance roughly constant across layers.
func XavierFill(w *device.Buffer, fanIn, fanOut int, rng *rand.Rand) {
	bound := math32.Sqrt(6.0 / float32(fanIn+fanOut))
	data := w.Data()
	for i := range data {
		data[i] = (rng.Float32()*2.0 - 1.0) * bound
	}
}
