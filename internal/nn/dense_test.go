package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDenseForward(t *testing.T) {
	// x: 2×2, w: 2×2, out = x × w computed by hand.
	x := hostBuffer(t, "x", []float32{1, 2, 3, 4})
	w := hostBuffer(t, "w", []float32{5, 6, 7, 8})
	out := zeroBuffer(t, "y", 4)
	d := NewDense(x, out, zeroBuffer(t, "dx", 4), zeroBuffer(t, "dy", 4),
		w, zeroBuffer(t, "dw", 4), 2, 2, 2, NewTiming())

	require.NoError(t, d.Forward())
	assert.Equal(t, []float32{19, 22, 43, 50}, out.Data())
}

func TestDenseBackward(t *testing.T) {
	x := hostBuffer(t, "x", []float32{1, 2, 3, 4})
	w := hostBuffer(t, "w", []float32{5, 6, 7, 8})
	xg := zeroBuffer(t, "dx", 4)
	g := hostBuffer(t, "dy", []float32{1, 0, 0, 1})
	wg := zeroBuffer(t, "dw", 4)
	d := NewDense(x, zeroBuffer(t, "y", 4), xg, g, w, wg, 2, 2, 2, NewTiming())

	require.NoError(t, d.Backward())

	// dw = xᵀ × g: with g the identity, dw is xᵀ.
	assert.Equal(t, []float32{1, 3, 2, 4}, wg.Data())

	// dx = g × wᵀ: with g the identity, dx is wᵀ.
	assert.Equal(t, []float32{5, 7, 6, 8}, xg.Data())
}
