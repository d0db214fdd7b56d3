package nn

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuse-ml/fuse/internal/graph"
)

func TestAggregateForward(t *testing.T) {
	adj, err := graph.NewAdjacency(2, [][2]int{{0, 1}})
	require.NoError(t, err)

	in := hostBuffer(t, "x", []float32{1, 0, 0, 1})
	out := zeroBuffer(t, "y", 4)
	a := NewAggregate(adj, in, out, zeroBuffer(t, "dx", 4), zeroBuffer(t, "dy", 4), 2, NewTiming())

	require.NoError(t, a.Forward())
	// Both nodes have degree 2 with self loops, every entry is 1/2.
	assert.InDeltaSlice(t, []float32{0.5, 0.5, 0.5, 0.5}, out.Data(), 1e-6)
}

// Backward reuses the forward kernel, which is only valid because the
// normalized adjacency is symmetric. Check <dx, x> == <dy, A x>.
func TestAggregateBackwardIsAdjoint(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	adj, err := graph.NewAdjacency(5, [][2]int{{0, 1}, {1, 2}, {2, 3}, {3, 4}, {0, 4}})
	require.NoError(t, err)

	const dim = 3
	n := adj.Rows * dim
	randVec := func() []float32 {
		s := make([]float32, n)
		for i := range s {
			s[i] = rng.Float32()*2 - 1
		}
		return s
	}

	xv := randVec()
	gv := randVec()
	in := hostBuffer(t, "x", xv)
	out := zeroBuffer(t, "y", n)
	inGrad := zeroBuffer(t, "dx", n)
	outGrad := hostBuffer(t, "dy", gv)
	a := NewAggregate(adj, in, out, inGrad, outGrad, dim, NewTiming())

	require.NoError(t, a.Forward())
	require.NoError(t, a.Backward())

	var lhs, rhs float64
	for i := 0; i < n; i++ {
		lhs += float64(inGrad.Data()[i]) * float64(xv[i])
		rhs += float64(gv[i]) * float64(out.Data()[i])
	}
	assert.InDelta(t, lhs, rhs, 1e-4)
}
