package nn

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuse-ml/fuse/internal/graph"
)

// Four nodes, two classes. Nodes 0 and 1 are train, 2 is val, 3 is test.
func lossFixture(t *testing.T) (*CrossEntropyLayer, []float32, []float32) {
	t.Helper()
	logitVals := []float32{
		2, 0, // node 0, label 0, confidently right
		0, 1, // node 1, label 0, wrong
		1, 1, // node 2, label 1
		0, 3, // node 3, label 1
	}
	logits := hostBuffer(t, "z", logitVals)
	grads := zeroBuffer(t, "dz", len(logitVals))
	labels := []int32{0, 0, 1, 1}
	split := []int32{graph.SplitTrain, graph.SplitTrain, graph.SplitVal, graph.SplitTest}
	c := NewCrossEntropy(logits, grads, labels, split, 2, NewTiming())
	return c, logits.Data(), grads.Data()
}

func TestCrossEntropyProbabilitiesSumToOne(t *testing.T) {
	c, _, _ := lossFixture(t)
	require.NoError(t, c.Forward())

	probs := c.Probs()
	for i := 0; i < 4; i++ {
		sum := probs[i*2] + probs[i*2+1]
		assert.InDelta(t, 1.0, float64(sum), 1e-6, "node %d", i)
	}
}

func TestCrossEntropyCountsActiveSplitOnly(t *testing.T) {
	c, _, _ := lossFixture(t)
	require.NoError(t, c.Forward())

	wrong, cnt := c.Counters()
	assert.Equal(t, 2, cnt)   // only the two train nodes
	assert.Equal(t, 1, wrong) // node 1 predicts class 1, label is 0
	assert.InDelta(t, 0.5, float64(c.Accuracy()), 1e-6)

	// Mean loss over the train nodes, computed from the softmax directly.
	p0 := math32.Exp(2) / (math32.Exp(2) + 1)
	p1 := float32(1) / (1 + math32.Exp(1))
	want := (-math32.Log(p0) - math32.Log(p1)) / 2
	assert.InDelta(t, float64(want), float64(c.Loss()), 1e-5)
}

func TestCrossEntropyBackwardMasksInactiveNodes(t *testing.T) {
	c, _, grads := lossFixture(t)
	require.NoError(t, c.Forward())
	require.NoError(t, c.Backward())

	probs := c.Probs()
	// Train nodes carry softmax - one_hot.
	assert.InDelta(t, float64(probs[0]-1), float64(grads[0]), 1e-6)
	assert.InDelta(t, float64(probs[1]), float64(grads[1]), 1e-6)
	assert.InDelta(t, float64(probs[2]-1), float64(grads[2]), 1e-6)
	assert.InDelta(t, float64(probs[3]), float64(grads[3]), 1e-6)

	// Val and test nodes contribute nothing.
	for i := 4; i < 8; i++ {
		assert.Zero(t, grads[i], "grad %d", i)
	}
}

func TestCrossEntropySwitchSplit(t *testing.T) {
	c, _, _ := lossFixture(t)
	c.SetActiveSplit(graph.SplitVal)
	require.NoError(t, c.Forward())

	wrong, cnt := c.Counters()
	assert.Equal(t, 1, cnt)
	// Node 2 has equal logits; argmax picks class 0, label is 1.
	assert.Equal(t, 1, wrong)
}

func TestCrossEntropyEmptySplit(t *testing.T) {
	c, _, _ := lossFixture(t)
	c.SetActiveSplit(0)
	require.NoError(t, c.Forward())
	assert.Zero(t, c.Loss())
	assert.Zero(t, c.Accuracy())
}
