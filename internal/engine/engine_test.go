package engine

import (
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuse-ml/fuse/internal/device"
	"github.com/fuse-ml/fuse/internal/graph"
	"github.com/fuse-ml/fuse/internal/ingest"
)

// Four nodes in two classes on a path graph. Nodes 0 and 1 train, node 2
// validates, node 3 tests.
func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()

	features := filepath.Join(dir, "features.txt")
	require.NoError(t, os.WriteFile(features, []byte(
		"0 0:1\n"+
			"0 0:1 1:0.2\n"+
			"1 1:1\n"+
			"1 0:0.2 1:1\n"), 0o644))

	split := filepath.Join(dir, "split.txt")
	require.NoError(t, os.WriteFile(split, []byte("1\n1\n2\n3\n"), 0o644))

	return Config{
		FeatureFile:  features,
		SplitFile:    split,
		Edges:        [][2]int{{0, 1}, {1, 2}, {2, 3}},
		HiddenDim:    2,
		LearningRate: 0.01,
		Training:     true,
		Seed:         7,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func testProblem(t *testing.T) *Problem {
	t.Helper()
	p, err := NewProblem(testConfig(t))
	require.NoError(t, err)
	t.Cleanup(p.Release)
	return p
}

func TestNewProblemDerivesDimensions(t *testing.T) {
	p := testProblem(t)
	assert.Equal(t, 4, p.Nodes())
	assert.Equal(t, 2, p.Config().InDim)  // max feature index 1
	assert.Equal(t, 2, p.Config().OutDim) // labels 0 and 1
}

func TestNewProblemRejectsOutOfRangeLabel(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	features := filepath.Join(dir, "features.txt")
	require.NoError(t, os.WriteFile(features, []byte(
		"0 0:1\n"+
			"3 1:1\n"+
			"1 1:1\n"+
			"1 0:0.2\n"), 0o644))
	cfg.FeatureFile = features
	cfg.OutDim = 2

	// A well-formed file whose label exceeds the configured class count
	// must fail ingestion, never reach a training step.
	_, err := NewProblem(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ingest.ErrFormat)
}

func TestNewProblemSplitMismatch(t *testing.T) {
	cfg := testConfig(t)
	badSplit := filepath.Join(t.TempDir(), "split.txt")
	require.NoError(t, os.WriteFile(badSplit, []byte("1\n1\n"), 0o644))
	cfg.SplitFile = badSplit
	_, err := NewProblem(cfg)
	assert.Error(t, err)
}

func TestTrainingLoop(t *testing.T) {
	p := testProblem(t)
	require.NoError(t, p.Init())
	require.NoError(t, p.Train(20))

	r := p.Replicas()[0]
	assert.Equal(t, 20, r.Steps())
	assert.False(t, math.IsNaN(float64(r.Loss())))
	assert.Greater(t, r.Loss(), float32(0))

	// Weights stay finite through the run.
	for _, ws := range r.net.Weights {
		for i, w := range ws.Values.Data() {
			if math.IsNaN(float64(w)) || math.IsInf(float64(w), 0) {
				t.Fatalf("layer %d weight %d is %v", ws.Layer, i, w)
			}
		}
	}
}

func TestEvaluateProbabilitiesAndCounters(t *testing.T) {
	p := testProblem(t)
	require.NoError(t, p.Init())
	require.NoError(t, p.Train(5))

	loss, acc, err := p.Evaluate(graph.SplitTrain)
	require.NoError(t, err)
	assert.Greater(t, loss, float32(0))
	assert.GreaterOrEqual(t, acc, float32(0))
	assert.LessOrEqual(t, acc, float32(1))

	r := p.Replicas()[0]
	probs := r.net.Loss.Probs()
	for i := 0; i < p.Nodes(); i++ {
		sum := probs[i*2] + probs[i*2+1]
		assert.InDelta(t, 1.0, float64(sum), 1e-5, "node %d", i)
	}

	// Only the two train nodes are counted under the train tag.
	_, cnt := r.net.Loss.Counters()
	assert.Equal(t, 2, cnt)

	// The single validation node under the validation tag.
	_, _, err = p.Evaluate(graph.SplitVal)
	require.NoError(t, err)
	_, cnt = r.net.Loss.Counters()
	assert.Equal(t, 1, cnt)

	// Evaluation must not flip the replica out of training mode.
	assert.True(t, r.training)
}

func TestLossTracksMostRecentForward(t *testing.T) {
	p := testProblem(t)
	require.NoError(t, p.Init())
	require.NoError(t, p.Train(3))
	r := p.Replicas()[0]

	valLoss, valAcc, err := p.Evaluate(graph.SplitVal)
	require.NoError(t, err)

	// Until the next step the accessors report the evaluation's counters.
	assert.Equal(t, valLoss, r.Loss())
	assert.Equal(t, valAcc, r.Accuracy())

	// A training step re-arms the train split and refreshes the counters.
	require.NoError(t, r.Step())
	_, cnt := r.net.Loss.Counters()
	assert.Equal(t, 2, cnt)
}

func TestExtractMatchesLiveWeights(t *testing.T) {
	p := testProblem(t)
	require.NoError(t, p.Init())
	require.NoError(t, p.Train(5))

	r := p.Replicas()[0]
	for _, ws := range r.net.Weights {
		dst := make([]float32, ws.Values.Len())
		require.NoError(t, p.Extract(ws.Layer, dst))
		// Weights are written back to the device after every optimizer
		// pass, so the extracted copy is bit-identical to the live set.
		assert.Equal(t, ws.Values.Data(), dst, "layer %d", ws.Layer)
	}
}

func TestExtractErrors(t *testing.T) {
	p := testProblem(t)
	require.NoError(t, p.Init())

	err := p.Extract(0, make([]float32, 4))
	assert.ErrorIs(t, err, ErrInvalidLayerIndex) // dropout has no weights

	err = p.Extract(99, make([]float32, 4))
	assert.ErrorIs(t, err, ErrInvalidLayerIndex)

	err = p.Extract(1, make([]float32, 3)) // projection is 2×2
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidLayerIndex)
}

func TestExtractAll(t *testing.T) {
	p := testProblem(t)
	require.NoError(t, p.Init())

	infos := p.WeightInfos()
	require.Len(t, infos, 2)
	assert.Equal(t, 1, infos[0].Layer)
	assert.Equal(t, 5, infos[1].Layer)

	dsts := make([][]float32, len(infos))
	for i, info := range infos {
		dsts[i] = make([]float32, info.FanIn*info.FanOut)
	}
	require.NoError(t, p.ExtractAll(dsts...))

	assert.Error(t, p.ExtractAll(dsts[0])) // buffer count mismatch
}

func TestResetPreservesWeights(t *testing.T) {
	p := testProblem(t)
	require.NoError(t, p.Init())
	require.NoError(t, p.Train(5))

	r := p.Replicas()[0]
	before := append([]float32(nil), r.net.Weights[0].Values.Data()...)
	stepsBefore := r.Steps()

	require.NoError(t, p.Reset())
	assert.Equal(t, before, r.net.Weights[0].Values.Data())
	assert.Equal(t, stepsBefore, r.Steps())

	// Training continues from where it stopped.
	require.NoError(t, r.Step())
	assert.Equal(t, stepsBefore+1, r.Steps())
}

func TestReplicaLifecycle(t *testing.T) {
	p := testProblem(t)
	require.NoError(t, p.Init())
	r := p.Replicas()[0]
	assert.Equal(t, Initialized, r.State())

	// Init is single-shot.
	assert.Error(t, r.Init())

	r.Release()
	assert.Equal(t, Released, r.State())
	assert.Error(t, r.Step())
	assert.Error(t, r.Reset())
	_, _, err := r.Evaluate(graph.SplitVal)
	assert.Error(t, err)

	// Release stays safe after release.
	r.Release()
	assert.Equal(t, Released, r.State())
}

func TestStepBeforeInit(t *testing.T) {
	p := testProblem(t)
	assert.Error(t, p.Train(1))

	r := newReplica(0, device.CPU(), p.cfg, p.adj, p.features, p.labels, p.split)
	assert.Error(t, r.Step())
	assert.Error(t, r.Reset())
}

func TestInitTwice(t *testing.T) {
	p := testProblem(t)
	require.NoError(t, p.Init())
	assert.Error(t, p.Init())
}

func TestMultiReplica(t *testing.T) {
	p := testProblem(t)
	require.NoError(t, p.Init(device.CPU(), device.CPU()))
	require.Len(t, p.Replicas(), 2)
	require.NoError(t, p.Train(3))

	for _, r := range p.Replicas() {
		assert.Equal(t, 3, r.Steps())
	}

	// Replicas draw from distinct seeded generators and own their feature
	// staging, so training one must not disturb the other's weights.
	w0 := p.Replicas()[0].net.Weights[0].Values.Data()
	w1 := p.Replicas()[1].net.Weights[0].Values.Data()
	assert.NotEqual(t, w0, w1)
}

func TestReplicaFeatureStagingIsIsolated(t *testing.T) {
	p := testProblem(t)
	require.NoError(t, p.Init())
	r := p.Replicas()[0]

	before := append([]float32(nil), p.features.Val...)
	require.NoError(t, r.Step())

	// Feature dropout writes through the chain's first buffer, which must
	// be the replica's copy, never the ingested array.
	assert.Equal(t, before, p.features.Val)
}
