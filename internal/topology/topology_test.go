package topology

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuse-ml/fuse/internal/device"
	"github.com/fuse-ml/fuse/internal/graph"
	"github.com/fuse-ml/fuse/internal/nn"
)

const (
	testNodes  = 4
	testInDim  = 3
	testHidDim = 2
	testOutDim = 2
)

func buildParams(t *testing.T, specs []LayerSpec) Params {
	t.Helper()
	adj, err := graph.NewAdjacency(testNodes, [][2]int{{0, 1}, {1, 2}, {2, 3}})
	require.NoError(t, err)

	// Dense features stored sparse: every node has all testInDim entries.
	features := &graph.CSR{
		Rows:   testNodes,
		Cols:   testInDim,
		RowPtr: []int32{0, 3, 6, 9, 12},
		ColIdx: []int32{0, 1, 2, 0, 1, 2, 0, 1, 2, 0, 1, 2},
		Val:    make([]float32, testNodes*testInDim),
	}
	for i := range features.Val {
		features.Val[i] = float32(i%3) * 0.5
	}

	training := true
	return Params{
		Ctx:       device.CPU(),
		Specs:     specs,
		InDim:     testInDim,
		HiddenDim: testHidDim,
		OutDim:    testOutDim,
		Features:  features,
		Adjacency: adj,
		Labels:    []int32{0, 1, 0, 1},
		Split:     []int32{graph.SplitTrain, graph.SplitTrain, graph.SplitVal, graph.SplitTest},
		RNG:       rand.New(rand.NewSource(1)),
		Training:  &training,
		Timing:    nn.NewTiming(),
	}
}

func TestBuildDefaultTopology(t *testing.T) {
	p := buildParams(t, Default())
	net, err := Build(p)
	require.NoError(t, err)
	defer net.Release()

	n := len(p.Specs)
	assert.Len(t, net.Modules, n)
	assert.Len(t, net.Slots, n+1)
	assert.Len(t, net.Dims, n+1)

	// Resolved dimensions: in -> in -> hid -> hid -> hid -> hid -> out -> out -> out.
	assert.Equal(t, []int{3, 3, 2, 2, 2, 2, 2, 2, 2}, net.Dims)

	// Slot 0 borrows the feature value storage.
	assert.True(t, net.Slots[0].Values.Borrowed())
	assert.Equal(t, p.Features.Nnz(), net.Slots[0].Values.Len())

	// In-place layers alias; the alias always names the owning root.
	wantAlias := []int{-1, 0, -1, -1, 3, 3, -1, -1, 7}
	for i, s := range net.Slots {
		assert.Equal(t, wantAlias[i], s.AliasOf, "slot %d", i)
		if s.AliasOf >= 0 {
			root := net.Slots[s.AliasOf]
			assert.Same(t, root.Values, s.Values, "slot %d values", i)
			assert.Same(t, root.Grads, s.Grads, "slot %d grads", i)
			assert.Equal(t, -1, root.AliasOf, "slot %d root must own", i)
		}
	}

	// Owned interior slots hold nodes×dim elements.
	for i, s := range net.Slots[1:] {
		if s.AliasOf >= 0 {
			continue
		}
		assert.Equal(t, testNodes*s.Dim, s.Values.Len(), "slot %d", i+1)
		assert.Equal(t, testNodes*s.Dim, s.Grads.Len(), "slot %d", i+1)
	}

	// Two weight sets: the projection (with decay) and the dense layer.
	require.Len(t, net.Weights, 2)
	proj, dense := net.Weights[0], net.Weights[1]
	assert.Equal(t, 1, proj.Layer)
	assert.Equal(t, testInDim, proj.FanIn)
	assert.Equal(t, testHidDim, proj.FanOut)
	assert.True(t, proj.Decay)
	assert.Equal(t, 5, dense.Layer)
	assert.False(t, dense.Decay)

	assert.NotNil(t, net.Loss)
	assert.Same(t, net.Loss, net.Modules[n-1])
}

func TestBuildSlotNames(t *testing.T) {
	net, err := Build(buildParams(t, Default()))
	require.NoError(t, err)
	defer net.Release()

	// Names accrete one operator symbol per layer.
	assert.Equal(t, "x", net.Slots[0].Values.Name())
	assert.Equal(t, "x~*@", net.Slots[3].Values.Name())
	assert.Equal(t, "x~*@", net.Slots[4].Values.Name()) // relu aliases
	assert.Equal(t, "d(x~*@)", net.Slots[3].Grads.Name())
}

func TestBuildErrors(t *testing.T) {
	cases := map[string][]LayerSpec{
		"empty":      {},
		"unknownKind": {{Kind: "conv"}, {Kind: "cross_entropy"}},
		"lossNotLast": {{Kind: "cross_entropy"}, {Kind: "relu"}},
		"noLoss": {
			{Kind: "sparse_project", Width: "out_dim"},
		},
		"missingWidth": {
			{Kind: "sparse_project"},
			{Kind: "cross_entropy"},
		},
		"badWidthToken": {
			{Kind: "sparse_project", Width: "bogus"},
			{Kind: "cross_entropy"},
		},
		"widthMismatch": {
			{Kind: "sparse_project", Width: "out_dim"},
			{Kind: "relu", Width: "num_nodes"},
			{Kind: "cross_entropy"},
		},
		"finalDimWrong": {
			{Kind: "sparse_project", Width: "5"},
			{Kind: "aggregate"},
			{Kind: "cross_entropy"},
		},
		"badDropoutRate": {
			{Kind: "dropout", Rate: 1.5},
			{Kind: "sparse_project", Width: "out_dim"},
			{Kind: "aggregate"},
			{Kind: "cross_entropy"},
		},
		"aggregateOnFeatures": {
			{Kind: "aggregate"},
			{Kind: "dense", Width: "out_dim"},
			{Kind: "cross_entropy"},
		},
		"denseOnFeatures": {
			{Kind: "dense", Width: "out_dim"},
			{Kind: "cross_entropy"},
		},
		"projectionMidChain": {
			{Kind: "sparse_project", Width: "hid_dim"},
			{Kind: "aggregate"},
			{Kind: "sparse_project", Width: "out_dim"},
			{Kind: "aggregate"},
			{Kind: "cross_entropy"},
		},
	}
	for name, specs := range cases {
		t.Run(name, func(t *testing.T) {
			net, err := Build(buildParams(t, specs))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrResolve)
			assert.Nil(t, net)
		})
	}
}

func TestWeightAt(t *testing.T) {
	net, err := Build(buildParams(t, Default()))
	require.NoError(t, err)
	defer net.Release()

	assert.NotNil(t, net.WeightAt(1))
	assert.NotNil(t, net.WeightAt(5))
	assert.Nil(t, net.WeightAt(0))
	assert.Nil(t, net.WeightAt(99))
}

func TestReleaseIdempotent(t *testing.T) {
	net, err := Build(buildParams(t, Default()))
	require.NoError(t, err)
	net.Release()
	net.Release()
	assert.Nil(t, net.Slots)
	assert.Nil(t, net.Weights)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "layers.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"kind": "dropout", "rate": 0.5},
		{"kind": "sparse_project", "width": "hid_dim", "decay": true},
		{"kind": "cross_entropy"}
	]`), 0o644))

	specs, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, specs, 3)
	assert.Equal(t, "sparse_project", specs[1].Kind)
	assert.Equal(t, "hid_dim", specs[1].Width)
	assert.True(t, specs[1].Decay)

	_, err = LoadFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"kind":`), 0o644))
	_, err = LoadFile(bad)
	assert.ErrorIs(t, err, ErrResolve)
}
