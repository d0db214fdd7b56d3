// Package engine ties a graph, its feature matrix and label/split vectors
// to a concrete pipeline of compute modules, and orchestrates one replica
// of that pipeline per compute device.
package engine

import (
	"errors"
	"log/slog"

	"github.com/fuse-ml/fuse/internal/topology"
)

// ErrInvalidLayerIndex is returned by Extract when the requested layer
// carries no weights.
var ErrInvalidLayerIndex = errors.New("engine: layer is not parameterized")

// Config is the global parameter surface of a training run.
type Config struct {
	// FeatureFile holds one node per line: integer label, then sparse
	// index:value feature pairs.
	FeatureFile string
	// SplitFile holds one train/val/test tag per node.
	SplitFile string
	// GraphFile optionally holds the undirected edge list; Edges can be
	// supplied directly instead.
	GraphFile string
	Edges     [][2]int

	// InDim and OutDim are derived from the feature file when zero.
	InDim  int
	OutDim int
	// HiddenDim is the width the hid_dim topology token resolves to.
	HiddenDim int

	LearningRate float32
	WeightDecay  float32
	// MaxIter is the default step count for Train.
	MaxIter int
	// Training enables dropout; evaluation runs disable it.
	Training bool
	Seed     int64
	// Lenient tolerates malformed feature lines as empty records.
	Lenient bool

	// Topology is the declarative layer list; nil selects the canonical
	// two-layer stack.
	Topology []topology.LayerSpec

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.HiddenDim == 0 {
		c.HiddenDim = 16
	}
	if c.LearningRate == 0 {
		c.LearningRate = 0.005
	}
	if c.MaxIter == 0 {
		c.MaxIter = 100
	}
	if c.Topology == nil {
		c.Topology = topology.Default()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}
