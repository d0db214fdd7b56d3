// Copyright 2026 Fuse ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package engine is the public training surface of Fuse.
//
// A Problem owns one training run's ingested data and orchestrates one
// Replica per compute device:
//
//	problem, err := engine.NewProblem(engine.Config{
//	    FeatureFile: "cora.features",
//	    SplitFile:   "cora.split",
//	    GraphFile:   "cora.edges",
//	    Training:    true,
//	})
//	if err != nil { ... }
//	defer problem.Release()
//	if err := problem.Init(); err != nil { ... }
//	if err := problem.Train(200); err != nil { ... }
package engine

import (
	"github.com/fuse-ml/fuse/internal/engine"
)

// Problem orchestrates ingestion, replicas and weight extraction.
type Problem = engine.Problem

// Replica is one device's self-contained pipeline instance.
type Replica = engine.Replica

// Config is the global parameter surface of a run.
type Config = engine.Config

// State is the lifecycle position of a replica.
type State = engine.State

// Replica lifecycle states.
const (
	Uninitialized = engine.Uninitialized
	Initialized   = engine.Initialized
	Released      = engine.Released
)

// WeightInfo describes one parameterized layer of a built topology.
type WeightInfo = engine.WeightInfo

// ErrInvalidLayerIndex is returned by Extract for layers without weights.
var ErrInvalidLayerIndex = engine.ErrInvalidLayerIndex

// NewProblem ingests the configured inputs and prepares a training run.
func NewProblem(cfg Config) (*Problem, error) {
	return engine.NewProblem(cfg)
}
