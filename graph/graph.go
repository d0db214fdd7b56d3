// Copyright 2026 Fuse ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package graph exposes the compressed sparse row structures shared by
// the adjacency matrix and the sparse feature matrix.
package graph

import (
	"github.com/fuse-ml/fuse/internal/graph"
)

// CSR is a sparse matrix in compressed sparse row form.
type CSR = graph.CSR

// Split tags carried by the per-node split vector.
const (
	SplitTrain = graph.SplitTrain
	SplitVal   = graph.SplitVal
	SplitTest  = graph.SplitTest
)

// NewAdjacency builds the symmetric, degree-normalized adjacency with
// self loops for an undirected edge list over n nodes.
func NewAdjacency(n int, edges [][2]int) (*CSR, error) {
	return graph.NewAdjacency(n, edges)
}
