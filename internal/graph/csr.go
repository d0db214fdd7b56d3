// Package graph holds the compressed sparse row structures shared by the
// adjacency matrix and the sparse feature matrix, plus the sparse-by-dense
// kernels the compute modules are built on.
package graph

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/chewxy/math32"
)

// Split tags carried by the per-node split vector. Zero means the node is
// outside every split.
const (
	SplitTrain int32 = 1
	SplitVal   int32 = 2
	SplitTest  int32 = 3
)

// CSR is a sparse matrix in compressed sparse row form. The same layout
// serves both the graph adjacency (Rows == Cols == node count) and the
// sparse feature matrix (Rows == node count, Cols == feature width).
type CSR struct {
	Rows   int
	Cols   int
	RowPtr []int32
	ColIdx []int32
	Val    []float32
}

// Nnz returns the number of stored entries.
func (m *CSR) Nnz() int { return len(m.ColIdx) }

// Validate checks the structural invariants of the matrix.
func (m *CSR) Validate() error {
	if len(m.RowPtr) != m.Rows+1 {
		return fmt.Errorf("graph: row pointer length %d, want %d", len(m.RowPtr), m.Rows+1)
	}
	if len(m.ColIdx) != len(m.Val) {
		return fmt.Errorf("graph: %d column indices but %d values", len(m.ColIdx), len(m.Val))
	}
	if int(m.RowPtr[m.Rows]) != len(m.ColIdx) {
		return fmt.Errorf("graph: row pointer end %d, want %d", m.RowPtr[m.Rows], len(m.ColIdx))
	}
	for _, c := range m.ColIdx {
		if int(c) < 0 || int(c) >= m.Cols {
			return fmt.Errorf("graph: column index %d out of range [0,%d)", c, m.Cols)
		}
	}
	return nil
}

// NewAdjacency builds the normalized adjacency for an undirected edge
// list over n nodes. Self loops are added to every node and each stored
// entry (i,j) carries 1/sqrt(deg(i)*deg(j)), which makes the matrix
// symmetric and the aggregation operator self-adjoint.
func NewAdjacency(n int, edges [][2]int) (*CSR, error) {
	neighbors := make([][]int32, n)
	for i := range neighbors {
		neighbors[i] = append(neighbors[i], int32(i)) // self loop
	}
	for _, e := range edges {
		u, v := e[0], e[1]
		if u < 0 || u >= n || v < 0 || v >= n {
			return nil, fmt.Errorf("graph: edge (%d,%d) out of range [0,%d)", u, v, n)
		}
		if u == v {
			continue
		}
		neighbors[u] = append(neighbors[u], int32(v))
		neighbors[v] = append(neighbors[v], int32(u))
	}

	m := &CSR{Rows: n, Cols: n, RowPtr: make([]int32, n+1)}
	for i, ns := range neighbors {
		m.RowPtr[i+1] = m.RowPtr[i] + int32(len(ns))
	}
	m.ColIdx = make([]int32, m.RowPtr[n])
	m.Val = make([]float32, m.RowPtr[n])
	for i, ns := range neighbors {
		copy(m.ColIdx[m.RowPtr[i]:], ns)
	}
	for i := 0; i < n; i++ {
		di := float32(m.RowPtr[i+1] - m.RowPtr[i])
		for p := m.RowPtr[i]; p < m.RowPtr[i+1]; p++ {
			j := m.ColIdx[p]
			dj := float32(m.RowPtr[j+1] - m.RowPtr[j])
			m.Val[p] = 1.0 / math32.Sqrt(di*dj)
		}
	}
	return m, nil
}

// MulDense computes out = M × X where X is dense row-major with the given
// column count. Rows of the output are computed in parallel; there is no
// ordering guarantee between them.
func (m *CSR) MulDense(x []float32, cols int, out []float32) {
	parallelRows(m.Rows, func(lo, hi int) {
		for r := lo; r < hi; r++ {
			row := out[r*cols : (r+1)*cols]
			for i := range row {
				row[i] = 0
			}
			for p := m.RowPtr[r]; p < m.RowPtr[r+1]; p++ {
				c := int(m.ColIdx[p])
				v := m.Val[p]
				src := x[c*cols : (c+1)*cols]
				for i, s := range src {
					row[i] += v * s
				}
			}
		}
	})
}

// MulDenseT computes out = Mᵀ × X, scattering each stored entry's row
// contribution into the output row of its column index. The accumulation
// runs sequentially because distinct rows of M may target the same output
// row.
func (m *CSR) MulDenseT(x []float32, cols int, out []float32) {
	for i := range out {
		out[i] = 0
	}
	for r := 0; r < m.Rows; r++ {
		src := x[r*cols : (r+1)*cols]
		for p := m.RowPtr[r]; p < m.RowPtr[r+1]; p++ {
			c := int(m.ColIdx[p])
			v := m.Val[p]
			dst := out[c*cols : (c+1)*cols]
			for i, s := range src {
				dst[i] += v * s
			}
		}
	}
}

// parallelRows splits [0, n) row ranges across the CPUs. Small matrices
// run inline.
func parallelRows(n int, body func(lo, hi int)) {
	const minRows = 256
	if n < minRows {
		body(0, n)
		return
	}
	workers := runtime.NumCPU()
	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += chunk {
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			body(lo, hi)
		}(lo, hi)
	}
	wg.Wait()
}
