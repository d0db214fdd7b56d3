// Package topology turns a declarative layer list into a wired pipeline:
// resolved per-layer dimensions, the chain of value/gradient buffers
// threading the layers together, weight sets for the parameterized layers,
// and one compute module per configured layer.
package topology

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/fuse-ml/fuse/internal/nn"
)

// ErrResolve indicates an unresolvable symbolic width, a dimension
// mismatch between adjacent layers, or a structurally invalid layer list.
// All of these surface before any module runs.
var ErrResolve = errors.New("topology: cannot resolve configuration")

// LayerSpec describes one layer of the pipeline.
//
// Width is either a decimal literal or one of the symbolic tokens in_dim,
// hid_dim, out_dim, num_nodes, resolved against the global configuration.
// An empty width keeps the incoming dimension. Rate only applies to
// dropout layers, Decay only to parameterized ones.
type LayerSpec struct {
	Kind  string  `json:"kind"`
	Width string  `json:"width,omitempty"`
	Rate  float32 `json:"rate,omitempty"`
	Decay bool    `json:"decay,omitempty"`
}

// ParseKind maps a configured kind name onto a module variant.
func ParseKind(s string) (nn.Kind, error) {
	for _, k := range nn.Kinds() {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown layer kind %q", ErrResolve, s)
}

// LoadFile reads a JSON array of layer specs.
func LoadFile(path string) ([]LayerSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("topology: read %s: %w", path, err)
	}
	var specs []LayerSpec
	if err := json.Unmarshal(raw, &specs); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrResolve, path, err)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: %s: empty layer list", ErrResolve, path)
	}
	return specs, nil
}

// Default returns the canonical two-layer graph-convolutional stack:
// feature dropout, projection to the hidden width, aggregation, ReLU,
// dropout, dense to the class width, aggregation, loss.
func Default() []LayerSpec {
	return []LayerSpec{
		{Kind: "dropout", Rate: 0.5},
		{Kind: "sparse_project", Width: "hid_dim", Decay: true},
		{Kind: "aggregate"},
		{Kind: "relu"},
		{Kind: "dropout", Rate: 0.5},
		{Kind: "dense", Width: "out_dim"},
		{Kind: "aggregate"},
		{Kind: "cross_entropy"},
	}
}

// resolveWidth turns a width token into a concrete dimension.
func resolveWidth(tok string, in, hid, out, nodes int) (int, error) {
	switch tok {
	case "in_dim":
		return in, nil
	case "hid_dim":
		return hid, nil
	case "out_dim":
		return out, nil
	case "num_nodes":
		return nodes, nil
	}
	n, err := strconv.Atoi(tok)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: width %q", ErrResolve, tok)
	}
	return n, nil
}
