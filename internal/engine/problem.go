package engine

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/fuse-ml/fuse/internal/device"
	"github.com/fuse-ml/fuse/internal/graph"
	"github.com/fuse-ml/fuse/internal/ingest"
)

// Problem owns the ingested data of one training run and the replicas
// training on it. The graph, feature, label and split arrays are built
// once and treated as read-only afterwards; replicas stage their own
// mutable copies.
type Problem struct {
	cfg      Config
	adj      *graph.CSR
	features *graph.CSR
	labels   []int32
	split    []int32
	replicas []*Replica
}

// NewProblem ingests the configured input files and derives the feature
// and class dimensions that were left unset.
func NewProblem(cfg Config) (*Problem, error) {
	cfg = cfg.withDefaults()

	fs, err := ingest.ReadFeatures(cfg.FeatureFile, ingest.Options{
		Lenient: cfg.Lenient,
		InDim:   cfg.InDim,
		OutDim:  cfg.OutDim,
	})
	if err != nil {
		return nil, err
	}
	if fs.Skipped > 0 {
		cfg.Logger.Warn("tolerated malformed feature lines", "file", cfg.FeatureFile, "skipped", fs.Skipped)
	}
	if cfg.InDim == 0 {
		cfg.InDim = fs.Cols
	}
	if cfg.OutDim == 0 {
		cfg.OutDim = fs.Classes
	}

	edges := cfg.Edges
	if cfg.GraphFile != "" {
		if edges, err = ingest.ReadEdges(cfg.GraphFile); err != nil {
			return nil, err
		}
	}
	adj, err := graph.NewAdjacency(fs.Rows, edges)
	if err != nil {
		return nil, err
	}

	split, err := ingest.ReadSplit(cfg.SplitFile, fs.Rows)
	if err != nil {
		return nil, err
	}

	features := &graph.CSR{
		Rows:   fs.Rows,
		Cols:   cfg.InDim,
		RowPtr: fs.RowPtr,
		ColIdx: fs.ColIdx,
		Val:    fs.Val,
	}
	if err := features.Validate(); err != nil {
		return nil, err
	}

	cfg.Logger.Info("ingested problem",
		"nodes", fs.Rows, "edges", len(edges),
		"in_dim", cfg.InDim, "out_dim", cfg.OutDim, "nnz", features.Nnz())

	return &Problem{
		cfg:      cfg,
		adj:      adj,
		features: features,
		labels:   fs.Labels,
		split:    split,
	}, nil
}

// Nodes returns the node count of the ingested graph.
func (p *Problem) Nodes() int { return p.adj.Rows }

// Config returns the resolved configuration, with derived dimensions
// filled in.
func (p *Problem) Config() Config { return p.cfg }

// Replicas returns the built replicas.
func (p *Problem) Replicas() []*Replica { return p.replicas }

// Init builds and initializes one replica per context. With no contexts
// a single CPU replica is built; multi-replica training is a scaffold
// over unpartitioned data, not a verified distribution scheme.
func (p *Problem) Init(ctxs ...device.Context) error {
	if len(p.replicas) > 0 {
		return fmt.Errorf("engine: already initialized")
	}
	if len(ctxs) == 0 {
		ctxs = []device.Context{device.CPU()}
	}
	for i, ctx := range ctxs {
		r := newReplica(i, ctx, p.cfg, p.adj, p.features, p.labels, p.split)
		if err := r.Init(); err != nil {
			for _, built := range p.replicas {
				built.Release()
			}
			p.replicas = nil
			return err
		}
		p.replicas = append(p.replicas, r)
	}
	return nil
}

// Train runs the given number of steps on every replica concurrently.
// Zero selects the configured MaxIter. The first failing replica aborts
// the run.
func (p *Problem) Train(steps int) error {
	if len(p.replicas) == 0 {
		return fmt.Errorf("engine: Train before Init")
	}
	if steps <= 0 {
		steps = p.cfg.MaxIter
	}
	var g errgroup.Group
	for _, r := range p.replicas {
		g.Go(func() error {
			for s := 0; s < steps; s++ {
				if err := r.Step(); err != nil {
					return err
				}
				if (s+1)%10 == 0 || s == steps-1 {
					p.cfg.Logger.Info("epoch",
						"replica", r.ID(), "step", s+1,
						"loss", r.Loss(), "accuracy", r.Accuracy())
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// Extract copies the weight set of the given layer index from device
// memory into dst. The replica's weights are written back to the device
// after every optimizer pass, so the copy matches the live weights.
func (p *Problem) Extract(layer int, dst []float32) error {
	if len(p.replicas) == 0 {
		return fmt.Errorf("engine: Extract before Init")
	}
	ws := p.replicas[0].net.WeightAt(layer)
	if ws == nil {
		return fmt.Errorf("%w: layer %d", ErrInvalidLayerIndex, layer)
	}
	if len(dst) != ws.Values.Len() {
		return fmt.Errorf("engine: Extract layer %d: buffer of %d elements, want %d",
			layer, len(dst), ws.Values.Len())
	}
	return ws.Values.Download(dst)
}

// ExtractAll copies every parameterized layer's weights, in layer order,
// into the supplied host buffers.
func (p *Problem) ExtractAll(dsts ...[]float32) error {
	if len(p.replicas) == 0 {
		return fmt.Errorf("engine: Extract before Init")
	}
	sets := p.replicas[0].net.Weights
	if len(dsts) != len(sets) {
		return fmt.Errorf("engine: ExtractAll: %d buffers for %d weight sets", len(dsts), len(sets))
	}
	for i, ws := range sets {
		if err := p.Extract(ws.Layer, dsts[i]); err != nil {
			return err
		}
	}
	return nil
}

// WeightInfo describes one parameterized layer of the built topology.
type WeightInfo struct {
	Layer  int
	FanIn  int
	FanOut int
}

// WeightInfos lists the parameterized layers in layer order.
func (p *Problem) WeightInfos() []WeightInfo {
	if len(p.replicas) == 0 {
		return nil
	}
	var infos []WeightInfo
	for _, ws := range p.replicas[0].net.Weights {
		infos = append(infos, WeightInfo{Layer: ws.Layer, FanIn: ws.FanIn, FanOut: ws.FanOut})
	}
	return infos
}

// Evaluate reports loss and accuracy over the given split tag on the
// first replica.
func (p *Problem) Evaluate(tag int32) (loss, accuracy float32, err error) {
	if len(p.replicas) == 0 {
		return 0, 0, fmt.Errorf("engine: Evaluate before Init")
	}
	return p.replicas[0].Evaluate(tag)
}

// Reset re-arms every replica's device placement.
func (p *Problem) Reset() error {
	for _, r := range p.replicas {
		if err := r.Reset(); err != nil {
			return err
		}
	}
	return nil
}

// Release frees every replica. Idempotent.
func (p *Problem) Release() {
	for _, r := range p.replicas {
		r.Release()
	}
}
