package main

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/fuse-ml/fuse/device"
	"github.com/fuse-ml/fuse/engine"
	"github.com/fuse-ml/fuse/graph"
	"github.com/fuse-ml/fuse/nn"
	"github.com/fuse-ml/fuse/topology"
)

type trainFlags struct {
	features  string
	split     string
	edges     string
	topo      string
	inDim     int
	outDim    int
	hidden    int
	lr        float64
	decay     float64
	iters     int
	seed      int64
	lenient   bool
	gpu       bool
	verbose   bool
	dumpPath  string
	noProfile bool
}

func newTrainCommand() *cobra.Command {
	var f trainFlags
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a graph-convolutional network on a node-classification problem",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTrain(&f)
		},
	}
	cmd.Flags().StringVar(&f.features, "features", "", "sparse feature file (label idx:value ...)")
	cmd.Flags().StringVar(&f.split, "split", "", "per-node train/val/test split file")
	cmd.Flags().StringVar(&f.edges, "edges", "", "undirected edge list file")
	cmd.Flags().StringVar(&f.topo, "topology", "", "layer list JSON (default: canonical 2-layer stack)")
	cmd.Flags().IntVar(&f.inDim, "in-dim", 0, "feature width (0 = derive from feature file)")
	cmd.Flags().IntVar(&f.outDim, "out-dim", 0, "class count (0 = derive from labels)")
	cmd.Flags().IntVar(&f.hidden, "hid-dim", 16, "hidden width")
	cmd.Flags().Float64Var(&f.lr, "lr", 0.005, "learning rate")
	cmd.Flags().Float64Var(&f.decay, "weight-decay", 5e-4, "weight decay for layers with the decay flag")
	cmd.Flags().IntVar(&f.iters, "max-iter", 200, "training steps")
	cmd.Flags().Int64Var(&f.seed, "seed", 1, "rng seed")
	cmd.Flags().BoolVar(&f.lenient, "lenient", false, "tolerate malformed feature lines as empty records")
	cmd.Flags().BoolVar(&f.gpu, "gpu", false, "place buffers on a WebGPU device when available")
	cmd.Flags().BoolVar(&f.verbose, "verbose", false, "debug logging")
	cmd.Flags().StringVar(&f.dumpPath, "dump-weights", "", "write extracted weights to <prefix>.layer<N>.bin")
	cmd.Flags().BoolVar(&f.noProfile, "no-profile", false, "skip the per-operator timing table")
	_ = cmd.MarkFlagRequired("features")
	_ = cmd.MarkFlagRequired("split")
	return cmd
}

func runTrain(f *trainFlags) error {
	level := slog.LevelInfo
	if f.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	var topo []topology.LayerSpec
	if f.topo != "" {
		var err error
		if topo, err = topology.LoadFile(f.topo); err != nil {
			return err
		}
	}

	problem, err := engine.NewProblem(engine.Config{
		FeatureFile:  f.features,
		SplitFile:    f.split,
		GraphFile:    f.edges,
		InDim:        f.inDim,
		OutDim:       f.outDim,
		HiddenDim:    f.hidden,
		LearningRate: float32(f.lr),
		WeightDecay:  float32(f.decay),
		MaxIter:      f.iters,
		Training:     true,
		Seed:         f.seed,
		Lenient:      f.lenient,
		Topology:     topo,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	defer problem.Release()

	ctx := device.CPU()
	if f.gpu {
		gpu, err := device.WebGPU()
		if err != nil {
			logger.Warn("falling back to cpu", "error", err)
		} else {
			ctx = gpu
			defer gpu.Release()
		}
	}
	if err := problem.Init(ctx); err != nil {
		return err
	}

	start := time.Now()
	if err := problem.Train(f.iters); err != nil {
		return err
	}
	elapsed := time.Since(start)

	valLoss, valAcc, err := problem.Evaluate(graph.SplitVal)
	if err != nil {
		return err
	}
	testLoss, testAcc, err := problem.Evaluate(graph.SplitTest)
	if err != nil {
		return err
	}
	logger.Info("training finished",
		"steps", f.iters, "elapsed", elapsed,
		"val_loss", valLoss, "val_accuracy", valAcc,
		"test_loss", testLoss, "test_accuracy", testAcc)

	if !f.noProfile {
		printProfile(problem)
	}
	if f.dumpPath != "" {
		if err := dumpWeights(problem, f.dumpPath); err != nil {
			return err
		}
	}
	return nil
}

// printProfile renders the per-operator timing accumulators of the first
// replica.
func printProfile(problem *engine.Problem) {
	timing := problem.Replicas()[0].Timing()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"OPERATOR", "FORWARD", "BACKWARD"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, k := range nn.Kinds() {
		fw, bw := timing.Forward[k], timing.Backward[k]
		if fw == 0 && bw == 0 {
			continue
		}
		table.Append([]string{k.String(), fw.String(), bw.String()})
	}
	table.Render()
}

// dumpWeights extracts every parameterized layer into
// <prefix>.layer<N>.bin as little-endian float32.
func dumpWeights(problem *engine.Problem, prefix string) error {
	for _, info := range problem.WeightInfos() {
		dst := make([]float32, info.FanIn*info.FanOut)
		if err := problem.Extract(info.Layer, dst); err != nil {
			return err
		}
		raw := make([]byte, 4*len(dst))
		for i, v := range dst {
			binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
		}
		path := fmt.Sprintf("%s.layer%d.bin", prefix, info.Layer)
		if err := os.WriteFile(path, raw, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}
