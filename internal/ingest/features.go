// Package ingest parses the raw input files into the graph, feature,
// label and split arrays the engine trains on. Its only contract toward
// the core is producing structures with matching node counts.
package ingest

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrFormat indicates a malformed feature, split or edge file.
var ErrFormat = errors.New("ingest: malformed input")

// Options controls feature parsing.
type Options struct {
	// Lenient tolerates malformed lines as empty records (no features,
	// label 0) instead of failing the ingestion. The strict default
	// rejects the file on the first bad line.
	Lenient bool
	// InDim fixes the feature width. Zero derives it from the largest
	// feature index seen.
	InDim int
	// OutDim fixes the class count. Zero derives it from the largest
	// label seen; otherwise labels must fall in [0, OutDim).
	OutDim int
}

// FeatureSet is the parsed feature file: a CSR feature matrix in the raw
// triplet form the graph package consumes, one label per node, and the
// number of distinct classes.
type FeatureSet struct {
	Rows    int
	Cols    int
	RowPtr  []int32
	ColIdx  []int32
	Val     []float32
	Labels  []int32
	Classes int
	Skipped int
}

// ReadFeatures parses a sparse feature file: one node per line, an
// integer class label first, then whitespace-separated index:value pairs.
func ReadFeatures(path string, opts Options) (*FeatureSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: open features: %w", err)
	}
	defer f.Close()

	fs := &FeatureSet{RowPtr: []int32{0}}
	maxIdx := -1

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<16), 1<<24)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		label, idxs, vals, err := parseFeatureLine(scanner.Text())
		if err == nil && opts.OutDim > 0 && label >= opts.OutDim {
			err = fmt.Errorf("label %d out of range [0,%d)", label, opts.OutDim)
		}
		if err != nil {
			if !opts.Lenient {
				return nil, fmt.Errorf("%w: %s:%d: %v", ErrFormat, path, lineNo, err)
			}
			fs.Skipped++
			label, idxs, vals = 0, nil, nil // empty record
		}
		for _, ix := range idxs {
			if ix > maxIdx {
				maxIdx = ix
			}
			fs.ColIdx = append(fs.ColIdx, int32(ix))
		}
		fs.Val = append(fs.Val, vals...)
		fs.RowPtr = append(fs.RowPtr, int32(len(fs.ColIdx)))
		fs.Labels = append(fs.Labels, int32(label))
		if int(label)+1 > fs.Classes {
			fs.Classes = int(label) + 1
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ingest: read features: %w", err)
	}
	if len(fs.Labels) == 0 {
		return nil, fmt.Errorf("%w: %s: no records", ErrFormat, path)
	}

	fs.Rows = len(fs.Labels)
	fs.Cols = maxIdx + 1
	if opts.InDim > 0 {
		if maxIdx >= opts.InDim {
			return nil, fmt.Errorf("%w: %s: feature index %d exceeds configured in_dim %d",
				ErrFormat, path, maxIdx, opts.InDim)
		}
		fs.Cols = opts.InDim
	}
	return fs, nil
}

func parseFeatureLine(line string) (label int, idxs []int, vals []float32, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0, nil, nil, fmt.Errorf("empty line")
	}
	label, err = strconv.Atoi(fields[0])
	if err != nil || label < 0 {
		return 0, nil, nil, fmt.Errorf("bad label %q", fields[0])
	}
	for _, tok := range fields[1:] {
		idx, val, ok := strings.Cut(tok, ":")
		if !ok {
			return 0, nil, nil, fmt.Errorf("bad feature pair %q", tok)
		}
		ix, err := strconv.Atoi(idx)
		if err != nil || ix < 0 {
			return 0, nil, nil, fmt.Errorf("bad feature index %q", idx)
		}
		v, err := strconv.ParseFloat(val, 32)
		if err != nil {
			return 0, nil, nil, fmt.Errorf("bad feature value %q", val)
		}
		idxs = append(idxs, ix)
		vals = append(vals, float32(v))
	}
	return label, idxs, vals, nil
}
