package ingest

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ReadSplit parses the split file: one small integer per line tagging the
// node at that line as train (1), validation (2) or test (3); 0 leaves
// the node outside every split. The line count must equal nodes.
func ReadSplit(path string, nodes int) ([]int32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: open split: %w", err)
	}
	defer f.Close()

	var split []int32
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		tag, err := strconv.Atoi(text)
		if err != nil || tag < 0 || tag > 3 {
			return nil, fmt.Errorf("%w: %s:%d: bad split tag %q", ErrFormat, path, lineNo, text)
		}
		split = append(split, int32(tag))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ingest: read split: %w", err)
	}
	if len(split) != nodes {
		return nil, fmt.Errorf("%w: %s: %d split tags for %d nodes", ErrFormat, path, len(split), nodes)
	}
	return split, nil
}

// ReadEdges parses an undirected edge list: two node ids per line,
// whitespace-separated. Blank lines and #-comments are skipped.
func ReadEdges(path string) ([][2]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: open edges: %w", err)
	}
	defer f.Close()

	var edges [][2]int
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != 2 {
			return nil, fmt.Errorf("%w: %s:%d: want two node ids, got %q", ErrFormat, path, lineNo, text)
		}
		u, err := strconv.Atoi(fields[0])
		if err != nil || u < 0 {
			return nil, fmt.Errorf("%w: %s:%d: bad node id %q", ErrFormat, path, lineNo, fields[0])
		}
		v, err := strconv.Atoi(fields[1])
		if err != nil || v < 0 {
			return nil, fmt.Errorf("%w: %s:%d: bad node id %q", ErrFormat, path, lineNo, fields[1])
		}
		edges = append(edges, [2]int{u, v})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ingest: read edges: %w", err)
	}
	return edges, nil
}
