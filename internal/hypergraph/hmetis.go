package hypergraph

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// hMetis header format codes
const (
	fmtUnweighted    = 0
	fmtEdgeWeights   = 1
	fmtVertexWeights = 10
	fmtBothWeights   = 11
)

// LoadHMetis reads an hMetis .hgr file from path.
func LoadHMetis(path string) (*Hypergraph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open hypergraph: %w", err)
	}
	defer f.Close()

	h, err := ReadHMetis(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	slog.Info("Loaded hypergraph",
		"path", path,
		"vertices", h.NumVertices(),
		"hyperedges", h.NumEdges(),
		"pins", h.NumPins(),
	)
	return h, nil
}

// ReadHMetis parses the hMetis hypergraph format:
//
//	% comment
//	<num hyperedges> <num vertices> [fmt]
//	[edge weight] pin pin ...      (one line per hyperedge, pins 1-based)
//	vertex weight                  (one line per vertex when fmt is 10 or 11)
func ReadHMetis(r io.Reader) (*Hypergraph, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	lineNo := 0
	nextLine := func() ([]string, bool) {
		for scanner.Scan() {
			lineNo++
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "%") {
				continue
			}
			return strings.Fields(line), true
		}
		return nil, false
	}

	header, ok := nextLine()
	if !ok {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to scan header: %w", err)
		}
		return nil, &FormatError{Reason: "missing header"}
	}
	if len(header) < 2 || len(header) > 3 {
		return nil, &FormatError{Line: lineNo, Reason: "header must be: <hyperedges> <vertices> [fmt]"}
	}

	numEdges, err := parseCount(header[0])
	if err != nil {
		return nil, &FormatError{Line: lineNo, Reason: "hyperedge count: " + err.Error()}
	}
	numVertices, err := parseCount(header[1])
	if err != nil {
		return nil, &FormatError{Line: lineNo, Reason: "vertex count: " + err.Error()}
	}
	format := fmtUnweighted
	if len(header) == 3 {
		format, err = strconv.Atoi(header[2])
		if err != nil {
			return nil, &FormatError{Line: lineNo, Reason: "bad fmt field " + header[2]}
		}
	}

	var hasEdgeWeights, hasVertexWeights bool
	switch format {
	case fmtUnweighted:
	case fmtEdgeWeights:
		hasEdgeWeights = true
	case fmtVertexWeights:
		hasVertexWeights = true
	case fmtBothWeights:
		hasEdgeWeights, hasVertexWeights = true, true
	default:
		return nil, &FormatError{Line: lineNo, Reason: fmt.Sprintf("unsupported fmt %d", format)}
	}

	edges := make([][]int, numEdges)
	var edgeWeights []int64
	if hasEdgeWeights {
		edgeWeights = make([]int64, numEdges)
	}

	for e := 0; e < numEdges; e++ {
		fields, ok := nextLine()
		if !ok {
			return nil, &FormatError{Line: lineNo, Reason: fmt.Sprintf("expected %d hyperedges, found %d", numEdges, e)}
		}
		if hasEdgeWeights {
			w, err := strconv.ParseInt(fields[0], 10, 64)
			if err != nil {
				return nil, &FormatError{Line: lineNo, Reason: "bad hyperedge weight " + fields[0]}
			}
			edgeWeights[e] = w
			fields = fields[1:]
		}
		if len(fields) == 0 {
			return nil, &FormatError{Line: lineNo, Reason: fmt.Sprintf("hyperedge %d has no pins", e)}
		}
		pins := make([]int, len(fields))
		for i, f := range fields {
			v, err := strconv.Atoi(f)
			if err != nil || v < 1 || v > numVertices {
				return nil, &FormatError{Line: lineNo, Reason: "bad pin " + f}
			}
			pins[i] = v - 1
		}
		edges[e] = pins
	}

	var vertexWeights []int64
	if hasVertexWeights {
		vertexWeights = make([]int64, numVertices)
		for v := 0; v < numVertices; v++ {
			fields, ok := nextLine()
			if !ok {
				return nil, &FormatError{Line: lineNo, Reason: fmt.Sprintf("expected %d vertex weights, found %d", numVertices, v)}
			}
			w, err := strconv.ParseInt(fields[0], 10, 64)
			if err != nil {
				return nil, &FormatError{Line: lineNo, Reason: "bad vertex weight " + fields[0]}
			}
			vertexWeights[v] = w
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan hypergraph: %w", err)
	}

	return New(numVertices, edges, edgeWeights, vertexWeights)
}

func parseCount(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative value %d", n)
	}
	return n, nil
}
