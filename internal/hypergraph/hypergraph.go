// Package hypergraph holds the weighted hypergraphs that get partitioned.
package hypergraph

import (
	"fmt"
)

// Hypergraph is an immutable weighted hypergraph.
// Vertices and hyperedges are numbered from 0.
type Hypergraph struct {
	vertexWeights []int64
	edgeWeights   []int64
	pins          [][]int // pins[e] = vertices of hyperedge e
	incident      [][]int // incident[v] = hyperedges containing v
	totalWeight   int64
}

// New builds a hypergraph with numVertices vertices and the given hyperedges.
// A nil edgeWeights or vertexWeights means unit weights. Duplicate pins in
// a hyperedge are removed.
func New(numVertices int, edges [][]int, edgeWeights, vertexWeights []int64) (*Hypergraph, error) {
	if numVertices < 0 {
		return nil, &FormatError{Reason: "negative vertex count"}
	}
	if edgeWeights != nil && len(edgeWeights) != len(edges) {
		return nil, &FormatError{Reason: fmt.Sprintf("%d edge weights for %d hyperedges", len(edgeWeights), len(edges))}
	}
	if vertexWeights != nil && len(vertexWeights) != numVertices {
		return nil, &FormatError{Reason: fmt.Sprintf("%d vertex weights for %d vertices", len(vertexWeights), numVertices)}
	}

	h := &Hypergraph{
		vertexWeights: make([]int64, numVertices),
		edgeWeights:   make([]int64, len(edges)),
		pins:          make([][]int, len(edges)),
		incident:      make([][]int, numVertices),
	}

	for v := 0; v < numVertices; v++ {
		w := int64(1)
		if vertexWeights != nil {
			w = vertexWeights[v]
		}
		if w <= 0 {
			return nil, &FormatError{Reason: fmt.Sprintf("vertex %d has non-positive weight %d", v, w)}
		}
		h.vertexWeights[v] = w
		h.totalWeight += w
	}

	for e, pins := range edges {
		w := int64(1)
		if edgeWeights != nil {
			w = edgeWeights[e]
		}
		if w <= 0 {
			return nil, &FormatError{Reason: fmt.Sprintf("hyperedge %d has non-positive weight %d", e, w)}
		}
		h.edgeWeights[e] = w

		seen := make(map[int]bool, len(pins))
		for _, v := range pins {
			if v < 0 || v >= numVertices {
				return nil, &FormatError{Reason: fmt.Sprintf("hyperedge %d has pin %d out of range", e, v)}
			}
			if seen[v] {
				continue
			}
			seen[v] = true
			h.pins[e] = append(h.pins[e], v)
			h.incident[v] = append(h.incident[v], e)
		}
	}

	return h, nil
}

// NumVertices returns the number of vertices.
func (h *Hypergraph) NumVertices() int {
	return len(h.vertexWeights)
}

// NumEdges returns the number of hyperedges.
func (h *Hypergraph) NumEdges() int {
	return len(h.edgeWeights)
}

// NumPins returns the total hyperedge size.
func (h *Hypergraph) NumPins() int {
	n := 0
	for _, p := range h.pins {
		n += len(p)
	}
	return n
}

// VertexWeight returns the weight of v.
func (h *Hypergraph) VertexWeight(v int) int64 {
	return h.vertexWeights[v]
}

// EdgeWeight returns the weight of e.
func (h *Hypergraph) EdgeWeight(e int) int64 {
	return h.edgeWeights[e]
}

// TotalWeight returns the sum of all vertex weights.
func (h *Hypergraph) TotalWeight() int64 {
	return h.totalWeight
}

// Pins returns the vertices of e. The slice must not be modified.
func (h *Hypergraph) Pins(e int) []int {
	return h.pins[e]
}

// IncidentEdges returns the hyperedges containing v. The slice must not be modified.
func (h *Hypergraph) IncidentEdges(v int) []int {
	return h.incident[v]
}

// FormatError reports a malformed hypergraph or input file.
type FormatError struct {
	Line   int
	Reason string
}

func (e *FormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("hypergraph format error at line %d: %s", e.Line, e.Reason)
	}
	return "hypergraph format error: " + e.Reason
}
