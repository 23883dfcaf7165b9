// Package partition keeps a k-way block assignment of a hypergraph and its
// cut, and produces FM-style candidate moves for local search.
package partition

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/cwbudde/fmrefine/internal/hypergraph"
	"github.com/cwbudde/fmrefine/internal/refine"
)

// Partition is a k-way assignment of vertices to blocks with an
// incrementally maintained cut: the total weight of hyperedges whose pins
// lie in more than one block.
type Partition struct {
	h            *hypergraph.Hypergraph
	k            int
	blocks       []int
	blockWeights []int64
	pinCounts    [][]int // pinCounts[e][b] = pins of e in block b
	connectivity []int   // number of blocks e touches
	cut          int64
}

var _ refine.Partition = (*Partition)(nil)

// FromAssignment builds a partition from an explicit block per vertex.
func FromAssignment(h *hypergraph.Hypergraph, k int, blocks []int) (*Partition, error) {
	if k < 2 {
		return nil, fmt.Errorf("need at least 2 blocks, got %d", k)
	}
	if len(blocks) != h.NumVertices() {
		return nil, fmt.Errorf("assignment has %d entries for %d vertices", len(blocks), h.NumVertices())
	}

	p := &Partition{
		h:            h,
		k:            k,
		blocks:       append([]int{}, blocks...),
		blockWeights: make([]int64, k),
		pinCounts:    make([][]int, h.NumEdges()),
		connectivity: make([]int, h.NumEdges()),
	}

	for v, b := range p.blocks {
		if b < 0 || b >= k {
			return nil, fmt.Errorf("vertex %d assigned to block %d outside [0,%d)", v, b, k)
		}
		p.blockWeights[b] += h.VertexWeight(v)
	}

	for e := 0; e < h.NumEdges(); e++ {
		counts := make([]int, k)
		for _, v := range h.Pins(e) {
			counts[p.blocks[v]]++
		}
		for _, c := range counts {
			if c > 0 {
				p.connectivity[e]++
			}
		}
		p.pinCounts[e] = counts
		if p.connectivity[e] > 1 {
			p.cut += h.EdgeWeight(e)
		}
	}

	return p, nil
}

// NewRandom assigns vertices to k blocks in a seeded random order, always
// filling the lightest block next. It is a seed state for refinement, not
// an initial partitioning algorithm.
func NewRandom(h *hypergraph.Hypergraph, k int, seed int64) (*Partition, error) {
	if k < 2 {
		return nil, fmt.Errorf("need at least 2 blocks, got %d", k)
	}

	rng := rand.New(rand.NewSource(seed))
	order := rng.Perm(h.NumVertices())

	blocks := make([]int, h.NumVertices())
	weights := make([]int64, k)
	for _, v := range order {
		lightest := 0
		for b := 1; b < k; b++ {
			if weights[b] < weights[lightest] {
				lightest = b
			}
		}
		blocks[v] = lightest
		weights[lightest] += h.VertexWeight(v)
	}

	return FromAssignment(h, k, blocks)
}

// MaxBlockWeight returns the balance limit (1+epsilon)*ceil(total/k).
func MaxBlockWeight(h *hypergraph.Hypergraph, k int, epsilon float64) int64 {
	perBlock := math.Ceil(float64(h.TotalWeight()) / float64(k))
	return int64(math.Floor((1 + epsilon) * perBlock))
}

// Hypergraph returns the partitioned hypergraph.
func (p *Partition) Hypergraph() *hypergraph.Hypergraph {
	return p.h
}

// K returns the number of blocks.
func (p *Partition) K() int {
	return p.k
}

// Block returns the block of v.
func (p *Partition) Block(v int) int {
	return p.blocks[v]
}

// BlockWeight returns the total vertex weight of block b.
func (p *Partition) BlockWeight(b int) int64 {
	return p.blockWeights[b]
}

// Assignment returns a copy of the block of every vertex.
func (p *Partition) Assignment() []int {
	return append([]int{}, p.blocks...)
}

// Cut implements refine.Partition.
func (p *Partition) Cut() int64 {
	return p.cut
}

// Imbalance returns max block weight / (total/k) - 1.
func (p *Partition) Imbalance() float64 {
	avg := float64(p.h.TotalWeight()) / float64(p.k)
	if avg == 0 {
		return 0
	}
	var heaviest int64
	for _, w := range p.blockWeights {
		if w > heaviest {
			heaviest = w
		}
	}
	return float64(heaviest)/avg - 1
}

// IsBorder reports whether v has a pin in a cut hyperedge.
func (p *Partition) IsBorder(v int) bool {
	for _, e := range p.h.IncidentEdges(v) {
		if p.connectivity[e] > 1 {
			return true
		}
	}
	return false
}

// Gain returns the cut reduction of moving v to block to.
func (p *Partition) Gain(v, to int) int64 {
	from := p.blocks[v]
	if from == to {
		return 0
	}
	var gain int64
	for _, e := range p.h.IncidentEdges(v) {
		size := len(p.h.Pins(e))
		counts := p.pinCounts[e]
		w := p.h.EdgeWeight(e)
		// e leaves the cut when v is its last pin outside to
		if size > 1 && counts[to] == size-1 {
			gain += w
		}
		// e enters the cut when it was entirely in from
		if counts[from] == size && size > 1 {
			gain -= w
		}
	}
	return gain
}

// Move implements refine.Partition. It checks that m.From matches the
// current block of the vertex but does not check m.Gain.
func (p *Partition) Move(m refine.Move) error {
	v := m.Vertex
	if v < 0 || v >= len(p.blocks) {
		return fmt.Errorf("vertex %d out of range", v)
	}
	if m.To < 0 || m.To >= p.k {
		return fmt.Errorf("target block %d out of range", m.To)
	}
	if p.blocks[v] != m.From {
		return fmt.Errorf("vertex %d is in block %d, not %d", v, p.blocks[v], m.From)
	}
	if m.From == m.To {
		return nil
	}

	w := p.h.VertexWeight(v)
	p.blockWeights[m.From] -= w
	p.blockWeights[m.To] += w
	p.blocks[v] = m.To

	for _, e := range p.h.IncidentEdges(v) {
		counts := p.pinCounts[e]
		wasCut := p.connectivity[e] > 1

		counts[m.From]--
		if counts[m.From] == 0 {
			p.connectivity[e]--
		}
		counts[m.To]++
		if counts[m.To] == 1 {
			p.connectivity[e]++
		}

		isCut := p.connectivity[e] > 1
		switch {
		case wasCut && !isCut:
			p.cut -= p.h.EdgeWeight(e)
		case !wasCut && isCut:
			p.cut += p.h.EdgeWeight(e)
		}
	}
	return nil
}

// Clone returns an independent copy sharing only the hypergraph.
func (p *Partition) Clone() *Partition {
	c := &Partition{
		h:            p.h,
		k:            p.k,
		blocks:       append([]int{}, p.blocks...),
		blockWeights: append([]int64{}, p.blockWeights...),
		pinCounts:    make([][]int, len(p.pinCounts)),
		connectivity: append([]int{}, p.connectivity...),
		cut:          p.cut,
	}
	for e, counts := range p.pinCounts {
		c.pinCounts[e] = append([]int{}, counts...)
	}
	return c
}
