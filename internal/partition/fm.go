package partition

import (
	"log/slog"

	"github.com/cwbudde/fmrefine/internal/refine"
)

// FMSource yields FM-style moves for one pass over a Partition.
//
// Every call to Next picks the move with the highest gain among unlocked
// border vertices, to any block the vertex is connected to, that keeps the
// target block within the weight limit. Ties go to the smaller vertex id,
// then the smaller block id. A vertex is locked once its move is handed out,
// so each vertex moves at most once per pass.
//
// Candidates are rescanned on every call; there is no gain cache.
type FMSource struct {
	p              *Partition
	maxBlockWeight int64
	locked         []bool
	emitted        int
}

var _ refine.MoveSource = (*FMSource)(nil)

// NewFMSource starts a pass over p. Moves must be applied to p before the
// next call to Next.
func NewFMSource(p *Partition, maxBlockWeight int64) *FMSource {
	return &FMSource{
		p:              p,
		maxBlockWeight: maxBlockWeight,
		locked:         make([]bool, p.h.NumVertices()),
	}
}

// Next implements refine.MoveSource.
func (s *FMSource) Next() (refine.Move, bool) {
	var best refine.Move
	found := false

	touched := make([]bool, s.p.k)
	for v := range s.locked {
		if s.locked[v] || !s.p.IsBorder(v) {
			continue
		}

		from := s.p.blocks[v]
		w := s.p.h.VertexWeight(v)

		for b := range touched {
			touched[b] = false
		}
		for _, e := range s.p.h.IncidentEdges(v) {
			for b, c := range s.p.pinCounts[e] {
				if c > 0 {
					touched[b] = true
				}
			}
		}

		for to, ok := range touched {
			if !ok || to == from {
				continue
			}
			if s.p.blockWeights[to]+w > s.maxBlockWeight {
				continue
			}
			gain := s.p.Gain(v, to)
			if !found || gain > best.Gain {
				best = refine.Move{Vertex: v, From: from, To: to, Gain: gain}
				found = true
			}
		}
	}

	if !found {
		slog.Debug("FM source exhausted", "moves", s.emitted)
		return refine.Move{}, false
	}

	s.locked[best.Vertex] = true
	s.emitted++
	return best, true
}

// Emitted returns how many moves the source handed out.
func (s *FMSource) Emitted() int {
	return s.emitted
}
