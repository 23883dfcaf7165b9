package refine

// Move relocates one vertex from block From to block To.
// Gain is the cut reduction the move realizes; positive gains improve the cut.
type Move struct {
	Vertex int   `json:"vertex"`
	From   int   `json:"from"`
	To     int   `json:"to"`
	Gain   int64 `json:"gain"`
}

// Reverse returns the move that undoes m.
func (m Move) Reverse() Move {
	return Move{Vertex: m.Vertex, From: m.To, To: m.From, Gain: -m.Gain}
}

// MoveSource yields candidate moves for a pass.
// Next returns false once no candidate remains.
type MoveSource interface {
	Next() (Move, bool)
}

// Partition is the mutable partition state a pass works on.
type Partition interface {
	// Cut returns the current objective value
	Cut() int64
	// Move applies m. Reverse moves must restore the exact previous state.
	Move(m Move) error
}
