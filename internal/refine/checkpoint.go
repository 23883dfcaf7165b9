package refine

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrRollbackMismatch is returned when undoing the move log does not land on
// the checkpointed cut. It means the partition or move log broke its contract.
var ErrRollbackMismatch = errors.New("rollback did not restore checkpoint cut")

// Checkpoint identifies the earliest position with the best cut of a pass.
type Checkpoint struct {
	MinCutIndex int   `json:"minCutIndex"`
	BestCut     int64 `json:"bestCut"`
}

// CheckpointTracker follows the position of a pass, the best state seen so
// far, and the log of applied moves needed to return to it.
//
// Position 0 is the state before the first move, so a fresh tracker's
// checkpoint is the pass's initial state.
type CheckpointTracker struct {
	checkpoint   Checkpoint
	currentIndex int
	log          []Move
}

// NewCheckpointTracker starts tracking a pass whose initial cut is initialCut.
func NewCheckpointTracker(initialCut int64) *CheckpointTracker {
	return &CheckpointTracker{
		checkpoint: Checkpoint{MinCutIndex: 0, BestCut: initialCut},
	}
}

// Record logs an applied move and the cut it produced. It returns true when
// the move produced a strictly better cut and the checkpoint advanced.
// Ties keep the earlier checkpoint.
func (t *CheckpointTracker) Record(m Move, cut int64) bool {
	t.log = append(t.log, m)
	t.currentIndex++

	if cut < t.checkpoint.BestCut {
		t.checkpoint = Checkpoint{MinCutIndex: t.currentIndex, BestCut: cut}
		return true
	}
	return false
}

// Checkpoint returns the current rollback target.
func (t *CheckpointTracker) Checkpoint() Checkpoint {
	return t.checkpoint
}

// MinCutIndex returns the position of the checkpoint.
func (t *CheckpointTracker) MinCutIndex() int {
	return t.checkpoint.MinCutIndex
}

// BestCut returns the best cut seen so far.
func (t *CheckpointTracker) BestCut() int64 {
	return t.checkpoint.BestCut
}

// CurrentIndex returns the number of moves currently applied.
func (t *CheckpointTracker) CurrentIndex() int {
	return t.currentIndex
}

// Moves returns a copy of the applied moves in order.
func (t *CheckpointTracker) Moves() []Move {
	return append([]Move{}, t.log...)
}

// Rollback undoes every move after the checkpoint, newest first, and returns
// how many moves were undone. On success the current position equals the
// checkpoint and p's cut equals BestCut.
func (t *CheckpointTracker) Rollback(p Partition) (int, error) {
	undone := 0
	for t.currentIndex > t.checkpoint.MinCutIndex {
		m := t.log[t.currentIndex-1]
		if err := p.Move(m.Reverse()); err != nil {
			return undone, fmt.Errorf("failed to undo move %d (vertex %d): %w", t.currentIndex, m.Vertex, err)
		}
		t.log = t.log[:t.currentIndex-1]
		t.currentIndex--
		undone++
	}

	if cut := p.Cut(); cut != t.checkpoint.BestCut {
		return undone, fmt.Errorf("%w: expected %d, got %d", ErrRollbackMismatch, t.checkpoint.BestCut, cut)
	}

	slog.Debug("Rolled back to checkpoint",
		"min_cut_index", t.checkpoint.MinCutIndex,
		"best_cut", t.checkpoint.BestCut,
		"undone", undone,
	)
	return undone, nil
}
