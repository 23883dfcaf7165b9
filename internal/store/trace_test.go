package store

import (
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cwbudde/fmrefine/internal/refine"
)

func TestTraceWriter_WriteAndRead(t *testing.T) {
	tmpDir := t.TempDir()
	runID := "test-run-123"

	writer, err := NewTraceWriter(tmpDir, runID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}

	entries := []TraceEntry{
		{Pass: 0, Index: 1, Vertex: 4, From: 0, To: 1, Gain: 2, Cut: 8},
		{Pass: 0, Index: 2, Vertex: 7, From: 1, To: 0, Gain: -1, Cut: 9},
		{Pass: 1, Index: 1, Vertex: 2, From: 0, To: 1, Gain: 1, Cut: 7},
	}
	for _, entry := range entries {
		if err := writer.Write(entry); err != nil {
			t.Fatalf("Failed to write entry: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}

	tracePath := filepath.Join(tmpDir, "runs", runID, "trace.jsonl")
	if writer.Path() != tracePath {
		t.Errorf("Expected path %s, got %s", tracePath, writer.Path())
	}

	reader, err := NewTraceReader(tmpDir, runID)
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	readEntries, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("Failed to read entries: %v", err)
	}
	if len(readEntries) != len(entries) {
		t.Fatalf("Expected %d entries, got %d", len(entries), len(readEntries))
	}
	for i, entry := range readEntries {
		if entry != entries[i] {
			t.Errorf("Entry %d: expected %+v, got %+v", i, entries[i], entry)
		}
	}
}

func TestTraceWriter_Append(t *testing.T) {
	tmpDir := t.TempDir()
	runID := "test-run-append"

	for i := 0; i < 2; i++ {
		writer, err := NewTraceWriter(tmpDir, runID, i > 0)
		if err != nil {
			t.Fatalf("Failed to create trace writer: %v", err)
		}
		if err := writer.Write(TraceEntry{Pass: i, Index: 1, Cut: int64(10 - i)}); err != nil {
			t.Fatalf("Failed to write entry: %v", err)
		}
		if err := writer.Close(); err != nil {
			t.Fatalf("Failed to close writer: %v", err)
		}
	}

	reader, err := NewTraceReader(tmpDir, runID)
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	entries, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("Failed to read entries: %v", err)
	}
	if len(entries) != 2 || entries[1].Pass != 1 {
		t.Errorf("Expected 2 entries with the second from pass 1, got %+v", entries)
	}
}

func TestTraceWriter_Flush(t *testing.T) {
	tmpDir := t.TempDir()
	runID := "test-run-flush"

	writer, err := NewTraceWriter(tmpDir, runID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	defer writer.Close()

	if err := writer.Write(TraceEntry{Index: 1, Cut: 3}); err != nil {
		t.Fatalf("Failed to write entry: %v", err)
	}
	if err := writer.Flush(); err != nil {
		t.Fatalf("Failed to flush: %v", err)
	}

	info, err := os.Stat(writer.Path())
	if err != nil {
		t.Fatalf("Failed to stat trace file: %v", err)
	}
	if info.Size() == 0 {
		t.Error("Trace file should have content after flush")
	}
}

func TestTraceReader_ReadIteratively(t *testing.T) {
	tmpDir := t.TempDir()
	runID := "test-run-iter"

	writer, _ := NewTraceWriter(tmpDir, runID, false)
	for i := 1; i <= 3; i++ {
		writer.Write(TraceEntry{Index: i, Cut: int64(10 - i)})
	}
	writer.Close()

	reader, err := NewTraceReader(tmpDir, runID)
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	for i := 1; i <= 3; i++ {
		entry, err := reader.Read()
		if err != nil {
			t.Fatalf("Failed to read entry %d: %v", i, err)
		}
		if entry.Index != i {
			t.Errorf("Expected index %d, got %d", i, entry.Index)
		}
	}
	if _, err := reader.Read(); err != io.EOF {
		t.Errorf("Expected io.EOF, got %v", err)
	}
}

func TestTraceReader_NotFound(t *testing.T) {
	_, err := NewTraceReader(t.TempDir(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestTraceWriter_ConcurrentWrites(t *testing.T) {
	tmpDir := t.TempDir()
	runID := "test-run-concurrent"

	writer, err := NewTraceWriter(tmpDir, runID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}

	const numGoroutines = 8
	const perGoroutine = 50
	var wg sync.WaitGroup
	for g := 0; g < numGoroutines; g++ {
		wg.Add(1)
		go func(pass int) {
			defer wg.Done()
			for i := 1; i <= perGoroutine; i++ {
				if err := writer.Write(TraceEntry{Pass: pass, Index: i}); err != nil {
					t.Errorf("Write failed: %v", err)
				}
			}
		}(g)
	}
	wg.Wait()
	writer.Close()

	reader, _ := NewTraceReader(tmpDir, runID)
	defer reader.Close()
	entries, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("Failed to read entries: %v", err)
	}
	if len(entries) != numGoroutines*perGoroutine {
		t.Errorf("Expected %d entries, got %d", numGoroutines*perGoroutine, len(entries))
	}
}

func TestTraceObserver_RecordsPasses(t *testing.T) {
	tmpDir := t.TempDir()
	runID := "observed"

	writer, err := NewTraceWriter(tmpDir, runID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	obs := NewTraceObserver(writer)

	obs.OnMove(1, refine.Move{Vertex: 3, From: 0, To: 1, Gain: 2}, 8)
	obs.OnMove(2, refine.Move{Vertex: 5, From: 0, To: 1, Gain: -1}, 9)
	obs.OnPassEnd(&refine.PassResult{})
	obs.OnMove(1, refine.Move{Vertex: 5, From: 0, To: 1, Gain: 1}, 7)
	obs.OnPassEnd(&refine.PassResult{})

	if obs.Err() != nil {
		t.Fatalf("observer error: %v", obs.Err())
	}
	writer.Close()

	reader, _ := NewTraceReader(tmpDir, runID)
	defer reader.Close()
	entries, _ := reader.ReadAll()

	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	if entries[2].Pass != 1 || entries[2].Vertex != 5 || entries[2].Cut != 7 {
		t.Errorf("unexpected last entry %+v", entries[2])
	}
}

func TestSummarize(t *testing.T) {
	entries := []TraceEntry{
		{Pass: 0, Index: 1, Gain: 2, Cut: 8},
		{Pass: 0, Index: 2, Gain: -1, Cut: 9},
		{Pass: 0, Index: 3, Gain: -2, Cut: 11},
		{Pass: 1, Index: 1, Gain: 1, Cut: 7},
	}

	s := Summarize(entries)
	if s.Moves != 4 || len(s.Passes) != 2 {
		t.Fatalf("Expected 4 moves in 2 passes, got %d in %d", s.Moves, len(s.Passes))
	}

	p0 := s.Passes[0]
	if p0.StartCut != 10 || p0.BestCut != 8 || p0.BestIndex != 1 || p0.Moves != 3 {
		t.Errorf("unexpected pass 0 summary %+v", p0)
	}
	// gains 2, -1, -2: mean -1/3, variance (49/9 + 4/9 + 25/9)/2 = 13/3
	if math.Abs(p0.MeanGain+1.0/3) > 1e-12 || math.Abs(p0.GainVariance-13.0/3) > 1e-9 {
		t.Errorf("unexpected pass 0 stats mean=%v var=%v", p0.MeanGain, p0.GainVariance)
	}

	p1 := s.Passes[1]
	if p1.GainVariance != 0 || p1.MeanGain != 1 || p1.StartCut != 8 {
		t.Errorf("unexpected pass 1 summary %+v", p1)
	}

	if empty := Summarize(nil); empty.Moves != 0 || len(empty.Passes) != 0 || empty.GainVariance != 0 {
		t.Errorf("unexpected empty summary %+v", empty)
	}
}

func TestSummarize_MatchesRandomWalkStatistics(t *testing.T) {
	gains := []int64{5, -3, 0, 2, -7, 1, 1, -2}
	entries := make([]TraceEntry, len(gains))
	policy := &refine.RandomWalkPolicy{}
	for i, g := range gains {
		entries[i] = TraceEntry{Index: i + 1, Gain: g}
		policy.UpdateStatistics(float64(g))
	}

	s := Summarize(entries)
	if math.Abs(s.MeanGain-policy.ExpectedGain()) > 1e-12 {
		t.Errorf("mean %v differs from running mean %v", s.MeanGain, policy.ExpectedGain())
	}
	if math.Abs(s.GainVariance-policy.ExpectedVariance()) > 1e-9 {
		t.Errorf("variance %v differs from running variance %v", s.GainVariance, policy.ExpectedVariance())
	}
}

func TestReplayAdaptive(t *testing.T) {
	entries := []TraceEntry{
		{Pass: 0, Index: 1, Gain: 4},
		{Pass: 0, Index: 2, Gain: -1},
		{Pass: 1, Index: 1, Gain: 1},
		{Pass: 1, Index: 2, Gain: 1},
		{Pass: 1, Index: 3, Gain: 1},
	}

	stops := ReplayAdaptive(entries, refine.Config{StoppingRule: refine.RuleAdaptiveOpt, Alpha: 1, Beta: 5})
	// pass 0: 1*16 > 0+5 stops at once; pass 1: 3*1 > 0+5 never holds
	if len(stops) != 2 || stops[0] != 1 || stops[1] != 0 {
		t.Errorf("Expected [1 0], got %v", stops)
	}
}
